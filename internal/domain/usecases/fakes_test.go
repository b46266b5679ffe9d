package usecases

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/0xcro3dile/lemmaserve/internal/domain/entities"
	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// wordPipeline splits on whitespace and lowercases for the lemma.
type wordPipeline struct {
	components []string
	version    string
	calls      atomic.Int32
	err        error
}

var _ ports.Pipeline = (*wordPipeline)(nil)

func newWordPipeline() *wordPipeline {
	return &wordPipeline{components: []string{"tok2vec", "tagger", "lemmatizer"}, version: "3.7.1"}
}

func (p *wordPipeline) Pipe(ctx context.Context, texts []string) ([]entities.Doc, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	docs := make([]entities.Doc, len(texts))
	for i, text := range texts {
		for _, w := range strings.Fields(text) {
			docs[i] = append(docs[i], entities.Token{
				Text:    w,
				Lemma:   strings.ToLower(w),
				POS:     "NOUN",
				Tag:     "NN",
				Dep:     "ROOT",
				IsAlpha: true,
			})
		}
	}
	return docs, nil
}

func (p *wordPipeline) Components() []string { return p.components }
func (p *wordPipeline) Version() string      { return p.version }

// mockRuntime implements ports.PipelineRuntime with testify expectations.
type mockRuntime struct {
	mock.Mock
}

var _ ports.PipelineRuntime = (*mockRuntime)(nil)

func (m *mockRuntime) LoadNamed(ctx context.Context, name string, disable []string) (ports.Pipeline, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.Pipeline), args.Error(1)
}

func (m *mockRuntime) LoadPath(ctx context.Context, path string, disable []string) (ports.Pipeline, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.Pipeline), args.Error(1)
}

func (m *mockRuntime) Name() string                       { return "mock" }
func (m *mockRuntime) Version(ctx context.Context) string { return "0" }

type mockInstaller struct {
	mock.Mock
}

func (m *mockInstaller) Install(ctx context.Context, url string) error {
	return m.Called(url).Error(0)
}

type mockHub struct {
	mock.Mock
}

func (m *mockHub) Fetch(ctx context.Context, repo, destDir string) (string, error) {
	args := m.Called(repo, destDir)
	return args.String(0), args.Error(1)
}

// mapLoader serves pipelines keyed by descriptor source.
type mapLoader struct {
	mu        sync.Mutex
	pipelines map[string]ports.Pipeline
	loaded    []entities.PipelineDescriptor
}

func (l *mapLoader) Load(ctx context.Context, desc entities.PipelineDescriptor) (ports.Pipeline, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pipelines[desc.Source]
	if !ok {
		return nil, errors.Join(entities.ErrLoadFailed, errors.New("no such source "+desc.Source))
	}
	l.loaded = append(l.loaded, desc)
	return p, nil
}

// recordingMetrics captures measurements for assertions.
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	attempts map[string]int
	loaded   int
}

func (m *recordingMetrics) LoadAttempt(strategy string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempts == nil {
		m.attempts = make(map[string]int)
	}
	if ok {
		m.attempts[strategy+":ok"]++
	} else {
		m.attempts[strategy+":fail"]++
	}
}

func (m *recordingMetrics) PipelinesLoaded(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = n
}

func (m *recordingMetrics) Request(pipeline, outcome string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}
