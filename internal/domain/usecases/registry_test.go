package usecases

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/0xcro3dile/lemmaserve/internal/domain/entities"
	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

func newTestRegistry(t *testing.T, pipelines map[string]ports.Pipeline) (*Registry, *mapLoader) {
	t.Helper()
	loader := &mapLoader{pipelines: pipelines}
	return NewRegistry(loader, []string{"parser", "ner"}, nil, zaptest.NewLogger(t)), loader
}

func TestRegistry_Empty(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	assert.Empty(t, reg.List())
	_, ok := reg.Get("anything")
	assert.False(t, ok)
	_, ok = reg.Info("anything")
	assert.False(t, ok)
}

func TestRegistry_LoadFromConfig(t *testing.T) {
	en := newWordPipeline()
	de := newWordPipeline()
	de.components = []string{"tagger"}
	reg, loader := newTestRegistry(t, map[string]ports.Pipeline{"en_core_web_sm": en, "models/de": de})
	metrics := &recordingMetrics{}
	reg.metrics = metrics

	doc := `{"models": [
		{"name": " english ", "language": "en", "type": "small", "path": "en_core_web_sm"},
		{"name": "german", "path": "models/de", "disable": ["ner"],
		 "download_url": "https://example.com/de.tar.gz", "huggingface_repo": "org/de"}
	]}`
	require.NoError(t, reg.LoadFromConfig(context.Background(), []byte(doc)))

	assert.Equal(t, []string{"english", "german"}, reg.List())
	assert.Equal(t, 2, metrics.loaded)

	got, ok := reg.Get("english")
	require.True(t, ok)
	assert.Same(t, en, got)

	info, ok := reg.Info("english")
	require.True(t, ok)
	assert.Equal(t, entities.PipelineInfo{
		Name:       "english",
		Language:   "en",
		Kind:       "small",
		Version:    "3.7.1",
		Components: en.Components(),
	}, info)

	desc, ok := reg.Descriptor("german")
	require.True(t, ok)
	assert.Equal(t, entities.DefaultLanguage, desc.Language)
	assert.Equal(t, entities.DefaultKind, desc.Kind)
	assert.Equal(t, []string{"ner"}, desc.Disable)
	assert.Equal(t, "https://example.com/de.tar.gz", desc.DownloadURL)
	assert.Equal(t, "org/de", desc.HubRepo)

	// Descriptors without "disable" inherit the process default.
	assert.Equal(t, []string{"parser", "ner"}, loader.loaded[0].Disable)
}

func TestRegistry_EmptyDisableInheritsDefault(t *testing.T) {
	reg, loader := newTestRegistry(t, map[string]ports.Pipeline{"src": newWordPipeline()})
	require.NoError(t, reg.LoadFromConfig(context.Background(),
		[]byte(`{"models":[{"name":"a","path":"src","disable":[]}]}`)))

	desc, ok := reg.Descriptor("a")
	require.True(t, ok)
	assert.Equal(t, []string{"parser", "ner"}, desc.Disable)
	assert.Equal(t, []string{"parser", "ner"}, loader.loaded[0].Disable)
}

func TestRegistry_InfoComponentsMatchPipeline(t *testing.T) {
	p := newWordPipeline()
	reg, _ := newTestRegistry(t, map[string]ports.Pipeline{"src": p})
	require.NoError(t, reg.LoadFromConfig(context.Background(), []byte(`{"models":[{"name":"a","path":"src"}]}`)))

	for _, name := range reg.List() {
		got, ok := reg.Get(name)
		require.True(t, ok)
		info, ok := reg.Info(name)
		require.True(t, ok)
		assert.Equal(t, got.Components(), info.Components)
	}
}

func TestRegistry_EmptyOrMissingModels(t *testing.T) {
	for _, doc := range []string{`{}`, `{"models": []}`, `{"models": null}`} {
		t.Run(doc, func(t *testing.T) {
			reg, _ := newTestRegistry(t, nil)
			require.NoError(t, reg.LoadFromConfig(context.Background(), []byte(doc)))
			assert.Empty(t, reg.List())
		})
	}
}

func TestRegistry_MalformedConfigKeepsEntries(t *testing.T) {
	reg, _ := newTestRegistry(t, map[string]ports.Pipeline{"src": newWordPipeline()})
	require.NoError(t, reg.LoadFromConfig(context.Background(), []byte(`{"models":[{"name":"a","path":"src"}]}`)))

	for _, doc := range []string{`{ invalid json }`, `[]`, `{"models": "en"}`} {
		err := reg.LoadFromConfig(context.Background(), []byte(doc))
		require.ErrorIs(t, err, entities.ErrConfigParse, doc)
	}
	assert.Equal(t, []string{"a"}, reg.List())
}

func TestRegistry_SkipsInvalidDescriptors(t *testing.T) {
	reg, _ := newTestRegistry(t, map[string]ports.Pipeline{"src": newWordPipeline()})

	doc := `{"models": [
		{"path": "src"},
		{"name": "no-path"},
		{"name": "   ", "path": "src"},
		"not-an-object",
		{"name": "broken", "path": "does-not-load"},
		{"name": "ok", "path": "src"}
	]}`
	require.NoError(t, reg.LoadFromConfig(context.Background(), []byte(doc)))
	assert.Equal(t, []string{"ok"}, reg.List())
}

func TestRegistry_ReloadReplacesAfterSuccess(t *testing.T) {
	first := newWordPipeline()
	second := newWordPipeline()
	second.version = "3.8.0"
	reg, _ := newTestRegistry(t, map[string]ports.Pipeline{"v1": first, "v2": second, "b": newWordPipeline()})
	ctx := context.Background()

	require.NoError(t, reg.LoadFromConfig(ctx, []byte(`{"models":[{"name":"a","path":"v1"},{"name":"b","path":"b"}]}`)))
	require.NoError(t, reg.LoadFromConfig(ctx, []byte(`{"models":[{"name":"a","path":"v2","language":"en"}]}`)))

	got, _ := reg.Get("a")
	assert.Same(t, second, got)
	desc, _ := reg.Descriptor("a")
	assert.Equal(t, "en", desc.Language)
	// Replacement keeps the original position.
	assert.Equal(t, []string{"a", "b"}, reg.List())
}

func TestRegistry_FailedReloadKeepsPreviousHandle(t *testing.T) {
	first := newWordPipeline()
	reg, _ := newTestRegistry(t, map[string]ports.Pipeline{"v1": first})
	ctx := context.Background()

	require.NoError(t, reg.LoadFromConfig(ctx, []byte(`{"models":[{"name":"a","path":"v1"}]}`)))
	require.NoError(t, reg.LoadFromConfig(ctx, []byte(`{"models":[{"name":"a","path":"gone","language":"xx"}]}`)))

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Same(t, first, got)
	desc, _ := reg.Descriptor("a")
	assert.Equal(t, entities.DefaultLanguage, desc.Language)
}

func TestRegistry_LoadFromFile(t *testing.T) {
	reg, _ := newTestRegistry(t, map[string]ports.Pipeline{"src": newWordPipeline()})
	ctx := context.Background()

	require.NoError(t, reg.LoadFromFile(ctx, "/nonexistent/config.json"))
	assert.Empty(t, reg.List())

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"models":[{"name":"a","path":"src"}]}`), 0o644))
	require.NoError(t, reg.LoadFromFile(ctx, path))
	assert.Equal(t, []string{"a"}, reg.List())
}

func TestRegistry_ConcurrentReadsDuringLoad(t *testing.T) {
	pipelines := make(map[string]ports.Pipeline)
	var models string
	for i := 0; i < 50; i++ {
		src := fmt.Sprintf("src-%d", i)
		pipelines[src] = newWordPipeline()
		if i > 0 {
			models += ","
		}
		models += fmt.Sprintf(`{"name":"m-%d","path":%q}`, i, src)
	}
	reg, _ := newTestRegistry(t, pipelines)
	doc := []byte(`{"models":[` + models + `]}`)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, reg.LoadFromConfig(context.Background(), doc))
		}()
	}
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, name := range reg.List() {
					p, ok := reg.Get(name)
					if assert.True(t, ok) {
						assert.NotNil(t, p)
					}
					info, ok := reg.Info(name)
					if assert.True(t, ok) {
						assert.Equal(t, name, info.Name)
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, reg.List(), 50)
}
