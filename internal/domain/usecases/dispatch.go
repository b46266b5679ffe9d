package usecases

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/0xcro3dile/lemmaserve/internal/domain/entities"
	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// PipelineSource is the read side of the Registry used by the Dispatcher.
type PipelineSource interface {
	Get(name string) (ports.Pipeline, bool)
	List() []string
}

// Limits bounds what a single request may ask for.
type Limits struct {
	MaxBatchSize  int
	MaxTextLength int // in characters (runes)

	// PipelineConcurrency caps in-flight Pipe calls per pipeline name.
	// Zero means unbounded.
	PipelineConcurrency int
}

// Dispatcher validates annotation requests, runs the resolved pipeline and
// projects tokens onto the requested fields.
type Dispatcher struct {
	pipelines PipelineSource
	limits    Limits
	metrics   ports.Metrics
	logger    *zap.Logger

	gatesMu sync.Mutex
	gates   map[string]chan struct{}
}

// NewDispatcher creates a Dispatcher reading pipelines from src.
func NewDispatcher(src PipelineSource, limits Limits, metrics ports.Metrics, logger *zap.Logger) *Dispatcher {
	if limits.MaxBatchSize <= 0 {
		limits.MaxBatchSize = 1000
	}
	if limits.MaxTextLength <= 0 {
		limits.MaxTextLength = 1_000_000
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		pipelines: src,
		limits:    limits,
		metrics:   metrics,
		logger:    logger,
		gates:     make(map[string]chan struct{}),
	}
}

// Handle runs one annotation request. Validation failures return the typed
// errors from entities without touching the pipeline.
func (d *Dispatcher) Handle(ctx context.Context, req entities.AnnotationRequest) (*entities.AnnotationResponse, error) {
	name := strings.TrimSpace(req.Pipeline)

	// 1. Resolve the pipeline.
	p, ok := d.pipelines.Get(name)
	if !ok {
		d.metrics.Request(name, "unknown_pipeline", 0)
		return nil, &entities.UnknownPipelineError{Name: name, Available: d.pipelines.List()}
	}

	// 2-3. Size guards.
	if len(req.Texts) > d.limits.MaxBatchSize {
		d.metrics.Request(name, "batch_too_large", 0)
		return nil, &entities.BatchTooLargeError{Size: len(req.Texts), Max: d.limits.MaxBatchSize}
	}
	for i, text := range req.Texts {
		if utf8.RuneCountInString(text) > d.limits.MaxTextLength {
			d.metrics.Request(name, "text_too_long", 0)
			return nil, &entities.TextTooLongError{Index: i, Max: d.limits.MaxTextLength}
		}
	}

	// 4. Output fields.
	fields, err := resolveFields(req.Fields)
	if err != nil {
		d.metrics.Request(name, "unsupported_fields", 0)
		return nil, err
	}

	// 5-6. Process and project; only this part is timed.
	start := time.Now()
	docs, err := d.pipe(ctx, name, p, req.Texts)
	if err != nil {
		d.logger.Error("error processing texts", zap.String("pipeline", name), zap.Error(err))
		d.metrics.Request(name, "processing_failed", time.Since(start).Seconds())
		return nil, &entities.ProcessingError{Pipeline: name, Err: err}
	}

	rows := make([][][]string, len(docs))
	for i, doc := range docs {
		tokens := make([][]string, len(doc))
		for j, tok := range doc {
			values := make([]string, len(fields))
			for k, f := range fields {
				values[k] = f.Extract(tok)
			}
			tokens[j] = values
		}
		rows[i] = tokens
	}
	elapsed := time.Since(start)
	d.metrics.Request(name, "ok", elapsed.Seconds())

	return &entities.AnnotationResponse{
		Fields:        entities.FieldNames(fields),
		Documents:     rows,
		Pipeline:      name,
		ElapsedMillis: float64(elapsed.Microseconds()) / 1000,
	}, nil
}

// resolveFields validates requested field names; an empty list selects the defaults.
func resolveFields(names []string) ([]entities.Field, error) {
	if len(names) == 0 {
		return append([]entities.Field(nil), entities.DefaultFields...), nil
	}

	fields := make([]entities.Field, 0, len(names))
	var invalid []string
	seen := make(map[string]bool)
	for _, n := range names {
		f, ok := entities.ParseField(n)
		if !ok {
			if !seen[n] {
				invalid = append(invalid, n)
				seen[n] = true
			}
			continue
		}
		fields = append(fields, f)
	}
	if len(invalid) > 0 {
		return nil, &entities.UnsupportedFieldsError{Invalid: invalid, Supported: entities.SupportedFields()}
	}
	return fields, nil
}

// pipe invokes p, turning panics and malformed results into errors.
func (d *Dispatcher) pipe(ctx context.Context, name string, p ports.Pipeline, texts []string) (docs []entities.Doc, err error) {
	release, err := d.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	docs, err = p.Pipe(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(docs) != len(texts) {
		return nil, fmt.Errorf("pipeline returned %d documents for %d texts", len(docs), len(texts))
	}
	return docs, nil
}

// acquire takes a slot on the per-pipeline gate when concurrency is bounded.
func (d *Dispatcher) acquire(ctx context.Context, name string) (func(), error) {
	if d.limits.PipelineConcurrency <= 0 {
		return func() {}, nil
	}

	d.gatesMu.Lock()
	gate, ok := d.gates[name]
	if !ok {
		gate = make(chan struct{}, d.limits.PipelineConcurrency)
		d.gates[name] = gate
	}
	d.gatesMu.Unlock()

	select {
	case gate <- struct{}{}:
		return func() { <-gate }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
