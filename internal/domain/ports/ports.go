// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/lemmaserve/internal/domain/entities"
)

// Pipeline is a loaded, ready-to-run language pipeline.
// Implementations must be safe for concurrent use once constructed.
type Pipeline interface {
	// Pipe processes texts in batch. The result has one Doc per text, in input order.
	Pipe(ctx context.Context, texts []string) ([]entities.Doc, error)

	// Components lists the active components in processing order.
	Components() []string

	// Version is the pipeline's self-reported version, or "unknown".
	Version() string
}

// PipelineRuntime turns a source into a Pipeline.
type PipelineRuntime interface {
	// LoadNamed resolves an installed pipeline by identifier.
	LoadNamed(ctx context.Context, name string, disable []string) (Pipeline, error)

	// LoadPath loads a pipeline from a directory on disk.
	LoadPath(ctx context.Context, path string, disable []string) (Pipeline, error)

	// Name identifies the runtime ("native", "spacy").
	Name() string

	// Version reports the runtime version for /info.
	Version(ctx context.Context) string
}

// PackageInstaller installs a pipeline package so that LoadNamed can find it.
type PackageInstaller interface {
	Install(ctx context.Context, url string) error
}

// HubFetcher downloads a repository snapshot from a content hub.
type HubFetcher interface {
	// Fetch stores repo under destDir and returns the local directory.
	Fetch(ctx context.Context, repo, destDir string) (string, error)
}

// PipelineLoader resolves a descriptor into a Pipeline.
type PipelineLoader interface {
	Load(ctx context.Context, desc entities.PipelineDescriptor) (Pipeline, error)
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

// Metrics receives operational measurements. Usecases given a nil Metrics
// use NopMetrics.
type Metrics interface {
	// LoadAttempt records the outcome of one loader strategy.
	LoadAttempt(strategy string, ok bool)

	// PipelinesLoaded reports the registry size after a load pass.
	PipelinesLoaded(n int)

	// Request records one dispatched request and its processing time in seconds.
	Request(pipeline, outcome string, seconds float64)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) LoadAttempt(string, bool)        {}
func (NopMetrics) PipelinesLoaded(int)             {}
func (NopMetrics) Request(string, string, float64) {}
