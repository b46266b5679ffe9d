package native

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// RuntimeVersion is reported by /info.
const RuntimeVersion = "1.0.0"

// ErrNotInstalled is returned by LoadNamed when no package directory exists.
var ErrNotInstalled = errors.New("pipeline package not installed")

// Runtime loads model directories. Named pipelines live under packagesDir.
type Runtime struct {
	packagesDir string
}

var _ ports.PipelineRuntime = (*Runtime)(nil)

// NewRuntime creates a runtime resolving named pipelines under packagesDir.
func NewRuntime(packagesDir string) *Runtime {
	return &Runtime{packagesDir: packagesDir}
}

// LoadNamed loads packagesDir/name.
func (r *Runtime) LoadNamed(ctx context.Context, name string, disable []string) (ports.Pipeline, error) {
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: %q", ErrNotInstalled, name)
	}
	dir := filepath.Join(r.packagesDir, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrNotInstalled, name)
	}
	return r.LoadPath(ctx, dir, disable)
}

// LoadPath loads the model directory at path.
func (r *Runtime) LoadPath(ctx context.Context, path string, disable []string) (ports.Pipeline, error) {
	meta, err := ReadMeta(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	lexicon := map[string]Lexeme{}
	lexPath := LexiconPath(path)
	if _, err := os.Stat(lexPath); err == nil {
		lexicon, err = readLexicon(ctx, lexPath)
		if err != nil {
			return nil, fmt.Errorf("loading lexicon %s: %w", lexPath, err)
		}
	}

	return NewPipeline(meta, lexicon, disable), nil
}

// Name identifies the runtime.
func (r *Runtime) Name() string { return "native" }

// Version returns the runtime version.
func (r *Runtime) Version(ctx context.Context) string { return RuntimeVersion }
