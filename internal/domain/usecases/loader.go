// Package usecases contains application business rules: resolving pipeline
// descriptors, keeping the registry, and dispatching annotation requests.
// They depend only on entities and port interfaces.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/0xcro3dile/lemmaserve/internal/domain/entities"
	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// Strategy names, also used as metric labels.
const (
	StrategyNamed     = "named"
	StrategyRelative  = "relative_path"
	StrategyAbsolute  = "absolute_path"
	StrategyInstall   = "download_url"
	StrategyHub       = "hub_repo"
	StrategyReinstall = "named_after_install"
)

// Loader resolves a PipelineDescriptor into a Pipeline by trying local
// resolution first and remote acquisition after, in a fixed order.
type Loader struct {
	runtime   ports.PipelineRuntime
	installer ports.PackageInstaller // optional
	hub       ports.HubFetcher       // optional
	modelsDir string
	cacheDir  string
	metrics   ports.Metrics
	logger    *zap.Logger
}

// LoaderConfig holds the Loader collaborators. Installer and Hub may be nil,
// which disables the corresponding strategy.
type LoaderConfig struct {
	Runtime   ports.PipelineRuntime
	Installer ports.PackageInstaller
	Hub       ports.HubFetcher
	ModelsDir string
	CacheDir  string
	Metrics   ports.Metrics
	Logger    *zap.Logger
}

// NewLoader creates a Loader with injected dependencies.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Metrics == nil {
		cfg.Metrics = ports.NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Loader{
		runtime:   cfg.Runtime,
		installer: cfg.Installer,
		hub:       cfg.Hub,
		modelsDir: cfg.ModelsDir,
		cacheDir:  cfg.CacheDir,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Load returns the first pipeline any strategy produces. When every strategy
// fails the error wraps entities.ErrLoadFailed and each strategy's error.
func (l *Loader) Load(ctx context.Context, desc entities.PipelineDescriptor) (ports.Pipeline, error) {
	log := l.logger.With(zap.String("pipeline", desc.Name), zap.String("source", desc.Source))
	var errs []error

	attempt := func(strategy string, fn func() (ports.Pipeline, error)) ports.Pipeline {
		log.Info("resolving pipeline", zap.String("strategy", strategy))
		p, err := fn()
		l.metrics.LoadAttempt(strategy, err == nil)
		if err != nil {
			log.Debug("strategy failed", zap.String("strategy", strategy), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", strategy, err))
			return nil
		}
		return p
	}

	// 1. Named / installed pipeline.
	if p := attempt(StrategyNamed, func() (ports.Pipeline, error) {
		return l.runtime.LoadNamed(ctx, desc.Source, desc.Disable)
	}); p != nil {
		return l.loaded(log, p), nil
	}

	// 2-3. Filesystem paths, only when they exist.
	if !filepath.IsAbs(desc.Source) {
		path := filepath.Join(l.modelsDir, desc.Source)
		if exists(path) {
			if p := attempt(StrategyRelative, func() (ports.Pipeline, error) {
				return l.runtime.LoadPath(ctx, path, desc.Disable)
			}); p != nil {
				return l.loaded(log, p), nil
			}
		}
	} else if exists(desc.Source) {
		if p := attempt(StrategyAbsolute, func() (ports.Pipeline, error) {
			return l.runtime.LoadPath(ctx, desc.Source, desc.Disable)
		}); p != nil {
			return l.loaded(log, p), nil
		}
	}

	// 4. Install the package, then retry named resolution once.
	if desc.DownloadURL != "" && l.installer != nil {
		log.Info("installing pipeline package", zap.String("url", desc.DownloadURL))
		if err := l.installer.Install(ctx, desc.DownloadURL); err != nil {
			l.metrics.LoadAttempt(StrategyInstall, false)
			log.Error("package install failed", zap.String("url", desc.DownloadURL), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", StrategyInstall, err))
		} else {
			l.metrics.LoadAttempt(StrategyInstall, true)
			if p := attempt(StrategyReinstall, func() (ports.Pipeline, error) {
				return l.runtime.LoadNamed(ctx, desc.Source, desc.Disable)
			}); p != nil {
				return l.loaded(log, p), nil
			}
		}
	}

	// 5. Content hub snapshot.
	if desc.HubRepo != "" && l.hub != nil {
		log.Info("fetching pipeline from hub", zap.String("repo", desc.HubRepo))
		if p := attempt(StrategyHub, func() (ports.Pipeline, error) {
			if err := os.MkdirAll(l.cacheDir, 0o755); err != nil {
				return nil, fmt.Errorf("creating download directory: %w", err)
			}
			dir, err := l.hub.Fetch(ctx, desc.HubRepo, l.cacheDir)
			if err != nil {
				log.Error("hub fetch failed", zap.String("repo", desc.HubRepo), zap.Error(err))
				return nil, err
			}
			return l.runtime.LoadPath(ctx, dir, desc.Disable)
		}); p != nil {
			return l.loaded(log, p), nil
		}
	}

	return nil, fmt.Errorf("%w: %q: %w", entities.ErrLoadFailed, desc.Name, errors.Join(errs...))
}

func (l *Loader) loaded(log *zap.Logger, p ports.Pipeline) ports.Pipeline {
	log.Info("pipeline loaded",
		zap.Strings("components", p.Components()),
		zap.String("version", p.Version()),
	)
	return p
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
