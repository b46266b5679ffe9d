package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/0xcro3dile/lemmaserve/internal/adapters/filewatcher"
	"github.com/0xcro3dile/lemmaserve/internal/adapters/hub"
	"github.com/0xcro3dile/lemmaserve/internal/adapters/installer"
	"github.com/0xcro3dile/lemmaserve/internal/adapters/native"
	"github.com/0xcro3dile/lemmaserve/internal/adapters/spacy"
	"github.com/0xcro3dile/lemmaserve/internal/config"
	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
	"github.com/0xcro3dile/lemmaserve/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/lemmaserve/internal/infrastructure/http"
	"github.com/0xcro3dile/lemmaserve/internal/metrics"
	"github.com/0xcro3dile/lemmaserve/pkg/logger"
)

const version = "0.1.0"

// App holds the wired components and their lifecycle.
type App struct {
	settings   *config.Settings
	logger     *zap.Logger
	registry   *usecases.Registry
	dispatcher *usecases.Dispatcher
	server     *httpserver.Server
	runtime    ports.PipelineRuntime
	watcher    *filewatcher.FSNotifyWatcher

	stopSidecar func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

// NewApp creates an App; Initialize does the wiring.
func NewApp() *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{ctx: ctx, cancel: cancel}
}

// Initialize loads settings, builds the runtime and loads the configured pipelines.
func (a *App) Initialize(settingsPath string) error {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return err
	}
	a.settings = settings

	log, err := logger.New(settings.Log.Level, settings.Log.Development)
	if err != nil {
		return err
	}
	a.logger = log
	a.logger.Info("starting lemmaserve",
		zap.String("version", version),
		zap.String("runtime", settings.Runtime.Kind),
		zap.String("models_dir", settings.Models.Dir),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var inst ports.PackageInstaller
	switch settings.Runtime.Kind {
	case config.RuntimeSpacy:
		rt := spacy.NewRuntime(settings.Runtime.SidecarURL)
		if settings.Runtime.SidecarScript != "" {
			startCtx, cancel := context.WithTimeout(a.ctx, 2*time.Minute)
			stop, err := rt.StartService(startCtx, settings.Runtime.Python, settings.Runtime.SidecarScript)
			cancel()
			if err != nil {
				return fmt.Errorf("starting spacy worker: %w", err)
			}
			a.stopSidecar = stop
		}
		a.runtime = rt
		inst = installer.NewPipInstaller(settings.Runtime.Python)
	default:
		a.runtime = native.NewRuntime(settings.PackagesDir())
		inst = installer.NewArchiveInstaller(settings.PackagesDir())
	}
	a.logger.Info("pipeline runtime ready",
		zap.String("runtime", a.runtime.Name()),
		zap.String("runtime_version", a.runtime.Version(a.ctx)),
	)

	loader := usecases.NewLoader(usecases.LoaderConfig{
		Runtime:   a.runtime,
		Installer: inst,
		Hub:       hub.NewHuggingFace(settings.Runtime.HubEndpoint, settings.Runtime.HubToken),
		ModelsDir: settings.Models.Dir,
		CacheDir:  settings.CacheDir(),
		Metrics:   m,
		Logger:    a.logger.Named("loader"),
	})
	a.registry = usecases.NewRegistry(loader, settings.Models.DisabledComponents, m, a.logger.Named("registry"))
	a.dispatcher = usecases.NewDispatcher(a.registry, usecases.Limits{
		MaxBatchSize:        settings.Limits.MaxBatchSize,
		MaxTextLength:       settings.Limits.MaxTextLength,
		PipelineConcurrency: settings.Limits.PipelineConcurrency,
	}, m, a.logger.Named("dispatcher"))

	if err := a.reload(a.ctx); err != nil {
		a.logger.Error("error loading models", zap.Error(err))
		a.logger.Warn("server will start without models")
	}
	if names := a.registry.List(); len(names) > 0 {
		a.logger.Info("loaded models", zap.Strings("models", names))
	} else {
		a.logger.Warn("no models loaded, please check configuration")
	}

	a.server = httpserver.NewServer(a.dispatcher, a.registry, a.runtime, httpserver.Options{
		Name:            "lemmaserve",
		Version:         version,
		Addr:            settings.Addr(),
		CORSOrigins:     settings.Server.CORSOrigins,
		MaxConnections:  settings.Server.MaxConnections,
		ReadTimeout:     settings.Server.ReadTimeout,
		WriteTimeout:    settings.Server.WriteTimeout,
		ShutdownTimeout: settings.Server.ShutdownTimeout,
		Reload:          a.reload,
		Gatherer:        reg,
	}, a.logger.Named("http"))

	return nil
}

// reload loads the active models configuration: config.json if present,
// else config.default.json.
func (a *App) reload(ctx context.Context) error {
	path := a.settings.ModelsConfigPath()
	if path == "" {
		a.logger.Warn("no models config found",
			zap.String("dir", a.settings.Models.Dir),
			zap.String("config_file", a.settings.Models.ConfigFile),
			zap.String("default_config_file", a.settings.Models.DefaultConfigFile),
		)
		return nil
	}
	a.logger.Info("loading models config", zap.String("path", path))
	return a.registry.LoadFromFile(ctx, path)
}

// Start begins serving and, when enabled, watching the models config.
func (a *App) Start() error {
	if a.settings.Models.Watch {
		if err := a.startWatcher(); err != nil {
			a.logger.Warn("models config watch disabled", zap.Error(err))
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.Start(a.ctx); err != nil {
			a.logger.Error("server stopped with error", zap.Error(err))
			a.cancel()
		}
	}()

	a.logger.Info("server startup complete", zap.String("addr", a.settings.Addr()))
	return nil
}

func (a *App) startWatcher() error {
	w, err := filewatcher.NewFSNotifyWatcher(
		[]string{a.settings.Models.ConfigFile, a.settings.Models.DefaultConfigFile},
		filewatcher.DefaultDebounce,
		a.logger.Named("watcher"),
	)
	if err != nil {
		return err
	}
	dir, err := filepath.Abs(a.settings.Models.Dir)
	if err != nil {
		w.Stop()
		return err
	}
	events, err := w.Watch(a.ctx, dir)
	if err != nil {
		w.Stop()
		return err
	}
	a.watcher = w

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				a.logger.Info("models config changed, reloading",
					zap.String("path", ev.Path),
					zap.Int("op", int(ev.Operation)),
				)
				if err := a.reload(a.ctx); err != nil {
					a.logger.Error("models reload failed", zap.Error(err))
				}
			}
		}
	}()
	return nil
}

// Done is closed when the app stops on its own.
func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Shutdown stops the server, the watcher and the sidecar.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down lemmaserve")
		a.cancel()

		if a.watcher != nil {
			if err := a.watcher.Stop(); err != nil {
				a.logger.Warn("stopping watcher", zap.Error(err))
			}
		}
		a.wg.Wait()

		if a.stopSidecar != nil {
			a.stopSidecar()
		}
		_ = a.logger.Sync()
	})
}

func main() {
	settingsPath := flag.String("config", os.Getenv("LEMMASERVE_CONFIG"), "path to a YAML settings file")
	flag.Parse()

	app := NewApp()
	if err := app.Initialize(*settingsPath); err != nil {
		fmt.Fprintf(os.Stderr, "lemmaserve: %v\n", err)
		os.Exit(1)
	}
	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "lemmaserve: %v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-app.Done():
	}

	app.Shutdown()
}
