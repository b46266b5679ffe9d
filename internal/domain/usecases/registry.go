package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/0xcro3dile/lemmaserve/internal/domain/entities"
	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// registryEntry is published as a unit, so readers see both halves or neither.
type registryEntry struct {
	desc     entities.PipelineDescriptor
	pipeline ports.Pipeline
}

// Registry maps pipeline names to loaded pipelines and their descriptors.
// It is safe for concurrent use; loads never hold the lock while a
// pipeline is being resolved.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
	order   []string // insertion order of names

	loader         ports.PipelineLoader
	defaultDisable []string
	metrics        ports.Metrics
	logger         *zap.Logger

	loadMu sync.Mutex // serializes LoadFromConfig calls
}

// NewRegistry creates an empty registry. defaultDisable is applied to
// descriptors whose "disable" list is missing or empty.
func NewRegistry(loader ports.PipelineLoader, defaultDisable []string, metrics ports.Metrics, logger *zap.Logger) *Registry {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries:        make(map[string]registryEntry),
		loader:         loader,
		defaultDisable: defaultDisable,
		metrics:        metrics,
		logger:         logger,
	}
}

// configDocument is the top-level shape of the models configuration.
type configDocument struct {
	Models []json.RawMessage `json:"models"`
}

// descriptorDocument mirrors one "models" entry. Pointers distinguish
// missing keys from empty values.
type descriptorDocument struct {
	Name        *string  `json:"name"`
	Language    string   `json:"language"`
	Type        string   `json:"type"`
	Path        *string  `json:"path"`
	Disable     []string `json:"disable"`
	DownloadURL string   `json:"download_url"`
	HubRepo     string   `json:"huggingface_repo"`
}

// LoadFromFile loads the configuration at path. A missing file is not an error.
func (r *Registry) LoadFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("models config not found, no pipelines will be loaded", zap.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading models config: %w", err)
	}
	return r.LoadFromConfig(ctx, data)
}

// LoadFromConfig loads every descriptor in document. Only a malformed
// document is returned as an error (wrapping entities.ErrConfigParse);
// invalid descriptors and load failures are logged and skipped.
func (r *Registry) LoadFromConfig(ctx context.Context, document []byte) error {
	var doc configDocument
	if err := json.Unmarshal(document, &doc); err != nil {
		r.logger.Error("invalid models config", zap.Error(err))
		return fmt.Errorf("%w: %w", entities.ErrConfigParse, err)
	}
	if len(doc.Models) == 0 {
		r.logger.Warn("no models specified in config")
		return nil
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	r.logger.Info("loading models from config", zap.Int("count", len(doc.Models)))
	loaded := 0
	for i, raw := range doc.Models {
		desc, err := r.parseDescriptor(raw)
		if err != nil {
			r.logger.Error("invalid model config, skipping", zap.Int("index", i), zap.Error(err))
			continue
		}
		p, err := r.loader.Load(ctx, desc)
		if err != nil {
			r.logger.Error("failed to load model", zap.String("pipeline", desc.Name), zap.Error(err))
			continue
		}
		r.Register(desc, p)
		loaded++
	}

	r.metrics.PipelinesLoaded(r.Len())
	r.logger.Info("models loaded", zap.Int("loaded", loaded), zap.Int("registered", r.Len()))
	return nil
}

func (r *Registry) parseDescriptor(raw json.RawMessage) (entities.PipelineDescriptor, error) {
	var d descriptorDocument
	if err := json.Unmarshal(raw, &d); err != nil {
		return entities.PipelineDescriptor{}, fmt.Errorf("%w: %w", entities.ErrDescriptorInvalid, err)
	}
	if d.Name == nil {
		return entities.PipelineDescriptor{}, fmt.Errorf("%w: missing key 'name'", entities.ErrDescriptorInvalid)
	}
	if d.Path == nil {
		return entities.PipelineDescriptor{}, fmt.Errorf("%w: missing key 'path'", entities.ErrDescriptorInvalid)
	}

	desc, err := entities.NewPipelineDescriptor(*d.Name, *d.Path, d.Disable, r.defaultDisable)
	if err != nil {
		return entities.PipelineDescriptor{}, err
	}
	if d.Language != "" {
		desc.Language = d.Language
	}
	if d.Type != "" {
		desc.Kind = d.Type
	}
	desc.DownloadURL = d.DownloadURL
	desc.HubRepo = d.HubRepo
	return desc, nil
}

// Register stores p under desc.Name, replacing any previous entry in place.
func (r *Registry) Register(desc entities.PipelineDescriptor, p ports.Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[desc.Name]; !ok {
		r.order = append(r.order, desc.Name)
	}
	r.entries[desc.Name] = registryEntry{desc: desc, pipeline: p}
}

// Get returns the pipeline registered under name.
func (r *Registry) Get(name string) (ports.Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	return e.pipeline, ok
}

// Descriptor returns the descriptor registered under name.
func (r *Registry) Descriptor(name string) (entities.PipelineDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	return e.desc, ok
}

// List returns registered names in insertion order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered pipelines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Info joins descriptor and pipeline state for name.
func (r *Registry) Info(name string) (entities.PipelineInfo, bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok || e.pipeline == nil {
		return entities.PipelineInfo{}, false
	}

	version := e.pipeline.Version()
	if version == "" {
		version = entities.UnknownVersion
	}
	components := e.pipeline.Components()
	if components == nil {
		components = []string{}
	}
	return entities.PipelineInfo{
		Name:       e.desc.Name,
		Language:   e.desc.Language,
		Kind:       e.desc.Kind,
		Version:    version,
		Components: components,
	}, true
}
