// Package spacy provides a pipeline runtime backed by a Python spaCy worker.
// Clean Architecture: Adapter implementing ports.PipelineRuntime.
// Calls the worker over HTTP; the worker owns the loaded models.
package spacy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/0xcro3dile/lemmaserve/internal/domain/entities"
	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// Runtime implements ports.PipelineRuntime using a spaCy worker process.
type Runtime struct {
	serviceURL string
	client     *http.Client
	pythonCmd  *exec.Cmd
}

var _ ports.PipelineRuntime = (*Runtime)(nil)

// NewRuntime creates a runtime that calls the worker at serviceURL.
func NewRuntime(serviceURL string) *Runtime {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	return &Runtime{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

type loadRequest struct {
	Source  string   `json:"source"`
	Named   bool     `json:"named"`
	Disable []string `json:"disable"`
}

type loadResponse struct {
	Handle     string   `json:"handle"`
	Components []string `json:"components"`
	Version    string   `json:"version"`
	Error      string   `json:"error,omitempty"`
}

type pipeRequest struct {
	Handle string   `json:"handle"`
	Texts  []string `json:"texts"`
}

// wireToken is one token as the worker encodes it.
type wireToken struct {
	Text    string `json:"text"`
	Lemma   string `json:"lemma"`
	POS     string `json:"pos"`
	Tag     string `json:"tag"`
	Dep     string `json:"dep"`
	EntType string `json:"ent_type"`
	IsAlpha bool   `json:"is_alpha"`
	IsStop  bool   `json:"is_stop"`
}

type pipeResponse struct {
	Docs  [][]wireToken `json:"docs"`
	Error string        `json:"error,omitempty"`
}

type healthResponse struct {
	Status       string `json:"status"`
	SpacyVersion string `json:"spacy_version"`
}

// LoadNamed asks the worker to load an installed package.
func (r *Runtime) LoadNamed(ctx context.Context, name string, disable []string) (ports.Pipeline, error) {
	return r.load(ctx, loadRequest{Source: name, Named: true, Disable: disable})
}

// LoadPath asks the worker to load a model directory.
func (r *Runtime) LoadPath(ctx context.Context, path string, disable []string) (ports.Pipeline, error) {
	return r.load(ctx, loadRequest{Source: path, Disable: disable})
}

func (r *Runtime) load(ctx context.Context, in loadRequest) (ports.Pipeline, error) {
	if in.Disable == nil {
		in.Disable = []string{}
	}
	var out loadResponse
	if err := r.post(ctx, "/load", in, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("spacy load error: %s", out.Error)
	}
	if out.Handle == "" {
		return nil, fmt.Errorf("spacy load: empty handle for %q", in.Source)
	}
	version := out.Version
	if version == "" {
		version = entities.UnknownVersion
	}
	components := out.Components
	if components == nil {
		components = []string{}
	}
	return &Pipeline{runtime: r, handle: out.Handle, components: components, version: version}, nil
}

func (r *Runtime) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.serviceURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling spacy service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("spacy service returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
		}
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Name identifies the runtime.
func (r *Runtime) Name() string { return "spacy" }

// Version reports the worker's spaCy version, or "unknown" when unreachable.
func (r *Runtime) Version(ctx context.Context) string {
	h, err := r.health(ctx)
	if err != nil || h.SpacyVersion == "" {
		return entities.UnknownVersion
	}
	return h.SpacyVersion
}

// IsServiceHealthy checks if the worker is running.
func (r *Runtime) IsServiceHealthy(ctx context.Context) bool {
	_, err := r.health(ctx)
	return err == nil
}

func (r *Runtime) health(ctx context.Context) (*healthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", r.serviceURL+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, err
	}
	return &h, nil
}

// StartService starts the worker script with python as a subprocess and
// waits until /health answers or ctx is done.
// Returns a cleanup function to stop the service.
func (r *Runtime) StartService(ctx context.Context, python, scriptPath string) (func(), error) {
	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s not found at %s", filepath.Base(scriptPath), scriptPath)
	}
	if python == "" {
		python = "python3"
	}

	r.pythonCmd = exec.Command(python, scriptPath)
	r.pythonCmd.Stdout = os.Stdout
	r.pythonCmd.Stderr = os.Stderr
	r.pythonCmd.Env = append(os.Environ(), "SPACY_WORKER_URL="+r.serviceURL)

	if err := r.pythonCmd.Start(); err != nil {
		return nil, fmt.Errorf("starting spacy worker: %w", err)
	}

	cleanup := func() {
		if r.pythonCmd != nil && r.pythonCmd.Process != nil {
			r.pythonCmd.Process.Kill()
			r.pythonCmd.Wait()
		}
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for !r.IsServiceHealthy(ctx) {
		select {
		case <-ctx.Done():
			cleanup()
			return nil, fmt.Errorf("waiting for spacy worker: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	return cleanup, nil
}

// Pipeline is a model loaded inside the worker, addressed by handle.
type Pipeline struct {
	runtime    *Runtime
	handle     string
	components []string
	version    string
}

var _ ports.Pipeline = (*Pipeline)(nil)

// Pipe sends texts to the worker in one batch.
func (p *Pipeline) Pipe(ctx context.Context, texts []string) ([]entities.Doc, error) {
	var out pipeResponse
	if err := p.runtime.post(ctx, "/pipe", pipeRequest{Handle: p.handle, Texts: texts}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("spacy pipe error: %s", out.Error)
	}

	docs := make([]entities.Doc, len(out.Docs))
	for i, wdoc := range out.Docs {
		doc := make(entities.Doc, len(wdoc))
		for j, t := range wdoc {
			doc[j] = entities.Token{
				Text:    t.Text,
				Lemma:   t.Lemma,
				POS:     t.POS,
				Tag:     t.Tag,
				Dep:     t.Dep,
				EntType: t.EntType,
				IsAlpha: t.IsAlpha,
				IsStop:  t.IsStop,
			}
		}
		docs[i] = doc
	}
	return docs, nil
}

func (p *Pipeline) Components() []string {
	out := make([]string, len(p.components))
	copy(out, p.components)
	return out
}

func (p *Pipeline) Version() string { return p.version }
