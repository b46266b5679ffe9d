// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/0xcro3dile/lemmaserve/internal/domain/entities"
	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// Annotator handles annotation requests.
type Annotator interface {
	Handle(ctx context.Context, req entities.AnnotationRequest) (*entities.AnnotationResponse, error)
}

// Catalog exposes registered pipelines.
type Catalog interface {
	List() []string
	Info(name string) (entities.PipelineInfo, bool)
}

// Options configures a Server.
type Options struct {
	Name    string
	Version string
	Addr    string

	CORSOrigins     []string
	MaxConnections  int // 0 = unlimited
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Reload re-reads the models configuration. Nil disables POST /models/reload.
	Reload func(ctx context.Context) error

	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP server for the annotation API.
type Server struct {
	annotator Annotator
	catalog   Catalog
	runtime   ports.PipelineRuntime
	opts      Options
	logger    *zap.Logger
	startedAt time.Time
}

// NewServer creates a new HTTP server.
func NewServer(annotator Annotator, catalog Catalog, runtime ports.PipelineRuntime, opts Options, logger *zap.Logger) *Server {
	if opts.Name == "" {
		opts.Name = "lemmaserve"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		annotator: annotator,
		catalog:   catalog,
		runtime:   runtime,
		opts:      opts,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoveryMiddleware(s.logger))
	r.Use(corsMiddleware(s.opts.CORSOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Get("/models", s.handleModels)
	r.Post("/lemmatize", s.handleLemmatize)
	if s.opts.Reload != nil {
		r.Post("/models/reload", s.handleReload)
	}
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start runs the HTTP server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}

	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	s.logger.Info("server starting", zap.String("addr", ln.Addr().String()))

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdownErr
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    s.opts.Name,
		"version": s.opts.Version,
		"docs":    "/models",
		"health":  "/health",
	})
}

type healthResponse struct {
	Status        string   `json:"status"`
	ModelsLoaded  []string `json:"models_loaded"`
	UptimeSeconds float64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		ModelsLoaded:  s.catalog.List(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	})
}

type infoResponse struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	Runtime        string `json:"runtime"`
	RuntimeVersion string `json:"runtime_version"`
	ModelsLoaded   int    `json:"models_loaded"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	resp := infoResponse{
		Name:           s.opts.Name,
		Version:        s.opts.Version,
		Runtime:        "none",
		RuntimeVersion: entities.UnknownVersion,
		ModelsLoaded:   len(s.catalog.List()),
	}
	if s.runtime != nil {
		resp.Runtime = s.runtime.Name()
		resp.RuntimeVersion = s.runtime.Version(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

type modelsResponse struct {
	AvailableModels []entities.PipelineInfo `json:"available_models"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	infos := []entities.PipelineInfo{}
	for _, name := range s.catalog.List() {
		if info, ok := s.catalog.Info(name); ok {
			infos = append(infos, info)
		}
	}
	writeJSON(w, http.StatusOK, modelsResponse{AvailableModels: infos})
}

// lemmatizeRequest distinguishes a missing "texts" key from an empty list.
type lemmatizeRequest struct {
	Model  *string   `json:"model"`
	Texts  *[]string `json:"texts"`
	Fields []string  `json:"fields"`
}

func (s *Server) handleLemmatize(w http.ResponseWriter, r *http.Request) {
	var body lemmatizeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if body.Model == nil || strings.TrimSpace(*body.Model) == "" {
		writeError(w, http.StatusUnprocessableEntity, "model name cannot be empty")
		return
	}
	if body.Texts == nil || len(*body.Texts) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "texts cannot be empty")
		return
	}

	resp, err := s.annotator.Handle(r.Context(), entities.AnnotationRequest{
		Pipeline: strings.TrimSpace(*body.Model),
		Texts:    *body.Texts,
		Fields:   body.Fields,
	})
	if err != nil {
		s.writeAnnotationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeAnnotationError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		unknown     *entities.UnknownPipelineError
		unsupported *entities.UnsupportedFieldsError
		processing  *entities.ProcessingError
	)
	switch {
	case errors.As(err, &unknown):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":            unknown.Error(),
			"available_models": unknown.Available,
		})
	case errors.As(err, &unsupported):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":            unsupported.Error(),
			"available_fields": unsupported.Supported,
		})
	case errors.Is(err, entities.ErrBatchTooLarge), errors.Is(err, entities.ErrTextTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &processing):
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Error processing texts",
			"details": processing.Err.Error(),
		})
	default:
		s.logger.Error("unexpected annotation error",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type reloadResponse struct {
	Status       string   `json:"status"`
	ModelsLoaded []string `json:"models_loaded"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Reload(r.Context()); err != nil {
		s.logger.Error("models reload failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Status: "reloaded", ModelsLoaded: s.catalog.List()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
