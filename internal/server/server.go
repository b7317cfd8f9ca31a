package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-dcunet/internal/audio"
	"github.com/example/go-dcunet/internal/config"
	"github.com/example/go-dcunet/internal/dcunet"
	"github.com/example/go-dcunet/internal/enhance"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Enhancer turns a noisy WAV into the selected enhanced source.
type Enhancer interface {
	EnhanceWAV(ctx context.Context, wav []byte, source int) ([]byte, error)
}

// ModelDescriber reports the args of the served model.
type ModelDescriber interface {
	ModelArgs() dcunet.Args
	Backend() string
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxBodyBytes   int64
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxBodyBytes:   32 << 20,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxBodyBytes caps the size of WAV uploads to POST /enhance.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithWorkers sets the maximum number of concurrent enhancement calls.
// Zero disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request enhancement deadline. Zero or
// negative disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	enh   Enhancer
	model ModelDescriber
	opts  options
	sem   chan struct{}
	log   *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /model, and
// POST /enhance.
func NewHandler(enh Enhancer, model ModelDescriber, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		enh:   enh,
		model: model,
		opts:  opts,
		log:   opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/model", h.handleModel)
	mux.HandleFunc("/enhance", h.handleEnhance)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type modelResponse struct {
	Backend   string         `json:"backend"`
	ModelArgs map[string]any `json:"model_args"`
}

func (h *handler) handleModel(w http.ResponseWriter, _ *http.Request) {
	if h.model == nil {
		writeError(w, http.StatusServiceUnavailable, "no model loaded")
		return
	}

	writeJSON(w, http.StatusOK, modelResponse{
		Backend:   h.model.Backend(),
		ModelArgs: h.model.ModelArgs().Map(),
	})
}

func (h *handler) handleEnhance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	source := 0
	if raw := r.URL.Query().Get("source"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid source %q", raw))
			return
		}
		source = n
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("body exceeds maximum size of %d bytes", h.opts.maxBodyBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	// Acquire a worker slot; honour cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := requestContext(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	wav, err := h.enh.EnhanceWAV(ctx, body, source)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		attrs := []any{
			slog.Int("source", source),
			slog.Int("wav_bytes_in", len(body)),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		}

		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			h.log.WarnContext(r.Context(), "enhancement timed out", attrs...)
			writeError(w, http.StatusGatewayTimeout, "enhancement timed out")
		case errors.Is(err, audio.ErrFormatMismatch) || errors.Is(err, enhance.ErrSourceRange) || errors.Is(err, audio.ErrInvalidWAV):
			h.log.WarnContext(r.Context(), "enhancement rejected", attrs...)
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.ErrorContext(r.Context(), "enhancement failed", attrs...)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.log.InfoContext(r.Context(), "enhancement complete",
		slog.Int("source", source),
		slog.Int("wav_bytes_in", len(body)),
		slog.Int64("duration_ms", durationMS),
		slog.Int("wav_bytes_out", len(wav)),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// requestContext bounds ctx by d. A non-positive d means no deadline.
func requestContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server: wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	svc             *enhance.Service
	ownsSvc         bool
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New returns a server for svc. A nil svc is loaded from cfg on Start and
// released when Start returns; a caller-supplied svc stays open.
func New(cfg config.Config, svc *enhance.Service) *Server {
	timeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return &Server{
		cfg:             cfg,
		svc:             svc,
		shutdownTimeout: timeout,
		logger:          slog.Default(),
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// Handler builds the request handler from the server's config.
func (s *Server) Handler() (http.Handler, error) {
	if s.svc == nil {
		svc, err := enhance.NewService(s.cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize enhancement service: %w", err)
		}
		s.svc = svc
		s.ownsSvc = true
	}

	return NewHandler(s.svc, s.svc,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxBodyBytes(s.cfg.Server.MaxBodyBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithLogger(s.logger),
	), nil
}

func (s *Server) Start(ctx context.Context) error {
	h, err := s.Handler()
	if err != nil {
		return err
	}
	defer s.release()

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("listening", "addr", s.cfg.Server.ListenAddr, "backend", s.svc.Backend())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// release closes a service the server loaded itself.
func (s *Server) release() {
	if !s.ownsSvc || s.svc == nil {
		return
	}

	s.svc.Close()
	s.svc = nil
	s.ownsSvc = false
}

// CheckHealth GETs /health on addr and fails unless it answers 200.
func CheckHealth(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
