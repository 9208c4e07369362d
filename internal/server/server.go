// Package server exposes the certificate queue and a render preview over
// an HTTP JSON API. It is the backend the web editor talks to.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/romega/certforge/pkg/assets"
	"github.com/romega/certforge/pkg/cert"
	"github.com/romega/certforge/pkg/cert/compose"
	"github.com/romega/certforge/pkg/errors"
	"github.com/romega/certforge/pkg/fonts"
	"github.com/romega/certforge/pkg/queue"
)

// Server handles the certforge HTTP API.
type Server struct {
	store  queue.Store
	sender *queue.Sender
	loader *assets.Loader
	fonts  *fonts.Library
	log    *charmlog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSender enables POST /api/queue/send with the given sender.
func WithSender(s *queue.Sender) Option {
	return func(srv *Server) { srv.sender = s }
}

// WithLoader sets the asset loader used by the preview endpoint.
func WithLoader(l *assets.Loader) Option {
	return func(srv *Server) { srv.loader = l }
}

// WithFonts sets the font library used by the preview endpoint.
func WithFonts(lib *fonts.Library) Option {
	return func(srv *Server) { srv.fonts = lib }
}

// WithLogger sets the request logger.
func WithLogger(l *charmlog.Logger) Option {
	return func(srv *Server) { srv.log = l }
}

// New creates a server backed by the given queue store.
func New(store queue.Store, opts ...Option) *Server {
	srv := &Server{
		store:  store,
		loader: assets.NewLoader(),
		fonts:  fonts.NewLibrary(),
		log:    charmlog.Default(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.handleListQueue)
			r.Post("/", s.handleEnqueue)
			r.Get("/stats", s.handleStats)
			r.Post("/send", s.handleSend)
			r.Get("/{id}", s.handleGetItem)
			r.Delete("/{id}", s.handleDeleteItem)
			r.Patch("/{id}", s.handleUpdateItem)
		})
		r.Post("/preview", s.handlePreview)
	})
	return r
}

// ListenAndServe runs the API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	s.log.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Millisecond))
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	var f queue.Filters
	if status := r.URL.Query().Get("status"); status != "" {
		f.Status = queue.Status(status)
		if !queue.ValidStatus(f.Status) {
			s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "unknown status %q", status))
			return
		}
	}
	f.Search = r.URL.Query().Get("search")
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid from time %q (want RFC 3339)", from))
			return
		}
		f.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid to time %q (want RFC 3339)", to))
			return
		}
		f.To = t
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid limit %q", limit))
			return
		}
		f.Limit = n
	}

	items, err := s.store.List(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		items = []queue.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var item queue.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse request body"))
		return
	}
	if !cert.ValidEmail(item.RecipientEmail) {
		s.writeError(w, errors.New(errors.ErrCodeInvalidRecipient, "invalid recipient email %q", item.RecipientEmail))
		return
	}
	if item.CertificateImage == "" {
		s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "missing certificateImage"))
		return
	}

	// Server-assigned fields are not client-settable.
	item.ID = ""
	item.Status = ""
	item.CreatedAt = time.Time{}
	item.SentAt = nil
	item.ErrorMessage = ""

	if err := s.store.Enqueue(r.Context(), &item); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status       queue.Status `json:"status"`
		ErrorMessage string       `json:"errorMessage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse request body"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.UpdateStatus(r.Context(), id, body.Status, body.ErrorMessage); err != nil {
		s.writeError(w, err)
		return
	}

	item, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		s.writeError(w, errors.New(errors.ErrCodeUnsupported, "no delivery webhook configured"))
		return
	}
	report, err := s.sender.ProcessPending(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// previewRequest is the body of POST /api/preview: a design plus an
// optional sample recipient for placeholder substitution.
type previewRequest struct {
	Design    cert.Design     `json:"design"`
	Recipient *cert.Recipient `json:"recipient"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse request body"))
		return
	}
	if err := req.Design.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	loaded, err := compose.Preload(r.Context(), s.loader, req.Design)
	if err != nil {
		s.writeError(w, err)
		return
	}
	renderer, err := compose.NewRenderer(req.Design.Template, s.fonts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	png, err := renderer.Render(r.Context(), loaded, req.Design.TextElements, req.Recipient)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// =============================================================================
// Responses
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps error codes to HTTP statuses and emits a JSON error body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidFormat, errors.ErrCodeInvalidDesign, errors.ErrCodeInvalidElement,
		errors.ErrCodeInvalidRecipient, errors.ErrCodeInvalidColor, errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeUnsupported:
		status = http.StatusConflict
	case errors.ErrCodeAssetLoad:
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{
		"error": errors.UserMessage(err),
		"code":  string(errors.GetCode(err)),
	})
}
