package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/history"
	"github.com/aretw0/arbor/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds request bodies; documents travel whole.
const maxBodyBytes = 8 << 20

// Manager is the part of session.Manager the server drives.
type Manager interface {
	Create(ctx context.Context, documentID, title string, initial domain.Document) (session.Info, error)
	Open(ctx context.Context, documentID string) (session.Info, error)
	Append(ctx context.Context, documentID string, doc domain.Document, kind domain.ChangeKind, label string) (history.Entry, error)
	Jump(ctx context.Context, documentID, nodeID string) (domain.Document, error)
	Undo(ctx context.Context, documentID string, d domain.Domain) (history.UndoResult, error)
	Redo(ctx context.Context, documentID string) (history.RedoHint, error)
	Prune(ctx context.Context, documentID string, maxNodes int) (history.PruneResult, error)
	Save(ctx context.Context, documentID string) error
	Delete(ctx context.Context, documentID string) error
	List(ctx context.Context) ([]string, error)
	Live(ctx context.Context, documentID string) (domain.Document, error)
	Entries(ctx context.Context, documentID string) ([]history.Entry, error)
}

var _ Manager = (*session.Manager)(nil)

// Server exposes a Manager over a JSON API.
type Server struct {
	Manager  Manager
	Streams  *StreamManager
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer exposes the given metrics on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams shares a StreamManager, typically the one whose Hooks feed
// the Manager.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewServer creates a Server for manager.
func NewServer(manager Manager, opts ...Option) *Server {
	s := &Server{
		Manager: manager,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates a new HTTP handler for the manager.
func NewHandler(manager Manager, opts ...Option) http.Handler {
	return NewServer(manager, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.ListDocuments)
		r.Post("/", s.CreateDocument)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetDocument)
			r.Delete("/", s.DeleteDocument)
			r.Get("/history", s.GetHistory)
			r.Get("/history.mmd", s.GetHistoryGraph)
			r.Get("/events", s.SubscribeEvents)
			r.Post("/changes", s.AppendChange)
			r.Post("/jump", s.Jump)
			r.Post("/undo", s.Undo)
			r.Post("/redo", s.Redo)
			r.Post("/prune", s.Prune)
			r.Post("/save", s.Save)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// -- Request / response bodies --

// CreateRequest is the body of POST /documents.
type CreateRequest struct {
	ID       string          `json:"id,omitempty"`
	Title    string          `json:"title,omitempty"`
	Document domain.Document `json:"document"`
}

// DocumentResponse is the body of GET /documents/{id}.
type DocumentResponse struct {
	session.Info
	Live domain.Document `json:"live"`
}

// ChangeRequest is the body of POST /documents/{id}/changes.
type ChangeRequest struct {
	Kind     string          `json:"kind"`
	Label    string          `json:"label"`
	Document domain.Document `json:"document"`
}

// JumpRequest is the body of POST /documents/{id}/jump.
type JumpRequest struct {
	NodeID string `json:"node_id"`
}

// UndoRequest is the body of POST /documents/{id}/undo.
type UndoRequest struct {
	Domain string `json:"domain"`
}

// PruneRequest is the body of POST /documents/{id}/prune.
type PruneRequest struct {
	MaxNodes int `json:"max_nodes"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error    string          `json:"error"`
	Children []history.Entry `json:"children,omitempty"`
}

// -- Handlers --

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListDocuments handles GET /documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Manager.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"documents": ids})
}

// CreateDocument handles POST /documents.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var body CreateRequest
	if !s.decode(w, r, &body) {
		return
	}
	info, err := s.Manager.Create(r.Context(), body.ID, body.Title, body.Document)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

// GetDocument handles GET /documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.Manager.Open(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	live, err := s.Manager.Live(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, DocumentResponse{Info: info, Live: live})
}

// DeleteDocument handles DELETE /documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.Manager.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory handles GET /documents/{id}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Manager.Entries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]history.Entry{"entries": entries})
}

// GetHistoryGraph handles GET /documents/{id}/history.mmd.
func (s *Server) GetHistoryGraph(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Manager.Entries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.mermaid; charset=utf-8")
	_, _ = w.Write([]byte(graph.GenerateMermaid(entries)))
}

// AppendChange handles POST /documents/{id}/changes.
func (s *Server) AppendChange(w http.ResponseWriter, r *http.Request) {
	var body ChangeRequest
	if !s.decode(w, r, &body) {
		return
	}
	kind, err := domain.ParseChangeKind(body.Kind)
	if err != nil || kind.IsScopedUndo() {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid change kind %q", body.Kind)})
		return
	}
	entry, err := s.Manager.Append(r.Context(), chi.URLParam(r, "id"), body.Document, kind, body.Label)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

// Jump handles POST /documents/{id}/jump.
func (s *Server) Jump(w http.ResponseWriter, r *http.Request) {
	var body JumpRequest
	if !s.decode(w, r, &body) {
		return
	}
	doc, err := s.Manager.Jump(r.Context(), chi.URLParam(r, "id"), body.NodeID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"node_id": body.NodeID, "document": doc})
}

// Undo handles POST /documents/{id}/undo.
func (s *Server) Undo(w http.ResponseWriter, r *http.Request) {
	var body UndoRequest
	if r.ContentLength != 0 && !s.decode(w, r, &body) {
		return
	}
	d, err := domain.ParseDomain(body.Domain)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	res, err := s.Manager.Undo(r.Context(), chi.URLParam(r, "id"), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// Redo handles POST /documents/{id}/redo. It always answers 409 with the
// candidate children, unless the document cannot be loaded.
func (s *Server) Redo(w http.ResponseWriter, r *http.Request) {
	hint, err := s.Manager.Redo(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrRedoRequiresSelection) {
		s.writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Children: hint.Children})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hint)
}

// Prune handles POST /documents/{id}/prune.
func (s *Server) Prune(w http.ResponseWriter, r *http.Request) {
	var body PruneRequest
	if r.ContentLength != 0 && !s.decode(w, r, &body) {
		return
	}
	res, err := s.Manager.Prune(r.Context(), chi.URLParam(r, "id"), body.MaxNodes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// Save handles POST /documents/{id}/save.
func (s *Server) Save(w http.ResponseWriter, r *http.Request) {
	if err := s.Manager.Save(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -- Helpers --

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNodeNotFound), errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDocumentExists), errors.Is(err, domain.ErrRedoRequiresSelection):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoUndoTarget):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStorageQuotaExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if errors.Is(err, domain.ErrNoUndoTarget) {
		msg = "nothing to undo"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
