package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/docannex/annosync/internal/annostore"
	"github.com/docannex/annosync/internal/annotation"
	"github.com/docannex/annosync/internal/annotator"
)

type Config struct {
	SessionSecret string
	Logger        zerolog.Logger
}

// Server exposes the annotation store over REST. Mutations require a valid
// session cookie plus the double-submit CSRF token; the document-added
// webhook is the only unauthenticated write.
type Server struct {
	annotator *annotator.Annotator
	schema    *jsonschema.Schema
	secret    string
	logger    zerolog.Logger
	router    chi.Router

	documentAdded func(ctx context.Context, docID int64)
}

func NewServer(ann *annotator.Annotator, cfg Config) (*Server, error) {
	if cfg.SessionSecret == "" {
		return nil, errors.New("httpapi: session secret is required")
	}
	schema, err := compileAnnotationSchema()
	if err != nil {
		return nil, err
	}
	s := &Server{
		annotator: ann,
		schema:    schema,
		secret:    cfg.SessionSecret,
		logger:    cfg.Logger,
	}
	s.router = s.routes()
	return s, nil
}

// SetDocumentAddedHook registers the callback invoked when the document
// store reports a newly added document.
func (s *Server) SetDocumentAddedHook(fn func(ctx context.Context, docID int64)) {
	s.documentAdded = fn
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.With(s.requireSession).Get("/", s.handleIndex)
	r.Post("/api/webhooks/document-added", s.handleDocumentAdded)

	r.Route("/api/documents/{docID}", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/download", s.handleDownload)
		r.Route("/annotations", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.With(s.requireCSRF).Post("/", s.handleCreate)
			r.With(s.requireCSRF).Patch("/{annoID}", s.handleUpdate)
			r.With(s.requireCSRF).Delete("/{annoID}", s.handleDelete)
		})
	})
	return r
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) Session {
	sess, _ := ctx.Value(sessionKey{}).(Session)
	return sess
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "session cookie missing")
			return
		}
		sess, err := ParseSession(s.secret, cookie.Value, time.Now())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		if _, err := r.Cookie(CSRFCookieName); err != nil && r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{
				Name:     CSRFCookieName,
				Value:    NewCSRFToken(),
				Path:     "/",
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !checkCSRF(r) {
			writeError(w, http.StatusForbidden, "csrf token mismatch")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathID(w, r, "docID")
	if !ok {
		return
	}
	data, err := s.annotator.Download(r.Context(), docID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%d.pdf", docID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathID(w, r, "docID")
	if !ok {
		return
	}
	var page *int
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
			return
		}
		page = &n
	}
	records, err := s.annotator.PageAnnotations(r.Context(), docID, page)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := make([]annotation.Fields, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Fields)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathID(w, r, "docID")
	if !ok {
		return
	}
	fields, ok := s.decodeAnnotation(w, r, true)
	if !ok {
		return
	}
	if author := sessionFrom(r.Context()).Author(); author != "" {
		fields[annotation.KeyAuthor] = author
	}
	rec := annotation.New(docID, fields)
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.annotator.Create(r.Context(), docID, rec)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created.Fields)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathID(w, r, "docID")
	if !ok {
		return
	}
	annoID, ok := pathID(w, r, "annoID")
	if !ok {
		return
	}
	patch, ok := s.decodeAnnotation(w, r, false)
	if !ok {
		return
	}
	rec, err := s.findAnnotation(r.Context(), docID, annoID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	rec.Merge(patch)
	if err := s.validateFields(rec.Fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.annotator.Update(r.Context(), docID, rec)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Fields)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathID(w, r, "docID")
	if !ok {
		return
	}
	annoID, ok := pathID(w, r, "annoID")
	if !ok {
		return
	}
	rec, err := s.findAnnotation(r.Context(), docID, annoID)
	if err != nil {
		if errors.Is(err, annostore.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]bool{"deleted": false})
			return
		}
		s.writeStoreError(w, err)
		return
	}
	deleted, err := s.annotator.Delete(r.Context(), docID, rec)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) handleDocumentAdded(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocumentID int64 `json:"document_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DocumentID <= 0 {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if s.documentAdded != nil {
		s.documentAdded(r.Context(), body.DocumentID)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// findAnnotation resolves a persistent id to its record within a document.
// The full record is needed so updates carry every field and deletes can
// cascade to replies.
func (s *Server) findAnnotation(ctx context.Context, docID, annoID int64) (*annotation.Record, error) {
	records, err := s.annotator.PageAnnotations(ctx, docID, nil)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.PersistentID() == annoID {
			return rec, nil
		}
	}
	return nil, annostore.ErrNotFound
}

func (s *Server) decodeAnnotation(w http.ResponseWriter, r *http.Request, full bool) (annotation.Fields, bool) {
	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "body must be valid JSON")
		return nil, false
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return nil, false
	}
	if full {
		if err := s.schema.Validate(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
	}
	return annotation.Fields(obj), true
}

// validateFields checks a field bag that did not come straight off the
// wire. The schema library only understands JSON-decoded values, so the bag
// takes a round trip first.
func (s *Server) validateFields(fields annotation.Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.schema.Validate(doc)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, annostore.ErrNotFound):
		writeError(w, http.StatusNotFound, "annotation not found")
	case errors.Is(err, annostore.ErrInvalidInput), errors.Is(err, annotation.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("storage operation failed")
		writeError(w, http.StatusBadGateway, "storage operation failed")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
