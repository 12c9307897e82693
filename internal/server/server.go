// Package server exposes a document storage over HTTP.
//
//	GET    /health
//	GET    /docs
//	GET    /docs/{id}
//	DELETE /docs/{id}
//	GET    /docs/{id}/{key}
//	PUT    /docs/{id}/{key}   body: any JSON value
//	DELETE /docs/{id}/{key}
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtstorage"
	"github.com/dman-os/townframe-sub000/crdtjson/reconcile"
)

var logger = logging.Logger("server")

// maxBodySize bounds PUT bodies.
const maxBodySize = 8 << 20

// Server serves the documents of a storage.
type Server struct {
	storage crdtstorage.Storage
	router  *mux.Router
	server  *http.Server
}

// New creates a server for storage listening on addr.
func New(storage crdtstorage.Storage, addr string) *Server {
	s := &Server{
		storage: storage,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(corsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/docs", s.handleListDocuments).Methods(http.MethodGet)
	s.router.HandleFunc("/docs/{id}", s.handleGetDocument).Methods(http.MethodGet)
	s.router.HandleFunc("/docs/{id}", s.handleDeleteDocument).Methods(http.MethodDelete)
	s.router.HandleFunc("/docs/{id}/{key}", s.handleGetKey).Methods(http.MethodGet)
	s.router.HandleFunc("/docs/{id}/{key}", s.handlePutKey).Methods(http.MethodPut)
	s.router.HandleFunc("/docs/{id}/{key}", s.handleDeleteKey).Methods(http.MethodDelete)
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusOf maps storage and reconcile errors to HTTP statuses.
func statusOf(err error) int {
	var numErr *reconcile.UnrepresentableNumberError
	switch {
	case errors.Is(err, crdtstorage.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.As(err, &numErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, crdtstorage.ErrStorageClosed), errors.Is(err, crdtstorage.ErrDocumentClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := s.storage.ListDocuments(r.Context())
	if err != nil {
		logger.Errorf("failed to list documents: %v", err)
		writeError(w, statusOf(err), err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.storage.GetDocument(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}

	content, err := doc.GetContent()
	if err != nil {
		logger.Errorw("failed to hydrate document", "document", doc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.storage.DeleteDocument(r.Context(), id); err != nil {
		logger.Errorw("failed to delete document", "document", id, "error", err)
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doc, err := s.storage.GetDocument(r.Context(), vars["id"])
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}

	has, err := doc.Has(vars["key"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !has {
		writeError(w, http.StatusNotFound, fmt.Errorf("key not found: %s", vars["key"]))
		return
	}

	v, err := doc.Hydrate(vars["key"])
	if err != nil {
		logger.Errorw("failed to hydrate key", "document", doc.ID, "key", vars["key"], "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handlePutKey reconciles the body into the key, creating the document on first write.
func (s *Server) handlePutKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err))
		return
	}
	if len(body) > maxBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
		return
	}
	v, err := reconcile.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	doc, err := s.documentForWrite(r.Context(), vars["id"])
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}

	result := doc.Reconcile(r.Context(), vars["key"], v)
	if result.Error != nil {
		logger.Warnw("failed to reconcile", "document", doc.ID, "key", vars["key"], "error", result.Error)
		writeError(w, statusOf(result.Error), result.Error)
		return
	}

	resp := map[string]interface{}{
		"changed": result.Patch != nil,
		"version": doc.GetVersion(),
	}
	if result.Patch != nil {
		resp["ops"] = len(result.Patch.Operations())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doc, err := s.storage.GetDocument(r.Context(), vars["id"])
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}

	has, err := doc.Has(vars["key"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !has {
		writeError(w, http.StatusNotFound, fmt.Errorf("key not found: %s", vars["key"]))
		return
	}

	if result := doc.DeleteKey(r.Context(), vars["key"]); result.Error != nil {
		writeError(w, statusOf(result.Error), result.Error)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// documentForWrite returns the document, creating it when it does not exist.
func (s *Server) documentForWrite(ctx context.Context, id string) (*crdtstorage.Document, error) {
	doc, err := s.storage.GetDocument(ctx, id)
	if !errors.Is(err, crdtstorage.ErrDocumentNotFound) {
		return doc, err
	}

	doc, err = s.storage.CreateDocument(ctx, id)
	if errors.Is(err, crdtstorage.ErrDocumentExists) {
		// Created concurrently.
		return s.storage.GetDocument(ctx, id)
	}
	return doc, err
}
