// Package handler provides the HTTP API of a termstore server.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stevemurr/termstore/collection"
	"github.com/stevemurr/termstore/config"
	"github.com/stevemurr/termstore/document"
	"github.com/stevemurr/termstore/engine"
	"github.com/stevemurr/termstore/index"
	"github.com/stevemurr/termstore/store"
)

// Handler holds the server dependencies and registers routes.
type Handler struct {
	engine  *engine.Engine
	schemas map[string]map[string]any
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a Handler over e and wires up all routes. cfg supplies the
// collection schemas served read-only under /collections/{collection}/schema.
func New(e *engine.Engine, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		engine:  e,
		schemas: make(map[string]map[string]any),
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	if cfg != nil {
		for _, cc := range cfg.Collections {
			if cc.Schema != nil {
				h.schemas[cc.Name] = cc.Schema
			}
		}
	}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	// Health / status
	h.mux.HandleFunc("GET /", h.root)
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.Handle("GET /metrics", h.metrics())

	// Documents
	h.mux.HandleFunc("GET /collections", h.listCollections)
	h.mux.HandleFunc("GET /collections/{collection}/schema", h.getSchema)
	h.mux.HandleFunc("POST /collections/{collection}/documents", h.createDocument)
	h.mux.HandleFunc("GET /collections/{collection}/documents", h.listDocuments)
	h.mux.HandleFunc("GET /collections/{collection}/documents/{id}", h.readDocument)
	h.mux.HandleFunc("PATCH /collections/{collection}/documents/{id}", h.updateDocument)
	h.mux.HandleFunc("DELETE /collections/{collection}/documents/{id}", h.deleteDocument)

	// Indexes
	h.mux.HandleFunc("GET /collections/{collection}/indexes", h.listIndexes)
	h.mux.HandleFunc("POST /collections/{collection}/indexes/{index}/match", h.match)
	h.mux.HandleFunc("POST /collections/{collection}/indexes/{index}/reindex", h.reindex)
	h.mux.HandleFunc("GET /collections/{collection}/indexes/{index}/verify", h.verify)

	// Storage RPC for servers running the remote backend against this one.
	h.mux.Handle("POST /rpc", RPC(h.engine.Backend()))
}

func (h *Handler) metrics() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collection.Collectors()...)
	reg.MustRegister(index.Collectors()...)
	reg.MustRegister(engine.NewCollector(h.engine))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// statusOf maps an error onto the HTTP status reported for it.
func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, engine.ErrUnknownCollection),
		errors.Is(err, engine.ErrUnknownIndex):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, document.ErrInvalidPayload),
		errors.Is(err, index.ErrUnknownTerm):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	// Only match exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "termstore",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- collections ----------

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Collections())
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	if _, err := h.engine.Collection(name); err != nil {
		h.fail(w, r, err)
		return
	}
	s, ok := h.schemas[name]
	if !ok {
		writeError(w, http.StatusNotFound, "no schema for collection: "+name)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ---------- documents ----------

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Collection(r.PathValue("collection"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var payload document.Payload
	if err := readJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	id, err := c.Create(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Collection(r.PathValue("collection"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	docs, err := c.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if docs == nil {
		docs = []document.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Collection(r.PathValue("collection"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doc, err := c.Read(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) updateDocument(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Collection(r.PathValue("collection"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var partial document.Payload
	if err := readJSON(r, &partial); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	doc, err := c.Update(r.Context(), r.PathValue("id"), partial)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Collection(r.PathValue("collection"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := c.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// ---------- indexes ----------

type indexInfo struct {
	Name    string   `json:"name"`
	Terms   []string `json:"terms"`
	Entries int      `json:"entries"`
}

func (h *Handler) listIndexes(w http.ResponseWriter, r *http.Request) {
	indexes, err := h.engine.Indexes(r.PathValue("collection"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]indexInfo, 0, len(indexes))
	for _, ix := range indexes {
		out = append(out, indexInfo{Name: ix.Name(), Terms: ix.Terms(), Entries: ix.Len()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) lookupIndex(w http.ResponseWriter, r *http.Request) (*index.Index, bool) {
	ix, err := h.engine.Index(r.PathValue("collection"), r.PathValue("index"))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return ix, true
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	ix, ok := h.lookupIndex(w, r)
	if !ok {
		return
	}
	var terms document.Payload
	if err := readJSON(r, &terms); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	docs, err := ix.Match(r.Context(), terms)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) reindex(w http.ResponseWriter, r *http.Request) {
	ix, ok := h.lookupIndex(w, r)
	if !ok {
		return
	}
	if err := ix.Reindex(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, indexInfo{Name: ix.Name(), Terms: ix.Terms(), Entries: ix.Len()})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	ix, ok := h.lookupIndex(w, r)
	if !ok {
		return
	}
	report, err := ix.Verify(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
