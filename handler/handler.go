// Package handler provides the HTTP API over one document store.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/stevemurr/dblite/criteria"
	"github.com/stevemurr/dblite/logging"
	"github.com/stevemurr/dblite/metrics"
	"github.com/stevemurr/dblite/store"
)

// Store is the part of *store.Store the handler uses.
type Store interface {
	All(c criteria.Criteria) ([]store.Record, error)
	Put(doc store.Document) (int64, error)
	PutMany(docs []store.Document) error
	Delete(c criteria.Criteria, matchAll bool) (int64, error)
	Count() (int64, error)
	Commit() error
	Rollback() error
	Fields() []string
	Table() string
}

// Handler serves one store. Requests are serialized because the store
// itself is not safe for concurrent use.
type Handler struct {
	mu      sync.Mutex
	store   Store
	metrics *metrics.Metrics
	log     *slog.Logger
	mux     *http.ServeMux
	chain   http.Handler
}

// New creates a Handler and wires up all routes. m may be nil.
func New(s Store, m *metrics.Metrics) *Handler {
	h := &Handler{
		store:   s,
		metrics: m,
		log:     logging.For("http"),
		mux:     http.NewServeMux(),
	}
	h.routes()
	h.chain = h.observe(h.mux)
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /", h.root)
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("GET /schema", h.schema)

	h.mux.HandleFunc("GET /documents", h.getDocuments)
	h.mux.HandleFunc("POST /documents", h.putDocuments)
	h.mux.HandleFunc("DELETE /documents", h.deleteDocuments)
	h.mux.HandleFunc("GET /documents/count", h.count)

	h.mux.HandleFunc("POST /commit", h.commit)
	h.mux.HandleFunc("POST /rollback", h.rollback)

	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics.Handler())
	}
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

// writeStoreError maps a store error kind to a status code.
func writeStoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalidCriteria),
		errors.Is(err, store.ErrConstraint),
		errors.Is(err, store.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads a JSON body with numbers as int64 or float64.
func decodeJSON(r *http.Request) (any, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return criteria.Normalize(v), nil
}

func whereParam(r *http.Request) (criteria.Criteria, error) {
	return criteria.ParseString(r.URL.Query().Get("where"))
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
		"service": "dblite",
		"table":   h.store.Table(),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) schema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"table":  h.store.Table(),
		"fields": h.store.Fields(),
	})
}

// ---------- documents ----------

func (h *Handler) getDocuments(w http.ResponseWriter, r *http.Request) {
	c, err := whereParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.Lock()
	recs, err := h.store.All(c)
	h.mu.Unlock()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) putDocuments(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSON(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	switch v := body.(type) {
	case map[string]any:
		h.mu.Lock()
		id, err := h.store.Put(v)
		h.mu.Unlock()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})

	case []any:
		docs := make([]store.Document, 0, len(v))
		for i, item := range v {
			doc, ok := item.(map[string]any)
			if !ok {
				writeError(w, http.StatusBadRequest, "item "+strconv.Itoa(i)+" is not an object")
				return
			}
			docs = append(docs, doc)
		}
		h.mu.Lock()
		err := h.store.PutMany(docs)
		h.mu.Unlock()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int{"count": len(docs)})

	default:
		writeError(w, http.StatusBadRequest, "body must be a document or an array of documents")
	}
}

func (h *Handler) deleteDocuments(w http.ResponseWriter, r *http.Request) {
	c, err := whereParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	h.mu.Lock()
	n, err := h.store.Delete(c, all)
	h.mu.Unlock()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	n, err := h.store.Count()
	h.mu.Unlock()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// ---------- transactions ----------

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	err := h.store.Commit()
	h.mu.Unlock()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

func (h *Handler) rollback(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	err := h.store.Rollback()
	h.mu.Unlock()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rolled back"})
}
