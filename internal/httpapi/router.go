// Package httpapi serves opening tree queries over HTTP. Read-only: every
// endpoint is a GET against the immutable tree registry built at startup.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/isofarro/chess-opening-trees/internal/fen"
	"github.com/isofarro/chess-opening-trees/internal/store"
	"github.com/isofarro/chess-opening-trees/internal/tree"
)

// Handler routes queries to the registered trees.
type Handler struct {
	registry *tree.Registry
	log      zerolog.Logger
}

// NewRouter builds the HTTP handler: GET / lists trees, GET /{tree}/{fen}
// queries a position (the FEN occupies the rest of the path, URL-encoded).
func NewRouter(log zerolog.Logger, registry *tree.Registry) http.Handler {
	h := &Handler{registry: registry, log: log}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/", http.HandlerFunc(h.dispatch))

	return CORS(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		h.listTrees(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		http.Error(w, "expected /{tree}/{fen}", http.StatusBadRequest)
		return
	}
	h.queryPosition(w, r, parts[0], parts[1])
}

type treeInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (h *Handler) listTrees(w http.ResponseWriter, r *http.Request) {
	trees := make([]treeInfo, 0, len(h.registry.Names()))
	for _, name := range h.registry.Names() {
		trees = append(trees, treeInfo{Name: name, Path: "/" + name + "/"})
	}
	writeJSON(w, trees)
}

func (h *Handler) queryPosition(w http.ResponseWriter, r *http.Request, treeName, rawFEN string) {
	t, ok := h.registry.Lookup(treeName)
	if !ok {
		http.Error(w, "tree not found: "+treeName, http.StatusNotFound)
		return
	}

	res, err := t.QueryPosition(rawFEN)
	if err != nil {
		switch {
		case errors.Is(err, fen.ErrInvalidPosition):
			http.Error(w, "invalid position: "+rawFEN, http.StatusBadRequest)
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "position not found: "+rawFEN, http.StatusNotFound)
		default:
			h.log.Error().Err(err).Str("tree", treeName).Msg("query failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, res)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
	}
}
