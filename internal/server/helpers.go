package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwbudde/conecone/internal/fit"
	"github.com/cwbudde/conecone/internal/store"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeStoreError maps store errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// methodParam reads the optional ?method= query parameter. It defaults to
// regression.
func methodParam(r *http.Request) (fit.Method, error) {
	name := r.URL.Query().Get("method")
	if name == "" {
		return fit.MethodRegression, nil
	}
	return fit.ParseMethod(name)
}
