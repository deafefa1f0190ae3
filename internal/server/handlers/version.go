package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/texforge/texforge/internal/version"
)

// VersionHandler serves build information.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(version.Get())
}
