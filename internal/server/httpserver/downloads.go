package httpserver

import (
	"net/http"
	"strings"
)

// handleDownload serves GET /downloads/{name}/{version}.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Service.AuthRequired {
		if _, ok := requireAuth(r.Context(), s.auth, w, r); !ok {
			return
		}
	}

	name := strings.ToLower(r.PathValue("name"))
	version := r.PathValue("version")

	if _, _, err := s.index.ConfirmExistence(r.Context(), name, version); err != nil {
		writeError(w, err)
		return
	}

	data, err := s.storage.GetTarball(r.Context(), name, version)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
