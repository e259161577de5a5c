package httpserver

import "net/http"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /index/config.json", s.handleConfigJSON)
	mux.HandleFunc("GET /index/{path...}", s.handleSparseIndex)

	mux.HandleFunc("GET /downloads/{name}/{version}", s.handleDownload)

	mux.HandleFunc("PUT /api/v1/crates/new", s.handlePublish)
	mux.HandleFunc("DELETE /api/v1/crates/{name}/{version}/yank", s.handleYank(true))
	mux.HandleFunc("PUT /api/v1/crates/{name}/{version}/unyank", s.handleYank(false))
	mux.HandleFunc("GET /api/v1/crates/{name}/owners", s.handleListOwners)
	mux.HandleFunc("PUT /api/v1/crates/{name}/owners", s.handleAddOwners)
	mux.HandleFunc("DELETE /api/v1/crates/{name}/owners", s.handleRemoveOwners)
	mux.HandleFunc("GET /api/v1/crates", s.handleSearch)

	mux.HandleFunc("GET /all", s.handleListAll)
	mux.HandleFunc("GET /me", s.handleMe)
	mux.HandleFunc("POST /me", s.handleMe)
	mux.HandleFunc("GET /healthcheck", s.handleHealthcheck)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	var handler http.Handler = mux
	handler = loggingMiddleware(s.log, handler)
	handler = recoverMiddleware(s.log, handler)
	handler = s.drain.middleware(handler)
	return handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("The registry URL for cargo is \"sparse+" + s.cfg.Service.APIEndpoint + "/index\".\n\n" +
		"The API endpoint is at " + s.cfg.Service.APIEndpoint + ".\n" +
		"The download endpoint is at " + s.cfg.Service.DownloadEndpoint + ".\n"))
}
