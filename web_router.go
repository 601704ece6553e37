package main

import (
	"net/http"
	"time"

	"github.com/Readm/mmu_sim/logger"
)

// route binds a path to a handler accepting one method; an empty method
// accepts any (WebSocket upgrades).
type route struct {
	method  string
	path    string
	handler http.HandlerFunc
}

// Router dispatches inspector requests and logs them at debug level.
type Router struct {
	mux *http.ServeMux
	log *logger.Logger
}

// NewRouter constructs a router over the server's routes.
func NewRouter(server *WebServer) *Router {
	mux := http.NewServeMux()
	for _, rt := range server.routes() {
		mux.HandleFunc(rt.path, allow(rt.method, rt.handler))
	}
	return &Router{mux: mux, log: server.log}
}

func allow(method string, h http.HandlerFunc) http.HandlerFunc {
	if method == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r == nil || r.mux == nil {
		http.NotFound(w, req)
		return
	}
	start := time.Now()
	r.mux.ServeHTTP(w, req)
	r.log.Debugf("%s %s served in %s", req.Method, req.URL.Path, time.Since(start))
}
