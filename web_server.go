package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Readm/mmu_sim/engine"
	"github.com/Readm/mmu_sim/hooks"
	"github.com/Readm/mmu_sim/logger"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/plugins/instrumentation"
	"github.com/Readm/mmu_sim/plugins/visualization"
	"github.com/Readm/mmu_sim/template"
)

// GenerateTimeout bounds one generation requested through the inspector.
const GenerateTimeout = 30 * time.Second

// maxScriptBytes bounds request bodies.
const maxScriptBytes = 1 << 20

// WebServer provides the inspector endpoints.
type WebServer struct {
	mu     sync.RWMutex
	latest *generateResponse
	opts   Options
	log    *logger.Logger
	hub    *wsHub
	server *http.Server
}

// generateRequest selects a subsystem by name or inline script. An empty
// template runs the sample template of the named configuration.
type generateRequest struct {
	Config   string `json:"config,omitempty"`
	Spec     string `json:"spec,omitempty"`
	Template string `json:"template,omitempty"`
	Seed     *int64 `json:"seed,omitempty"`
}

type generateResponse struct {
	Kind      string                   `json:"kind"`
	Config    string                   `json:"config,omitempty"`
	Structure string                   `json:"structure,omitempty"`
	Result    *engine.Result           `json:"result"`
	Counters  instrumentation.Snapshot `json:"counters"`
}

// NewWebServer creates a server; opts supply the engine settings.
func NewWebServer(addr string, opts Options, log *logger.Logger) *WebServer {
	ws := &WebServer{opts: opts, log: log}
	ws.hub = newHub(log)
	ws.server = &http.Server{
		Addr:              addr,
		Handler:           NewRouter(ws),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

func (ws *WebServer) routes() []route {
	return []route{
		{method: http.MethodGet, path: "/api/configs", handler: ws.handleConfigs},
		{method: http.MethodPost, path: "/api/generate", handler: ws.handleGenerate},
		{method: http.MethodGet, path: "/api/result", handler: ws.handleResult},
		{path: "/ws", handler: ws.hub.handle(ws)},
	}
}

// Start starts the HTTP server in a goroutine.
func (ws *WebServer) Start() error {
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ws.log.Errorf("Inspector stopped: %v", err)
		}
	}()
	ws.log.Infof("Inspector listening on %s", ws.server.Addr)
	return nil
}

// Shutdown stops the server and disconnects WebSocket clients.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	err := ws.server.Shutdown(ctx)
	ws.hub.stop()
	return err
}

func (ws *WebServer) handleConfigs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, GetPredefinedConfigs())
}

func (ws *WebServer) handleResult(w http.ResponseWriter, _ *http.Request) {
	ws.mu.RLock()
	latest := ws.latest
	ws.mu.RUnlock()
	if latest == nil {
		http.Error(w, "No result available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (ws *WebServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScriptBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := ws.generate(r.Context(), req)
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			http.Error(w, reqErr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Generation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// generate runs one request and streams its hook events to the hub.
func (ws *WebServer) generate(ctx context.Context, req generateRequest) (*generateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, GenerateTimeout)
	defer cancel()

	spec, tplSrc, err := ws.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	tpl, err := template.LoadTemplateContext(ctx, tplSrc, spec)
	if err != nil {
		return nil, &requestError{err: err}
	}

	reg := hooks.NewRegistry(spec, hooks.NewPluginBroker())
	counters := instrumentation.NewCounters(ws.log, 0)
	if err := instrumentation.Register(reg, counters, ws.log); err != nil {
		return nil, err
	}
	if err := visualization.Register(reg, visualization.Options{Sinks: map[string]visualization.Sink{"ws": ws.hub.publish}}); err != nil {
		return nil, err
	}
	if err := reg.LoadGlobal(instrumentation.CountersPlugin, visualization.PluginName("ws")); err != nil {
		return nil, err
	}

	seed := ws.opts.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	e, err := engine.New(spec,
		engine.WithBroker(reg.Broker()),
		engine.WithLogger(ws.log),
		engine.WithBudget(ws.opts.Budget()),
		engine.WithWorkers(ws.opts.Workers),
		engine.WithSeed(seed),
	)
	if err != nil {
		return nil, err
	}
	res, err := e.Generate(ctx, tpl)
	if err != nil {
		return nil, err
	}

	resp := &generateResponse{Kind: "result", Config: req.Config, Result: res, Counters: counters.Snapshot()}
	if res.Found {
		resp.Structure = res.Structure.String()
	}
	ws.mu.Lock()
	ws.latest = resp
	ws.mu.Unlock()
	ws.hub.publishResult(resp)
	return resp, nil
}

func (ws *WebServer) resolve(ctx context.Context, req generateRequest) (*mmu.Spec, string, error) {
	if req.Spec != "" {
		if req.Template == "" {
			return nil, "", &requestError{err: errors.New("an inline spec needs a template")}
		}
		spec, err := template.LoadSpecContext(ctx, req.Spec)
		if err != nil {
			return nil, "", &requestError{err: err}
		}
		return spec, req.Template, nil
	}
	name := req.Config
	if name == "" {
		name = ws.opts.Config
	}
	cfg := GetConfigByName(name)
	if cfg == nil {
		return nil, "", &requestError{err: fmt.Errorf("unknown configuration %q", name)}
	}
	spec, err := template.LoadSpecContext(ctx, cfg.Spec)
	if err != nil {
		return nil, "", err
	}
	tplSrc := req.Template
	if tplSrc == "" {
		tplSrc = cfg.Template
	}
	return spec, tplSrc, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Default().Warnf("Failed to encode response: %v", err)
	}
}

// requestError marks failures caused by the request content.
type requestError struct {
	err error
}

func (e *requestError) Error() string {
	return e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}
