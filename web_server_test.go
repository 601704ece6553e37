package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Readm/mmu_sim/logger"
)

func newTestServer(t *testing.T) *WebServer {
	t.Helper()
	opts := Options{LogLevel: "error"}
	if err := ValidateOptions(&opts); err != nil {
		t.Fatalf("ValidateOptions: %v", err)
	}
	server := NewWebServer("127.0.0.1:0", opts, logger.New(logger.LevelError, ""))
	t.Cleanup(server.hub.stop)
	return server
}

func serveRequest(server *WebServer, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)
	return w
}

func TestWebServer_ConfigsEndpoint(t *testing.T) {
	server := newTestServer(t)

	w := serveRequest(server, "GET", "/api/configs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var configs []SubsystemConfig
	if err := json.NewDecoder(w.Body).Decode(&configs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(configs) != len(GetPredefinedConfigs()) {
		t.Errorf("Expected %d configs, got %d", len(GetPredefinedConfigs()), len(configs))
	}

	w = serveRequest(server, "POST", "/api/configs", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != http.MethodGet {
		t.Errorf("Expected Allow: GET, got %q", got)
	}
}

func TestWebServer_GenerateEndpoint(t *testing.T) {
	server := newTestServer(t)

	w := serveRequest(server, "GET", "/api/result", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before any generation, got %d", w.Code)
	}

	w = serveRequest(server, "POST", "/api/generate", `{"config":"simple","seed":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp generateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Result == nil || !resp.Result.Found {
		t.Fatalf("Expected a realized structure, got %+v", resp.Result)
	}
	if len(resp.Result.Accesses) != 2 {
		t.Errorf("Expected 2 accesses, got %d", len(resp.Result.Accesses))
	}
	if resp.Counters.Realized != 1 {
		t.Errorf("Expected 1 realized structure, got %d", resp.Counters.Realized)
	}
	if resp.Structure == "" {
		t.Errorf("Expected the structure description")
	}

	w = serveRequest(server, "GET", "/api/result", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for the latest result, got %d", w.Code)
	}
}

func TestWebServer_GenerateInlineScripts(t *testing.T) {
	server := newTestServer(t)
	body, _ := json.Marshal(generateRequest{
		Spec: `
variable { name = "pa", width = 12 }
address  { name = "pa" }
buffer   { name = "C", address = "pa", ways = 2, policy = "FIFO", replaceable = true, tag = "pa[11:4]" }
`,
		Template: `
access { op = "LOAD", path = { "C:MISS" } }
access { op = "LOAD", path = { "C:HIT" } }
`,
	})
	w := serveRequest(server, "POST", "/api/generate", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWebServer_GenerateErrors(t *testing.T) {
	server := newTestServer(t)
	cases := map[string]string{
		"invalid body":    `{"config":`,
		"unknown config":  `{"config":"nope"}`,
		"spec only":       `{"spec":"variable { name = \"pa\", width = 8 }"}`,
		"template script": `{"config":"simple","template":"access { op = \"LOAD\", path = { \"L9:HIT\" } }"}`,
	}
	for name, body := range cases {
		w := serveRequest(server, "POST", "/api/generate", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", name, w.Code, w.Body.String())
		}
	}
	w := serveRequest(server, "GET", "/api/generate", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	server := newTestServer(t)
	ts := httptest.NewServer(server.server.Handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(generateRequest{Config: "simple"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	kinds := map[string]int{}
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg struct {
			Kind string `json:"kind"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON failed after %v: %v", kinds, err)
		}
		kinds[msg.Kind]++
		if msg.Kind == "result" || msg.Kind == "error" {
			break
		}
	}
	if kinds["result"] != 1 {
		t.Fatalf("Expected a result message, got %v", kinds)
	}
	if kinds["solved"] == 0 || kinds["realized"] == 0 {
		t.Errorf("Expected solved and realized events before the result, got %v", kinds)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
