package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/relay"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/sim"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/internal/telemetry"
	"github.com/TrevorDaschOculus/oculus-networked-physics-sample/logging"
)

type stubSession struct {
	snapshot relay.Snapshot
}

func (s stubSession) Snapshot() relay.Snapshot {
	return s.snapshot
}

type stubQueue struct {
	full     bool
	commands []sim.Command
}

func (q *stubQueue) Enqueue(cmd sim.Command) bool {
	if q.full {
		return false
	}
	q.commands = append(q.commands, cmd)
	return true
}

func serve(handler http.Handler, method, path string) *httptest.ResponseRecorder {
	return serveBody(handler, method, path, "")
}

func serveBody(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestHTTPHealth(t *testing.T) {
	handler := NewHTTPHandler(HTTPHandlerConfig{})
	resp := serve(handler, http.MethodGet, "/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if body := resp.Body.String(); body != "ok" {
		t.Fatalf("expected body ok, got %q", body)
	}
}

func TestHTTPDiagnosticsIncludesSessionAndTelemetry(t *testing.T) {
	metrics := &logging.Metrics{}
	metrics.TelemetryAdd(telemetry.MetricPacketsSent, 12)
	session := stubSession{snapshot: relay.Snapshot{
		Role:  relay.RoleHost,
		Epoch: 3,
		Connections: []relay.ConnectionSnapshot{
			{Slot: 1, State: "connected", DecodeFailures: 2},
		},
	}}
	handler := NewHTTPHandler(HTTPHandlerConfig{Session: session, Metrics: metrics, TickRate: 60})

	resp := serve(handler, http.MethodGet, "/diagnostics")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}

	var payload struct {
		Status    string            `json:"status"`
		TickRate  int               `json:"tickRate"`
		Session   relay.Snapshot    `json:"session"`
		Telemetry map[string]uint64 `json:"telemetry"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics payload: %v", err)
	}
	if payload.Status != "ok" || payload.TickRate != 60 {
		t.Fatalf("unexpected diagnostics header: %+v", payload)
	}
	if payload.Session.Epoch != 3 || len(payload.Session.Connections) != 1 {
		t.Fatalf("unexpected session snapshot: %+v", payload.Session)
	}
	if got := payload.Session.Connections[0].DecodeFailures; got != 2 {
		t.Fatalf("expected 2 decode failures, got %d", got)
	}
	if got := payload.Telemetry[telemetry.MetricPacketsSent]; got != 12 {
		t.Fatalf("expected packets sent 12, got %d", got)
	}
}

func TestHTTPWorldResetQueuesCommand(t *testing.T) {
	queue := &stubQueue{}
	session := stubSession{snapshot: relay.Snapshot{Role: relay.RoleHost, Epoch: 4}}
	handler := NewHTTPHandler(HTTPHandlerConfig{Session: session, Commands: queue})

	resp := serve(handler, http.MethodPost, "/world/reset")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 Accepted, got %d", resp.Code)
	}
	if len(queue.commands) != 1 || queue.commands[0].Type != sim.CommandResetWorld {
		t.Fatalf("expected one reset command, got %+v", queue.commands)
	}
	if queue.commands[0].Origin == "" {
		t.Fatalf("expected the request id as command origin")
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode reset payload: %v", err)
	}
	if payload["status"] != "queued" || payload["epoch"] != float64(4) {
		t.Fatalf("unexpected reset payload: %v", payload)
	}
}

func TestHTTPWorldResetRejections(t *testing.T) {
	host := stubSession{snapshot: relay.Snapshot{Role: relay.RoleHost}}
	client := stubSession{snapshot: relay.Snapshot{Role: relay.RoleClient}}

	tests := []struct {
		name   string
		cfg    HTTPHandlerConfig
		method string
		want   int
	}{
		{name: "wrong method", cfg: HTTPHandlerConfig{Session: host, Commands: &stubQueue{}}, method: http.MethodGet, want: http.StatusMethodNotAllowed},
		{name: "client session", cfg: HTTPHandlerConfig{Session: client, Commands: &stubQueue{}}, method: http.MethodPost, want: http.StatusConflict},
		{name: "queue full", cfg: HTTPHandlerConfig{Session: host, Commands: &stubQueue{full: true}}, method: http.MethodPost, want: http.StatusServiceUnavailable},
		{name: "no session", cfg: HTTPHandlerConfig{}, method: http.MethodPost, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(NewHTTPHandler(tt.cfg), tt.method, "/world/reset")
			if resp.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, resp.Code)
			}
		})
	}
}

func TestHTTPAnchorQueuesShareCommand(t *testing.T) {
	queue := &stubQueue{}
	session := stubSession{snapshot: relay.Snapshot{Role: relay.RoleHost}}
	handler := NewHTTPHandler(HTTPHandlerConfig{Session: session, Commands: queue})
	anchor := uuid.New()

	resp := serveBody(handler, http.MethodPost, "/anchor", `{"anchor":"`+anchor.String()+`"}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 Accepted, got %d", resp.Code)
	}
	if len(queue.commands) != 1 || queue.commands[0].Type != sim.CommandShareAnchor {
		t.Fatalf("expected one share anchor command, got %+v", queue.commands)
	}
	if queue.commands[0].Anchor != anchor {
		t.Fatalf("expected anchor %s, got %s", anchor, queue.commands[0].Anchor)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode anchor payload: %v", err)
	}
	if payload["anchor"] != anchor.String() {
		t.Fatalf("unexpected anchor payload: %v", payload)
	}
}

func TestHTTPAnchorMintsIDForEmptyBody(t *testing.T) {
	queue := &stubQueue{}
	session := stubSession{snapshot: relay.Snapshot{Role: relay.RoleHost}}
	handler := NewHTTPHandler(HTTPHandlerConfig{Session: session, Commands: queue})

	resp := serve(handler, http.MethodPost, "/anchor")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 Accepted, got %d", resp.Code)
	}
	if len(queue.commands) != 1 || queue.commands[0].Anchor == uuid.Nil {
		t.Fatalf("expected a minted anchor, got %+v", queue.commands)
	}
}

func TestHTTPAnchorRejections(t *testing.T) {
	host := stubSession{snapshot: relay.Snapshot{Role: relay.RoleHost}}
	client := stubSession{snapshot: relay.Snapshot{Role: relay.RoleClient}}
	valid := `{"anchor":"` + uuid.New().String() + `"}`

	tests := []struct {
		name string
		cfg  HTTPHandlerConfig
		body string
		want int
	}{
		{name: "malformed json", cfg: HTTPHandlerConfig{Session: host, Commands: &stubQueue{}}, body: `{`, want: http.StatusBadRequest},
		{name: "not a uuid", cfg: HTTPHandlerConfig{Session: host, Commands: &stubQueue{}}, body: `{"anchor":"cube"}`, want: http.StatusBadRequest},
		{name: "nil uuid", cfg: HTTPHandlerConfig{Session: host, Commands: &stubQueue{}}, body: `{"anchor":"` + uuid.Nil.String() + `"}`, want: http.StatusBadRequest},
		{name: "client session", cfg: HTTPHandlerConfig{Session: client, Commands: &stubQueue{}}, body: valid, want: http.StatusConflict},
		{name: "queue full", cfg: HTTPHandlerConfig{Session: host, Commands: &stubQueue{full: true}}, body: valid, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serveBody(NewHTTPHandler(tt.cfg), http.MethodPost, "/anchor", tt.body)
			if resp.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, resp.Code)
			}
		})
	}
}

func TestHTTPWebsocketRouteOnlyOnHost(t *testing.T) {
	resp := serve(NewHTTPHandler(HTTPHandlerConfig{}), http.MethodGet, "/ws")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 without a transport, got %d", resp.Code)
	}

	called := false
	handler := NewHTTPHandler(HTTPHandlerConfig{Transport: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusSwitchingProtocols)
	})})
	serve(handler, http.MethodGet, "/ws")
	if !called {
		t.Fatalf("expected /ws to reach the transport")
	}
}
