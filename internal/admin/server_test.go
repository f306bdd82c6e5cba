package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/gymon/internal/observability"
	"github.com/danmuck/gymon/internal/server"
	"github.com/danmuck/gymon/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubControl struct {
	addr  net.Addr
	conns []server.ConnectionInfo
}

func (s stubControl) Addr() net.Addr                    { return s.addr }
func (s stubControl) ConnectionCount() int              { return len(s.conns) }
func (s stubControl) Snapshot() []server.ConnectionInfo { return s.conns }

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rr, body
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 32001}
	s := New(Config{Version: "1.2.3"}, stubControl{addr: addr})

	rr, body := get(t, s, "/health")
	if rr.Code != http.StatusOK || body["status"] != "ok" || body["version"] != "1.2.3" {
		t.Fatalf("unexpected health: code=%d body=%v", rr.Code, body)
	}

	rr, body = get(t, s, "/ready")
	if rr.Code != http.StatusOK || body["ready"] != true || body["listen_addr"] != "127.0.0.1:32001" {
		t.Fatalf("unexpected ready: code=%d body=%v", rr.Code, body)
	}
}

func TestReadyBeforeListen(t *testing.T) {
	s := New(Config{}, stubControl{})
	rr, body := get(t, s, "/ready")
	if rr.Code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Fatalf("expected unavailable before listen: code=%d body=%v", rr.Code, body)
	}
	if body["version"] != "dev" {
		t.Fatalf("expected default version, got %v", body["version"])
	}
}

func TestConnectionsListing(t *testing.T) {
	opened := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	s := New(Config{}, stubControl{conns: []server.ConnectionInfo{
		{ID: "a", Remote: "10.0.0.2:5000", State: "receiving", Opened: opened, Requests: 4},
	}})

	rr, body := get(t, s, "/connections")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected code %d", rr.Code)
	}
	if body["count"] != float64(1) {
		t.Fatalf("unexpected count %v", body["count"])
	}
	list := body["connections"].([]any)
	first := list[0].(map[string]any)
	if first["remote"] != "10.0.0.2:5000" || first["state"] != "receiving" || first["requests"] != float64(4) {
		t.Fatalf("unexpected connection entry %v", first)
	}
}

func TestMetricsExposeControlSeries(t *testing.T) {
	observability.RecordRequest("status", observability.OutcomeOK)
	s := New(Config{}, stubControl{})

	rr, _ := get(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected code %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "gymon_control_requests_total") {
		t.Fatalf("expected control metrics in exposition")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, stubControl{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatalf("admin server did not stop")
	}
}

func TestTokenGuardsPrivateRoutes(t *testing.T) {
	s := New(Config{Token: "s3cret"}, stubControl{})

	for _, path := range []string{"/metrics", "/connections"} {
		rr, _ := get(t, s, path)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, rr.Code)
		}

		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		ok := httptest.NewRecorder()
		s.Router().ServeHTTP(ok, req)
		if ok.Code != http.StatusOK {
			t.Fatalf("%s with token: expected 200, got %d", path, ok.Code)
		}
	}

	if rr, _ := get(t, s, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", rr.Code)
	}
}
