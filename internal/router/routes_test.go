package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tinoosan/fota/internal/data"
	"github.com/tinoosan/fota/internal/history"
	"github.com/tinoosan/fota/internal/metrics"
	"github.com/tinoosan/fota/internal/stream"
	"github.com/tinoosan/fota/internal/updater"
)

type fakeUpdater struct{ running bool }

func (f *fakeUpdater) Status() data.Status { return data.Status{Running: f.running, Phase: data.PhaseSleeping} }
func (f *fakeUpdater) IsRunning() bool { return f.running }
func (f *fakeUpdater) ForceCheck() {}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHealthzOK(t *testing.T) {
	r := New(quiet(), &fakeUpdater{}, history.NewInMemoryRepo(1), nil, "sekrit")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "ok" {
		t.Fatalf("expected body 'ok', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
}

func TestReadyz(t *testing.T) {
	for _, tc := range []struct {
		running bool
		want    int
	}{{true, http.StatusOK}, {false, http.StatusServiceUnavailable}} {
		r := New(quiet(), &fakeUpdater{running: tc.running}, history.NewInMemoryRepo(1), nil, "sekrit")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if w.Code != tc.want {
			t.Fatalf("running=%v: expected %d, got %d", tc.running, tc.want, w.Code)
		}
	}
}

func TestMetricsEndpointEmitsFamilies(t *testing.T) {
	metrics.Register()
	metrics.UpdateEvents.WithLabelValues("checkstarted").Inc()
	metrics.FetchLatency.WithLabelValues("version").Observe(0.02)
	metrics.RetryCount.Set(2)

	r := New(quiet(), &fakeUpdater{}, history.NewInMemoryRepo(1), nil, "sekrit")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"fota_update_events_total", "fota_fetch_latency_seconds_count", "fota_retry_count 2"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in metrics: %s", want, body)
		}
	}
}

func TestEventsWebsocketThroughMiddleware(t *testing.T) {
	hub := stream.NewHub(quiet())
	defer hub.Close()
	srv := httptest.NewServer(New(quiet(), &fakeUpdater{running: true}, history.NewInMemoryRepo(1), hub, "sekrit"))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"

	if _, _, err := websocket.Dial(ctx, url, nil); err == nil {
		t.Fatal("websocket accepted without token")
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer sekrit"}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Report(updater.Event{Type: updater.EventUpdateStarted, Cycle: "c1"})

	var got updater.Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != updater.EventUpdateStarted || got.Cycle != "c1" {
		t.Fatalf("event = %+v", got)
	}
}
