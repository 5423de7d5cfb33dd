package v1_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tinoosan/fota/internal/data"
	"github.com/tinoosan/fota/internal/history"
	"github.com/tinoosan/fota/internal/router"
)

const testToken = "testtoken"

type fakeUpdater struct {
	running bool
	forced  int
}

func (f *fakeUpdater) Status() data.Status {
	return data.Status{Running: f.running, Phase: data.PhaseSleeping, CurrentVersion: "1.0.0", ForcePending: f.forced > 0}
}
func (f *fakeUpdater) IsRunning() bool { return f.running }
func (f *fakeUpdater) ForceCheck()     { f.forced++ }

func setup(t *testing.T, upd *fakeUpdater) (http.Handler, *history.InMemoryRepo) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hist := history.NewInMemoryRepo(10)
	return router.New(logger, upd, hist, nil, testToken), hist
}

func authReq(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+testToken)
}

func TestGetStatus(t *testing.T) {
	h, _ := setup(t, &fakeUpdater{running: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	authReq(req)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rr.Code)
	}
	var st data.Status
	if err := json.NewDecoder(rr.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Running || st.Phase != data.PhaseSleeping || st.CurrentVersion != "1.0.0" {
		t.Fatalf("status = %+v", st)
	}
}

func TestPostCheck(t *testing.T) {
	tests := []struct {
		name        string
		running     bool
		contentType string
		body        string
		want        int
		wantForced  int
	}{
		{"empty body", true, "", "", http.StatusAccepted, 1},
		{"with reason", true, "application/json", `{"reason":"operator"}`, http.StatusAccepted, 1},
		{"unknown field", true, "application/json", `{"now":true}`, http.StatusBadRequest, 0},
		{"wrong content-type", true, "text/plain", `{}`, http.StatusUnsupportedMediaType, 0},
		{"not running", false, "", "", http.StatusConflict, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upd := &fakeUpdater{running: tt.running}
			h, _ := setup(t, upd)
			req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(tt.body))
			authReq(req)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected status %d got %d", tt.want, rr.Code)
			}
			if upd.forced != tt.wantForced {
				t.Fatalf("forced = %d, want %d", upd.forced, tt.wantForced)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	h, hist := setup(t, &fakeUpdater{running: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	authReq(req)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var list []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != http.StatusOK || len(list) != 0 {
		t.Fatalf("status %d, list %v", rr.Code, list)
	}

	_, _ = hist.Add(context.Background(), &data.Attempt{ID: "a1", StartedAt: time.Unix(1, 0), CurrentVersion: "1.0.0", Outcome: data.OutcomeUpToDate})
	_, _ = hist.Add(context.Background(), &data.Attempt{ID: "a2", StartedAt: time.Unix(2, 0), CurrentVersion: "1.0.0", Outcome: data.OutcomeFailed, Error: "HTTP 500"})

	req = httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	authReq(req)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	list = nil
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0]["id"] != "a2" {
		t.Fatalf("unexpected list: %v", list)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/history/a1", nil)
	authReq(req)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var got data.Attempt
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != http.StatusOK || got.Outcome != data.OutcomeUpToDate {
		t.Fatalf("status %d, attempt %+v", rr.Code, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/history/missing", nil)
	authReq(req)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rr.Code)
	}
}

func TestRequiresToken(t *testing.T) {
	h, _ := setup(t, &fakeUpdater{running: true})
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rr.Code)
	}
}
