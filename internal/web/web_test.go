package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gcalpaper/internal/backoff"
	"gcalpaper/internal/battery"
	"gcalpaper/internal/config"
	"gcalpaper/internal/model"
)

type stubState struct {
	st  backoff.State
	err error
}

func (s stubState) State(context.Context) (backoff.State, error) { return s.st, s.err }

type stubCycles struct{ last model.CycleSummary }

func (s stubCycles) LastCycle() model.CycleSummary { return s.last }

type stubPreview struct {
	data []byte
	err  error
}

func (s stubPreview) PNG() ([]byte, error) { return s.data, s.err }

type countingBattery struct {
	n  int
	st battery.Status
}

func (c *countingBattery) Read(context.Context) (battery.Status, error) {
	c.n++
	return c.st, nil
}

func get(t *testing.T, h http.Handler, path string, auth ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, NewServer(nil, Deps{}).Handler(), "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestState(t *testing.T) {
	deps := Deps{
		State:  stubState{st: backoff.State{DelaySeconds: 60, AttemptCount: 3}},
		Cycles: stubCycles{last: model.CycleSummary{CycleID: "abc", Outcome: "calendar fetch failed"}},
	}
	rec := get(t, NewServer(nil, deps).Handler(), "/api/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp stateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Backoff.DelaySeconds != 60 || resp.Backoff.AttemptCount != 3 {
		t.Errorf("backoff = %+v", resp.Backoff)
	}
	if resp.LastCycle == nil || resp.LastCycle.Outcome != "calendar fetch failed" {
		t.Errorf("last cycle = %+v", resp.LastCycle)
	}
}

func TestState_NoCycleYet(t *testing.T) {
	deps := Deps{State: stubState{}, Cycles: stubCycles{}}
	rec := get(t, NewServer(nil, deps).Handler(), "/api/state")
	var raw map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["last_cycle"]; ok {
		t.Errorf("last_cycle present before any cycle: %v", raw)
	}
}

func TestState_ReadError(t *testing.T) {
	rec := get(t, NewServer(nil, Deps{State: stubState{err: errors.New("disk")}}).Handler(), "/api/state")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestBattery_Cached(t *testing.T) {
	b := &countingBattery{st: battery.Status{Percent: 80, VoltageMv: 3950}}
	s := NewServer(nil, Deps{Battery: b})
	now := time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	h := s.Handler()

	rec := get(t, h, "/api/battery")
	var resp batteryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Percent != 80 || resp.VoltageMv != 3950 || resp.Volts != 3.95 {
		t.Errorf("resp = %+v", resp)
	}

	get(t, h, "/api/battery")
	if b.n != 1 {
		t.Errorf("reads within TTL = %d, want 1", b.n)
	}
	now = now.Add(batteryCacheTTL)
	get(t, h, "/api/battery")
	if b.n != 2 {
		t.Errorf("reads after TTL = %d, want 2", b.n)
	}
}

func TestPreview(t *testing.T) {
	png := []byte("\x89PNG fake")
	rec := get(t, NewServer(nil, Deps{Preview: stubPreview{data: png}}).Handler(), "/preview.png")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != string(png) {
		t.Errorf("body = %q", rec.Body.String())
	}

	rec = get(t, NewServer(nil, Deps{Preview: stubPreview{err: os.ErrNotExist}}).Handler(), "/preview.png")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing preview status = %d", rec.Code)
	}

	rec = get(t, NewServer(nil, Deps{}).Handler(), "/preview.png")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled preview status = %d", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name     string
		password string
	}{
		{"plain", "hunter2"},
		{"bcrypt", string(hash)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &config.BasicAuthConfig{Username: "admin", Password: tt.password}
			h := NewServer(auth, Deps{State: stubState{}}).Handler()

			if rec := get(t, h, "/health"); rec.Code != http.StatusOK {
				t.Errorf("/health status = %d, want open", rec.Code)
			}
			if rec := get(t, h, "/api/state"); rec.Code != http.StatusUnauthorized {
				t.Errorf("anonymous status = %d", rec.Code)
			}
			if rec := get(t, h, "/api/state", "admin", "wrong"); rec.Code != http.StatusUnauthorized {
				t.Errorf("wrong password status = %d", rec.Code)
			}
			if rec := get(t, h, "/api/state", "admin", "hunter2"); rec.Code != http.StatusOK {
				t.Errorf("authorized status = %d", rec.Code)
			}
		})
	}
}

func TestBasicAuth_EmptyPasswordDisables(t *testing.T) {
	h := NewServer(&config.BasicAuthConfig{Username: "admin"}, Deps{State: stubState{}}).Handler()
	if rec := get(t, h, "/api/state"); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
