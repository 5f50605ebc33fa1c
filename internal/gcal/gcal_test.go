package gcal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"

	"gcalpaper/internal/fault"
	"gcalpaper/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), srv.Client(), "me@example.com", option.WithEndpoint(srv.URL+"/calendar/v3/"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestEvents_QueryAndMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendar/v3/calendars/me@example.com/events" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		want := map[string]string{
			"maxResults":   "4",
			"timeMin":      "2024-06-04T09:15:00Z",
			"timeMax":      "2024-06-05T04:59:59Z",
			"orderBy":      "startTime",
			"singleEvents": "true",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("query %s = %q, want %q", k, got, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"summary":"Standup","start":{"dateTime":"2024-06-04T10:00:00-04:00"}},
			{"summary":"Holiday","start":{"date":"2024-06-04"}}
		]}`))
	})

	events, err := c.Events(context.Background(), model.EventQuery{
		MaxResults: 4,
		TimeMin:    "2024-06-04T09:15:00Z",
		TimeMax:    "2024-06-05T04:59:59Z",
	})
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Summary != "Standup" || events[0].Start == nil || *events[0].Start != "2024-06-04T10:00:00-04:00" {
		t.Errorf("timed event = %+v", events[0])
	}
	if !events[1].AllDay() || events[1].Summary != "Holiday" {
		t.Errorf("all-day event = %+v", events[1])
	}
}

func TestEvents_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	events, err := c.Events(context.Background(), model.EventQuery{MaxResults: 4})
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want none", len(events))
	}
}

func TestEvents_ErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		want   fault.Kind
	}{
		{http.StatusUnauthorized, fault.AuthRefused},
		{http.StatusInternalServerError, fault.TransientNetwork},
		{http.StatusNotFound, fault.TransientNetwork},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"code":0,"message":"nope"}}`, tt.status)
		})
		_, err := c.Events(context.Background(), model.EventQuery{MaxResults: 4})
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if k := fault.KindOf(err); k != tt.want {
			t.Errorf("status %d: KindOf() = %v, want %v", tt.status, k, tt.want)
		}
	}
}
