package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gcalpaper/internal/backoff"
	"gcalpaper/internal/battery"
	"gcalpaper/internal/config"
	appLog "gcalpaper/internal/log"
	"gcalpaper/internal/model"
)

// StateSource reports the persisted backoff state.
type StateSource interface {
	State(ctx context.Context) (backoff.State, error)
}

// CycleSource reports the outcome of the most recent wake cycle.
type CycleSource interface {
	LastCycle() model.CycleSummary
}

// PreviewSource returns the last rendered frame as PNG bytes.
type PreviewSource interface {
	PNG() ([]byte, error)
}

// Deps are the read-only views the server exposes. Nil fields turn the
// matching endpoint into a 503.
type Deps struct {
	State   StateSource
	Cycles  CycleSource
	Battery battery.Reader
	Preview PreviewSource
}

// Server exposes device status over HTTP while the daemon sleeps between
// wakes.
type Server struct {
	auth *config.BasicAuthConfig
	deps Deps
	mux  *http.ServeMux
	now  func() time.Time

	// Battery status does not need sub-second precision; cache it so
	// polling the endpoint doesn't keep the I2C bus busy.
	batteryMu    sync.RWMutex
	batteryCache *batteryCache
}

const batteryCacheTTL = 30 * time.Second

// NewServer constructs a new Server. auth may be nil.
func NewServer(auth *config.BasicAuthConfig, deps Deps) *Server {
	s := &Server{
		auth: auth,
		deps: deps,
		mux:  http.NewServeMux(),
		now:  time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	// An empty username or password counts as disabled.
	return s.auth != nil && s.auth.Username != "" && s.auth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.auth.Username
	password := s.auth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !passwordMatches(password, p) {
			w.Header().Set("WWW-Authenticate", `Basic realm="gcalpaper", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// passwordMatches accepts either a bcrypt hash or a plain configured
// password.
func passwordMatches(configured, given string) bool {
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(given)) == nil
	}
	return secureCompare(given, configured)
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the status endpoints on listen until ctx is
// cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, listen string, s *Server) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	appLog.Info("starting HTTP server", "listen", "http://"+listen, "basic_auth", s.basicAuthEnabled())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/battery", s.handleBattery)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// stateResponse is the JSON response shape for /api/state.
type stateResponse struct {
	Backoff   backoff.State       `json:"backoff"`
	LastCycle *model.CycleSummary `json:"last_cycle,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.deps.State == nil {
		writeError(w, http.StatusServiceUnavailable, "state unavailable")
		return
	}
	st, err := s.deps.State.State(r.Context())
	if err != nil {
		appLog.Error("state read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read state")
		return
	}
	resp := stateResponse{Backoff: st}
	if s.deps.Cycles != nil {
		if last := s.deps.Cycles.LastCycle(); last.CycleID != "" {
			resp.LastCycle = &last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// batteryCache holds the last known battery status and its timestamp.
type batteryCache struct {
	status    battery.Status
	updatedAt time.Time
}

// batteryResponse is the JSON response shape for /api/battery.
type batteryResponse struct {
	Percent   int     `json:"percent"`
	VoltageMv int     `json:"voltage_mv"`
	Volts     float64 `json:"volts"`
}

func newBatteryResponse(st battery.Status) batteryResponse {
	return batteryResponse{Percent: st.Percent, VoltageMv: st.VoltageMv, Volts: st.Volts()}
}

func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	if s.deps.Battery == nil {
		writeError(w, http.StatusServiceUnavailable, "battery reader unavailable")
		return
	}
	now := s.now()

	s.batteryMu.RLock()
	bc := s.batteryCache
	s.batteryMu.RUnlock()
	if bc != nil && now.Sub(bc.updatedAt) < batteryCacheTTL {
		writeJSON(w, http.StatusOK, newBatteryResponse(bc.status))
		return
	}

	status, err := s.deps.Battery.Read(r.Context())
	if err != nil {
		appLog.Error("battery read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}

	s.batteryMu.Lock()
	s.batteryCache = &batteryCache{status: status, updatedAt: now}
	s.batteryMu.Unlock()

	writeJSON(w, http.StatusOK, newBatteryResponse(status))
}

// handlePreview serves the last rendered frame.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Preview == nil {
		writeError(w, http.StatusServiceUnavailable, "preview disabled")
		return
	}
	data, err := s.deps.Preview.PNG()
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "no frame rendered yet", http.StatusNotFound)
		return
	}
	if err != nil {
		appLog.Error("preview read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read preview")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
