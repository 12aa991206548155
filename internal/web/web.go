package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"slices"
	"strings"
	"time"

	"shabbatd/internal/alarm"
	"shabbatd/internal/audio"
	"shabbatd/internal/config"
	appLog "shabbatd/internal/log"
	"shabbatd/internal/model"
	"shabbatd/internal/refresh"
)

// AllowedOffsets are the alarm lead times the settings form offers, in minutes.
var AllowedOffsets = []int{5, 10, 15, 20, 30, 45, 60}

// Refresher is the part of the refresh orchestrator the API drives.
type Refresher interface {
	Load(ctx context.Context) error
	Invalidate(ctx context.Context) error
	Status() refresh.Status
}

// Previewer plays and stops sound previews.
type Previewer interface {
	Preview(ref string) error
	StopPreview()
}

// FiringSource reports the last alarm playback.
type FiringSource interface {
	LastFiring() (alarm.Firing, bool)
}

// Server provides the HTTP API and the embedded status page.
type Server struct {
	cfg       *config.Config
	loc       *time.Location
	refresher Refresher
	alarms    *alarm.ConfigStore
	previewer Previewer
	firings   FiringSource
	mux       *http.ServeMux
}

//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server. firings may be nil.
func NewServer(cfg *config.Config, loc *time.Location, refresher Refresher, alarms *alarm.ConfigStore, previewer Previewer, firings FiringSource) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:       cfg,
		loc:       loc,
		refresher: refresher,
		alarms:    alarms,
		previewer: previewer,
		firings:   firings,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials count as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="shabbatd", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs an HTTP server on listen until ctx is cancelled, then shuts
// it down gracefully.
func Serve(ctx context.Context, listen string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/shabbat", s.handleShabbat)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/alarm", s.handleGetAlarm)
	s.mux.HandleFunc("PUT /api/alarm", s.handlePutAlarm)
	s.mux.HandleFunc("GET /api/sounds", s.handleSounds)
	s.mux.HandleFunc("POST /api/sounds/preview", s.handlePreview)
	s.mux.HandleFunc("DELETE /api/sounds/preview", s.handleStopPreview)

	// Everything that is not an API route falls back to the embedded page.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// shabbatResponse is the JSON response shape for /api/shabbat.
type shabbatResponse struct {
	refresh.Status
	CandleLightingAt *time.Time    `json:"candle_lighting_at,omitempty"`
	AlarmAt          *time.Time    `json:"alarm_at,omitempty"`
	LastAlarm        *alarm.Firing `json:"last_alarm,omitempty"`
	Timezone         string        `json:"timezone"`
}

func (s *Server) handleShabbat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.shabbatView(r.Context()))
}

func (s *Server) shabbatView(ctx context.Context) shabbatResponse {
	resp := shabbatResponse{
		Status:   s.refresher.Status(),
		Timezone: s.loc.String(),
	}
	if s.firings != nil {
		if f, ok := s.firings.LastFiring(); ok {
			resp.LastAlarm = &f
		}
	}
	if resp.Selected == nil {
		return resp
	}

	candle, err := resp.Selected.CandleLightingAt(s.loc)
	if err != nil {
		appLog.Warn("selected record has unusable candle-lighting time", "date", resp.Selected.Date, "candle_lighting", resp.Selected.CandleLighting)
		return resp
	}
	resp.CandleLightingAt = &candle

	if cfg, ok := s.alarms.Load(ctx); ok && cfg.OffsetMinutes > 0 {
		at := candle.Add(-time.Duration(cfg.OffsetMinutes) * time.Minute)
		resp.AlarmAt = &at
	}
	return resp
}

// handleRefresh runs the load flow now. ?force=1 drops the cache first.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	force := r.URL.Query().Get("force")
	if force == "1" || force == "true" {
		if err := s.refresher.Invalidate(ctx); err != nil {
			appLog.Error("api refresh: invalidate failed", err)
			writeError(w, http.StatusInternalServerError, "failed to invalidate cache")
			return
		}
	}

	appLog.Info("api refresh request", "force", force)
	if err := s.refresher.Load(ctx); err != nil {
		status := http.StatusInternalServerError
		if refresh.IsCollaboratorError(err) {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.shabbatView(ctx))
}

// alarmResponse is the JSON shape for /api/alarm.
type alarmResponse struct {
	Configured bool   `json:"configured"`
	Time       int    `json:"time,omitempty"`
	Sound      string `json:"sound,omitempty"`
}

func (s *Server) handleGetAlarm(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.alarms.Load(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, alarmResponse{})
		return
	}
	writeJSON(w, http.StatusOK, alarmResponse{Configured: true, Time: cfg.OffsetMinutes, Sound: cfg.SoundID})
}

func (s *Server) handlePutAlarm(w http.ResponseWriter, r *http.Request) {
	var req model.AlarmConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !slices.Contains(AllowedOffsets, req.OffsetMinutes) {
		writeError(w, http.StatusBadRequest, "time must be one of 5, 10, 15, 20, 30, 45, 60")
		return
	}
	if _, ok := s.cfg.Sound(req.SoundID); !ok {
		writeError(w, http.StatusBadRequest, "unknown sound")
		return
	}

	// Saving closes the settings form, which stops its preview.
	s.previewer.StopPreview()

	if err := s.alarms.Save(r.Context(), req.OffsetMinutes, req.SoundID); err != nil {
		appLog.Error("api alarm save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save alarm")
		return
	}
	appLog.Info("alarm saved", "time", req.OffsetMinutes, "sound", req.SoundID)
	writeJSON(w, http.StatusOK, alarmResponse{Configured: true, Time: req.OffsetMinutes, Sound: req.SoundID})
}

// soundDTO is a JSON-friendly view of a catalog entry.
type soundDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleSounds(w http.ResponseWriter, _ *http.Request) {
	out := make([]soundDTO, 0, len(s.cfg.Sounds))
	for _, snd := range s.cfg.Sounds {
		out = append(out, soundDTO{ID: snd.ID, Name: snd.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sound string `json:"sound"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil || req.Sound == "" {
		writeError(w, http.StatusBadRequest, "sound is required")
		return
	}
	if err := s.previewer.Preview(req.Sound); err != nil {
		if errors.Is(err, audio.ErrSoundNotFound) {
			writeError(w, http.StatusNotFound, "unknown sound")
			return
		}
		appLog.Error("api preview failed", err, "sound", req.Sound)
		writeError(w, http.StatusInternalServerError, "failed to play preview")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStopPreview(w http.ResponseWriter, _ *http.Request) {
	s.previewer.StopPreview()
	w.WriteHeader(http.StatusNoContent)
}

// staticFileServer serves the embedded status page from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown API routes and wrong methods get a plain 404, never HTML.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
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
