package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"festplan/internal/catalog"
	"festplan/internal/clock"
	"festplan/internal/config"
	appLog "festplan/internal/log"
	"festplan/internal/model"
	"festplan/internal/notify"
	"festplan/internal/offline"
	"festplan/internal/plan"
	"festplan/internal/reminder"
)

// EmbeddedOrigin is the origin the offline worker uses when the shell is
// served from the binary rather than an upstream host.
var EmbeddedOrigin = &url.URL{Scheme: "http", Host: "festplan.embedded"}

// embeddedStatic contains the application shell: index.html, the web app
// manifest and the icon. The offline worker caches these at install time.
//
//go:embed all:static
var embeddedStatic embed.FS

// Deps are the stores and services the API operates on.
type Deps struct {
	Config    *config.Config
	Catalog   *catalog.Live
	Prefs     *plan.PreferenceStore
	Friends   *plan.FriendsStore
	Reminders *reminder.Scheduler
	Worker    *offline.Worker
	// Center is optional; it backs the notification endpoints.
	Center *notify.Center
	Clock  clock.Clock
}

// Server provides the HTTP API and fronts everything else with the
// offline worker.
type Server struct {
	deps   Deps
	router *mux.Router

	// revision is bumped by every store mutation and feeds the ETags of
	// the derived views.
	revision atomic.Uint64
}

// NewServer constructs a new Server.
func NewServer(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
	}
	s.watchStores()
	s.registerRoutes()
	return s
}

// watchStores subscribes to every store for the life of the server.
func (s *Server) watchStores() {
	bump := func() { s.revision.Add(1) }
	if s.deps.Prefs != nil {
		s.deps.Prefs.Subscribe(func(map[string]model.Status) { bump() })
	}
	if s.deps.Friends != nil {
		s.deps.Friends.Subscribe(func([]model.FriendSchedule) { bump() })
	}
	if s.deps.Reminders != nil {
		s.deps.Reminders.Store().Subscribe(func(map[string]model.Reminder) { bump() })
	}
}

// notModified sets the ETag for a view derived from the stores and the
// catalog, and answers 304 when the client already has it. salt
// distinguishes variants of one view.
func (s *Server) notModified(w http.ResponseWriter, r *http.Request, salt string) bool {
	tag := fmt.Sprintf(`W/"%d.%d.%s"`, s.revision.Load(), s.deps.Catalog.Generation(), salt)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") != tag {
		return false
	}
	w.WriteHeader(http.StatusNotModified)
	return true
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.deps.Config.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	cfg := s.deps.Config
	if cfg == nil || cfg.BasicAuth == nil {
		return false
	}
	return cfg.BasicAuth.Username != "" && cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.deps.Config.BasicAuth.Username
	password := s.deps.Config.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Festplan", charset="UTF-8"`)
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

// Serve runs an HTTP server on cfg.Listen until ctx is cancelled, then
// shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.deps.Config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+srv.Addr)
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
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(requestLogger)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/locations", s.handleLocations).Methods(http.MethodGet)
	api.HandleFunc("/events/{eventId}/ics", s.handleEventICS).Methods(http.MethodGet)
	api.HandleFunc("/events/{eventId}/google", s.handleEventGoogle).Methods(http.MethodGet)
	api.HandleFunc("/plan", s.handlePlan).Methods(http.MethodGet)
	api.HandleFunc("/timetable", s.handleTimetable).Methods(http.MethodGet)

	api.HandleFunc("/preferences", s.handlePreferences).Methods(http.MethodGet)
	api.HandleFunc("/preferences", s.handleClearPreferences).Methods(http.MethodDelete)
	api.HandleFunc("/preferences/{eventId}", s.handleGetPreference).Methods(http.MethodGet)
	api.HandleFunc("/preferences/{eventId}", s.handleTogglePreference).Methods(http.MethodPut)
	api.HandleFunc("/preferences/{eventId}", s.handleDeletePreference).Methods(http.MethodDelete)

	api.HandleFunc("/reminders", s.handleReminders).Methods(http.MethodGet)
	api.HandleFunc("/reminders/{eventId}", s.handleGetReminder).Methods(http.MethodGet)
	api.HandleFunc("/reminders/{eventId}", s.handleSetReminder).Methods(http.MethodPut)
	api.HandleFunc("/reminders/{eventId}", s.handleClearReminder).Methods(http.MethodDelete)
	api.HandleFunc("/permission", s.handlePermission).Methods(http.MethodGet)
	api.HandleFunc("/permission", s.handleRequestPermission).Methods(http.MethodPost)

	api.HandleFunc("/friends", s.handleFriends).Methods(http.MethodGet)
	api.HandleFunc("/friends", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/friends", s.handleClearFriends).Methods(http.MethodDelete)
	api.HandleFunc("/friends/{index:[0-9]+}", s.handleRemoveFriend).Methods(http.MethodDelete)
	api.HandleFunc("/friends/{index:[0-9]+}/plan", s.handleFriendPlan).Methods(http.MethodGet)
	api.HandleFunc("/friends/{eventId}/overlap", s.handleOverlap).Methods(http.MethodGet)

	api.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/export.png", s.handleExportQR).Methods(http.MethodGet)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)

	api.HandleFunc("/worker", s.handleWorkerStatus).Methods(http.MethodGet)
	api.HandleFunc("/worker/message", s.handleWorkerMessage).Methods(http.MethodPost)
	api.HandleFunc("/worker/push", s.handleWorkerPush).Methods(http.MethodPost)
	api.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{tag}/click", s.handleNotificationClick).Methods(http.MethodPost)

	// Never answer an /api/* miss with the HTML shell.
	api.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	// Everything else goes through the offline worker: cache first, then
	// the origin, then the cached shell.
	if s.deps.Worker != nil {
		r.PathPrefix("/").Handler(s.deps.Worker)
	} else {
		r.PathPrefix("/").Handler(StaticHandler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

// StaticHandler serves the embedded application shell.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	return http.FileServer(http.FS(sub))
}

// EmbeddedClient returns an HTTP client whose requests are answered by the
// embedded shell in-process. Paired with EmbeddedOrigin it lets the offline
// worker install and refresh assets without a separate upstream.
func EmbeddedClient() *http.Client {
	return &http.Client{Transport: handlerTransport{h: StaticHandler()}}
}

type handlerTransport struct {
	h http.Handler
}

func (t handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	t.h.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
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
