package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oszuidwest/zwfm-vumeter/internal/config"
	"github.com/oszuidwest/zwfm-vumeter/internal/engine"
	"github.com/oszuidwest/zwfm-vumeter/internal/notify"
	"github.com/oszuidwest/zwfm-vumeter/internal/server"
	"github.com/oszuidwest/zwfm-vumeter/internal/util"
)

const (
	levelsInterval = time.Second / 30
	statusInterval = 3 * time.Second
)

// Server is the HTTP front end of the meter.
type Server struct {
	config   *config.Config
	engine   *engine.Engine
	sessions *server.SessionManager
	commands *server.CommandHandler
	version  *VersionChecker
}

// NewServer returns a Server for the given config and engine.
func NewServer(cfg *config.Config, eng *engine.Engine, version *VersionChecker) *Server {
	commands := server.NewCommandHandler(cfg, eng, map[string]func() error{
		"webhook": func() error { return notify.SendTestWebhook(cfg.WebhookURL()) },
		"email":   func() error { return notify.SendTestEmail(notify.EmailConfigFrom(cfg)) },
		"log":     func() error { return notify.WriteTestLog(cfg.LogPath()) },
	})
	commands.RefreshSources()

	return &Server{
		config:   cfg,
		engine:   eng,
		sessions: server.NewSessionManager(),
		commands: commands,
		version:  version,
	}
}

// status builds the periodic status message.
func (s *Server) status() map[string]any {
	snap := s.config.Snapshot()
	return map[string]any{
		"type":    "status",
		"engine":  s.engine.Status(),
		"sources": s.commands.Sources(),
		"settings": map[string]any{
			"audio_input":       snap.AudioInput,
			"audio_backend":     snap.AudioBackend,
			"platform":          runtime.GOOS,
			"silence_threshold": snap.SilenceThreshold,
			"silence_duration":  snap.SilenceDuration,
			"silence_recovery":  snap.SilenceRecovery,
			"silence_webhook":   snap.WebhookURL,
			"silence_log_path":  snap.LogPath,
			"email_smtp_host":   snap.EmailSMTPHost,
			"email_smtp_port":   snap.EmailSMTPPort,
			"email_from_name":   snap.EmailFromName,
			"email_username":    snap.EmailUsername,
			"email_recipients":  snap.EmailRecipients,
		},
		"version": s.version.Info(),
	}
}

// handleWebSocket streams meter frames and status to the client and
// processes its commands.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer util.SafeCloseFunc(conn, "websocket connection")()

	statusUpdate := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var cmd server.WSCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			s.commands.Handle(cmd, conn, func() {
				select {
				case statusUpdate <- struct{}{}:
				default:
				}
			})
		}
	}()

	levelsTicker := time.NewTicker(levelsInterval)
	statusTicker := time.NewTicker(statusInterval)
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	if err := conn.WriteJSON(s.status()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-statusUpdate:
			if err := conn.WriteJSON(s.status()); err != nil {
				return
			}
		case <-statusTicker.C:
			if err := conn.WriteJSON(s.status()); err != nil {
				return
			}
		case <-levelsTicker.C:
			if err := conn.WriteJSON(map[string]any{
				"type":   "levels",
				"levels": s.engine.Snapshot(),
			}); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func (s *Server) handleLevels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.engine.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.engine.Status())
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("refresh") {
		s.commands.RefreshSources()
	}
	writeJSON(w, s.commands.Sources())
}

// renderLogin writes the login form with a fresh CSRF token.
func (s *Server) renderLogin(w http.ResponseWriter, status int, message string) {
	page := strings.Replace(loginHTML, "{{CSRF}}", s.sessions.CreateCSRFToken(), 1)
	page = strings.Replace(page, "{{ERROR}}", html.EscapeString(message), 1)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(page)); err != nil {
		log.Error().Err(err).Msg("failed to write login page")
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.sessions.Authenticated(r) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		s.renderLogin(w, http.StatusOK, "")
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			s.renderLogin(w, http.StatusBadRequest, "Invalid request")
			return
		}
		if !s.sessions.ValidateCSRFToken(r.PostFormValue("csrf_token")) {
			log.Warn().Str("remote", r.RemoteAddr).Msg("login rejected: invalid CSRF token")
			s.renderLogin(w, http.StatusForbidden, "Session expired, please try again")
			return
		}
		snap := s.config.Snapshot()
		if !s.sessions.Login(w, r, r.PostFormValue("username"), r.PostFormValue("password"), snap.WebUser, snap.WebPassword) {
			log.Warn().Str("remote", r.RemoteAddr).Msg("login failed")
			s.renderLogin(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		log.Info().Str("remote", r.RemoteAddr).Msg("login succeeded")
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.sessions.AuthMiddleware

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("GET /style.css", staticHandler("text/css; charset=utf-8", styleCSS))

	mux.HandleFunc("/ws", auth(s.handleWebSocket))
	mux.HandleFunc("GET /api/levels", auth(s.handleLevels))
	mux.HandleFunc("GET /api/status", auth(s.handleStatus))
	mux.HandleFunc("GET /api/sources", auth(s.handleSources))
	mux.HandleFunc("GET /app.js", auth(staticHandler("application/javascript", appJS)))
	mux.HandleFunc("GET /{$}", auth(s.handleIndex))
	mux.HandleFunc("GET /index.html", auth(s.handleIndex))

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page := strings.Replace(indexHTML, "{{VERSION}}", html.EscapeString(Version), 1)
	page = strings.ReplaceAll(page, "{{YEAR}}", fmt.Sprintf("%d", time.Now().Year()))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(page)); err != nil {
		log.Error().Err(err).Msg("failed to write index.html")
	}
}

func staticHandler(contentType, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		if _, err := w.Write([]byte(content)); err != nil {
			log.Error().Err(err).Msg("failed to write static file")
		}
	}
}

// Start listens on the configured port until ctx is cancelled. The returned
// server is used for graceful shutdown.
func (s *Server) Start(ctx context.Context) *http.Server {
	addr := fmt.Sprintf(":%d", s.config.WebPort())
	log.Info().Str("addr", addr).Msg("starting web server")

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return srv
}
