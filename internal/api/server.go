package api

import (
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/recapture/internal/config"
	"github.com/bryanchriswhite/recapture/internal/logger"
	"github.com/bryanchriswhite/recapture/internal/obs"
	"github.com/bryanchriswhite/recapture/internal/tracker"
	"github.com/bryanchriswhite/recapture/internal/window"
)

const version = "0.1.0"

// defaultPreviewWidth bounds preview thumbnails unless the request asks
// otherwise.
const defaultPreviewWidth = 320

// Server is the HTTP control API: status, window listing, configuration, and
// a websocket stream of tracker events.
type Server struct {
	router    *mux.Router
	backend   window.Backend
	trk       *tracker.Tracker
	configMgr *config.Manager
	host      *obs.Client
	upgrader  websocket.Upgrader
	log       *zerolog.Logger
}

// NewServer creates the API server.
func NewServer(backend window.Backend, trk *tracker.Tracker, configMgr *config.Manager, host *obs.Client) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		backend:   backend,
		trk:       trk,
		configMgr: configMgr,
		host:      host,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		log: logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Tracker state
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/resync", s.handleResync).Methods("POST")
	api.HandleFunc("/events", s.handleEventStream)

	// Window system
	api.HandleFunc("/windows", s.handleWindows).Methods("GET")
	api.HandleFunc("/windows/preview", s.handleWindowPreview).Methods("GET")

	// Host capture sources
	api.HandleFunc("/sources", s.handleSources).Methods("GET")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")
	api.HandleFunc("/target", s.handleGetTarget).Methods("GET")
	api.HandleFunc("/target", s.handleSetTarget).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Start starts the HTTP server.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.log.Info().Str("addr", fmt.Sprintf("http://localhost%s", addr)).Msg("Starting control API")
	return http.ListenAndServe(addr, s.enableCORS(s.router))
}

// Handler returns the full handler, CORS included. Tests use it.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HTTP Handlers

type statusResponse struct {
	Tracker      tracker.Status `json:"tracker"`
	OBSConnected bool           `json:"obs_connected"`
	Backend      string         `json:"backend"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Tracker: s.trk.Status(),
		Backend: s.backend.Name(),
	}
	if s.host != nil {
		resp.OBSConnected = s.host.Connected()
	}

	writeJSON(w, resp)
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	s.trk.Resync()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "resyncing"})
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	events := s.trk.Subscribe()
	defer s.trk.Unsubscribe(events)

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			s.log.Debug().Err(err).Msg("Event stream client gone")
			return
		}
	}
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := s.backend.Windows()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, windows)
}

func (s *Server) handleWindowPreview(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.backend.(window.Snapshotter)
	if !ok {
		http.Error(w, fmt.Sprintf("previews not supported by the %s backend", s.backend.Name()), http.StatusNotImplemented)
		return
	}

	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 32)
	if err != nil {
		http.Error(w, "invalid or missing window id", http.StatusBadRequest)
		return
	}

	width := defaultPreviewWidth
	if raw := r.URL.Query().Get("width"); raw != "" {
		width, err = strconv.Atoi(raw)
		if err != nil || width < 1 {
			http.Error(w, "invalid width", http.StatusBadRequest)
			return
		}
	}

	img, err := snap.Snapshot(uint32(id))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, window.Thumbnail(img, width)); err != nil {
		s.log.Debug().Err(err).Msg("Preview encode failed")
	}
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if s.host == nil {
		http.Error(w, "obs is not configured", http.StatusServiceUnavailable)
		return
	}

	inputs, err := s.host.Inputs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	// Only window capture inputs can be tracked.
	sources := make([]obs.Input, 0, len(inputs))
	for _, in := range inputs {
		if obs.IsWindowCaptureKind(in.Kind) {
			sources = append(sources, in)
		}
	}

	writeJSON(w, sources)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Get()
	cfg.OBS.Password = "" // never serve credentials

	writeJSON(w, cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// A blank password in the body keeps the configured one rather than
	// erasing it, since GET never returns it.
	if cfg.OBS.Password == "" {
		cfg.OBS.Password = s.configMgr.Get().OBS.Password
	}

	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.configMgr.Update(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.configMgr.Get().Target)
}

func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var target config.CaptureTarget
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := target.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.configMgr.SetTarget(target); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, target)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>recapture</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 720px;
            margin: 50px auto;
            padding: 20px;
        }
        code {
            background: #f5f5f5;
            padding: 2px 6px;
            border-radius: 3px;
        }
    </style>
</head>
<body>
    <h1>recapture</h1>
    <p>Keeps an OBS window capture source pointed at a window whose title changes.</p>
    <h3>API Endpoints:</h3>
    <ul>
        <li><a href="/api/health">/api/health</a> - health check</li>
        <li><a href="/api/status">/api/status</a> - tracker state</li>
        <li><a href="/api/windows">/api/windows</a> - open windows</li>
        <li><a href="/api/sources">/api/sources</a> - capture sources in OBS</li>
        <li><a href="/api/config">/api/config</a> - configuration</li>
        <li><code>/api/events</code> - websocket stream of tracker events</li>
    </ul>
</body>
</html>`

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
