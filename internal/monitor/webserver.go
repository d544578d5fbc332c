package monitor

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/handcast-data/handcast/internal/httputil"
	"github.com/handcast-data/handcast/internal/monitoring"
	"github.com/handcast-data/handcast/internal/session"
	"github.com/handcast-data/handcast/internal/version"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring the tracking bridge.
// It provides endpoints for health checks and real-time status information
type WebServer struct {
	address       string
	stats         *FrameStats
	history       *RateHistory
	frames        *FrameMux
	store         *session.Store
	server        *http.Server
	serviceSource string
	destination   string
	label         string
	recordingPath string
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address       string
	Stats         *FrameStats
	History       *RateHistory
	Frames        *FrameMux
	Store         *session.Store
	ServiceSource string
	Destination   string
	Label         string
	RecordingPath string
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:       config.Address,
		stats:         config.Stats,
		history:       config.History,
		frames:        config.Frames,
		store:         config.Store,
		serviceSource: config.ServiceSource,
		destination:   config.Destination,
		label:         config.Label,
		recordingPath: config.RecordingPath,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		monitoring.Logf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	monitoring.Logf("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}

	monitoring.Logf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/tracking/rates", ws.handleRates)
	mux.HandleFunc("/api/tracking/sessions", ws.handleSessions)
	mux.HandleFunc("/api/tracking/session", ws.handleSession)
	mux.HandleFunc("/charts/rate", ws.handleRateChart)
	mux.HandleFunc("/charts/sessions", ws.handleSessionsChart)
	mux.HandleFunc("/charts/session", ws.handleSessionChart)

	// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
	if ws.frames != nil {
		ws.frames.AttachAdminRoutes(mux)
	}
	if ws.store != nil {
		ws.store.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "handcast", "version": "%s", "timestamp": "%s"}`,
		version.String(), time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	// Determine recording status
	recordingStatus := "disabled"
	if ws.recordingPath != "" {
		recordingStatus = fmt.Sprintf("enabled (%s)", ws.recordingPath)
	}

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Template data
	data := struct {
		ServiceSource   string
		Destination     string
		Label           string
		HTTPAddress     string
		RecordingStatus string
		Uptime          string
		Stats           *StatsSnapshot
	}{
		ServiceSource:   ws.serviceSource,
		Destination:     ws.destination,
		Label:           ws.label,
		HTTPAddress:     ws.address,
		RecordingStatus: recordingStatus,
		Uptime:          ws.stats.GetUptime().Round(time.Second).String(),
		Stats:           ws.stats.GetLatestSnapshot(),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleRates returns the in-memory rate trail as JSON.
// Query params:
//
//	limit (optional, default all held samples)
func (ws *WebServer) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.history == nil {
		httputil.InternalServerError(w, "no rate history configured")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	type rateRow struct {
		Timestamp     string  `json:"timestamp"`
		FramesPerSec  float64 `json:"frames_per_sec"`
		HandsPerFrame float64 `json:"hands_per_frame"`
	}
	samples := ws.history.Recent(limit)
	rows := make([]rateRow, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, rateRow{
			Timestamp:     s.Timestamp.Format(time.RFC3339Nano),
			FramesPerSec:  s.FPS,
			HandsPerFrame: s.Hands,
		})
	}
	httputil.WriteJSONOK(w, rows)
}

// handleSessions returns a JSON array of the most recent recorded sessions.
// Query params:
//
//	limit (optional, default 10)
func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.store == nil {
		httputil.InternalServerError(w, "no database configured for session lookup")
		return
	}

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
		if limit <= 0 || limit > 100 {
			limit = 10
		}
	}

	sessions, err := ws.store.RecentSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

// handleSession returns one session with its stored rate trail.
// Query params:
//
//	session_id (required)
func (ws *WebServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.store == nil {
		httputil.InternalServerError(w, "no database configured for session lookup")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		httputil.BadRequest(w, "missing 'session_id' parameter")
		return
	}

	sess, err := ws.store.GetSession(sessionID)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("get session: %v", err))
		return
	}
	samples, err := ws.store.RateSamples(sessionID, 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("get rate samples: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"session":      sess,
		"rate_samples": samples,
	})
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
