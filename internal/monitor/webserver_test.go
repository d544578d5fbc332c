package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/handcast-data/handcast/internal/session"
)

func TestNewWebServer(t *testing.T) {
	stats := NewFrameStats()

	config := WebServerConfig{
		Address:       ":0",
		Stats:         stats,
		ServiceSource: "ws://127.0.0.1:6437/v7.json",
		Destination:   "127.0.0.1:5005",
		Label:         "/tracking/event",
	}

	server := NewWebServer(config)

	if server == nil {
		t.Fatal("NewWebServer returned nil")
	}

	if server.stats != stats {
		t.Error("WebServer stats not set correctly")
	}

	if server.destination != "127.0.0.1:5005" {
		t.Error("WebServer destination not set correctly")
	}

	if server.label != "/tracking/event" {
		t.Error("WebServer label not set correctly")
	}
}

func TestWebServer_StatusHandler(t *testing.T) {
	stats := NewFrameStats()

	config := WebServerConfig{
		Address:       ":0",
		Stats:         stats,
		ServiceSource: "ws://127.0.0.1:6437/v7.json",
		Destination:   "127.0.0.1:5005",
		Label:         "/tracking/event",
	}

	server := NewWebServer(config)

	// Add some stats data
	stats.AddFrame(2)
	stats.AddSent(512)
	stats.LogStats(90.0, true)

	// Create a request to the status endpoint
	req, err := http.NewRequest("GET", "/", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Create a ResponseRecorder to record the response
	rr := httptest.NewRecorder()

	// Call the handler through the mux
	mux := server.setupRoutes()
	mux.ServeHTTP(rr, req)

	// Check the status code
	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Status handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	// Check that the response contains expected content
	body := rr.Body.String()

	if !strings.Contains(body, "Handcast Monitor") {
		t.Error("Response should contain 'Handcast Monitor'")
	}

	if !strings.Contains(body, "127.0.0.1:5005") {
		t.Error("Response should contain the send destination")
	}

	if !strings.Contains(body, "/tracking/event") {
		t.Error("Response should contain the envelope label")
	}
}

func TestWebServer_StatusHandlerNoFrames(t *testing.T) {
	stats := NewFrameStats()

	config := WebServerConfig{
		Address: ":0",
		Stats:   stats,
	}

	server := NewWebServer(config)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	mux := server.setupRoutes()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rr.Code)
	}

	// Without any logged stats the page falls back to the placeholder text.
	if !strings.Contains(rr.Body.String(), "no frames observed yet") {
		t.Error("Response should contain the no-frames placeholder")
	}
}

func TestWebServer_HealthHandler(t *testing.T) {
	stats := NewFrameStats()

	config := WebServerConfig{
		Address: ":0",
		Stats:   stats,
	}

	server := NewWebServer(config)

	// Create a request to the health endpoint
	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Create a ResponseRecorder to record the response
	rr := httptest.NewRecorder()

	// Call the handler through the mux
	mux := server.setupRoutes()
	mux.ServeHTTP(rr, req)

	// Check the status code
	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Health handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	// Check the content type
	expected := "application/json"
	if ctype := rr.Header().Get("Content-Type"); ctype != expected {
		t.Errorf("Health handler returned wrong content type: got %v want %v",
			ctype, expected)
	}

	// Check that the response contains JSON
	body := rr.Body.String()

	if !strings.Contains(body, `"status": "ok"`) {
		t.Error("Response should contain status: ok (with spaces)")
	}

	if !strings.Contains(body, `"service": "handcast"`) {
		t.Error("Response should contain service: handcast (with spaces)")
	}
}

func TestWebServer_StartStop(t *testing.T) {
	stats := NewFrameStats()

	config := WebServerConfig{
		Address: ":0", // Use port 0 to get an available port
		Stats:   stats,
	}

	server := NewWebServer(config)

	// Start server with context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		err := server.Start(ctx)
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Give the server time to start
	time.Sleep(50 * time.Millisecond)

	// Cancel the context to stop the server
	cancel()

	// Wait a bit for the server to stop
	time.Sleep(50 * time.Millisecond)

	// Check if there were any startup errors
	select {
	case err := <-errChan:
		t.Fatalf("Server start failed: %v", err)
	default:
		// No error, which is what we expect
	}
}

func TestWebServer_InvalidHTTPMethod(t *testing.T) {
	stats := NewFrameStats()

	config := WebServerConfig{
		Address: ":0",
		Stats:   stats,
	}

	server := NewWebServer(config)

	// Test POST request to status endpoint (should still work as it just shows the page)
	req, err := http.NewRequest("POST", "/", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	mux := server.setupRoutes()
	mux.ServeHTTP(rr, req)

	// Should still return OK (the handler doesn't restrict methods)
	if status := rr.Code; status != http.StatusOK {
		t.Errorf("POST to status handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}
}

func TestWebServer_RatesHandler(t *testing.T) {
	stats := NewFrameStats()
	history := NewRateHistory(16)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	history.Push(RateSample{Timestamp: base, FPS: 88.5, Hands: 1.5})
	history.Push(RateSample{Timestamp: base.Add(5 * time.Second), FPS: 90.0, Hands: 2.0})

	config := WebServerConfig{
		Address: ":0",
		Stats:   stats,
		History: history,
	}

	server := NewWebServer(config)

	req := httptest.NewRequest(http.MethodGet, "/api/tracking/rates", nil)
	rr := httptest.NewRecorder()

	server.handleRates(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rr.Code)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &rows); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rate rows, got %d", len(rows))
	}
	if rows[0]["frames_per_sec"] != 88.5 {
		t.Errorf("expected first row fps 88.5, got %v", rows[0]["frames_per_sec"])
	}
	if rows[1]["hands_per_frame"] != 2.0 {
		t.Errorf("expected second row hands 2.0, got %v", rows[1]["hands_per_frame"])
	}

	// limit=1 returns only the most recent sample
	req = httptest.NewRequest(http.MethodGet, "/api/tracking/rates?limit=1", nil)
	rr = httptest.NewRecorder()
	server.handleRates(rr, req)

	rows = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &rows); err != nil {
		t.Fatalf("failed to decode limited response: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 rate row with limit=1, got %d", len(rows))
	}
	if rows[0]["frames_per_sec"] != 90.0 {
		t.Errorf("expected most recent fps 90.0, got %v", rows[0]["frames_per_sec"])
	}
}

func TestWebServer_RatesHandlerNoHistory(t *testing.T) {
	server := NewWebServer(WebServerConfig{
		Address: ":0",
		Stats:   NewFrameStats(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/tracking/rates", nil)
	rr := httptest.NewRecorder()

	server.handleRates(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without history, got %d", rr.Code)
	}
}

func TestWebServer_RatesHandler_MethodNotAllowed(t *testing.T) {
	server := NewWebServer(WebServerConfig{
		Address: ":0",
		Stats:   NewFrameStats(),
		History: NewRateHistory(4),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/tracking/rates", nil)
	rr := httptest.NewRecorder()

	server.handleRates(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 MethodNotAllowed, got %d", rr.Code)
	}
}

func newWebTestStore(t *testing.T) *session.Store {
	t.Helper()
	store, err := session.OpenStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWebServer_SessionsHandler(t *testing.T) {
	store := newWebTestStore(t)

	sess := &session.Session{
		SessionID:   "web-test-session",
		Label:       "/tracking/event",
		Destination: "127.0.0.1:5005",
		StartedAtNs: time.Now().UnixNano(),
	}
	if err := store.BeginSession(sess); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}

	server := NewWebServer(WebServerConfig{
		Address: ":0",
		Stats:   NewFrameStats(),
		Store:   store,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/tracking/sessions", nil)
	rr := httptest.NewRecorder()

	server.handleSessions(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rr.Code)
	}

	var sessions []session.Session
	if err := json.Unmarshal(rr.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "web-test-session" {
		t.Errorf("unexpected sessions payload: %+v", sessions)
	}
}

func TestWebServer_SessionsHandlerNoStore(t *testing.T) {
	server := NewWebServer(WebServerConfig{
		Address: ":0",
		Stats:   NewFrameStats(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/tracking/sessions", nil)
	rr := httptest.NewRecorder()

	server.handleSessions(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without store, got %d", rr.Code)
	}
}

func TestWebServer_SessionHandler(t *testing.T) {
	store := newWebTestStore(t)

	sess := &session.Session{
		SessionID:   "detail-session",
		Label:       "/tracking/event",
		Destination: "127.0.0.1:5005",
		StartedAtNs: 1000,
	}
	if err := store.BeginSession(sess); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	if err := store.AddRateSample("detail-session", 2000, 88.0, 1.0); err != nil {
		t.Fatalf("failed to seed rate sample: %v", err)
	}

	server := NewWebServer(WebServerConfig{
		Address: ":0",
		Stats:   NewFrameStats(),
		Store:   store,
	})

	// Missing session_id is a bad request
	req := httptest.NewRequest(http.MethodGet, "/api/tracking/session", nil)
	rr := httptest.NewRecorder()
	server.handleSession(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session_id, got %d", rr.Code)
	}

	// Unknown session is a 404
	req = httptest.NewRequest(http.MethodGet, "/api/tracking/session?session_id=nope", nil)
	rr = httptest.NewRecorder()
	server.handleSession(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rr.Code)
	}

	// Known session returns the record plus its rate trail
	req = httptest.NewRequest(http.MethodGet, "/api/tracking/session?session_id=detail-session", nil)
	rr = httptest.NewRecorder()
	server.handleSession(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rr.Code)
	}

	var resp struct {
		Session     session.Session     `json:"session"`
		RateSamples []session.RateEntry `json:"rate_samples"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Session.SessionID != "detail-session" {
		t.Errorf("expected session detail-session, got %s", resp.Session.SessionID)
	}
	if len(resp.RateSamples) != 1 || resp.RateSamples[0].FramesPerSec != 88.0 {
		t.Errorf("unexpected rate samples: %+v", resp.RateSamples)
	}
}

func BenchmarkWebServer_StatusHandler(b *testing.B) {
	stats := NewFrameStats()

	config := WebServerConfig{
		Address:     ":0",
		Stats:       stats,
		Destination: "127.0.0.1:5005",
		Label:       "/tracking/event",
	}

	server := NewWebServer(config)

	// Add some stats data
	stats.AddFrame(2)
	stats.AddSent(512)
	stats.LogStats(90.0, true)

	// Create a request
	req, err := http.NewRequest("GET", "/", nil)
	if err != nil {
		b.Fatal(err)
	}

	mux := server.setupRoutes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
	}
}

func BenchmarkWebServer_HealthHandler(b *testing.B) {
	stats := NewFrameStats()

	config := WebServerConfig{
		Address: ":0",
		Stats:   stats,
	}

	server := NewWebServer(config)

	// Create a request
	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		b.Fatal(err)
	}

	mux := server.setupRoutes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
	}
}
