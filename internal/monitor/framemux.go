package monitor

import (
	"bytes"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sync"

	"tailscale.com/tsweb"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var liveTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/live.html.tmpl"))

// FrameMux fans encoded tracking frames out to any number of live debug
// subscribers. Publishing never blocks the tracking path: a subscriber that
// cannot keep up simply misses frames.
type FrameMux struct {
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewFrameMux creates an empty FrameMux.
func NewFrameMux() *FrameMux {
	return &FrameMux{
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving frame payloads. The returned
// ID identifies the channel when unsubscribing.
func (m *FrameMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (m *FrameMux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Active reports whether anyone is currently subscribed. Callers can use it
// to skip building payloads nobody will see.
func (m *FrameMux) Active() bool {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	return len(m.subscribers) > 0
}

// Publish delivers a payload to every subscriber that is ready to receive it.
func (m *FrameMux) Publish(payload string) {
	m.closingMu.Lock()
	if m.closing {
		m.closingMu.Unlock()
		return
	}
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	for _, ch := range m.subscribers {
		select {
		case ch <- payload:
		default:
			// if the channel is full/blocking skip so as not to block the publisher
		}
	}
	m.subscriberMu.Unlock()
}

// Close closes all subscribed channels. Further publishes become no-ops.
func (m *FrameMux) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return nil
}

// AttachAdminRoutes attaches live-tail debugging endpoints to the given HTTP
// mux served at /debug/. These routes are accessible only over
// localhost/via Tailscale and are not publicly accessible.
func (m *FrameMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Live monitor page backed by the SSE endpoint below.
	debug.HandleFunc("live", "watch tracking frames as they stream", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := liveTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to issue Server-Side Events (SSE) for frames moving through the mux.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				_, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload)))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		// serve tail.js from adminTemplateFS
		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
