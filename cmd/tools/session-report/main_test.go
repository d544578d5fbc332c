package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/handcast-data/handcast/internal/session"
)

func TestReportBasename(t *testing.T) {
	tests := []struct {
		name string
		sess session.Session
		want string
	}{
		{
			name: "label wins",
			sess: session.Session{SessionID: "3d9c2a1e-0000-0000-0000-000000000000", Label: "left hand drill"},
			want: "session-left_hand_drill",
		},
		{
			name: "session id fallback",
			sess: session.Session{SessionID: "3d9c2a1e-0f0f-4b4b-8a8a-111122223333"},
			want: "session-3d9c2a1e-0f0f-4b4b-8a8a-111122223333",
		},
		{
			name: "hostile label",
			sess: session.Session{SessionID: "x", Label: "../../etc/passwd"},
			want: "session-etc_passwd",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := reportBasename(&tc.sess); got != tc.want {
				t.Errorf("reportBasename = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSessionDuration(t *testing.T) {
	start := time.Now().UnixNano()
	end := start + int64(95*time.Second)

	live := &session.Session{StartedAtNs: start}
	if got := sessionDuration(live); got != "live" {
		t.Errorf("sessionDuration(live) = %q, want live", got)
	}

	done := &session.Session{StartedAtNs: start, EndedAtNs: &end}
	if got := sessionDuration(done); got != "1m35s" {
		t.Errorf("sessionDuration(done) = %q, want 1m35s", got)
	}
}

func TestResolveSession(t *testing.T) {
	store, err := session.OpenStore(filepath.Join(t.TempDir(), "report_test.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	older := &session.Session{Label: "warmup", StartedAtNs: time.Now().Add(-time.Hour).UnixNano()}
	newer := &session.Session{Label: "main run", StartedAtNs: time.Now().UnixNano()}
	if err := store.BeginSession(older); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if err := store.BeginSession(newer); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}

	got, err := resolveSession(store, "")
	if err != nil {
		t.Fatalf("resolveSession(latest): %v", err)
	}
	if got.SessionID != newer.SessionID {
		t.Errorf("latest session = %s, want %s", got.SessionID, newer.SessionID)
	}

	got, err = resolveSession(store, older.SessionID)
	if err != nil {
		t.Fatalf("resolveSession(explicit): %v", err)
	}
	if got.Label != "warmup" {
		t.Errorf("explicit session label = %q, want warmup", got.Label)
	}

	if _, err := resolveSession(store, "no-such-session"); err == nil {
		t.Error("resolveSession accepted an unknown id")
	}
}

func TestResolveSessionEmptyCatalogue(t *testing.T) {
	store, err := session.OpenStore(filepath.Join(t.TempDir(), "empty_test.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	if _, err := resolveSession(store, ""); err == nil {
		t.Error("resolveSession found a session in an empty catalogue")
	}
}

func TestWriteReportFiles(t *testing.T) {
	dir := t.TempDir()
	end := time.Now().UnixNano()
	start := end - int64(30*time.Second)
	sess := &session.Session{
		SessionID:   "3d9c2a1e-0f0f-4b4b-8a8a-111122223333",
		Label:       "report test",
		Destination: "127.0.0.1:5005",
		StartedAtNs: start,
		EndedAtNs:   &end,
		Frames:      2700,
	}

	samples := make([]session.RateEntry, 0, 4)
	for i := 0; i < 4; i++ {
		samples = append(samples, session.RateEntry{
			SessionID:     sess.SessionID,
			SampledAtNs:   start + int64(i)*int64(10*time.Second),
			FramesPerSec:  89 + float64(i),
			HandsPerFrame: 1.2,
		})
	}

	htmlPath := filepath.Join(dir, "report.html")
	if err := writeHTMLReport(htmlPath, sess, samples); err != nil {
		t.Fatalf("writeHTMLReport: %v", err)
	}
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(html) == 0 {
		t.Fatal("HTML report is empty")
	}
	for _, want := range []string{"frames/sec", "hands/frame"} {
		if !strings.Contains(string(html), want) {
			t.Errorf("HTML report missing series %q", want)
		}
	}

	pngPath := filepath.Join(dir, "report.png")
	if err := writeRatePNG(pngPath, sess, samples); err != nil {
		t.Fatalf("writeRatePNG: %v", err)
	}
	info, err := os.Stat(pngPath)
	if err != nil {
		t.Fatalf("stat plot: %v", err)
	}
	if info.Size() == 0 {
		t.Error("rate plot is empty")
	}

	if err := writeRatePNG(filepath.Join(dir, "empty.png"), sess, nil); err == nil {
		t.Error("writeRatePNG accepted an empty sample set")
	}
}
