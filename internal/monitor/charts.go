package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/handcast-data/handcast/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleRateChart renders a line chart (HTML) of the in-memory rate trail
// using go-echarts.
// Query params:
//
//	limit (optional, default all held samples)
func (ws *WebServer) handleRateChart(w http.ResponseWriter, r *http.Request) {
	if ws.history == nil {
		httputil.InternalServerError(w, "no rate history configured")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	samples := ws.history.Recent(limit)
	x := make([]string, 0, len(samples))
	fps := make([]opts.LineData, 0, len(samples))
	hands := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		x = append(x, s.Timestamp.Format("15:04:05"))
		fps = append(fps, opts.LineData{Value: s.FPS})
		hands = append(hands, opts.LineData{Value: s.Hands})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracking Rate", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Tracking Rate", Subtitle: fmt.Sprintf("samples=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "frames/sec"}),
	)
	line.SetXAxis(x).
		AddSeries("frames/sec", fps).
		AddSeries("hands/frame", hands)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleSessionsChart renders a bar chart (HTML) of frames recorded per
// recent session.
// Query params:
//
//	limit (optional, default 10)
func (ws *WebServer) handleSessionsChart(w http.ResponseWriter, r *http.Request) {
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

	x := make([]string, 0, len(sessions))
	y := make([]opts.BarData, 0, len(sessions))
	for _, sess := range sessions {
		name := sess.SessionID
		if len(name) > 8 {
			name = name[:8]
		}
		x = append(x, name)
		y = append(y, opts.BarData{Value: sess.Frames})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Recorded Sessions", Theme: "dark", Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Frames per Session", Subtitle: time.Now().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("frames", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleSessionChart renders a line chart (HTML) of the stored rate trail
// for one session.
// Query params:
//
//	session_id (required)
func (ws *WebServer) handleSessionChart(w http.ResponseWriter, r *http.Request) {
	if ws.store == nil {
		httputil.InternalServerError(w, "no database configured for session lookup")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		httputil.BadRequest(w, "missing 'session_id' parameter")
		return
	}

	samples, err := ws.store.RateSamples(sessionID, 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("get rate samples: %v", err))
		return
	}

	x := make([]string, 0, len(samples))
	fps := make([]opts.LineData, 0, len(samples))
	hands := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		x = append(x, time.Unix(0, s.SampledAtNs).Format("15:04:05"))
		fps = append(fps, opts.LineData{Value: s.FramesPerSec})
		hands = append(hands, opts.LineData{Value: s.HandsPerFrame})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session Rate", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Session Rate", Subtitle: fmt.Sprintf("session=%s samples=%d", sessionID, len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "frames/sec"}),
	)
	line.SetXAxis(x).
		AddSeries("frames/sec", fps).
		AddSeries("hands/frame", hands)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
