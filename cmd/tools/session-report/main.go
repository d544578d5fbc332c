// Command session-report renders charts for a recorded session.
//
// It reads the session catalogue, picks a session (the most recent by
// default), and writes two artefacts: an interactive HTML report
// (echarts) and a PNG of the frame rate (gonum/plot) that drops
// straight into a document. Output stays inside the working directory
// or the system temp directory.
//
// Usage:
//
//	go run ./cmd/tools/session-report [flags]
//
// Flags:
//
//	-db       Session catalogue path (default: handcast.db)
//	-session  Session id to report on (default: the most recent)
//	-out      Output directory (default: current directory)
//	-list     List recent sessions and exit
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/handcast-data/handcast/internal/security"
	"github.com/handcast-data/handcast/internal/session"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

func main() {
	dbFile := flag.String("db", "handcast.db", "session catalogue path")
	sessionID := flag.String("session", "", "session id to report on (default: the most recent)")
	outDir := flag.String("out", ".", "output directory for the report files")
	list := flag.Bool("list", false, "list recent sessions and exit")
	flag.Parse()

	if _, err := os.Stat(*dbFile); err != nil {
		log.Fatalf("Cannot open session catalogue: %v", err)
	}
	store, err := session.OpenStore(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open session catalogue: %v", err)
	}
	defer store.Close()

	if *list {
		listSessions(store)
		return
	}

	sess, err := resolveSession(store, *sessionID)
	if err != nil {
		log.Fatalf("%v", err)
	}

	samples, err := store.RateSamples(sess.SessionID, 0)
	if err != nil {
		log.Fatalf("Failed to load rate samples: %v", err)
	}
	if len(samples) == 0 {
		log.Fatalf("Session %s has no rate samples; was the daemon started with a database?", sess.SessionID)
	}

	base := reportBasename(sess)
	htmlPath := filepath.Join(*outDir, base+".html")
	pngPath := filepath.Join(*outDir, base+".png")
	for _, p := range []string{htmlPath, pngPath} {
		if err := security.ValidateExportPath(p); err != nil {
			log.Fatalf("Refusing output path: %v", err)
		}
	}

	if err := writeHTMLReport(htmlPath, sess, samples); err != nil {
		log.Fatalf("Failed to write HTML report: %v", err)
	}
	if err := writeRatePNG(pngPath, sess, samples); err != nil {
		log.Fatalf("Failed to write rate plot: %v", err)
	}

	printSummary(sess, samples, htmlPath, pngPath)
}

// resolveSession looks up the requested session, falling back to the
// most recently started one.
func resolveSession(store *session.Store, id string) (*session.Session, error) {
	if id != "" {
		return store.GetSession(id)
	}
	recent, err := store.RecentSessions(1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, fmt.Errorf("the catalogue has no sessions yet")
	}
	return recent[0], nil
}

func listSessions(store *session.Store) {
	sessions, err := store.RecentSessions(20)
	if err != nil {
		log.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded yet")
		return
	}
	fmt.Printf("%-36s  %-20s  %-19s  %10s  %8s\n", "SESSION", "LABEL", "STARTED", "DURATION", "FRAMES")
	for _, s := range sessions {
		fmt.Printf("%-36s  %-20s  %-19s  %10s  %8d\n",
			s.SessionID, truncate(s.Label, 20),
			time.Unix(0, s.StartedAtNs).Format("2006-01-02 15:04:05"),
			sessionDuration(s), s.Frames)
	}
}

// reportBasename builds a filesystem-safe stem for the output files
// from the label when present, otherwise the session id.
func reportBasename(sess *session.Session) string {
	stem := sess.Label
	if stem == "" {
		stem = sess.SessionID
	}
	return "session-" + security.SanitizeFilename(stem)
}

// sessionDuration renders the wall time a session ran, or "live" when
// it has not ended.
func sessionDuration(s *session.Session) string {
	if s.EndedAtNs == nil {
		return "live"
	}
	return time.Duration(*s.EndedAtNs - s.StartedAtNs).Round(time.Second).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// writeHTMLReport renders the echarts page: frame rate and hands per
// frame over the whole session on one axis.
func writeHTMLReport(path string, sess *session.Session, samples []session.RateEntry) error {
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
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session Report", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Session %s", shortID(sess.SessionID)),
			Subtitle: fmt.Sprintf("label=%q destination=%s frames=%d", sess.Label, sess.Destination, sess.Frames),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "frames/sec"}),
	)
	line.SetXAxis(x).
		AddSeries("frames/sec", fps).
		AddSeries("hands/frame", hands)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(line)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

// writeRatePNG draws the frame rate as a single line, seconds from
// session start on X.
func writeRatePNG(path string, sess *session.Session, samples []session.RateEntry) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s frame rate", shortID(sess.SessionID))
	p.X.Label.Text = "Seconds from start"
	p.Y.Label.Text = "Frames/sec"

	pts := make(plotter.XYs, 0, len(samples))
	start := samples[0].SampledAtNs
	for _, s := range samples {
		pts = append(pts, plotter.XY{
			X: float64(s.SampledAtNs-start) / 1e9,
			Y: s.FramesPerSec,
		})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 64, G: 128, B: 255, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("frames/sec", line)
	p.Legend.Top = true

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}

// printSummary reports the headline numbers once the files are
// written.
func printSummary(sess *session.Session, samples []session.RateEntry, htmlPath, pngPath string) {
	rates := make([]float64, len(samples))
	for i, s := range samples {
		rates[i] = s.FramesPerSec
	}
	mean := stat.Mean(rates, nil)

	fmt.Println("\n=== Session Report ===")
	fmt.Printf("Session:   %s\n", sess.SessionID)
	fmt.Printf("Label:     %q\n", sess.Label)
	fmt.Printf("Started:   %s\n", time.Unix(0, sess.StartedAtNs).Format(time.RFC3339))
	fmt.Printf("Duration:  %s\n", sessionDuration(sess))
	fmt.Printf("Frames:    %d\n", sess.Frames)
	if len(rates) > 1 {
		fmt.Printf("Rate:      %.1f fps (sd %.1f) over %d samples\n", mean, stat.StdDev(rates, nil), len(rates))
	} else {
		fmt.Printf("Rate:      %.1f fps over %d sample\n", mean, len(rates))
	}
	fmt.Printf("Report:    %s\n", htmlPath)
	fmt.Printf("Rate plot: %s\n", pngPath)
}
