// Command pcap-analyse digests a packet capture of the tracking
// stream.
//
// It pulls every UDP payload on the tracking port out of a capture
// file, decodes the frames, and reports per-second rates, hand
// presence and delivery gaps, mirroring what fov-check and track-dump
// measure live. Build with -tags pcap; without the tag the binary only
// explains how to get the real one.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/handcast-data/handcast/internal/wire"
)

// Config holds the capture analysis inputs.
type Config struct {
	PCAPFile   string
	UDPPort    int
	GapOver    time.Duration
	OutputJSON string
	Verbose    bool
}

// AnalysisResult is the digest of one capture.
type AnalysisResult struct {
	PCAPFile         string       `json:"pcap_file"`
	Packets          int          `json:"packets"`
	Decoded          int          `json:"decoded"`
	BadPackets       int          `json:"bad_packets"`
	StartTime        string       `json:"start_time,omitempty"`
	EndTime          string       `json:"end_time,omitempty"`
	DurationSecs     float64      `json:"duration_secs"`
	MeanRate         float64      `json:"mean_rate_fps"`
	MinRate          int          `json:"min_rate_fps"`
	MaxRate          int          `json:"max_rate_fps"`
	FramesNoHands    int          `json:"frames_no_hands"`
	FramesOneHand    int          `json:"frames_one_hand"`
	FramesTwoHands   int          `json:"frames_two_hands"`
	MeanPalmHeightMm float64      `json:"mean_palm_height_mm"`
	DroppedFrameIDs  int64        `json:"dropped_frame_ids"`
	LargestIDGap     int64        `json:"largest_id_gap"`
	ArrivalGaps      int          `json:"arrival_gaps"`
	LargestGapSecs   float64      `json:"largest_gap_secs"`
	PerSecond        []SecondRate `json:"per_second,omitempty"`
}

// SecondRate is one per-second bucket of the capture.
type SecondRate struct {
	Second int64   `json:"second_unix"`
	Frames int     `json:"frames"`
	Hands  float64 `json:"hands_per_frame"`
}

type secondBucket struct {
	frames int
	hands  int
}

// analyzer accumulates decoded capture traffic.
type analyzer struct {
	gapOver time.Duration

	packets int
	decoded int
	bad     int

	firstTs time.Time
	lastTs  time.Time

	buckets map[int64]*secondBucket

	handHistogram [3]int
	heightSum     float64
	heightN       int64

	prevFrameID int64
	droppedIDs  int64
	largestGap  int64

	arrivalGaps   int
	largestGapDur time.Duration
}

func newAnalyzer(gapOver time.Duration) *analyzer {
	if gapOver <= 0 {
		gapOver = 250 * time.Millisecond
	}
	return &analyzer{
		gapOver:     gapOver,
		buckets:     make(map[int64]*secondBucket),
		prevFrameID: -1,
	}
}

// addPacket consumes one captured payload with its capture timestamp.
// Undecodable payloads are counted and the error reported back to the
// reader.
func (a *analyzer) addPacket(ts time.Time, payload []byte) error {
	a.packets++
	_, frame, err := wire.Decode(payload)
	if err != nil {
		a.bad++
		return err
	}
	a.decoded++

	if a.firstTs.IsZero() {
		a.firstTs = ts
	} else if gap := ts.Sub(a.lastTs); gap > a.gapOver {
		a.arrivalGaps++
		if gap > a.largestGapDur {
			a.largestGapDur = gap
		}
	}
	a.lastTs = ts

	b := a.buckets[ts.Unix()]
	if b == nil {
		b = &secondBucket{}
		a.buckets[ts.Unix()] = b
	}
	b.frames++
	b.hands += len(frame.Hands)

	hands := len(frame.Hands)
	if hands > 2 {
		hands = 2
	}
	a.handHistogram[hands]++
	for _, h := range frame.Hands {
		a.heightSum += h.PalmPosition.Y
		a.heightN++
	}

	if a.prevFrameID >= 0 && frame.FrameID > a.prevFrameID+1 {
		gap := frame.FrameID - a.prevFrameID - 1
		a.droppedIDs += gap
		if gap > a.largestGap {
			a.largestGap = gap
		}
	}
	a.prevFrameID = frame.FrameID

	return nil
}

// result reduces the accumulated counters to the export form.
func (a *analyzer) result(pcapFile string, includePerSecond bool) *AnalysisResult {
	r := &AnalysisResult{
		PCAPFile:        pcapFile,
		Packets:         a.packets,
		Decoded:         a.decoded,
		BadPackets:      a.bad,
		FramesNoHands:   a.handHistogram[0],
		FramesOneHand:   a.handHistogram[1],
		FramesTwoHands:  a.handHistogram[2],
		DroppedFrameIDs: a.droppedIDs,
		LargestIDGap:    a.largestGap,
		ArrivalGaps:     a.arrivalGaps,
		LargestGapSecs:  a.largestGapDur.Seconds(),
	}
	if a.heightN > 0 {
		r.MeanPalmHeightMm = a.heightSum / float64(a.heightN)
	}
	if !a.firstTs.IsZero() {
		r.StartTime = a.firstTs.UTC().Format(time.RFC3339)
		r.EndTime = a.lastTs.UTC().Format(time.RFC3339)
		r.DurationSecs = a.lastTs.Sub(a.firstTs).Seconds()
	}

	if len(a.buckets) == 0 {
		return r
	}

	seconds := make([]int64, 0, len(a.buckets))
	for s := range a.buckets {
		seconds = append(seconds, s)
	}
	sort.Slice(seconds, func(i, j int) bool { return seconds[i] < seconds[j] })

	// The first and last buckets usually cover partial seconds; keep
	// them out of the rate figures when the capture has an interior.
	statsSeconds := seconds
	if len(statsSeconds) > 2 {
		statsSeconds = statsSeconds[1 : len(statsSeconds)-1]
	}

	rates := make([]float64, 0, len(statsSeconds))
	for i, sec := range statsSeconds {
		frames := a.buckets[sec].frames
		rates = append(rates, float64(frames))
		if i == 0 || frames < r.MinRate {
			r.MinRate = frames
		}
		if frames > r.MaxRate {
			r.MaxRate = frames
		}
	}
	r.MeanRate = stat.Mean(rates, nil)

	if includePerSecond {
		for _, sec := range seconds {
			b := a.buckets[sec]
			hp := 0.0
			if b.frames > 0 {
				hp = float64(b.hands) / float64(b.frames)
			}
			r.PerSecond = append(r.PerSecond, SecondRate{Second: sec, Frames: b.frames, Hands: hp})
		}
	}

	return r
}

func printResults(r *AnalysisResult) {
	fmt.Println("\n=== Tracking Capture Analysis ===")
	fmt.Printf("Capture:        %s\n", r.PCAPFile)
	fmt.Printf("Packets:        %d (%d decoded, %d bad)\n", r.Packets, r.Decoded, r.BadPackets)
	if r.Decoded == 0 {
		fmt.Println("No tracking frames decoded; wrong port, or not a bridge capture?")
		return
	}
	fmt.Printf("Window:         %.1fs (%s .. %s)\n", r.DurationSecs, r.StartTime, r.EndTime)
	fmt.Printf("Frame rate:     mean %.1f/s  min %d/s  max %d/s\n", r.MeanRate, r.MinRate, r.MaxRate)
	total := r.FramesNoHands + r.FramesOneHand + r.FramesTwoHands
	fmt.Printf("Hand presence:  none %.1f%%  one %.1f%%  two %.1f%%\n",
		pct(r.FramesNoHands, total), pct(r.FramesOneHand, total), pct(r.FramesTwoHands, total))
	if r.MeanPalmHeightMm != 0 {
		fmt.Printf("Palm height:    mean %.1fmm\n", r.MeanPalmHeightMm)
	}
	fmt.Printf("Frame id drops: %d (largest run %d)\n", r.DroppedFrameIDs, r.LargestIDGap)
	fmt.Printf("Arrival gaps:   %d over threshold (largest %.2fs)\n", r.ArrivalGaps, r.LargestGapSecs)
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

func exportJSON(result *AnalysisResult, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
