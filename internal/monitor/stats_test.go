package monitor

import (
	"sync"
	"testing"
	"time"
)

func TestNewFrameStats(t *testing.T) {
	stats := NewFrameStats()

	if stats == nil {
		t.Fatal("NewFrameStats returned nil")
	}

	// Check that uptime is recent
	uptime := stats.GetUptime()
	if uptime > 100*time.Millisecond {
		t.Errorf("Uptime too large for new stats: %v", uptime)
	}
}

func TestFrameStats_AddFrame(t *testing.T) {
	stats := NewFrameStats()

	stats.AddFrame(2)
	stats.AddFrame(1)
	stats.AddFrame(0)

	totals := stats.GetAndReset()

	if totals.Frames != 3 {
		t.Errorf("Expected 3 frames, got %d", totals.Frames)
	}

	if totals.Hands != 3 {
		t.Errorf("Expected 3 hands, got %d", totals.Hands)
	}

	if totals.Duration <= 0 {
		t.Errorf("Expected positive duration, got %v", totals.Duration)
	}
}

func TestFrameStats_Counters(t *testing.T) {
	stats := NewFrameStats()

	stats.AddSent(512)
	stats.AddSent(256)
	stats.AddSendDropped()
	stats.AddEncodeError()
	stats.AddMapSkips(3)
	stats.AddRecordDropped()
	stats.AddRecordDropped()

	totals := stats.GetAndReset()

	if totals.Sends != 2 {
		t.Errorf("Expected 2 sends, got %d", totals.Sends)
	}
	if totals.Bytes != 768 {
		t.Errorf("Expected 768 bytes, got %d", totals.Bytes)
	}
	if totals.SendDropped != 1 {
		t.Errorf("Expected 1 dropped send, got %d", totals.SendDropped)
	}
	if totals.EncodeErrors != 1 {
		t.Errorf("Expected 1 encode error, got %d", totals.EncodeErrors)
	}
	if totals.MapSkips != 3 {
		t.Errorf("Expected 3 map skips, got %d", totals.MapSkips)
	}
	if totals.RecordDropped != 2 {
		t.Errorf("Expected 2 record drops, got %d", totals.RecordDropped)
	}
}

func TestFrameStats_TotalFramesSurvivesReset(t *testing.T) {
	stats := NewFrameStats()

	stats.AddFrame(1)
	stats.AddFrame(2)
	stats.GetAndReset()
	stats.AddFrame(0)

	if got := stats.TotalFrames(); got != 3 {
		t.Errorf("Expected 3 total frames, got %d", got)
	}
}

func TestFrameStats_GetAndReset(t *testing.T) {
	stats := NewFrameStats()

	stats.AddFrame(2)
	stats.AddSent(100)
	stats.AddSendDropped()

	first := stats.GetAndReset()
	if first.Frames != 1 || first.Sends != 1 || first.Bytes != 100 || first.SendDropped != 1 {
		t.Errorf("First GetAndReset: got %+v", first)
	}

	// Second call should return zeros
	second := stats.GetAndReset()
	if second.Frames != 0 || second.Hands != 0 || second.Sends != 0 || second.Bytes != 0 || second.SendDropped != 0 {
		t.Errorf("Second GetAndReset: expected zero counters, got %+v", second)
	}

	if second.Duration <= 0 {
		t.Errorf("Expected positive duration even after reset, got %v", second.Duration)
	}
}

func TestFrameStats_LogStats(t *testing.T) {
	stats := NewFrameStats()

	stats.AddFrame(2)
	stats.AddFrame(2)
	stats.AddSent(640)

	stats.LogStats(88.5, true)

	snapshot := stats.GetLatestSnapshot()
	if snapshot == nil {
		t.Fatal("Expected snapshot after LogStats, got nil")
	}

	if !snapshot.RateKnown {
		t.Error("Expected RateKnown to be true")
	}

	if snapshot.MeanFPS != 88.5 {
		t.Errorf("Expected MeanFPS 88.5, got %f", snapshot.MeanFPS)
	}

	if snapshot.FramesPerSec <= 0 {
		t.Errorf("Expected positive frames per sec, got %f", snapshot.FramesPerSec)
	}

	if snapshot.HandsPerFrame != 2 {
		t.Errorf("Expected 2 hands per frame, got %f", snapshot.HandsPerFrame)
	}

	if snapshot.KBPerSec <= 0 {
		t.Errorf("Expected positive KB per sec, got %f", snapshot.KBPerSec)
	}
}

func TestFrameStats_LogStatsQuietWhenIdle(t *testing.T) {
	stats := NewFrameStats()

	// No frames and no drops means no snapshot is stored.
	stats.LogStats(0, false)

	if snapshot := stats.GetLatestSnapshot(); snapshot != nil {
		t.Errorf("Expected no snapshot for an idle interval, got %+v", snapshot)
	}
}

func TestFrameStats_GetLatestSnapshot(t *testing.T) {
	stats := NewFrameStats()

	// Initially should return nil
	if snapshot := stats.GetLatestSnapshot(); snapshot != nil {
		t.Error("Expected nil snapshot initially, got non-nil")
	}

	stats.AddFrame(1)
	stats.LogStats(0, false)

	snapshot := stats.GetLatestSnapshot()
	if snapshot == nil {
		t.Fatal("Expected snapshot after LogStats, got nil")
	}

	if snapshot.RateKnown {
		t.Error("Expected RateKnown to be false")
	}

	// The returned snapshot is a copy; mutating it must not affect the stored one.
	snapshot.FramesPerSec = -1
	if again := stats.GetLatestSnapshot(); again.FramesPerSec == -1 {
		t.Error("GetLatestSnapshot should return a copy")
	}
}

func TestFrameStats_ThreadSafety(t *testing.T) {
	stats := NewFrameStats()

	var wg sync.WaitGroup
	numGoroutines := 50
	incrementsPerGoroutine := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < incrementsPerGoroutine; j++ {
				stats.AddFrame(2)
				stats.AddSent(100)
				stats.AddSendDropped()

				// Also test reads during writes
				_ = stats.GetUptime()
				_ = stats.GetLatestSnapshot()
			}
		}()
	}

	wg.Wait()

	totals := stats.GetAndReset()

	expected := int64(numGoroutines * incrementsPerGoroutine)

	if totals.Frames != expected {
		t.Errorf("Expected frames %d, got %d", expected, totals.Frames)
	}
	if totals.Hands != expected*2 {
		t.Errorf("Expected hands %d, got %d", expected*2, totals.Hands)
	}
	if totals.Sends != expected {
		t.Errorf("Expected sends %d, got %d", expected, totals.Sends)
	}
	if totals.Bytes != expected*100 {
		t.Errorf("Expected bytes %d, got %d", expected*100, totals.Bytes)
	}
	if totals.SendDropped != expected {
		t.Errorf("Expected dropped %d, got %d", expected, totals.SendDropped)
	}
}

func TestFormatWithCommas(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0"},
		{123, "123"},
		{1234, "1,234"},
		{12345, "12,345"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{12345678, "12,345,678"},
	}

	for _, test := range tests {
		result := FormatWithCommas(test.input)
		if result != test.expected {
			t.Errorf("FormatWithCommas(%d): expected %s, got %s",
				test.input, test.expected, result)
		}
	}
}

func BenchmarkFrameStats_AddFrame(b *testing.B) {
	stats := NewFrameStats()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			stats.AddFrame(2)
		}
	})
}
