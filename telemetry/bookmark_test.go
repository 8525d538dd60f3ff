package telemetry

import "testing"

func hasBookmark(bms []Bookmark, typ BookmarkType) bool {
	for _, bm := range bms {
		if bm.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_FailureSpike(t *testing.T) {
	bd := NewBookmarkDetector(10)

	// Steady 5% failures
	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{
			WindowEndTick: int64(i * 300),
			Paths:         100,
			Failed:        5,
			FailureRatio:  0.05,
		})
	}

	spike := WindowStats{WindowEndTick: 1500, Paths: 100, Failed: 30, FailureRatio: 0.3}
	if !hasBookmark(bd.Check(spike), BookmarkFailureSpike) {
		t.Error("expected failure_spike bookmark")
	}

	// Few failures never trigger, whatever the ratio.
	small := WindowStats{WindowEndTick: 1800, Paths: 4, Failed: 4, FailureRatio: 1}
	if hasBookmark(bd.Check(small), BookmarkFailureSpike) {
		t.Error("failure_spike for a window with 4 failures")
	}
}

func TestBookmarkDetector_FailureSpikeFromClean(t *testing.T) {
	bd := NewBookmarkDetector(10)
	bd.Check(WindowStats{Paths: 50})
	bd.Check(WindowStats{Paths: 50})

	if hasBookmark(bd.Check(WindowStats{Paths: 50, Failed: 6, FailureRatio: 0.12}), BookmarkFailureSpike) {
		t.Error("failure_spike below the clean-history threshold")
	}
	if !hasBookmark(bd.Check(WindowStats{Paths: 40, Failed: 20, FailureRatio: 0.5}), BookmarkFailureSpike) {
		t.Error("expected failure_spike")
	}
}

func TestBookmarkDetector_LatencySpike(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 3; i++ {
		bd.Check(WindowStats{Batches: 4, LatencyMeanMS: 2, LatencyP95MS: 3})
	}

	if hasBookmark(bd.Check(WindowStats{Batches: 4, LatencyMeanMS: 3, LatencyP95MS: 5}), BookmarkLatencySpike) {
		t.Error("latency_spike for p95 under 3x the mean")
	}
	if !hasBookmark(bd.Check(WindowStats{Batches: 2, LatencyMeanMS: 5, LatencyP95MS: 9}), BookmarkLatencySpike) {
		t.Error("expected latency_spike")
	}
}

func TestBookmarkDetector_StallFiresOnce(t *testing.T) {
	bd := NewBookmarkDetector(10)

	fired := 0
	for i := 0; i < 6; i++ {
		bms := bd.Check(WindowStats{WindowEndTick: int64(i), Agents: 20, Moving: 20})
		if hasBookmark(bms, BookmarkStall) {
			fired++
			if i != stallWindows-1 {
				t.Errorf("stall fired at window %d, want %d", i, stallWindows-1)
			}
		}
	}
	if fired != 1 {
		t.Errorf("stall fired %d times, want 1", fired)
	}

	// Progress resets the count.
	bd.Check(WindowStats{Agents: 20, Moving: 20, Arrivals: 1})
	for i := 0; i < stallWindows-1; i++ {
		if hasBookmark(bd.Check(WindowStats{Agents: 20, Moving: 20}), BookmarkStall) {
			t.Fatal("stall fired before the window count was reached again")
		}
	}
}

func TestBookmarkDetector_Settled(t *testing.T) {
	bd := NewBookmarkDetector(10)

	steps := []struct {
		moving int
		want   bool
	}{
		{0, false}, // Never moved
		{12, false},
		{3, false},
		{0, true},
		{0, false},
	}
	for i, s := range steps {
		got := hasBookmark(bd.Check(WindowStats{Agents: 12, Moving: s.moving, Arrivals: 1}), BookmarkSettled)
		if got != s.want {
			t.Errorf("window %d (moving %d): settled = %v, want %v", i, s.moving, got, s.want)
		}
	}
}
