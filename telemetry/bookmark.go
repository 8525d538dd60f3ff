package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkFailureSpike BookmarkType = "failure_spike"
	BookmarkLatencySpike BookmarkType = "latency_spike"
	BookmarkStall        BookmarkType = "stall"
	BookmarkSettled      BookmarkType = "settled"
)

// stallWindows is how many windows without progress count as a stall.
const stallWindows = 3

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType
	Tick        int64
	Description string
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector flags notable stats windows: path failure and latency
// spikes, crowds that stop making progress, and the moment everyone settles.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	stalledWindows int // Consecutive windows with movers but no progress
	wasMoving      bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		if b := bd.checkFailureSpike(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkLatencySpike(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}
	if b := bd.checkStall(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkSettled(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// checkFailureSpike fires when the failure ratio doubles the rolling
// average, or reaches a quarter of all paths after a failure-free history.
func (bd *BookmarkDetector) checkFailureSpike(stats WindowStats) *Bookmark {
	if stats.Failed < 5 {
		return nil
	}

	var failed, paths int
	for _, h := range bd.getHistory() {
		failed += h.Failed
		paths += h.Paths
	}
	avg := ratio(float64(failed), float64(paths))

	spike := stats.FailureRatio > avg*2
	if avg == 0 {
		spike = stats.FailureRatio >= 0.25
	}
	if !spike {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkFailureSpike,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("%d of %d paths failed (ratio %.2f, average %.2f)", stats.Failed, stats.Paths, stats.FailureRatio, avg),
	}
}

// checkLatencySpike fires when p95 batch latency exceeds three times the
// rolling mean latency.
func (bd *BookmarkDetector) checkLatencySpike(stats WindowStats) *Bookmark {
	if stats.Batches == 0 {
		return nil
	}
	var sum float64
	n := 0
	for _, h := range bd.getHistory() {
		if h.Batches > 0 {
			sum += h.LatencyMeanMS
			n++
		}
	}
	if n < 2 {
		return nil
	}
	avg := sum / float64(n)
	if avg <= 0 || stats.LatencyP95MS <= avg*3 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkLatencySpike,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Batch latency p95 %.2fms is %.1fx average (%.2fms)", stats.LatencyP95MS, stats.LatencyP95MS/avg, avg),
	}
}

// checkStall fires once when agents have been moving for stallWindows
// windows with no arrivals and no new paths.
func (bd *BookmarkDetector) checkStall(stats WindowStats) *Bookmark {
	if stats.Moving == 0 || stats.Arrivals > 0 || stats.Paths > 0 {
		bd.stalledWindows = 0
		return nil
	}
	bd.stalledWindows++
	if bd.stalledWindows != stallWindows {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkStall,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("%d agents moving without progress for %d windows", stats.Moving, stallWindows),
	}
}

// checkSettled fires when the last moving agent stops.
func (bd *BookmarkDetector) checkSettled(stats WindowStats) *Bookmark {
	moving := stats.Moving > 0
	defer func() { bd.wasMoving = moving }()
	if !bd.wasMoving || moving {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkSettled,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("All %d agents settled", stats.Agents),
	}
}
