package game

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pthm-cable/legion/components"
)

// logWriter is the destination for log output.
var logWriter io.Writer

// SetLogWriter sets the log output destination.
func SetLogWriter(w io.Writer) {
	logWriter = w
}

// Logf writes a formatted log message.
func Logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if logWriter != nil {
		fmt.Fprintln(logWriter, msg)
	} else {
		fmt.Println(msg)
	}
}

// LogPerfStats logs the per-phase timing breakdown, slowest first.
func (s *Simulation) LogPerfStats() {
	stats := s.perf.Stats()
	Logf("=== Perf @ Tick %d | %.0f ticks/s ===", s.tick, stats.TicksPerSecond)
	Logf("Avg step time: %s (min %s, max %s)",
		stats.AvgTickDuration.Round(time.Microsecond),
		stats.MinTickDuration.Round(time.Microsecond),
		stats.MaxTickDuration.Round(time.Microsecond))

	names := make([]string, 0, len(stats.PhaseAvg))
	for name := range stats.PhaseAvg {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return stats.PhaseAvg[names[i]] > stats.PhaseAvg[names[j]]
	})
	for _, name := range names {
		Logf("  %-14s %10s  %5.1f%%", name, stats.PhaseAvg[name].Round(time.Microsecond), stats.PhasePct[name])
	}
	Logf("")
}

// LogWorldState logs agent counts and path pool usage.
func (s *Simulation) LogWorldState() {
	st := s.agents
	var idle, moving, waiting, following, selected int
	for i := 0; i < st.HighWater(); i++ {
		if !st.AliveAt(i) {
			continue
		}
		if st.Selected[i] {
			selected++
		}
		if st.State[i] == components.UnitIdle {
			idle++
			continue
		}
		moving++
		if st.PathLen[i] > 0 {
			following++
		} else {
			waiting++
		}
	}

	Logf("=== Tick %d ===", s.tick)
	Logf("Agents: %d / %d (slots used: %d, selected: %d)", st.Count(), st.Capacity(), st.HighWater(), selected)
	Logf("  Idle: %d, Moving: %d (following: %d, awaiting path: %d)", idle, moving, following, waiting)
	Logf("Waypoint pool: %d (live: %d)", len(st.Waypoints), st.liveWaypoints())
	tickets := s.tracker.statusCounts()
	Logf("Pipeline: %s, pending: %d", s.pipeline.State(), s.pipeline.Pending())
	Logf("  Tickets: %d requested, %d in progress",
		tickets[components.PathRequested], tickets[components.PathInProgress])
	Logf("")
}
