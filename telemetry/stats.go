package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated movement and pathfinding statistics for a time window.
type WindowStats struct {
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Agents  int `csv:"agents"`
	Moving  int `csv:"moving"`
	Spawned int `csv:"spawned"`
	Despawn int `csv:"despawned"`

	// Commands during window
	MoveCommands int `csv:"move_commands"`
	Requests     int `csv:"requests"`
	Skipped      int `csv:"skipped"`
	Superseded   int `csv:"superseded"`
	Arrivals     int `csv:"arrivals"`

	// Path batches completed during window
	Batches      int     `csv:"batches"`
	Paths        int     `csv:"paths"`
	Failed       int     `csv:"failed"`
	FailureRatio float64 `csv:"failure_ratio"`

	LatencyMeanMS float64 `csv:"latency_mean_ms"`
	LatencyStdMS  float64 `csv:"latency_std_ms"`
	LatencyP95MS  float64 `csv:"latency_p95_ms"`
	ExpandedMean  float64 `csv:"expanded_mean"`
	WaypointsMean float64 `csv:"waypoints_mean"`
	WaypointsP50  float64 `csv:"waypoints_p50"`
	WaypointsP90  float64 `csv:"waypoints_p90"`

	// Trips finished during window
	Trips        int     `csv:"trips"`
	TripMeanSec  float64 `csv:"trip_mean_sec"`
	TripP90Sec   float64 `csv:"trip_p90_sec"`
	PathWaitMean float64 `csv:"path_wait_mean_sec"` // Command to path merge
	Reissued     int     `csv:"reissued"`
}

// Summary is the distribution of one sample set.
type Summary struct {
	Mean, Std     float64
	P50, P90, P95 float64
}

// Summarize computes mean, standard deviation and empirical quantiles.
// values is not modified. An empty set yields the zero Summary.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var s Summary
	s.Mean, s.Std = stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		s.Std = 0
	}
	s.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	s.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return s
}

// ratio returns num/den, or 0 when den is zero.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// meanOf returns the arithmetic mean of values, or 0 when empty.
func meanOf(values []float64) float64 {
	return ratio(floats.Sum(values), float64(len(values)))
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("agents", s.Agents),
		slog.Int("moving", s.Moving),
		slog.Int("spawned", s.Spawned),
		slog.Int("despawned", s.Despawn),
		slog.Int("move_commands", s.MoveCommands),
		slog.Int("requests", s.Requests),
		slog.Int("skipped", s.Skipped),
		slog.Int("superseded", s.Superseded),
		slog.Int("arrivals", s.Arrivals),
		slog.Int("batches", s.Batches),
		slog.Int("paths", s.Paths),
		slog.Int("failed", s.Failed),
		slog.Float64("failure_ratio", s.FailureRatio),
		slog.Float64("latency_mean_ms", s.LatencyMeanMS),
		slog.Float64("latency_std_ms", s.LatencyStdMS),
		slog.Float64("latency_p95_ms", s.LatencyP95MS),
		slog.Float64("expanded_mean", s.ExpandedMean),
		slog.Float64("waypoints_mean", s.WaypointsMean),
		slog.Int("trips", s.Trips),
		slog.Float64("trip_mean_sec", s.TripMeanSec),
		slog.Float64("trip_p90_sec", s.TripP90Sec),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"agents", s.Agents,
		"moving", s.Moving,
		"requests", s.Requests,
		"batches", s.Batches,
		"failed", s.Failed,
		"latency_p95_ms", s.LatencyP95MS,
		"arrivals", s.Arrivals,
		"trip_mean_sec", s.TripMeanSec,
	)
}
