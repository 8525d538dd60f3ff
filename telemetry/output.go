package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/legion/config"
	"github.com/pthm-cable/legion/systems"
)

// BatchRecord is one published path batch as written to batches.csv.
type BatchRecord struct {
	Tick      int64 `csv:"tick"`
	Seq       int   `csv:"seq"`
	Size      int   `csv:"size"`
	Failed    int   `csv:"failed"`
	Expanded  int   `csv:"expanded"`
	SearchUS  int64 `csv:"search_us"`
	LatencyUS int64 `csv:"latency_us"`
}

// NewBatchRecord flattens batch stats published at tick.
func NewBatchRecord(tick int64, b systems.BatchStats) BatchRecord {
	return BatchRecord{
		Tick:      tick,
		Seq:       b.Seq,
		Size:      b.Size,
		Failed:    b.Failed,
		Expanded:  b.Expanded,
		SearchUS:  b.SearchTime.Microseconds(),
		LatencyUS: b.Latency.Microseconds(),
	}
}

// csvFile appends gocsv records, writing the header with the first one.
type csvFile struct {
	f             *os.File
	headerWritten bool
}

func createCSV(dir, name string) (*csvFile, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvFile{f: f}, nil
}

func (c *csvFile) write(records any) error {
	if !c.headerWritten {
		if err := gocsv.Marshal(records, c.f); err != nil {
			return err
		}
		c.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, c.f)
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir      string
	movement *csvFile
	perf     *csvFile
	batches  *csvFile
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	var err error
	if om.movement, err = createCSV(dir, "movement.csv"); err != nil {
		return nil, err
	}
	if om.perf, err = createCSV(dir, "perf.csv"); err != nil {
		om.Close()
		return nil, err
	}
	if om.batches, err = createCSV(dir, "batches.csv"); err != nil {
		om.Close()
		return nil, err
	}
	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteWindow writes a window stats record to movement.csv.
func (om *OutputManager) WriteWindow(stats WindowStats) error {
	if om == nil {
		return nil
	}
	if err := om.movement.write([]WindowStats{stats}); err != nil {
		return fmt.Errorf("writing movement stats: %w", err)
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int64) error {
	if om == nil {
		return nil
	}
	if err := om.perf.write([]PerfStatsCSV{stats.ToCSV(windowEnd)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteBatch writes a path batch record to batches.csv.
func (om *OutputManager) WriteBatch(rec BatchRecord) error {
	if om == nil {
		return nil
	}
	if err := om.batches.write([]BatchRecord{rec}); err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, c := range []*csvFile{om.movement, om.perf, om.batches} {
		if c == nil {
			continue
		}
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
