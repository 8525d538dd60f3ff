package main

import (
	"context"
	"flag"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/config"
	"github.com/pthm-cable/legion/game"
	"github.com/pthm-cable/legion/maps"
	"github.com/pthm-cable/legion/scenario"
	"github.com/pthm-cable/legion/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	mapPath := flag.String("map", "", "PNG map file (overrides map.kind and map.path)")
	scenarioPath := flag.String("scenario", "", "tengo scenario script (empty = built-in march demo)")
	agents := flag.Int("agents", 500, "Agents spawned by the built-in demo")
	moveEvery := flag.Float64("move-every", 8, "Seconds between demo move commands")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	summaryEvery := flag.Int("summary-every", 0, "Print a perf and world summary every N ticks (0 = off)")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for a final agent snapshot")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	watch := flag.Bool("watch", false, "Rebuild the grid when the map file changes")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *mapPath != "" {
		cfg.Map.Kind = maps.KindPNG
		cfg.Map.Path = *mapPath
	}
	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	if cfg.Agents.Seed == 0 {
		cfg.Agents.Seed = uint64(rngSeed)
	}

	grid, err := maps.BuildGrid(cfg)
	if err != nil {
		slog.Error("failed to build grid", "error", err)
		os.Exit(1)
	}

	output, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output manager", "error", err)
		os.Exit(1)
	}

	sim := game.New(cfg, grid, logger)
	// Closing the simulation drains the last batch into output.
	defer func() {
		sim.Close()
		if err := output.Close(); err != nil {
			slog.Error("failed to close output", "error", err)
		}
	}()
	if err := output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}
	sim.SetOutput(output)
	sim.SetLogStats(*logStats)

	var events <-chan string
	if *watch && cfg.Map.Kind == maps.KindPNG {
		w, err := maps.NewWatcher(cfg.Map.Path)
		if err != nil {
			slog.Error("failed to watch map", "error", err)
			os.Exit(1)
		}
		defer w.Close()
		events = w.Events
		go func() {
			for err := range w.Errors {
				slog.Warn("map watcher error", "error", err)
			}
		}()
	}

	var driver func() (bool, error)
	if *scenarioPath != "" {
		runner, err := scenario.Load(*scenarioPath, sim, logger)
		if err != nil {
			slog.Error("failed to load scenario", "error", err)
			os.Exit(1)
		}
		driver = func() (bool, error) {
			err := runner.Step()
			return runner.Done(), err
		}
	} else {
		driver = marchDemo(sim, *agents, *moveEvery, cfg.Sim.DT, uint64(rngSeed))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	slog.Info("starting simulation",
		"seed", rngSeed,
		"grid_width", grid.Width(),
		"grid_height", grid.Height(),
		"walkable", grid.WalkableCount(),
		"max_ticks", *maxTicks,
	)

	for ctx.Err() == nil {
		select {
		case <-events:
			if g, err := maps.BuildGrid(cfg); err != nil {
				slog.Warn("map reload failed", "error", err)
			} else {
				sim.SwapGrid(g)
			}
		default:
		}

		done, err := driver()
		if err != nil {
			slog.Error("scenario failed", "error", err)
			break
		}
		sim.Step(cfg.Sim.DT)

		if *summaryEvery > 0 && sim.Tick()%int64(*summaryEvery) == 0 {
			sim.LogPerfStats()
			sim.LogWorldState()
		}
		if done {
			slog.Info("scenario done", "tick", sim.Tick())
			break
		}
		if *maxTicks > 0 && int(sim.Tick()) >= *maxTicks {
			slog.Info("max ticks reached", "tick", sim.Tick())
			break
		}
	}

	if *snapshotDir != "" {
		path, err := sim.SaveSnapshot(*snapshotDir)
		if err != nil {
			slog.Error("failed to save snapshot", "error", err)
		} else {
			slog.Info("snapshot saved", "path", path)
		}
	}
}

// marchDemo spawns n agents in a block at the grid centre and sends them to
// a random walkable point every interval seconds. It never finishes.
func marchDemo(sim *game.Simulation, n int, interval, dt float64, seed uint64) func() (bool, error) {
	rng := rand.New(rand.NewPCG(seed, 0x5eed))
	every := max(1, int64(interval/dt))

	return func() (bool, error) {
		tick := sim.Tick()
		if tick == 0 {
			lo, hi := sim.Grid().Bounds()
			centre := r3.Add(lo, r3.Scale(0.5, r3.Sub(hi, lo)))
			side := int(math.Ceil(math.Sqrt(float64(n))))
			spacing := sim.Grid().CellSize() * 1.5
			for i := 0; i < n; i++ {
				off := r3.Vec{
					X: (float64(i%side) - float64(side-1)/2) * spacing,
					Z: (float64(i/side) - float64(side-1)/2) * spacing,
				}
				sim.Spawn(r3.Add(centre, off))
			}
		}
		if tick%every != 0 {
			return false, nil
		}

		grid := sim.Grid()
		for range 100 {
			x, y := rng.IntN(grid.Width()), rng.IntN(grid.Height())
			if !grid.Walkable(x, y) {
				continue
			}
			inf := math.Inf(1)
			sim.SelectInBounds(r3.Vec{X: -inf, Z: -inf}, r3.Vec{X: inf, Z: inf})
			sim.MoveSelected(grid.CellToWorld(x, y))
			break
		}
		return false, nil
	}
}
