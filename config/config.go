// Package config provides configuration loading and access for the engine.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all engine configuration parameters.
type Config struct {
	Sim         SimConfig         `yaml:"sim"`
	Grid        GridConfig        `yaml:"grid"`
	Pathfinding PathfindingConfig `yaml:"pathfinding"`
	Steering    SteeringConfig    `yaml:"steering"`
	Formation   FormationConfig   `yaml:"formation"`
	Agents      AgentsConfig      `yaml:"agents"`
	Workers     WorkersConfig     `yaml:"workers"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Map         MapConfig         `yaml:"map"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimConfig holds tick driver parameters.
type SimConfig struct {
	DT            float64 `yaml:"dt"`
	ValidateEvery int     `yaml:"validate_every"` // AgentStore invariant check interval in ticks (0 = off)
}

// GridConfig holds navigation grid construction parameters.
type GridConfig struct {
	Origin                   []float64     `yaml:"origin"` // World-space centre of the grid (x, y, z)
	SizeX                    float64       `yaml:"size_x"`
	SizeZ                    float64       `yaml:"size_z"`
	CellRadius               float64       `yaml:"cell_radius"`
	BlurSize                 int           `yaml:"blur_size"`
	ObstacleProximityPenalty int32         `yaml:"obstacle_proximity_penalty"`
	WalkableRegions          []int         `yaml:"walkable_regions"`
	RegionCosts              map[int]int32 `yaml:"region_costs"`
}

// PathfindingConfig holds A* and batch pipeline parameters.
type PathfindingConfig struct {
	MaxOpenNodes         int     `yaml:"max_open_nodes"`
	Workers              int     `yaml:"workers"` // 0 = GOMAXPROCS
	TurnDistance         float64 `yaml:"turn_distance"`
	PreventCornerCutting bool    `yaml:"prevent_corner_cutting"`
}

// SteeringConfig holds per-tick movement parameters.
type SteeringConfig struct {
	MoveSpeed             float64 `yaml:"move_speed"`
	RotationSpeed         float64 `yaml:"rotation_speed"`
	DirectionLerp         float64 `yaml:"direction_lerp"`
	SeparationRadius      float64 `yaml:"separation_radius"`
	SeparationWeight      float64 `yaml:"separation_weight"`
	NoiseMagnitude        float64 `yaml:"noise_magnitude"`
	WaypointReachDistance float64 `yaml:"waypoint_reach_distance"`
	LookAhead             float64 `yaml:"look_ahead"`
	IdleDamping           float64 `yaml:"idle_damping"`
}

// FormationConfig holds move command layout parameters.
type FormationConfig struct {
	Spacing         int     `yaml:"spacing"`          // Cells between slots
	RepathThreshold float64 `yaml:"repath_threshold"` // Squared distance
}

// AgentsConfig holds agent store parameters.
type AgentsConfig struct {
	MaxAgents int    `yaml:"max_agents"`
	Seed      uint64 `yaml:"seed"`
}

// WorkersConfig holds steering worker pool parameters.
type WorkersConfig struct {
	Count             int     `yaml:"count"` // 0 = GOMAXPROCS
	ParallelThreshold int     `yaml:"parallel_threshold"`
	CompactRatio      float64 `yaml:"compact_ratio"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
	StatsWindow         float64 `yaml:"stats_window"`
}

// MapConfig selects and tunes the ground sampler used to build the grid.
type MapConfig struct {
	Kind           string  `yaml:"kind"` // flat | png | noise
	Path           string  `yaml:"path"`
	Legend         string  `yaml:"legend"` // Optional YAML colour legend for png maps
	Seed           int64   `yaml:"seed"`
	NoiseScale     float64 `yaml:"noise_scale"`
	Octaves        int     `yaml:"octaves"`
	WallThreshold  float64 `yaml:"wall_threshold"`
	RoughThreshold float64 `yaml:"rough_threshold"`
	HeightScale    float64 `yaml:"height_scale"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	OriginX, OriginY, OriginZ float64
	CellSize                  float64 // 2 * Grid.CellRadius
	GridWidth                 int     // Cells along X
	GridHeight                int     // Cells along Z
	WalkableMask              uint32  // Bitmask over Grid.WalkableRegions
	ReachDistSq               float64 // Steering.WaypointReachDistance squared
	PathWorkers               int     // Resolved Pathfinding.Workers
	PassWorkers               int     // Resolved Workers.Count
	StatsWindowTicks          int     // Telemetry.StatsWindow in ticks
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults. Panics if they fail to parse.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Grid.CellRadius <= 0:
		return fmt.Errorf("grid.cell_radius must be positive, got %v", c.Grid.CellRadius)
	case c.Grid.SizeX <= 0 || c.Grid.SizeZ <= 0:
		return fmt.Errorf("grid size must be positive, got %vx%v", c.Grid.SizeX, c.Grid.SizeZ)
	case c.Agents.MaxAgents <= 0:
		return fmt.Errorf("agents.max_agents must be positive, got %d", c.Agents.MaxAgents)
	case c.Pathfinding.MaxOpenNodes <= 0:
		return fmt.Errorf("pathfinding.max_open_nodes must be positive, got %d", c.Pathfinding.MaxOpenNodes)
	case c.Sim.DT <= 0:
		return fmt.Errorf("sim.dt must be positive, got %v", c.Sim.DT)
	}
	for _, r := range c.Grid.WalkableRegions {
		if r < 0 || r > 31 {
			return fmt.Errorf("grid.walkable_regions: region %d out of range [0,31]", r)
		}
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	d := &c.Derived
	if len(c.Grid.Origin) > 0 {
		d.OriginX = c.Grid.Origin[0]
	}
	if len(c.Grid.Origin) > 1 {
		d.OriginY = c.Grid.Origin[1]
	}
	if len(c.Grid.Origin) > 2 {
		d.OriginZ = c.Grid.Origin[2]
	}

	d.CellSize = 2 * c.Grid.CellRadius
	d.GridWidth = max(1, int(math.Ceil(c.Grid.SizeX/d.CellSize)))
	d.GridHeight = max(1, int(math.Ceil(c.Grid.SizeZ/d.CellSize)))

	d.WalkableMask = 0
	for _, r := range c.Grid.WalkableRegions {
		d.WalkableMask |= 1 << uint(r)
	}

	d.ReachDistSq = c.Steering.WaypointReachDistance * c.Steering.WaypointReachDistance

	d.PathWorkers = c.Pathfinding.Workers
	if d.PathWorkers <= 0 {
		d.PathWorkers = runtime.GOMAXPROCS(0)
	}
	d.PassWorkers = c.Workers.Count
	if d.PassWorkers <= 0 {
		d.PassWorkers = runtime.GOMAXPROCS(0)
	}

	d.StatsWindowTicks = max(1, int(c.Telemetry.StatsWindow/c.Sim.DT))
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
