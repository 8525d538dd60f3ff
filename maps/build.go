package maps

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/config"
	"github.com/pthm-cable/legion/systems"
)

// Map kinds accepted in map.kind.
const (
	KindFlat  = "flat"
	KindPNG   = "png"
	KindNoise = "noise"
)

// GridOptions converts the grid section of cfg to build options.
func GridOptions(cfg *config.Config) systems.BuildOptions {
	return systems.BuildOptions{
		Origin:                origin(cfg),
		SizeX:                 cfg.Grid.SizeX,
		SizeZ:                 cfg.Grid.SizeZ,
		CellRadius:            cfg.Grid.CellRadius,
		WalkableRegions:       cfg.Derived.WalkableMask,
		RegionCosts:           cfg.Grid.RegionCosts,
		ObstacleProximityCost: cfg.Grid.ObstacleProximityPenalty,
		BlurSize:              cfg.Grid.BlurSize,
	}
}

// SamplerFor returns the ground sampler selected by cfg.Map.
func SamplerFor(cfg *config.Config) (systems.GroundSampler, error) {
	m := &cfg.Map
	o := origin(cfg)
	switch m.Kind {
	case "", KindFlat:
		return Flat(o.Y), nil
	case KindPNG:
		legend := DefaultLegend()
		if m.Legend != "" {
			var err error
			if legend, err = LoadLegend(m.Legend); err != nil {
				return nil, err
			}
		}
		return LoadPNG(m.Path, legend, o, cfg.Grid.SizeX, cfg.Grid.SizeZ)
	case KindNoise:
		return NewNoiseSampler(NoiseOptions{
			Seed:           m.Seed,
			Scale:          m.NoiseScale,
			Octaves:        m.Octaves,
			WallThreshold:  m.WallThreshold,
			RoughThreshold: m.RoughThreshold,
			HeightScale:    m.HeightScale,
			BaseHeight:     o.Y,
		}), nil
	default:
		return nil, fmt.Errorf("unknown map kind %q", m.Kind)
	}
}

// BuildGrid samples the configured map into a navigation grid.
func BuildGrid(cfg *config.Config) (*systems.NavGrid, error) {
	sampler, err := SamplerFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("map sampler: %w", err)
	}
	g, err := systems.BuildNavGrid(GridOptions(cfg), sampler)
	if err != nil {
		return nil, fmt.Errorf("building grid: %w", err)
	}
	return g, nil
}

func origin(cfg *config.Config) r3.Vec {
	d := &cfg.Derived
	return r3.Vec{X: d.OriginX, Y: d.OriginY, Z: d.OriginZ}
}
