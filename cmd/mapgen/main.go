// Procedural map generator - writes a colour-keyed PNG the runner can load
// with -map. Terrain comes from the map section of the config.
//
// Usage: go run ./cmd/mapgen -out map.png -size 256
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"

	"github.com/pthm-cable/legion/config"
	"github.com/pthm-cable/legion/maps"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	out := flag.String("out", "map.png", "Output PNG path")
	size := flag.Int("size", 0, "Image width and height in pixels (0 = one pixel per grid cell)")
	seed := flag.Int64("seed", 0, "Noise seed (0 = map.seed from config)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *seed != 0 {
		cfg.Map.Seed = *seed
	}

	w, h := cfg.Derived.GridWidth, cfg.Derived.GridHeight
	if *size > 0 {
		w, h = *size, *size
	}

	stats, err := generate(cfg, *out, w, h)
	if err != nil {
		slog.Error("failed to generate map", "error", err)
		os.Exit(1)
	}
	slog.Info("map written",
		"path", *out,
		"width", w,
		"height", h,
		"seed", cfg.Map.Seed,
		"open", stats[0],
		"rough", stats[1],
		"walls", stats[2],
	)
}

// generate renders the noise terrain over the configured grid rectangle and
// returns pixel counts for open, rough and wall terrain.
func generate(cfg *config.Config, path string, w, h int) ([3]int, error) {
	var counts [3]int
	legend := maps.DefaultLegend()
	sampler := maps.NewNoiseSampler(maps.NoiseOptions{
		Seed:           cfg.Map.Seed,
		Scale:          cfg.Map.NoiseScale,
		Octaves:        cfg.Map.Octaves,
		WallThreshold:  cfg.Map.WallThreshold,
		RoughThreshold: cfg.Map.RoughThreshold,
		HeightScale:    cfg.Map.HeightScale,
	})

	open, _ := legend.ColorFor(0, false)
	rough, _ := legend.ColorFor(1, false)
	wall, _ := legend.ColorFor(0, true)

	d := &cfg.Derived
	minX := d.OriginX - cfg.Grid.SizeX/2
	minZ := d.OriginZ - cfg.Grid.SizeZ/2

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			x := minX + (float64(px)+0.5)*cfg.Grid.SizeX/float64(w)
			z := minZ + (float64(py)+0.5)*cfg.Grid.SizeZ/float64(h)
			s := sampler.SampleAt(x, z)
			switch {
			case s.Obstructed:
				img.SetRGBA(px, py, wall)
				counts[2]++
			case s.Region == 1:
				img.SetRGBA(px, py, rough)
				counts[1]++
			default:
				img.SetRGBA(px, py, open)
				counts[0]++
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return counts, fmt.Errorf("creating %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return counts, fmt.Errorf("encoding %s: %w", path, err)
	}
	return counts, f.Close()
}
