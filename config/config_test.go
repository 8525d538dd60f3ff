package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}

	if cfg.Steering.MoveSpeed != 15 {
		t.Errorf("move_speed = %v, want 15", cfg.Steering.MoveSpeed)
	}
	if cfg.Steering.SeparationRadius != 3 || cfg.Steering.SeparationWeight != 5 {
		t.Errorf("separation = %v/%v, want 3/5", cfg.Steering.SeparationRadius, cfg.Steering.SeparationWeight)
	}
	if cfg.Pathfinding.MaxOpenNodes != 10000 {
		t.Errorf("max_open_nodes = %d, want 10000", cfg.Pathfinding.MaxOpenNodes)
	}
	if cfg.Agents.MaxAgents != 10000 {
		t.Errorf("max_agents = %d, want 10000", cfg.Agents.MaxAgents)
	}
	if cfg.Grid.BlurSize != 3 {
		t.Errorf("blur_size = %d, want 3", cfg.Grid.BlurSize)
	}

	if cfg.Derived.CellSize != 1 {
		t.Errorf("derived cell size = %v, want 1", cfg.Derived.CellSize)
	}
	if cfg.Derived.GridWidth != 200 || cfg.Derived.GridHeight != 200 {
		t.Errorf("derived grid = %dx%d, want 200x200", cfg.Derived.GridWidth, cfg.Derived.GridHeight)
	}
	if cfg.Derived.ReachDistSq != 0.25 {
		t.Errorf("reach dist sq = %v, want 0.25", cfg.Derived.ReachDistSq)
	}
	if cfg.Derived.WalkableMask != 0b111 {
		t.Errorf("walkable mask = %b, want 111", cfg.Derived.WalkableMask)
	}
	if cfg.Derived.PathWorkers < 1 || cfg.Derived.PassWorkers < 1 {
		t.Errorf("workers not resolved: path=%d pass=%d", cfg.Derived.PathWorkers, cfg.Derived.PassWorkers)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	overlay := []byte("steering:\n  move_speed: 4\ngrid:\n  cell_radius: 1\n")
	if err := os.WriteFile(path, overlay, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load overlay: %v", err)
	}
	if cfg.Steering.MoveSpeed != 4 {
		t.Errorf("move_speed = %v, want 4", cfg.Steering.MoveSpeed)
	}
	// Untouched fields keep their defaults
	if cfg.Steering.RotationSpeed != 20 {
		t.Errorf("rotation_speed = %v, want 20", cfg.Steering.RotationSpeed)
	}
	if cfg.Derived.GridWidth != 100 {
		t.Errorf("grid width = %d, want 100", cfg.Derived.GridWidth)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero radius", "grid:\n  cell_radius: 0\n"},
		{"no agents", "agents:\n  max_agents: 0\n"},
		{"bad region", "grid:\n  walkable_regions: [40]\n"},
		{"zero dt", "sim:\n  dt: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Formation.Spacing = 7

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load written config: %v", err)
	}
	if loaded.Formation.Spacing != 7 {
		t.Errorf("spacing = %d, want 7", loaded.Formation.Spacing)
	}
}
