package worldsave

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"voxelhost.ai/internal/persistence/chunkcodec"
	"voxelhost.ai/internal/worldgen"
)

const (
	seedFile      = "seed"
	chunksFile    = "chunks"
	locationsFile = "locations"
)

// SaveGlobals writes the three files that describe the world.
func SaveGlobals(dir string, sim *worldgen.Sim) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := []struct {
		name string
		v    any
	}{
		{seedFile, sim.Seed},
		{chunksFile, sim.Regions},
		{locationsFile, sim.Locations},
	}
	for _, f := range files {
		b, err := chunkcodec.Marshal(f.v)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		if err := writeFileAtomic(filepath.Join(dir, f.name), b); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return nil
}

// LoadGlobals reads a world written by SaveGlobals. It fails with
// ErrNoWorld if any file is missing.
func LoadGlobals(dir string) (*worldgen.Sim, error) {
	sim := &worldgen.Sim{}
	files := []struct {
		name string
		v    any
	}{
		{seedFile, &sim.Seed},
		{chunksFile, &sim.Regions},
		{locationsFile, &sim.Locations},
	}
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(dir, f.name))
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", f.name, ErrNoWorld)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		if err := chunkcodec.Unmarshal(b, f.v); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if len(sim.Regions) != worldgen.RegionGrid*worldgen.RegionGrid {
		return nil, fmt.Errorf("%s: %d regions, want %d", chunksFile, len(sim.Regions), worldgen.RegionGrid*worldgen.RegionGrid)
	}
	return sim, nil
}
