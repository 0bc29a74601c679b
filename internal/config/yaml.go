package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Tuning holds the knobs that aren't worth a flag each: target lines
// per leaf tile, max partition depth, checkpoint compression level.
// Mirrors rubenv-osmtopo's osmtopo/config.go LoadConfig shape, ported
// to yaml.v2 per go.mod.
type Tuning struct {
	TargetLinesPerLeaf int `yaml:"target_lines_per_leaf"`
	MaxDepth           int `yaml:"max_depth"`
	CheckpointLevel    int `yaml:"checkpoint_compression_level"`
}

// LoadTuning reads and parses a YAML tuning file.
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t := &Tuning{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, err
	}
	return t, nil
}

// applyDefaults fills in the partitioner knobs left at 0 from the
// tuning file, and takes the compression level from it whenever the
// file sets one; Parse then restores an explicitly given
// -checkpoint-compression, so an explicit flag still wins over the
// side-file.
func (t *Tuning) applyDefaults(cfg *Config) {
	if cfg.TargetLinesPerLeaf == 0 && t.TargetLinesPerLeaf != 0 {
		cfg.TargetLinesPerLeaf = t.TargetLinesPerLeaf
	}
	if cfg.MaxDepth == 0 && t.MaxDepth != 0 {
		cfg.MaxDepth = t.MaxDepth
	}
	if t.CheckpointLevel != 0 {
		cfg.CompressionLevel = t.CheckpointLevel
	}
}
