// Package config parses the CLI flags and optional YAML tuning file
// into a single broadcastable Config, the generalization of
// original_source/main.cpp's `broadcast(world, postgres_connect_str, 0)`
// (SPEC_FULL.md §2.3): rank 0 parses os.Args and the side-file once,
// then sends the resulting struct to every peer over the transport, so
// no other rank ever touches os.Args or the filesystem for config.
package config

import (
	"flag"
	"fmt"

	"github.com/thunur/roadtopo/pkg/zone"
)

// Config is every knob a run needs, gathered in one struct so it can be
// gob/binary-encoded once and broadcast verbatim.
type Config struct {
	// PostgresDSN is the source database connection string (spec.md §6).
	PostgresDSN string

	// CheckpointDir is the shared-filesystem root the checkpoint store
	// writes under (spec.md §4.7).
	CheckpointDir string

	// Extent is the root world envelope. When unset (all four fields
	// zero), rank 0 auto-discovers it via zone.WorldExtentFrom.
	Extent zone.Envelope

	// TargetLinesPerLeaf and MaxDepth tune the partitioner
	// (zone.Options). Zero means "use the package default".
	TargetLinesPerLeaf int
	MaxDepth           int

	// CompressionLevel is the zstd level checkpoint encoding uses.
	CompressionLevel int

	// MergeStep resumes a prior run at the given round index, skipping
	// already-completed rounds via the reconstruction path
	// (SPEC_FULL.md §4 item 1). -1 means "start from scratch".
	MergeStep int

	// Debug enables debug-level logging.
	Debug bool

	// Workers is the number of local worker goroutines standing in for
	// MPI ranks (SPEC_FULL.md §5, in-process Transport).
	Workers int
}

// hasExplicitExtent reports whether --extent was actually given a
// non-degenerate rectangle, as opposed to the zero value.
func (c Config) hasExplicitExtent() bool {
	return c.Extent.MaxX > c.Extent.MinX && c.Extent.MaxY > c.Extent.MinY
}

// HasExtent is the exported form hasExplicitExtent backs, used by the
// driver to decide whether to call zone.WorldExtentFrom.
func (c Config) HasExtent() bool { return c.hasExplicitExtent() }

// flagValues holds the flags Parse recognizes; bind registers them on
// a given flag.FlagSet, so tests can use a fresh one instead of the
// global flag.CommandLine.
type flagValues struct {
	pgDSN         *string
	checkpointDir *string
	minX, minY    *float64
	maxX, maxY    *float64
	targetLeaf    *int
	maxDepth      *int
	compression   *int
	mergeStep     *int
	debug         *bool
	workers       *int
	yamlPath      *string
}

func bind(fs *flag.FlagSet) *flagValues {
	return &flagValues{
		pgDSN:         fs.String("pg", "", "postgres connection string for the source database"),
		checkpointDir: fs.String("checkpoint-dir", "./checkpoints", "shared filesystem directory for zone checkpoints"),
		minX:          fs.Float64("extent-minx", 0, "world extent min X; leave all four at 0 to auto-discover"),
		minY:          fs.Float64("extent-miny", 0, "world extent min Y"),
		maxX:          fs.Float64("extent-maxx", 0, "world extent max X"),
		maxY:          fs.Float64("extent-maxy", 0, "world extent max Y"),
		targetLeaf:    fs.Int("target-lines-per-leaf", 0, "partitioner leaf target (0 = package default)"),
		maxDepth:      fs.Int("max-depth", 0, "partitioner max recursion depth (0 = package default)"),
		compression:   fs.Int("checkpoint-compression", 3, "zstd compression level for checkpoint files"),
		mergeStep:     fs.Int("merge-step", -1, "resume at this round index instead of starting from scratch"),
		debug:         fs.Bool("debug", false, "enable debug-level logging"),
		workers:       fs.Int("workers", 4, "number of local worker goroutines standing in for MPI ranks"),
		yamlPath:      fs.String("config", "", "optional YAML side-file with tuning knobs"),
	}
}

// Parse parses args (normally os.Args[1:]) into a Config, applying any
// YAML side-file named by -config first so flags can still override
// individual knobs. Only rank 0 should call this; every other rank
// receives its Config over the transport instead.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("roadtopo", flag.ContinueOnError)
	vals := bind(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		PostgresDSN:        *vals.pgDSN,
		CheckpointDir:      *vals.checkpointDir,
		Extent:             zone.Envelope{MinX: *vals.minX, MinY: *vals.minY, MaxX: *vals.maxX, MaxY: *vals.maxY},
		TargetLinesPerLeaf: *vals.targetLeaf,
		MaxDepth:           *vals.maxDepth,
		CompressionLevel:   *vals.compression,
		MergeStep:          *vals.mergeStep,
		Debug:              *vals.debug,
		Workers:            *vals.workers,
	}

	if *vals.yamlPath != "" {
		tuning, err := LoadTuning(*vals.yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", *vals.yamlPath, err)
		}
		tuning.applyDefaults(&cfg)
		// applyDefaults takes the side-file's compression level
		// unconditionally; an explicitly given flag is restored here.
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "checkpoint-compression" {
				cfg.CompressionLevel = *vals.compression
			}
		})
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("config: -pg is required")
	}
	return cfg, nil
}
