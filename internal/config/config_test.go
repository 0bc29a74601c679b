package config

import "testing"

func TestParseRequiresPostgresDSN(t *testing.T) {
	_, err := Parse([]string{"-checkpoint-dir", "/tmp/x"})
	if err == nil {
		t.Fatalf("expected error when -pg is missing")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{"-pg", "postgres://localhost/roadtopo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CheckpointDir != "./checkpoints" {
		t.Fatalf("expected default checkpoint dir, got %q", cfg.CheckpointDir)
	}
	if cfg.MergeStep != -1 {
		t.Fatalf("expected default merge step -1, got %d", cfg.MergeStep)
	}
	if cfg.HasExtent() {
		t.Fatalf("expected no explicit extent by default")
	}
}

func TestParseExplicitExtent(t *testing.T) {
	cfg, err := Parse([]string{
		"-pg", "postgres://localhost/roadtopo",
		"-extent-minx", "0", "-extent-miny", "0",
		"-extent-maxx", "100", "-extent-maxy", "100",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.HasExtent() {
		t.Fatalf("expected explicit extent to be recognized")
	}
}
