package runplan

import (
	"path/filepath"
	"testing"

	"github.com/archivian/derivate/config"
)

func TestBuildChainsStepDirs(t *testing.T) {
	cfg := &config.RunConfig{
		PoolSize: 4,
		Quality:  85,
		Steps: []config.StepConfig{
			{Kind: "ImageScale", InputSubdir: "orig", OutputSubdir: "scaled"},
			{Kind: "ImageFooter", InputSubdir: "scaled", OutputSubdir: "footered"},
			{Kind: "Pdf", InputSubdir: "footered", OutputSubdir: "pdf"},
		},
	}

	plan, err := Build(cfg, "/work")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	steps := plan.Steps()
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(steps))
	}
	for i := 0; i < len(steps)-1; i++ {
		if steps[i].OutputDir != steps[i+1].InputDir {
			t.Errorf("step %d output %q != step %d input %q", i, steps[i].OutputDir, i+1, steps[i+1].InputDir)
		}
	}
	if steps[0].InputDir != filepath.Join("/work", "orig") {
		t.Errorf("unexpected input dir %q", steps[0].InputDir)
	}
	if steps[0].Quality != 85 {
		t.Errorf("step did not inherit default quality, got %d", steps[0].Quality)
	}
	if steps[0].Kind != ImageScale || steps[2].Kind != Pdf {
		t.Errorf("unexpected kinds: %v %v", steps[0].Kind, steps[2].Kind)
	}
}

func TestBuildRejectsEmptySteps(t *testing.T) {
	if _, err := Build(&config.RunConfig{}, "/work"); err == nil {
		t.Fatal("expected error for empty step list")
	}
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	cfg := &config.RunConfig{Steps: []config.StepConfig{{Kind: "Bogus"}}}
	if _, err := Build(cfg, "/work"); err == nil {
		t.Fatal("expected error for unknown step kind")
	}
}
