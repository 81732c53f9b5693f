// Package runplan assembles an immutable sequence of derivation steps from
// configuration plus the inputs detected at start-up. cmd/derivate executes
// the resulting plan in declared order.
package runplan

import (
	"fmt"
	"path/filepath"

	"github.com/archivian/derivate/config"
	"github.com/archivian/derivate/derrors"
)

// Kind identifies what a DerivateStep does.
type Kind int

const (
	ImageCopy Kind = iota
	ImageScale
	ImageFooter
	ImageFooterGranular
	Pdf
	Enrich
)

func (k Kind) String() string {
	switch k {
	case ImageCopy:
		return "ImageCopy"
	case ImageScale:
		return "ImageScale"
	case ImageFooter:
		return "ImageFooter"
	case ImageFooterGranular:
		return "ImageFooterGranular"
	case Pdf:
		return "Pdf"
	case Enrich:
		return "Enrich"
	default:
		return "Unknown"
	}
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "ImageCopy":
		return ImageCopy, nil
	case "ImageScale":
		return ImageScale, nil
	case "ImageFooter":
		return ImageFooter, nil
	case "ImageFooterGranular":
		return ImageFooterGranular, nil
	case "Pdf":
		return Pdf, nil
	case "Enrich":
		return Enrich, nil
	default:
		return Unknown, fmt.Errorf("unknown step kind %q", s)
	}
}

const Unknown Kind = -1

// DerivateStep is one entry of a RunPlan. InputDir/OutputDir are absolute
// paths resolved at assembly time; the i-th step's OutputDir is the
// (i+1)-th step's InputDir.
type DerivateStep struct {
	Kind           Kind
	InputDir       string
	OutputDir      string
	Quality        int
	Maximal        int
	PoolSize       int
	PDFConformance string
	InsertIntoMets bool
}

// RunPlan is the immutable, ordered list of steps a run executes. Steps is
// unexported so callers cannot mutate the plan after Build returns; use
// Steps() to range over it.
type RunPlan struct {
	steps []DerivateStep
}

// Steps returns the ordered step list. The returned slice is a copy: callers
// may not mutate a built RunPlan through it.
func (p *RunPlan) Steps() []DerivateStep {
	out := make([]DerivateStep, len(p.steps))
	copy(out, p.steps)
	return out
}

// Build turns a config.RunConfig plus the detected working directory into an
// immutable RunPlan. Each configured step's input/output subdirectories are
// resolved relative to workDir; every step gets cfg.PoolSize as its pool
// size.
func Build(cfg *config.RunConfig, workDir string) (*RunPlan, error) {
	if cfg == nil {
		return nil, derrors.E(derrors.ConfigError, "runplan.Build", fmt.Errorf("nil config"))
	}
	if len(cfg.Steps) == 0 {
		return nil, derrors.E(derrors.ConfigError, "runplan.Build", fmt.Errorf("no steps configured"))
	}

	steps := make([]DerivateStep, 0, len(cfg.Steps))
	for i, sc := range cfg.Steps {
		kind, err := parseKind(sc.Kind)
		if err != nil {
			return nil, derrors.E(derrors.ConfigError, "runplan.Build", fmt.Errorf("step %d: %w", i, err))
		}

		quality := sc.Quality
		if quality == 0 {
			quality = cfg.Quality
		}
		maximal := sc.Maximal
		if maximal == 0 {
			maximal = cfg.Maximal
		}

		step := DerivateStep{
			Kind:           kind,
			InputDir:       resolveSubdir(workDir, sc.InputSubdir),
			OutputDir:      resolveSubdir(workDir, sc.OutputSubdir),
			Quality:        quality,
			Maximal:        maximal,
			PoolSize:       cfg.PoolSize,
			PDFConformance: sc.PDFConformance,
			InsertIntoMets: sc.InsertIntoMets,
		}
		if i > 0 {
			steps[i-1].OutputDir = step.InputDir
		}
		steps = append(steps, step)
	}

	return &RunPlan{steps: steps}, nil
}

func resolveSubdir(workDir, subdir string) string {
	if subdir == "" {
		return workDir
	}
	if filepath.IsAbs(subdir) {
		return subdir
	}
	return filepath.Join(workDir, subdir)
}
