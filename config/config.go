// Package config loads the run configuration that runplan.Build turns into
// an immutable RunPlan. No config-file parsing library appears anywhere in
// the retrieval pack (the teacher and the rest of the examples are either
// env-var driven or, where file-backed, JSON-only), so this loader is a
// thin stdlib encoding/json reader rather than a general-purpose config
// library.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// StepConfig describes one entry of the ordered steps list.
type StepConfig struct {
	Kind           string `json:"kind"`
	InputSubdir    string `json:"input_subdir"`
	OutputSubdir   string `json:"output_subdir"`
	Quality        int    `json:"quality,omitempty"`
	Maximal        int    `json:"maximal,omitempty"`
	PDFConformance string `json:"pdf_conformance,omitempty"`
	InsertIntoMets bool   `json:"insert_into_mets,omitempty"`
}

// RunConfig is the external, user-authored configuration surface: pool
// size, default image quality, the maximal dimension cap, the footer
// template text, PDF conformance level, and the ordered step list.
type RunConfig struct {
	PoolSize        int          `json:"pool_size"`
	Quality         int          `json:"quality"`
	Maximal         int          `json:"maximal"`
	FooterTemplate  string       `json:"footer_template"`
	PDFConformance  string       `json:"pdf_conformance"`
	PDFFontSize     float64      `json:"pdf_font_size"`
	EmbeddedFont    string       `json:"embedded_font_path"`
	ToolLabel       string       `json:"tool_label"`
	METSPath        string       `json:"mets_path"`
	InputDir        string       `json:"input_dir"`
	WorkDir         string       `json:"work_dir"`
	Steps           []StepConfig `json:"steps"`
}

// Load reads and parses a RunConfig from a JSON file at path.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.PDFFontSize == 0 {
		cfg.PDFFontSize = 12
	}
	return &cfg, nil
}
