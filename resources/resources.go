// Package resources holds the packaged tool label/version string that METS
// enrichment records as the generating agent's name. The sRGB ICC profile
// PDF/A output intents embed is not here; it is
// compliance/pdfa.DefaultICCProfile.
package resources

import (
	_ "embed"
	"strings"
)

//go:embed toolinfo.txt
var toolInfoRaw string

// ToolLabel returns the packaged tool name/version string used as the METS
// agent name, loaded once at init time rather than re-read per enrichment.
func ToolLabel() string {
	return strings.TrimSpace(toolInfoRaw)
}
