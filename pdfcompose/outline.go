package pdfcompose

import (
	"github.com/archivian/derivate/builder"
	"github.com/archivian/derivate/mets"
)

// convertStructure turns a mets.StructureNode tree into a builder.Outline
// tree in the same order, targeting each node's 1-based page via PageIndex.
// Every entry uses a Fit-Bounding-Box destination (gotoLocalPage(page,
// FITB) per spec.md §4.6), not the coordinate-based XYZ destination.
func convertStructure(node *mets.StructureNode) builder.Outline {
	out := builder.Outline{
		Title:     node.Label,
		PageIndex: node.Page - 1,
		FitB:      true,
	}
	for _, child := range node.Children {
		out.Children = append(out.Children, convertStructure(child))
	}
	return out
}
