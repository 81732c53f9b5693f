package mets

import (
	"fmt"

	"github.com/archivian/derivate/derrors"
)

// logicalTypeLabels maps a logical div's @TYPE to its German display label.
// An unmapped type is left out of the map; the mapper treats the zero value
// ("", ok=false) as "drop", per the spec's static compile-time dictionary
// design note.
var logicalTypeLabels = map[string]string{
	"cover_front":        "Vorderdeckel",
	"cover_back":          "Rückdeckel",
	"title_page":          "Titelblatt",
	"preface":             "Vorwort",
	"dedication":           "Widmung",
	"illustration":        "Illustration",
	"image":                "Bild",
	"table":                "Tabelle",
	"contents":             "Inhaltsverzeichnis",
	"engraved_titlepage":  "Kupfertitel",
	"map":                  "Karte",
	"imprint":              "Impressum",
	"corrigenda":           "Errata",
	"section":              "Abschnitt",
	"provenance":           "Besitznachweis",
	"bookplate":            "Exlibris",
	"entry":                "Eintrag",
	"printers_mark":       "Druckermarke",
	"chapter":              "Kapitel",
	"index":                "Register",
	"volume":               "Band",
}

const physicalRootTarget = "physroot"

// BuildStructureTree builds the logical outline tree from the parsed
// document, resolving logical→physical links via the structLink map.
// fallbackTitle is used as the root label when the root div has no label or
// orderLabel. renderLeaves enables the "plain leaves" rule (§4.4): pages
// linked from a non-top-level logical container beyond its first linked
// page, but never beneath top-level containers (volume/monograph).
func (s *Store) BuildStructureTree(fallbackTitle string, renderLeaves bool) (*StructureNode, error) {
	logRoot := s.logicalRoot()
	if logRoot == nil {
		return nil, derrors.E(derrors.StructureError, "mets.BuildStructureTree", fmt.Errorf("mets is missing logical structMap"))
	}

	root := &StructureNode{Page: 1}
	if label, ok := logRoot.Attr("LABEL"); ok && label != "" {
		root.Label = label
	} else if label, ok := logRoot.Attr("ORDERLABEL"); ok && label != "" {
		root.Label = label
	} else {
		root.Label = fallbackTitle
	}

	links := s.structLinks()
	physByID := s.physicalDivsByID()

	for _, child := range logRoot.ChildrenNamed("div") {
		if t, ok := child.Attr("TYPE"); !ok || t == "" {
			continue
		}
		sub, err := s.extendStructure(child, links, physByID, renderLeaves)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			continue
		}
		root.Children = append(root.Children, sub)
	}

	clearStructure(root)
	return root, nil
}

// extendStructure returns a nil node (and nil error) when logDiv resolves to
// an empty label — an unmapped @TYPE with no LABEL/ORDERLABEL — per spec.md
// §4.4: such a div yields a null label and the node is discarded upstream.
func (s *Store) extendStructure(logDiv *Node, links map[string][]string, physByID map[string]*Node, renderLeaves bool) (*StructureNode, error) {
	label := logicalLabel(logDiv)
	if label == "" {
		return nil, nil
	}
	node := &StructureNode{Label: label}

	order, leafTargets, err := s.mapLogicalDivToPhysicalSequence(logDiv, links, physByID)
	if err != nil {
		return nil, err
	}
	node.Page = order

	if renderLeaves {
		for _, target := range leafTargets {
			phys := physByID[target]
			if phys == nil {
				continue
			}
			label, err := physicalLabel(phys)
			if err != nil {
				return nil, err
			}
			order, err := parseOrder(mustAttr(phys, "ORDER"))
			if err != nil {
				return nil, derrors.E(derrors.StructureError, "mets.extendStructure", err)
			}
			node.Children = append(node.Children, &StructureNode{Label: label, Page: order})
		}
	}

	for _, child := range logDiv.ChildrenNamed("div") {
		if t, ok := child.Attr("TYPE"); !ok || t == "" {
			continue
		}
		sub, err := s.extendStructure(child, links, physByID, renderLeaves)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			continue
		}
		node.Children = append(node.Children, sub)
	}
	return node, nil
}

// mapLogicalDivToPhysicalSequence resolves the page order for a logical div
// via its first structLink, and (unless it is a top-level container) the
// list of the further physical targets linked from it after that first one,
// for optional leaf rendering.
func (s *Store) mapLogicalDivToPhysicalSequence(logDiv *Node, links map[string][]string, physByID map[string]*Node) (int, []string, error) {
	logID, _ := logDiv.Attr("ID")
	targets := links[logID]
	if len(targets) == 0 {
		typ, _ := logDiv.Attr("TYPE")
		label, _ := logDiv.Attr("LABEL")
		return 0, nil, derrors.E(derrors.StructureError, "mets.mapLogicalDivToPhysicalSequence",
			fmt.Errorf("no physical struct linked from '%s@%s(%s)'", logID, typ, label))
	}

	physID := targets[0]
	if physID == physicalRootTarget {
		return 1, nil, nil
	}

	phys := physByID[physID]
	if phys == nil {
		return 0, nil, derrors.E(derrors.StructureError, "mets.mapLogicalDivToPhysicalSequence", fmt.Errorf("invalid physical struct %q", physID))
	}
	orderStr, ok := phys.Attr("ORDER")
	if !ok {
		return 0, nil, derrors.E(derrors.StructureError, "mets.mapLogicalDivToPhysicalSequence", fmt.Errorf("no order for %s", logID))
	}
	order, err := parseOrder(orderStr)
	if err != nil {
		return 0, nil, derrors.E(derrors.StructureError, "mets.mapLogicalDivToPhysicalSequence", err)
	}

	var leafTargets []string
	if !isTopLogicalContainer(logDiv) {
		leafTargets = targets[1:]
	}
	return order, leafTargets, nil
}

func isTopLogicalContainer(logDiv *Node) bool {
	t, _ := logDiv.Attr("TYPE")
	return t == "volume" || t == "monograph"
}

func logicalLabel(logDiv *Node) string {
	if label, ok := logDiv.Attr("LABEL"); ok && label != "" {
		return label
	}
	if label, ok := logDiv.Attr("ORDERLABEL"); ok && label != "" {
		return label
	}
	typ, _ := logDiv.Attr("TYPE")
	if mapped, ok := logicalTypeLabels[typ]; ok {
		return mapped
	}
	return ""
}

func physicalLabel(phys *Node) (string, error) {
	if label, ok := phys.Attr("LABEL"); ok && label != "" {
		return label, nil
	}
	if label, ok := phys.Attr("ORDERLABEL"); ok && label != "" {
		return label, nil
	}
	id, _ := phys.Attr("ID")
	return "", derrors.E(derrors.StructureError, "mets.physicalLabel", fmt.Errorf("no valid labelling for page %q", id))
}

func mustAttr(n *Node, local string) string {
	v, _ := n.Attr(local)
	return v
}

// structLinks maps a logical div @ID to the ordered list of physical
// @ID/"physroot" targets linked from it via smLink.
func (s *Store) structLinks() map[string][]string {
	out := make(map[string][]string)
	for _, link := range s.doc.Root.FindAll("smLink") {
		from, _ := link.Attr("from")
		to, _ := link.Attr("to")
		if from == "" || to == "" {
			continue
		}
		out[from] = append(out[from], to)
	}
	return out
}

func (s *Store) physicalDivsByID() map[string]*Node {
	out := make(map[string]*Node)
	physRoot := s.physicalRoot()
	if physRoot == nil {
		return out
	}
	for _, div := range physRoot.FindAll("div") {
		if id, ok := div.Attr("ID"); ok {
			out[id] = div
		}
	}
	return out
}

// clearStructure recursively drops any subtree whose Page is the sentinel
// -1 (an unresolved link), matching the post-pass in the original mapper.
func clearStructure(node *StructureNode) {
	kept := node.Children[:0]
	for _, child := range node.Children {
		if child.Page == -1 {
			continue
		}
		clearStructure(child)
		kept = append(kept, child)
	}
	node.Children = kept
}
