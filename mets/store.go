package mets

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/archivian/derivate/derrors"
)

const unknown = "n.a."

// Store wraps a parsed METS/MODS document and exposes the three read-only
// projections the rest of the pipeline needs: descriptive data, the
// physical page sequence, and (via structure.go) the logical structure tree.
type Store struct {
	doc *Document
}

// Load parses the METS file at path.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, derrors.E(derrors.InputMissingError, "mets.Load", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, derrors.E(derrors.ParseError, "mets.Load", err)
	}
	return &Store{doc: doc}, nil
}

// NewStore wraps an already-parsed document, for callers (tests, enrichment
// round-trips) that hold a Document directly.
func NewStore(doc *Document) *Store { return &Store{doc: doc} }

// Document returns the underlying parsed document, for enrichment.
func (s *Store) Document() *Document { return s.doc }

// primaryMods locates the MODS section linked from the logical root
// container's DMDID, falling back to the first subdivision that carries a
// DMDID for multivolume works.
func (s *Store) primaryMods() *Node {
	logRoot := s.logicalRoot()
	if logRoot == nil {
		return nil
	}
	dmdID, ok := logRoot.Attr("DMDID")
	if !ok {
		for _, child := range logRoot.ChildrenNamed("div") {
			if id, ok := child.Attr("DMDID"); ok {
				dmdID = id
				break
			}
		}
	}
	if dmdID == "" {
		return nil
	}
	for _, dmdSec := range s.doc.Root.FindAll("dmdSec") {
		if id, _ := dmdSec.Attr("ID"); id == dmdID {
			if wrap := dmdSec.Child("mdWrap"); wrap != nil {
				if xmlData := wrap.Child("xmlData"); xmlData != nil {
					return xmlData.Child("mods")
				}
			}
		}
	}
	return nil
}

// logicalRoot returns the root div of the logical structMap.
func (s *Store) logicalRoot() *Node {
	for _, sm := range s.doc.Root.FindAll("structMap") {
		if t, _ := sm.Attr("TYPE"); strings.EqualFold(t, "LOGICAL") {
			return sm.Child("div")
		}
	}
	return nil
}

// physicalRoot returns the root div of the physical structMap.
func (s *Store) physicalRoot() *Node {
	for _, sm := range s.doc.Root.FindAll("structMap") {
		if t, _ := sm.Attr("TYPE"); strings.EqualFold(t, "PHYSICAL") {
			return sm.Child("div")
		}
	}
	return nil
}

// DescriptiveData extracts the flattened descriptive metadata projection.
// Missing values default to the "n.a." sentinel; a resolved YearPublished of
// "n.a." is coerced to "0".
func (s *Store) DescriptiveData() (*DescriptiveData, error) {
	dd := &DescriptiveData{
		URN: unknown, Identifier: unknown, Title: unknown,
		Person: unknown, YearPublished: unknown, License: unknown,
	}
	mods := s.primaryMods()
	if mods == nil {
		dd.YearPublished = "0"
		return dd, nil
	}

	if id, err := s.loadIdentifier(mods); err == nil {
		dd.Identifier = id
	} else {
		return nil, err
	}
	dd.URN = urnFrom(mods)
	dd.Title = titleFrom(mods)
	dd.Person = personFrom(mods)
	dd.License = accessConditionFrom(mods)
	dd.YearPublished = yearFrom(mods)
	if dd.YearPublished == unknown {
		dd.YearPublished = "0"
	}
	return dd, nil
}

func (s *Store) loadIdentifier(mods *Node) (string, error) {
	recordInfo := mods.Child("recordInfo")
	if recordInfo == nil {
		return unknown, nil
	}
	for _, ident := range recordInfo.ChildrenNamed("recordIdentifier") {
		if _, ok := ident.Attr("source"); ok {
			return strings.TrimSpace(ident.Text), nil
		}
	}
	return "", derrors.E(derrors.ParseError, "mets.loadIdentifier", fmt.Errorf("found no valid recordIdentifier"))
}

func urnFrom(mods *Node) string {
	for _, ident := range mods.ChildrenNamed("identifier") {
		if t, _ := ident.Attr("type"); t == "urn" {
			return normalize(ident.Text)
		}
	}
	return unknown
}

func titleFrom(mods *Node) string {
	titleInfo := mods.Child("titleInfo")
	if titleInfo == nil {
		return unknown
	}
	title := titleInfo.Child("title")
	if title == nil {
		return unknown
	}
	return normalize(title.Text)
}

func accessConditionFrom(mods *Node) string {
	cond := mods.Child("accessCondition")
	if cond == nil {
		return unknown
	}
	return normalize(cond.Text)
}

func yearFrom(mods *Node) string {
	for _, oi := range mods.ChildrenNamed("originInfo") {
		if t, ok := oi.Attr("eventType"); ok && strings.EqualFold(t, "publication") {
			if issued := oi.Child("dateIssued"); issued != nil {
				return normalize(issued.Text)
			}
		}
	}
	if oi := mods.Child("originInfo"); oi != nil {
		if issued := oi.Child("dateIssued"); issued != nil {
			return normalize(issued.Text)
		}
	}
	return unknown
}

// marcRelator is the MARC relator code a mods:name's role resolves to.
type marcRelator int

const (
	relatorOther marcRelator = iota
	relatorAuthor
	relatorPublisher
)

func relatorForCode(code string) marcRelator {
	switch code {
	case "aut":
		return relatorAuthor
	case "pbl":
		return relatorPublisher
	default:
		return relatorOther
	}
}

// personFrom resolves the display name of the first mods:name whose role is
// "aut", else the first whose role is "pbl". Within the chosen name,
// mods:displayForm is preferred over mods:namePart[@type=family].
func personFrom(mods *Node) string {
	var authors, publishers []*Node
	for _, name := range mods.ChildrenNamed("name") {
		role := name.Child("role")
		if role == nil {
			continue
		}
		for _, term := range role.ChildrenNamed("roleTerm") {
			if t, _ := term.Attr("type"); t != "code" {
				continue
			}
			switch relatorForCode(normalize(term.Text)) {
			case relatorAuthor:
				authors = append(authors, name)
			case relatorPublisher:
				publishers = append(publishers, name)
			}
		}
	}
	if len(authors) > 0 {
		return someName(authors)
	}
	if len(publishers) > 0 {
		return someName(publishers)
	}
	return unknown
}

func someName(names []*Node) string {
	for _, n := range names {
		if df := n.Child("displayForm"); df != nil {
			return normalize(df.Text)
		}
		for _, np := range n.ChildrenNamed("namePart") {
			if t, _ := np.Attr("type"); t == "family" {
				return normalize(np.Text)
			}
		}
	}
	return unknown
}

func normalize(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return unknown
	}
	return strings.Join(fields, " ")
}

// Pages returns the physical page sequence, ordered by the div's ORDER
// attribute (divs with equal ORDER keep their document order). ORDER values
// are used as given: they are not checked to start at 1 or to be contiguous.
func (s *Store) Pages() ([]DigitalPage, error) {
	physRoot := s.physicalRoot()
	if physRoot == nil {
		return nil, derrors.E(derrors.StructureError, "mets.Pages", fmt.Errorf("no physical structMap"))
	}
	fileLocations := s.fileLocations()

	divs := physRoot.ChildrenNamed("div")
	pages := make([]DigitalPage, 0, len(divs))
	for _, div := range divs {
		orderStr, ok := div.Attr("ORDER")
		if !ok {
			return nil, derrors.E(derrors.StructureError, "mets.Pages", fmt.Errorf("physical div missing ORDER"))
		}
		order, err := parseOrder(orderStr)
		if err != nil {
			return nil, derrors.E(derrors.StructureError, "mets.Pages", err)
		}
		var fileID string
		if fptr := div.Child("fptr"); fptr != nil {
			fileID, _ = fptr.Attr("FILEID")
		}
		filename := fileLocations[fileID]
		granular, _ := div.Attr("CONTENTIDS")
		pages = append(pages, DigitalPage{
			Order:       order,
			FilePointer: filename,
			GranularURN: granular,
		})
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Order < pages[j].Order })
	return pages, nil
}

// fileLocations maps a file @ID in the MAX/DEFAULT file group to its
// FLocat href basename.
func (s *Store) fileLocations() map[string]string {
	out := make(map[string]string)
	for _, grp := range s.doc.Root.FindAll("fileGrp") {
		use, _ := grp.Attr("USE")
		if !strings.EqualFold(use, "MAX") && !strings.EqualFold(use, "DEFAULT") {
			continue
		}
		for _, f := range grp.ChildrenNamed("file") {
			id, _ := f.Attr("ID")
			loc := f.Child("FLocat")
			if loc == nil {
				continue
			}
			href, _ := loc.Attr("href")
			out[id] = basename(href)
		}
	}
	return out
}

func basename(href string) string {
	if idx := strings.LastIndexByte(href, '/'); idx != -1 {
		return href[idx+1:]
	}
	return href
}

func parseOrder(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid ORDER %q", s)
	}
	return n, nil
}
