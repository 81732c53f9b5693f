package mets

import (
	"fmt"
	"sort"
	"time"

	"github.com/archivian/derivate/derrors"
)

const (
	mdsURI   = "http://www.loc.gov/METS/"
	xlinkURI = "http://www.w3.org/1999/xlink"
)

// EnrichPDF records the generated PDF as a new DOWNLOAD file group and links
// it into the logical monograph/volume container, then adds an agent entry
// recording toolLabel as the generating software. now is injected rather
// than read from the clock at call time, per the "load once, inject" design
// note. EnrichPDF is safe to call more than once with the same identifier:
// repeated calls add at most one fileGrp USE="DOWNLOAD" and at most one fptr
// FILEID="PDF_<id>" per logical container.
func (s *Store) EnrichPDF(identifier, toolLabel string, now time.Time) error {
	root := s.doc.Root

	s.enrichAgent(root, identifier, toolLabel, now)

	fileID := "PDF_" + identifier
	if err := s.addDownloadFileGroup(root, identifier, fileID); err != nil {
		return err
	}
	if err := s.addFptrToTopContainer(root, fileID, true); err != nil {
		return err
	}
	return nil
}

func (s *Store) enrichAgent(root *Node, identifier, toolLabel string, now time.Time) {
	hdr := s.metsHdr(root, now)

	agent := &Node{Space: mdsURI, Local: "agent"}
	agent.SetAttr("TYPE", "OTHER")
	agent.SetAttr("ROLE", "OTHER")
	agent.SetAttr("OTHERTYPE", "SOFTWARE")
	agent.Children = append(agent.Children, &Node{Space: mdsURI, Local: "name", Text: toolLabel})
	note := fmt.Sprintf("PDF FileGroup for %s created at %s", identifier, now.Format(time.RFC3339))
	agent.Children = append(agent.Children, &Node{Space: mdsURI, Local: "note", Text: note})

	hdr.Children = append(hdr.Children, agent)
}

// metsHdr returns the document's metsHdr element, creating it (as the root's
// first child) if absent — the mets-model library the original relies on
// wipes an existing metsHdr when round-tripped, so the original takes pains
// to preserve it; here we simply reuse whatever is already there.
func (s *Store) metsHdr(root *Node, now time.Time) *Node {
	if hdr := root.Child("metsHdr"); hdr != nil {
		return hdr
	}
	hdr := &Node{Space: mdsURI, Local: "metsHdr"}
	hdr.SetAttr("CREATEDATE", now.UTC().Format(time.RFC3339))
	root.Children = append([]*Node{hdr}, root.Children...)
	return hdr
}

// addDownloadFileGroup inserts a fileGrp USE="DOWNLOAD" containing the new
// PDF file entry, unless one with the same file ID already exists.
func (s *Store) addDownloadFileGroup(root *Node, identifier, fileID string) error {
	fileSec := root.Child("fileSec")
	if fileSec == nil {
		return derrors.E(derrors.MetsWriteError, "mets.EnrichPDF", fmt.Errorf("document has no fileSec"))
	}
	for _, grp := range fileSec.ChildrenNamed("fileGrp") {
		if use, _ := grp.Attr("USE"); use != "DOWNLOAD" {
			continue
		}
		for _, f := range grp.ChildrenNamed("file") {
			if id, _ := f.Attr("ID"); id == fileID {
				return nil // already enriched
			}
		}
	}

	file := &Node{Space: mdsURI, Local: "file"}
	file.SetAttr("ID", fileID)
	flocat := &Node{Space: mdsURI, Local: "FLocat"}
	flocat.Attrs = append(flocat.Attrs, Attr{Space: xlinkURI, Local: "href", Value: identifier + ".pdf"})
	file.Children = append(file.Children, flocat)

	grp := &Node{Space: mdsURI, Local: "fileGrp"}
	grp.SetAttr("USE", "DOWNLOAD")
	grp.Children = append(grp.Children, file)

	fileSec.Children = append(fileSec.Children, grp)
	return nil
}

// addFptrToTopContainer inserts an fptr FILEID=fileID as the first child of
// the logical div whose TYPE is "monograph" or "volume", unless that
// container already references fileID. If reorder is true, the container's
// children are stably sorted so every fptr precedes every div.
func (s *Store) addFptrToTopContainer(root *Node, fileID string, reorder bool) error {
	container := findTopContainer(root)
	if container == nil {
		return derrors.E(derrors.MetsWriteError, "mets.EnrichPDF", fmt.Errorf("no logical monograph/volume container"))
	}

	for _, fptr := range container.ChildrenNamed("fptr") {
		if id, _ := fptr.Attr("FILEID"); id == fileID {
			return nil // already enriched
		}
	}

	fptr := &Node{Space: mdsURI, Local: "fptr"}
	fptr.SetAttr("FILEID", fileID)
	container.Children = append([]*Node{fptr}, container.Children...)

	if reorder {
		sortFptrBeforeDiv(container)
	}
	return nil
}

func findTopContainer(root *Node) *Node {
	for _, div := range root.FindAll("div") {
		if t, _ := div.Attr("TYPE"); t == "monograph" || t == "volume" {
			return div
		}
	}
	return nil
}

// sortFptrBeforeDiv stably reorders children so all fptr elements precede
// all div elements, leaving relative order within each group unchanged.
func sortFptrBeforeDiv(container *Node) {
	sort.SliceStable(container.Children, func(i, j int) bool {
		return rank(container.Children[i]) < rank(container.Children[j])
	})
}

func rank(n *Node) int {
	if n.Local == "fptr" {
		return 0
	}
	return 1
}
