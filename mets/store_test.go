package mets

import (
	"strings"
	"testing"
	"time"
)

const sampleMETS = `<?xml version="1.0" encoding="UTF-8"?>
<mets:mets xmlns:mets="http://www.loc.gov/METS/" xmlns:mods="http://www.loc.gov/mods/v3" xmlns:xlink="http://www.w3.org/1999/xlink">
  <mets:dmdSec ID="DMDLOG_0001">
    <mets:mdWrap>
      <mets:xmlData>
        <mods:mods>
          <mods:recordInfo>
            <mods:recordIdentifier source="gbv-ppn">191092622</mods:recordIdentifier>
          </mods:recordInfo>
          <mods:identifier type="urn">urn:nbn:de:gbv:3:3-21437</mods:identifier>
          <mods:titleInfo>
            <mods:title>Ode In Solemni Panegyri</mods:title>
          </mods:titleInfo>
          <mods:name>
            <mods:namePart type="family">Bruehl</mods:namePart>
            <mods:displayForm>Bruehl</mods:displayForm>
            <mods:role>
              <mods:roleTerm type="code">aut</mods:roleTerm>
            </mods:role>
          </mods:name>
          <mods:originInfo eventType="publication">
            <mods:dateIssued>1731</mods:dateIssued>
          </mods:originInfo>
          <mods:accessCondition>public domain</mods:accessCondition>
        </mods:mods>
      </mets:xmlData>
    </mets:mdWrap>
  </mets:dmdSec>
  <mets:fileSec>
    <mets:fileGrp USE="MAX">
      <mets:file ID="MAX_0001"><mets:FLocat xlink:href="737434.jpg"/></mets:file>
      <mets:file ID="MAX_0002"><mets:FLocat xlink:href="737436.jpg"/></mets:file>
    </mets:fileGrp>
  </mets:fileSec>
  <mets:structMap TYPE="LOGICAL">
    <mets:div ID="log1" TYPE="monograph" DMDID="DMDLOG_0001" LABEL="Ode In Solemni Panegyri (full title)">
      <mets:div ID="log2" TYPE="title_page"/>
      <mets:div ID="log3" TYPE="chapter" LABEL="[Ode]"/>
    </mets:div>
  </mets:structMap>
  <mets:structMap TYPE="PHYSICAL">
    <mets:div ID="phys0" TYPE="physSequence">
      <mets:div ID="phys1" ORDER="1" TYPE="page" CONTENTIDS="urn:nbn:de:gbv:3:3-21437-p0001-0">
        <mets:fptr FILEID="MAX_0001"/>
      </mets:div>
      <mets:div ID="phys2" ORDER="2" TYPE="page" CONTENTIDS="urn:nbn:de:gbv:3:3-21437-p0002-8">
        <mets:fptr FILEID="MAX_0002"/>
      </mets:div>
    </mets:div>
  </mets:structMap>
  <mets:structLink>
    <mets:smLink xlink:from="log1" xlink:to="physroot"/>
    <mets:smLink xlink:from="log2" xlink:to="phys1"/>
    <mets:smLink xlink:from="log3" xlink:to="phys2"/>
  </mets:structLink>
</mets:mets>`

func loadSample(t *testing.T) *Store {
	t.Helper()
	doc, err := Parse([]byte(sampleMETS))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return NewStore(doc)
}

func TestDescriptiveData(t *testing.T) {
	s := loadSample(t)
	dd, err := s.DescriptiveData()
	if err != nil {
		t.Fatalf("DescriptiveData() error = %v", err)
	}
	if dd.Identifier != "191092622" {
		t.Errorf("Identifier = %q, want 191092622", dd.Identifier)
	}
	if dd.URN != "urn:nbn:de:gbv:3:3-21437" {
		t.Errorf("URN = %q", dd.URN)
	}
	if dd.Person != "Bruehl" {
		t.Errorf("Person = %q, want Bruehl", dd.Person)
	}
	if dd.YearPublished != "1731" {
		t.Errorf("YearPublished = %q, want 1731", dd.YearPublished)
	}
	if !strings.HasPrefix(dd.Title, "Ode In Solemni Panegyri") {
		t.Errorf("Title = %q", dd.Title)
	}
}

func TestPages(t *testing.T) {
	s := loadSample(t)
	pages, err := s.Pages()
	if err != nil {
		t.Fatalf("Pages() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("len(pages) = %d, want 2", len(pages))
	}
	if pages[0].Order != 1 || pages[0].FilePointer != "737434.jpg" {
		t.Errorf("pages[0] = %+v", pages[0])
	}
	if pages[1].GranularURN != "urn:nbn:de:gbv:3:3-21437-p0002-8" {
		t.Errorf("pages[1].GranularURN = %q", pages[1].GranularURN)
	}
}

func TestBuildStructureTree(t *testing.T) {
	s := loadSample(t)
	root, err := s.BuildStructureTree("fallback title", true)
	if err != nil {
		t.Fatalf("BuildStructureTree() error = %v", err)
	}
	if root.Page != 1 {
		t.Errorf("root.Page = %d, want 1", root.Page)
	}
	if len(root.Children) != 2 {
		t.Fatalf("len(root.Children) = %d, want 2", len(root.Children))
	}
	if root.Children[0].Label != "Titelblatt" || root.Children[0].Page != 1 {
		t.Errorf("children[0] = %+v", root.Children[0])
	}
	if root.Children[1].Label != "[Ode]" || root.Children[1].Page != 2 {
		t.Errorf("children[1] = %+v", root.Children[1])
	}
}

func TestEnrichPDFIsIdempotent(t *testing.T) {
	s := loadSample(t)
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)

	if err := s.EnrichPDF("191092622", "derivate-generator/1.0", now); err != nil {
		t.Fatalf("first EnrichPDF() error = %v", err)
	}
	if err := s.EnrichPDF("191092622", "derivate-generator/1.0", now); err != nil {
		t.Fatalf("second EnrichPDF() error = %v", err)
	}

	fileGrps := s.doc.Root.FindAll("fileGrp")
	downloadCount := 0
	for _, g := range fileGrps {
		if use, _ := g.Attr("USE"); use == "DOWNLOAD" {
			downloadCount++
		}
	}
	if downloadCount != 1 {
		t.Errorf("DOWNLOAD fileGrp count = %d, want 1", downloadCount)
	}

	container := findTopContainer(s.doc.Root)
	if container == nil {
		t.Fatal("no top container found")
	}
	fptrCount := 0
	for _, f := range container.ChildrenNamed("fptr") {
		if id, _ := f.Attr("FILEID"); id == "PDF_191092622" {
			fptrCount++
		}
	}
	if fptrCount != 1 {
		t.Errorf("fptr FILEID=PDF_191092622 count = %d, want 1", fptrCount)
	}
	if container.Children[0].Local != "fptr" {
		t.Errorf("first child of container = %q, want fptr", container.Children[0].Local)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	s := loadSample(t)
	out, err := s.doc.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("re-Parse() error = %v", err)
	}
	s2 := NewStore(reparsed)
	dd, err := s2.DescriptiveData()
	if err != nil {
		t.Fatalf("DescriptiveData() after round-trip error = %v", err)
	}
	if dd.Identifier != "191092622" {
		t.Errorf("round-tripped Identifier = %q", dd.Identifier)
	}
}
