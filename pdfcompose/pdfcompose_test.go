package pdfcompose

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/archivian/derivate/alto"
	"github.com/archivian/derivate/builder"
	"github.com/archivian/derivate/compliance/pdfa"
	"github.com/archivian/derivate/contentstream"
	"github.com/archivian/derivate/ir/semantic"
	"github.com/archivian/derivate/mets"
)

func writeBlankJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 200})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// S2 "only images": a run with no OCR and no structure tree produces a PDF
// with one page per input image and no outline.
func TestComposeOnlyImages(t *testing.T) {
	dir := t.TempDir()
	names := []string{"a.jpg", "b.jpg"}
	var pages []Page
	for _, name := range names {
		p := filepath.Join(dir, name)
		writeBlankJPEG(t, p, 100, 150)
		pages = append(pages, Page{ImagePath: p})
	}

	out := filepath.Join(dir, "only_images.pdf")
	ok, err := Compose(out, pages, nil, nil, Options{ToolLabel: "derivate-generator/1.0"})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if ok {
		t.Fatalf("Compose() ok = true, want false (no outline built)")
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output PDF not written: %v", err)
	}
}

// S1 "737429 defaults": composing with descriptive data and a structure
// tree produces a PDF and reports ok, with the outline built from structure.
func TestComposeWithStructure(t *testing.T) {
	dir := t.TempDir()
	var pages []Page
	for _, name := range []string{"737434.jpg", "737436.jpg"} {
		p := filepath.Join(dir, name)
		writeBlankJPEG(t, p, 100, 150)
		pages = append(pages, Page{ImagePath: p})
	}

	desc := &mets.DescriptiveData{
		Identifier:    "191092622",
		URN:           "urn:nbn:de:gbv:3:3-21437",
		Title:         "Ode In Solemni Panegyri (full title)",
		Person:        "Bruehl",
		YearPublished: "1731",
	}
	structure := &mets.StructureNode{
		Label: "Ode In Solemni Panegyri (full title)",
		Page:  1,
		Children: []*mets.StructureNode{
			{Label: "Titelblatt", Page: 1},
			{Label: "[Ode]", Page: 2},
		},
	}

	out := filepath.Join(dir, "191092622.pdf")
	ok, err := Compose(out, pages, desc, structure, Options{ToolLabel: "derivate-generator/1.0"})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !ok {
		t.Fatal("Compose() ok = false, want true")
	}
}

func TestComposeRejectsEmptyPages(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "empty.pdf")
	if _, err := Compose(out, nil, nil, nil, Options{}); err == nil {
		t.Fatal("expected error composing zero pages")
	}
}

func TestComposeRequiresEmbeddedFontForConformance(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.jpg")
	writeBlankJPEG(t, p, 100, 100)

	level := pdfa.PDFA1B
	out := filepath.Join(dir, "a.pdf")
	_, err := Compose(out, []Page{{ImagePath: p}}, nil, nil, Options{Conformance: &level})
	if err == nil {
		t.Fatal("expected error: PDF/A conformance requested with no embedded font path")
	}
}

// convertStructure must build every outline node with a Fit-Bounding-Box
// destination, per spec.md §4.6, not the coordinate-based XYZ destination.
func TestConvertStructureUsesFitB(t *testing.T) {
	node := &mets.StructureNode{
		Label: "Ode In Solemni Panegyri",
		Page:  1,
		Children: []*mets.StructureNode{
			{Label: "Titelblatt", Page: 1},
			{Label: "[Ode]", Page: 2},
		},
	}

	out := convertStructure(node)
	if !out.FitB {
		t.Error("root outline FitB = false, want true")
	}
	if out.PageIndex != 0 {
		t.Errorf("root PageIndex = %d, want 0", out.PageIndex)
	}
	if len(out.Children) != 2 {
		t.Fatalf("len(Children) = %d, want 2", len(out.Children))
	}
	if !out.Children[0].FitB || out.Children[0].PageIndex != 0 {
		t.Errorf("children[0] = %+v", out.Children[0])
	}
	if !out.Children[1].FitB || out.Children[1].PageIndex != 1 {
		t.Errorf("children[1] = %+v", out.Children[1])
	}
	if out.Children[0].Title != "Titelblatt" || out.Children[1].Title != "[Ode]" {
		t.Errorf("titles = %q, %q", out.Children[0].Title, out.Children[1].Title)
	}
}

func TestFitFontSizeShrinksToFitWidth(t *testing.T) {
	text := "a very long line of ocr text that should not fit in a narrow box"
	size := fitFontSize(nil, text, 20, 40)
	if size < 1 {
		t.Fatalf("fitFontSize() = %v, want >= 1 (floor)", size)
	}
	if size >= 40 {
		t.Fatalf("fitFontSize() = %v, expected it to shrink below the starting bounds height 40", size)
	}
}

func TestFitFontSizeFloorsAtOne(t *testing.T) {
	size := fitFontSize(nil, "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", 1, 2)
	if size != 1 {
		t.Fatalf("fitFontSize() = %v, want 1 (floor)", size)
	}
}

// drawnText records one DrawText call observed by recordingPage.
type drawnText struct {
	text       string
	x, y       float64
	renderMode contentstream.TextRenderMode
}

// recordingPage is a minimal builder.PageBuilder fake that only records
// DrawText calls; every other method is a no-op returning the receiver.
type recordingPage struct {
	drawn []drawnText
}

func (p *recordingPage) DrawText(text string, x, y float64, opts builder.TextOptions) builder.PageBuilder {
	p.drawn = append(p.drawn, drawnText{text: text, x: x, y: y, renderMode: opts.RenderMode})
	return p
}
func (p *recordingPage) DrawPath(path *contentstream.Path, opts builder.PathOptions) builder.PageBuilder {
	return p
}
func (p *recordingPage) DrawImage(img *semantic.Image, x, y, width, height float64, opts builder.ImageOptions) builder.PageBuilder {
	return p
}
func (p *recordingPage) DrawRectangle(x, y, width, height float64, opts builder.RectOptions) builder.PageBuilder {
	return p
}
func (p *recordingPage) DrawLine(x1, y1, x2, y2 float64, opts builder.LineOptions) builder.PageBuilder {
	return p
}
func (p *recordingPage) AddAnnotation(ann *semantic.Annotation) builder.PageBuilder { return p }
func (p *recordingPage) SetMediaBox(box semantic.Rectangle) builder.PageBuilder     { return p }
func (p *recordingPage) SetCropBox(box semantic.Rectangle) builder.PageBuilder      { return p }
func (p *recordingPage) SetRotation(degrees int) builder.PageBuilder                { return p }
func (p *recordingPage) Finish() builder.PDFBuilder                                 { return nil }

// S3-style scaling: a text layer whose ALTO page height doesn't match the
// final image height (footer band added below the scanned content) must be
// rescaled, and every drawn line must land within [0,page_w] x [0,page_h].
func TestDrawTextLayerScalesAndStaysInBounds(t *testing.T) {
	ocr := &alto.OcrPage{
		PageWidth:  2164,
		PageHeight: 2448,
		Lines: []alto.TextLine{
			{Text: "Ode In Solemni", Bounds: alto.Box{X: 100, Y: 200, W: 800, H: 40}},
		},
	}

	rec := &recordingPage{}
	imageHeight := 1224.0 // half of PageHeight: forces a 0.5 scale
	drawTextLayer(rec, ocr, imageHeight, 0, "", nil)

	if len(rec.drawn) != 1 {
		t.Fatalf("len(drawn) = %d, want 1", len(rec.drawn))
	}
	got := rec.drawn[0]
	if got.renderMode != contentstream.TextInvisible {
		t.Errorf("renderMode = %v, want TextInvisible", got.renderMode)
	}
	if got.x < 0 || got.x > float64(ocr.PageWidth) {
		t.Errorf("x = %v, out of [0, pageWidth]", got.x)
	}
	if got.y < 0 || got.y > imageHeight {
		t.Errorf("y = %v, out of [0, imageHeight]", got.y)
	}
}

func TestDrawTextLayerSkipsEmptyLines(t *testing.T) {
	ocr := &alto.OcrPage{
		PageWidth:  100,
		PageHeight: 100,
		Lines: []alto.TextLine{
			{Text: "", Bounds: alto.Box{X: 0, Y: 0, W: 10, H: 10}},
		},
	}
	rec := &recordingPage{}
	drawTextLayer(rec, ocr, 100, 0, "", nil)
	if len(rec.drawn) != 0 {
		t.Fatalf("len(drawn) = %d, want 0 for a blank text line", len(rec.drawn))
	}
}
