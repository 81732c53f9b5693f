// Package pdfcompose assembles the final PDF/A (or plain PDF) derivative:
// one page per source image, an optional invisible OCR text layer, document
// metadata, and an outline built from the METS structure tree.
package pdfcompose

import (
	"context"
	"fmt"
	"os"

	"github.com/archivian/derivate/alto"
	"github.com/archivian/derivate/builder"
	"github.com/archivian/derivate/compliance/pdfa"
	"github.com/archivian/derivate/contentstream"
	"github.com/archivian/derivate/derrors"
	"github.com/archivian/derivate/fonts"
	"github.com/archivian/derivate/ir/semantic"
	"github.com/archivian/derivate/mets"
	"github.com/archivian/derivate/writer"
)

// Page is a single page's composition inputs: the final derivative image
// on disk, the footer band height added below the original image content
// (if any), and the OCR text layer (if any).
type Page struct {
	ImagePath    string
	FooterHeight int
	OCR          *alto.OcrPage
}

// Options configures PDF/A enforcement and the embedded text-layer font.
type Options struct {
	// Conformance is nil for a plain PDF; set for PDF/A output.
	Conformance *pdfa.Level
	// ICCProfile is the output-intent destination profile for PDF/A mode.
	// Defaults to pdfa.DefaultICCProfile when empty.
	ICCProfile []byte
	// EmbeddedFontPath is a TrueType font file (FreeMonoBold per spec) to
	// embed for the OCR text layer in PDF/A mode. Required when Conformance
	// is set: PDF/A forbids non-embedded fonts, and no font file ships in
	// this module, so the caller (via config) must point at one on disk.
	EmbeddedFontPath string
	// ToolLabel is recorded as the document Producer.
	ToolLabel string
}

const embeddedFontName = "FreeMonoBold"

// Compose writes a PDF to path. ok is true iff every page was written and
// the outline was built from structure.
func Compose(path string, pages []Page, desc *mets.DescriptiveData, structure *mets.StructureNode, opts Options) (ok bool, err error) {
	if len(pages) == 0 {
		return false, derrors.E(derrors.PdfError, "pdfcompose.Compose", fmt.Errorf("no pages to compose"))
	}

	pb := builder.NewBuilder()

	fontName, textFont, err := registerTextLayerFont(pb, opts)
	if err != nil {
		return false, derrors.E(derrors.PdfError, "pdfcompose.Compose", err)
	}

	for _, page := range pages {
		img, err := builder.ImageFromFile(page.ImagePath)
		if err != nil {
			return false, derrors.E(derrors.PdfError, "pdfcompose.Compose", err)
		}
		w, h := float64(img.Width), float64(img.Height)

		pg := pb.NewPage(w, h)
		pg.DrawImage(img, 0, 0, w, h, builder.ImageOptions{})

		if page.OCR != nil {
			drawTextLayer(pg, page.OCR, h, float64(page.FooterHeight), fontName, textFont)
		}
		pg.Finish()
	}

	pb.SetInfo(documentInfo(desc, opts.ToolLabel))
	pb.SetMetadata(buildXMP(desc))
	pb.SetLanguage("de")

	outlineBuilt := false
	if structure != nil {
		pb.AddOutline(convertStructure(structure))
		outlineBuilt = true
	}

	doc, err := pb.Build()
	if err != nil {
		return false, derrors.E(derrors.PdfError, "pdfcompose.Compose", err)
	}

	cfg := writer.Config{Version: writer.PDF17, XRefStreams: true}
	if opts.Conformance != nil {
		profile := opts.ICCProfile
		if len(profile) == 0 {
			profile = pdfa.DefaultICCProfile
		}
		doc.OutputIntents = []semantic.OutputIntent{{
			S:                         "GTS_PDFA1",
			OutputConditionIdentifier: "sRGB IEC61966-2.1",
			Info:                      "sRGB IEC61966-2.1",
			DestOutputProfile:         profile,
		}}
		if err := pdfa.NewEnforcer().Enforce(context.Background(), doc, *opts.Conformance); err != nil {
			return false, derrors.E(derrors.PdfError, "pdfcompose.Compose", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return false, derrors.E(derrors.PdfError, "pdfcompose.Compose", err)
	}
	defer f.Close()

	if err := writer.NewWriter().Write(backgroundContext{}, doc, f, cfg); err != nil {
		return false, derrors.E(derrors.PdfError, "pdfcompose.Compose", err)
	}

	return len(doc.Pages) == len(pages) && outlineBuilt, nil
}

// registerTextLayerFont registers the embedded TrueType font for PDF/A mode
// and returns it for width measurement, or ("", nil) to signal that the
// built-in Helvetica (measured via fonts.MeasureWidth's fallback table)
// should be used.
func registerTextLayerFont(pb builder.PDFBuilder, opts Options) (name string, font *semantic.Font, err error) {
	if opts.Conformance == nil {
		return "", nil, nil
	}
	if opts.EmbeddedFontPath == "" {
		return "", nil, fmt.Errorf("PDF/A conformance requested but no embedded font path configured")
	}
	data, err := os.ReadFile(opts.EmbeddedFontPath)
	if err != nil {
		return "", nil, fmt.Errorf("read embedded font: %w", err)
	}
	loaded, err := fonts.LoadTrueType(embeddedFontName, data)
	if err != nil {
		return "", nil, fmt.Errorf("load embedded font: %w", err)
	}
	pb.RegisterFont(embeddedFontName, loaded)
	return embeddedFontName, loaded, nil
}

func drawTextLayer(pg builder.PageBuilder, ocr *alto.OcrPage, imageHeight, footerHeight float64, fontName string, font *semantic.Font) {
	pageHeightOCR := float64(ocr.PageHeight) + footerHeight
	ratio := 1.0
	if pageHeightOCR > 0 {
		ratio = imageHeight / pageHeightOCR
	}
	scaled := ocr
	if absFloat(1-ratio) > 0.01 {
		s := *ocr
		lines := make([]alto.TextLine, len(ocr.Lines))
		copy(lines, ocr.Lines)
		s.Lines = lines
		s.Scale(ratio)
		scaled = &s
	}

	for _, line := range scaled.Lines {
		if line.Text == "" {
			continue
		}
		boundsW := float64(line.Bounds.W)
		boundsH := float64(line.Bounds.H)
		size := fitFontSize(font, line.Text, boundsW, boundsH)
		x := float64(line.Bounds.X)
		y := imageHeight - float64(line.Bounds.Y+line.Bounds.H) - size

		pg.DrawText(line.Text, x, y, builder.TextOptions{
			Font:       fontName,
			FontSize:   size,
			RenderMode: contentstream.TextInvisible,
		})
	}
}

// fitFontSize starts from font.width(text)/1000 * bounds.height and steps
// down by 3 until the rendered width fits within bounds.width, floored at 1.
func fitFontSize(font *semantic.Font, text string, boundsWidth, boundsHeight float64) float64 {
	widthPerEm := fonts.MeasureWidth(font, text)
	size := widthPerEm / 1000 * boundsHeight
	for size > 1 {
		rendered := widthPerEm / 1000 * size
		if rendered <= boundsWidth {
			break
		}
		size -= 3
	}
	if size < 1 {
		size = 1
	}
	return size
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func documentInfo(desc *mets.DescriptiveData, toolLabel string) *semantic.DocumentInfo {
	info := &semantic.DocumentInfo{
		Producer: toolLabel,
		Custom:   map[string]string{},
	}
	if desc == nil {
		return info
	}
	info.Title = desc.Title
	info.Author = desc.Person
	if desc.Creator != "" {
		info.Creator = desc.Creator
	}
	if desc.Keywords != "" {
		info.Keywords = []string{desc.Keywords}
	}
	if desc.License != "" {
		info.Custom["Access condition"] = desc.License
	}
	if desc.YearPublished != "" {
		info.Custom["Published"] = desc.YearPublished
	}
	return info
}

type backgroundContext struct{}

func (backgroundContext) Done() <-chan struct{} { return nil }
