// Package alto parses ALTO OCR XML into per-page text lines with pixel
// bounding boxes. Only the geometry and concatenated string content needed
// by the PDF text layer are extracted (HPOS, VPOS, WIDTH, HEIGHT, CONTENT);
// layout concerns ALTO also carries (styles, print space, illustrations) are
// not modelled.
package alto

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/archivian/derivate/derrors"
)

// Box is a pixel-space rectangle in the ALTO source's coordinate system.
type Box struct {
	X, Y, W, H int
}

// TextLine is one normalised, single-line run of OCR text with its bounds.
type TextLine struct {
	Text   string
	Bounds Box
}

// OcrPage is the per-page OCR projection consumed by the PDF composer.
type OcrPage struct {
	PageWidth  int
	PageHeight int
	Lines      []TextLine
}

// Parse decodes a single ALTO XML document into an OcrPage.
func Parse(data []byte) (*OcrPage, error) {
	var doc altoXML
	if err := unmarshalNamespaceStripped(data, &doc); err != nil {
		return nil, derrors.E(derrors.ParseError, "alto.Parse", err)
	}

	ps := doc.Layout.Page.PrintSpace
	page := &OcrPage{
		PageWidth:  doc.Layout.Page.Width,
		PageHeight: doc.Layout.Page.Height,
	}
	if page.PageWidth == 0 {
		page.PageWidth = ps.Width
	}
	if page.PageHeight == 0 {
		page.PageHeight = ps.Height
	}
	if page.PageWidth <= 0 || page.PageHeight <= 0 {
		return nil, derrors.E(derrors.ParseError, "alto.Parse", fmt.Errorf("page has non-positive dimensions (%d x %d)", page.PageWidth, page.PageHeight))
	}

	for _, block := range ps.TextBlocks {
		for _, tl := range block.TextLines {
			text := joinStrings(tl.Strings)
			if text == "" {
				continue
			}
			bounds := Box{X: tl.HPOS, Y: tl.VPOS, W: tl.Width, H: tl.Height}
			if bounds.W <= 0 || bounds.H <= 0 {
				bounds = unionStringBounds(tl.Strings)
			}
			page.Lines = append(page.Lines, TextLine{Text: text, Bounds: bounds})
		}
	}
	return page, nil
}

// Scale scales every line's bounds and the page dimensions by the same
// ratio, as required when the PDF composer reconciles OCR-space dimensions
// against the final image height.
func (p *OcrPage) Scale(ratio float64) {
	if ratio == 1 {
		return
	}
	p.PageWidth = int(round(float64(p.PageWidth) * ratio))
	p.PageHeight = int(round(float64(p.PageHeight) * ratio))
	for i := range p.Lines {
		b := p.Lines[i].Bounds
		p.Lines[i].Bounds = Box{
			X: int(round(float64(b.X) * ratio)),
			Y: int(round(float64(b.Y) * ratio)),
			W: int(round(float64(b.W) * ratio)),
			H: int(round(float64(b.H) * ratio)),
		}
	}
}

func round(f float64) float64 {
	if f < 0 {
		return f - 0.5
	}
	return f + 0.5
}

func joinStrings(strs []altoString) string {
	parts := make([]string, 0, len(strs))
	for _, s := range strs {
		c := strings.TrimSpace(s.Content)
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

func unionStringBounds(strs []altoString) Box {
	if len(strs) == 0 {
		return Box{}
	}
	minX, minY := strs[0].HPOS, strs[0].VPOS
	maxX, maxY := strs[0].HPOS+strs[0].Width, strs[0].VPOS+strs[0].Height
	for _, s := range strs[1:] {
		if s.HPOS < minX {
			minX = s.HPOS
		}
		if s.VPOS < minY {
			minY = s.VPOS
		}
		if r := s.HPOS + s.Width; r > maxX {
			maxX = r
		}
		if b := s.VPOS + s.Height; b > maxY {
			maxY = b
		}
	}
	return Box{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// altoXML is the minimal subset of the ALTO schema this reader needs.
type altoXML struct {
	Layout struct {
		Page struct {
			Width      int           `xml:"WIDTH,attr"`
			Height     int           `xml:"HEIGHT,attr"`
			PrintSpace altoPrintSpace `xml:"PrintSpace"`
		} `xml:"Page"`
	} `xml:"Layout"`
}

type altoPrintSpace struct {
	Width      int             `xml:"WIDTH,attr"`
	Height     int             `xml:"HEIGHT,attr"`
	TextBlocks []altoTextBlock `xml:"TextBlock"`
}

type altoTextBlock struct {
	TextLines []altoTextLine `xml:"TextLine"`
}

type altoTextLine struct {
	HPOS    int          `xml:"HPOS,attr"`
	VPOS    int          `xml:"VPOS,attr"`
	Width   int          `xml:"WIDTH,attr"`
	Height  int          `xml:"HEIGHT,attr"`
	Strings []altoString `xml:"String"`
}

type altoString struct {
	Content string `xml:"CONTENT,attr"`
	HPOS    int    `xml:"HPOS,attr"`
	VPOS    int    `xml:"VPOS,attr"`
	Width   int    `xml:"WIDTH,attr"`
	Height  int    `xml:"HEIGHT,attr"`
}

// unmarshalNamespaceStripped decodes ALTO XML after stripping namespace
// prefixes, so struct tags can name local element/attribute names without
// spelling out whichever alto namespace prefix the producing system chose.
func unmarshalNamespaceStripped(data []byte, v interface{}) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity
	return decodeWithNamespaceStripping(decoder, v)
}

func decodeWithNamespaceStripping(decoder *xml.Decoder, v interface{}) error {
	var tokens []xml.Token
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			t.Name.Local = stripNamespacePrefix(t.Name.Local)
			t.Name.Space = ""
			for i := range t.Attr {
				t.Attr[i].Name.Local = stripNamespacePrefix(t.Attr[i].Name.Local)
				t.Attr[i].Name.Space = ""
			}
			tok = t
		case xml.EndElement:
			t.Name.Local = stripNamespacePrefix(t.Name.Local)
			t.Name.Space = ""
			tok = t
		case xml.CharData:
			tok = xml.CharData(append([]byte(nil), t...))
		case xml.Comment:
			tok = xml.Comment(append([]byte(nil), t...))
		case xml.ProcInst:
			t.Inst = append([]byte(nil), t.Inst...)
			tok = t
		case xml.Directive:
			tok = xml.Directive(append([]byte(nil), t...))
		}
		tokens = append(tokens, tok)
	}

	var buf bytes.Buffer
	encoder := xml.NewEncoder(&buf)
	for _, tok := range tokens {
		if err := encoder.EncodeToken(tok); err != nil {
			return err
		}
	}
	if err := encoder.Flush(); err != nil {
		return err
	}
	return xml.Unmarshal(buf.Bytes(), v)
}

func stripNamespacePrefix(name string) string {
	if idx := strings.Index(name, ":"); idx != -1 {
		return name[idx+1:]
	}
	return name
}
