// Package footer renders the per-page footer band appended below each
// derivative page image: a template text block plus an optional granular
// identifier line.
package footer

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync/atomic"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	imaging "github.com/archivian/derivate/imaging"
	"github.com/archivian/derivate/observability"
)

const (
	lineHeight   = 16
	marginTop    = 6
	minBandHeight = 25
)

// Renderer pre-renders the template band once and clones it per page,
// overlaying each page's granular identifier line when present.
type Renderer struct {
	template string
	base     *image.RGBA
	face     font.Face
	logger   observability.Logger
	seen     atomic.Int64
}

// NewRenderer pre-renders the base band (white background, centred black
// wrapped text) for the given template and target width.
func NewRenderer(template string, width int, logger observability.Logger) *Renderer {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	face := basicfont.Face7x13
	lines := wrap(template, width, face)

	height := marginTop*2 + len(lines)*lineHeight
	if height < minBandHeight {
		height = minBandHeight
	}
	base := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(base, base.Bounds(), image.White, image.Point{}, draw.Src)
	drawCenteredLines(base, lines, face, marginTop, width)

	return &Renderer{template: template, base: base, face: face, logger: logger}
}

// GranularsSeen returns the number of pages for which a granular identifier
// was actually rendered, for the run summary.
func (r *Renderer) GranularsSeen() int64 {
	return r.seen.Load()
}

// RenderForPage clones the base band and, if granularURN is non-empty,
// overlays it centred below the template block. targetWidth is the image
// width the band must match (within 2% tolerance) before being appended.
func (r *Renderer) RenderForPage(granularURN string, targetWidth int) image.Image {
	band := cloneRGBA(r.base)

	if granularURN != "" {
		r.seen.Add(1)
		extra := image.NewRGBA(image.Rect(0, 0, band.Bounds().Dx(), band.Bounds().Dy()+lineHeight))
		draw.Draw(extra, extra.Bounds(), image.White, image.Point{}, draw.Src)
		draw.Draw(extra, band.Bounds(), band, image.Point{}, draw.Src)
		drawCenteredLines(extra, []string{granularURN}, r.face, band.Bounds().Dy(), band.Bounds().Dx())
		band = extra
	} else {
		r.logger.Warn("footer: page has no granular identifier", observability.String("template", r.template))
	}

	bw := float64(band.Bounds().Dx())
	tw := float64(targetWidth)
	if bw > 0 && absFloat(1-bw/tw) > 0.02 {
		r.logger.Warn("footer: band width mismatch, rescaling to image width",
			observability.Int("band_width", band.Bounds().Dx()), observability.Int("target_width", targetWidth))
	}
	ratio := tw / bw
	return imaging.Scale(band, ratio)
}

// Compose appends the rendered band below image and reports the resulting
// footer height. It fails if the band's height would drop below 25px.
func Compose(img image.Image, band image.Image) (image.Image, int, error) {
	h := band.Bounds().Dy()
	if h < minBandHeight {
		return nil, 0, fmt.Errorf("footer band height %dpx below minimum %dpx", h, minBandHeight)
	}
	return imaging.Append(img, band), h, nil
}

func wrap(text string, width int, face font.Face) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		candidate := cur + " " + w
		if textWidth(candidate, face) > width {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur = candidate
	}
	lines = append(lines, cur)
	return lines
}

func textWidth(s string, face font.Face) int {
	d := &font.Drawer{Face: face}
	return d.MeasureString(s).Ceil()
}

func drawCenteredLines(dst *image.RGBA, lines []string, face font.Face, top int, width int) {
	black := image.NewUniform(color.Black)
	y := top + face.Metrics().Ascent.Ceil()
	for _, line := range lines {
		w := textWidth(line, face)
		x := (width - w) / 2
		if x < 0 {
			x = 0
		}
		d := &font.Drawer{
			Dst:  dst,
			Src:  black,
			Face: face,
			Dot:  fixed.P(x, y),
		}
		d.DrawString(line)
		y += lineHeight
	}
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
