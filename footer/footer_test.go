package footer

import (
	"image"
	"testing"

	"github.com/archivian/derivate/observability"
)

func TestNewRendererMeetsMinimumHeight(t *testing.T) {
	r := NewRenderer("Digitised by Example Library", 400, observability.NopLogger{})
	if r.base.Bounds().Dy() < minBandHeight {
		t.Fatalf("base band height = %d, want >= %d", r.base.Bounds().Dy(), minBandHeight)
	}
	if r.base.Bounds().Dx() != 400 {
		t.Fatalf("base band width = %d, want 400", r.base.Bounds().Dx())
	}
}

func TestRenderForPageScalesToTargetWidth(t *testing.T) {
	r := NewRenderer("Template", 400, observability.NopLogger{})
	band := r.RenderForPage("urn:nbn:de:gbv:3:3-21437-p0001-0", 800)
	if band.Bounds().Dx() != 800 {
		t.Errorf("band width = %d, want 800", band.Bounds().Dx())
	}
}

func TestRenderForPageTracksGranularsSeen(t *testing.T) {
	r := NewRenderer("Template", 400, observability.NopLogger{})
	r.RenderForPage("urn:x", 400)
	r.RenderForPage("", 400)
	r.RenderForPage("urn:y", 400)
	if got := r.GranularsSeen(); got != 2 {
		t.Errorf("GranularsSeen() = %d, want 2", got)
	}
}

func TestComposeRejectsBandBelowMinimumHeight(t *testing.T) {
	page := image.NewRGBA(image.Rect(0, 0, 100, 100))
	tinyBand := image.NewRGBA(image.Rect(0, 0, 100, minBandHeight-1))
	if _, _, err := Compose(page, tinyBand); err == nil {
		t.Fatal("expected Compose to reject a band shorter than the minimum height")
	}
}

func TestComposeReportsFooterHeight(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 100, 100))
	band := image.NewRGBA(image.Rect(0, 0, 100, minBandHeight))
	out, h, err := Compose(base, band)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if h != minBandHeight {
		t.Errorf("footer height = %d, want %d", h, minBandHeight)
	}
	if out.Bounds().Dy() != 100+minBandHeight {
		t.Errorf("composed height = %d, want %d", out.Bounds().Dy(), 100+minBandHeight)
	}
}
