package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func solidGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestScalePreservesAspectRatio(t *testing.T) {
	src := solidGray(100, 200, 128)
	out := Scale(src, 0.5)
	b := out.Bounds()
	if b.Dx() != 50 || b.Dy() != 100 {
		t.Fatalf("Scale() bounds = %v, want 50x100", b)
	}
}

func TestHandleMaximalNoopWhenWithinBounds(t *testing.T) {
	src := solidGray(100, 50, 10)
	out := HandleMaximal(src, 200)
	if out.Bounds() != src.Bounds() {
		t.Fatalf("HandleMaximal() changed bounds for an image already within limit")
	}
}

func TestHandleMaximalScalesDownLargestDimension(t *testing.T) {
	src := solidGray(400, 200, 10)
	out := HandleMaximal(src, 100)
	b := out.Bounds()
	if b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("HandleMaximal() bounds = %v, want 100x50", b)
	}
}

func TestAppendStacksVertically(t *testing.T) {
	top := solidGray(10, 20, 0)
	bottom := solidGray(10, 5, 255)
	out := Append(top, bottom)
	b := out.Bounds()
	if b.Dx() != 10 || b.Dy() != 25 {
		t.Fatalf("Append() bounds = %v, want 10x25", b)
	}
}

func TestWriteJPEGWithoutMetadataOmitsAPP0(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jpg")
	src := solidGray(20, 20, 200)

	if err := WriteJPEG(src, path, 90, Metadata{}); err != nil {
		t.Fatalf("WriteJPEG() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if meta, ok := parseJFIFDensity(data); ok {
		t.Fatalf("expected no JFIF APP0 segment, found %+v", meta)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("written JPEG failed to decode: %v", err)
	}
}

func TestWriteJPEGCarriesDensity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jpg")
	src := solidGray(20, 20, 200)
	meta := Metadata{Present: true, Units: UnitsDotsPerInch, XDensity: 300, YDensity: 300}

	if err := WriteJPEG(src, path, 90, meta); err != nil {
		t.Fatalf("WriteJPEG() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	got, ok := parseJFIFDensity(data)
	if !ok {
		t.Fatal("expected JFIF APP0 segment to be present")
	}
	if got.XDensity != 300 || got.YDensity != 300 || got.Units != UnitsDotsPerInch {
		t.Errorf("parsed density = %+v, want 300x300 dpi", got)
	}
}

func TestValidateColorModeRejectsUnsupported(t *testing.T) {
	img := image.NewCMYK(image.Rect(0, 0, 4, 4))
	if err := validateColorMode(img); err == nil {
		t.Fatal("expected validateColorMode to reject CMYK")
	}
}

func TestTiffXResolutionLittleEndian(t *testing.T) {
	data := buildMinimalTIFFWithResolution(t, 300, 1)
	num, den, ok := tiffXResolution(data)
	if !ok {
		t.Fatal("expected XResolution tag to be found")
	}
	if num != 300 || den != 1 {
		t.Errorf("tiffXResolution() = %d/%d, want 300/1", num, den)
	}
	dpi, err := roundResolution(num, den)
	if err != nil || dpi != 300 {
		t.Errorf("roundResolution() = %d, %v, want 300, nil", dpi, err)
	}
}

// buildMinimalTIFFWithResolution hand-assembles the smallest little-endian
// TIFF header + single IFD entry needed to exercise tiffXResolution, without
// pulling in a full TIFF encoder.
func buildMinimalTIFFWithResolution(t *testing.T, num, den uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("II")
	writeU16LE(&buf, 42)
	writeU32LE(&buf, 8) // IFD offset

	writeU16LE(&buf, 1) // one entry
	// tag 282 (XResolution), type 5 (RATIONAL), count 1, offset to value below
	writeU16LE(&buf, 282)
	writeU16LE(&buf, 5)
	writeU32LE(&buf, 1)
	valueOffset := uint32(8 + 2 + 12 + 4) // after this IFD and next-IFD pointer
	writeU32LE(&buf, valueOffset)
	writeU32LE(&buf, 0) // next IFD offset (none)

	writeU32LE(&buf, num)
	writeU32LE(&buf, den)

	return buf.Bytes()
}

func writeU16LE(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}

func writeU32LE(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}
