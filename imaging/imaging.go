// Package imaging holds the single-image primitives the derivation pipeline
// composes into steps: decode (JPEG/TIFF), scale, append (footer banding),
// clone, and JPEG re-encoding with DPI metadata carried over from the
// source.
package imaging

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	ximgdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/archivian/derivate/derrors"
)

// Density unit codes as carried in the JFIF APP0 segment.
const (
	UnitsAspectRatio = 0
	UnitsDotsPerInch = 1
	UnitsDotsPerCm   = 2
)

// Metadata is the DPI/density information threaded alongside an image
// through a pipeline step. Present is false when the source carried no
// density information at all, in which case WriteJPEG emits a plain JPEG
// with no JFIF APP0 segment.
type Metadata struct {
	Present  bool
	Units    int
	XDensity int
	YDensity int
}

// ReadWithMetadata decodes a JPEG or TIFF file (grayscale or RGB) and
// extracts its DPI metadata. TIFF sources have their JFIF-equivalent
// metadata synthesised from the XResolution tag with resUnits fixed to
// dots/inch; JPEG sources have their existing JFIF density forwarded
// unchanged.
func ReadWithMetadata(path string) (image.Image, Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Metadata{}, derrors.E(derrors.InputMissingError, "imaging.ReadWithMetadata", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return readTIFF(data)
	default:
		return readJPEG(data)
	}
}

func readTIFF(data []byte) (image.Image, Metadata, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Metadata{}, derrors.E(derrors.ImageError, "imaging.readTIFF", err)
	}
	if err := validateColorMode(img); err != nil {
		return nil, Metadata{}, derrors.E(derrors.ImageError, "imaging.readTIFF", err)
	}

	meta := Metadata{}
	if num, den, ok := tiffXResolution(data); ok {
		dpi, err := roundResolution(num, den)
		if err == nil {
			meta = Metadata{Present: true, Units: UnitsDotsPerInch, XDensity: dpi, YDensity: dpi}
		}
	}
	return img, meta, nil
}

func readJPEG(data []byte) (image.Image, Metadata, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Metadata{}, derrors.E(derrors.ImageError, "imaging.readJPEG", err)
	}
	if err := validateColorMode(img); err != nil {
		return nil, Metadata{}, derrors.E(derrors.ImageError, "imaging.readJPEG", err)
	}
	meta, _ := parseJFIFDensity(data)
	return img, meta, nil
}

// validateColorMode rejects a decoded image whose colour mode the JPEG
// encoder can't re-express: only 1/8-bit gray and 8-bit-per-channel RGB are
// accepted, per the spec's "grayscale or RGB" scope.
func validateColorMode(img image.Image) error {
	switch img.(type) {
	case *image.Gray, *image.RGBA, *image.NRGBA, *image.YCbCr:
		return nil
	default:
		return fmt.Errorf("unsupported color mode %T", img)
	}
}

// parseJFIFDensity scans a JPEG byte stream for an existing APP0 JFIF
// segment and extracts its density fields.
func parseJFIFDensity(data []byte) (Metadata, bool) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return Metadata{}, false
	}
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			break
		}
		marker := data[pos+1]
		if marker == 0xD9 || marker == 0xDA { // EOI or SOS: no more markers to scan
			break
		}
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if marker == 0xE0 && pos+4+length-2 <= len(data) && length >= 16 {
			seg := data[pos+4 : pos+4+length-2]
			if len(seg) >= 12 && string(seg[0:5]) == "JFIF\x00" {
				units := int(seg[7])
				xd := int(binary.BigEndian.Uint16(seg[8:10]))
				yd := int(binary.BigEndian.Uint16(seg[10:12]))
				return Metadata{Present: true, Units: units, XDensity: xd, YDensity: yd}, true
			}
		}
		pos += 2 + length
	}
	return Metadata{}, false
}

// buildJFIFSegment constructs a full APP0 JFIF marker segment for the given
// metadata (version 1.02, no thumbnail).
func buildJFIFSegment(m Metadata) []byte {
	buf := make([]byte, 18)
	buf[0], buf[1] = 0xFF, 0xE0
	binary.BigEndian.PutUint16(buf[2:4], 16)
	copy(buf[4:9], []byte("JFIF\x00"))
	buf[9], buf[10] = 1, 2 // version 1.02
	buf[11] = byte(m.Units)
	binary.BigEndian.PutUint16(buf[12:14], uint16(m.XDensity))
	binary.BigEndian.PutUint16(buf[14:16], uint16(m.YDensity))
	buf[16], buf[17] = 0, 0
	return buf
}

// WriteJPEG re-encodes img as a JPEG at path with the given quality (1-100),
// splicing in a JFIF APP0 segment carrying meta's density when meta.Present.
// The standard library's jpeg encoder has no JFIF density option, so the
// segment is inserted into the encoded byte stream after the fact, the same
// post-processing-the-encoded-stream approach writer/writer_impl.go uses.
func WriteJPEG(img image.Image, path string, quality int, meta Metadata) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return derrors.E(derrors.ImageError, "imaging.WriteJPEG", err)
	}
	encoded := buf.Bytes()
	if len(encoded) < 2 || encoded[0] != 0xFF || encoded[1] != 0xD8 {
		return derrors.E(derrors.ImageError, "imaging.WriteJPEG", fmt.Errorf("encoded stream has no SOI marker"))
	}

	out := encoded
	if meta.Present {
		seg := buildJFIFSegment(meta)
		merged := make([]byte, 0, len(encoded)+len(seg))
		merged = append(merged, encoded[0:2]...)
		merged = append(merged, seg...)
		merged = append(merged, encoded[2:]...)
		out = merged
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return derrors.E(derrors.ImageError, "imaging.WriteJPEG", err)
	}
	return nil
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// Scale resizes img by ratio, using a smooth (Catmull-Rom) resampler.
func Scale(img image.Image, ratio float64) image.Image {
	b := img.Bounds()
	newW := int(ratio * float64(b.Dx()))
	newH := int(ratio * float64(b.Dy()))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	ximgdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, ximgdraw.Over, nil)
	return dst
}

// HandleMaximal scales img down so max(width,height) <= maxDim, preserving
// aspect ratio. It is the identity if img already fits, and a no-op
// (identity) when maxDim <= 0 (no limit).
func HandleMaximal(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	maxCur := w
	if h > maxCur {
		maxCur = h
	}
	if maxCur <= maxDim {
		return img
	}
	ratio := float64(maxDim) / float64(maxCur)
	return Scale(img, ratio)
}

// Append draws bottom below top: the result's width is top's width, its
// height is top's height plus bottom's height.
func Append(top, bottom image.Image) image.Image {
	tb, bb := top.Bounds(), bottom.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, tb.Dx(), tb.Dy()+bb.Dy()))
	draw.Draw(dst, image.Rect(0, 0, tb.Dx(), tb.Dy()), top, tb.Min, draw.Src)
	draw.Draw(dst, image.Rect(0, tb.Dy(), tb.Dx(), tb.Dy()+bb.Dy()), bottom, bb.Min, draw.Src)
	return dst
}

// Clone returns an independent copy of img.
func Clone(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
