package derrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := E(ImageError, "Scale", errors.New("bad dimensions"))
	want := "ImageError: Scale: bad dimensions"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestIsAndKindOf(t *testing.T) {
	base := errors.New("disk full")
	wrapped := fmt.Errorf("write failed: %w", E(MetsWriteError, "enrich_pdf", base))

	if !Is(wrapped, MetsWriteError) {
		t.Fatalf("Is(wrapped, MetsWriteError) = false, want true")
	}
	if Is(wrapped, PdfError) {
		t.Fatalf("Is(wrapped, PdfError) = true, want false")
	}
	if got := KindOf(wrapped); got != MetsWriteError {
		t.Fatalf("KindOf() = %v, want %v", got, MetsWriteError)
	}
	if got := KindOf(base); got != Unknown {
		t.Fatalf("KindOf(plain error) = %v, want Unknown", got)
	}
}

func TestUnwrap(t *testing.T) {
	base := errors.New("missing file")
	err := E(InputMissingError, "load", base)
	if !errors.Is(err, base) {
		t.Fatalf("errors.Is(err, base) = false, want true")
	}
}
