package cmm

import (
	"bytes"
	"errors"
)

type factoryImpl struct{}

// NewFactory returns a default CMM factory.
func NewFactory() Factory {
	return &factoryImpl{}
}

func (f *factoryImpl) NewProfile(data []byte) (Profile, error) {
	return NewICCProfile(data)
}

func (f *factoryImpl) NewTransform(src, dst Profile, intent RenderingIntent) (Transform, error) {
	if src == nil || dst == nil {
		return nil, errors.New("source and destination profiles required")
	}

	// Optimization: Identity transform if profiles are the same
	if bytes.Equal(src.Data(), dst.Data()) {
		return &identityTransform{}, nil
	}

	// Try Matrix/TRC for RGB -> XYZ
	if src.ColorSpace() == "RGB " && dst.ColorSpace() == "XYZ " {
		if icc, ok := src.(*ICCProfile); ok {
			if trc, err := tryCreateMatrixTRC(icc); err == nil {
				return trc, nil
			}
		}
	}

	// In a full implementation, we would build a pipeline here.
	// For now, we return a basic transform that might fail or do simple conversion.
	return &basicTransform{src: src, dst: dst, intent: intent}, nil
}

// tryCreateMatrixTRC does not parse the colorant and TRC tags, so it always
// reports an error and NewTransform falls back to basicTransform.
func tryCreateMatrixTRC(icc *ICCProfile) (Transform, error) {
	return nil, errors.New("matrix/TRC transform not supported")
}

// basicTransform has no conversion pipeline; Convert always reports an error.
type basicTransform struct {
	src, dst Profile
	intent   RenderingIntent
}

func (t *basicTransform) Convert(src []float64) ([]float64, error) {
	return nil, errors.New("color conversion between these profiles is not supported")
}

type identityTransform struct{}

func (t *identityTransform) Convert(src []float64) ([]float64, error) {
	// Copy to avoid side effects if caller reuses slice
	dst := make([]float64, len(src))
	copy(dst, src)
	return dst, nil
}
