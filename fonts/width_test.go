package fonts

import "testing"

func TestMeasureWidthFallsBackToHelvetica(t *testing.T) {
	w := MeasureWidth(nil, "AVA")
	if w <= 0 {
		t.Fatalf("MeasureWidth() = %v, want > 0", w)
	}
	// "AVA" = 667 + 667 + 667
	if w != 2001 {
		t.Errorf("MeasureWidth(nil, \"AVA\") = %v, want 2001", w)
	}
}

func TestMeasureWidthUnknownRuneUsesAverage(t *testing.T) {
	w := MeasureWidth(nil, "中")
	if w != 556 {
		t.Errorf("MeasureWidth() for unmapped rune = %v, want 556", w)
	}
}
