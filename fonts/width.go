package fonts

import "github.com/archivian/derivate/ir/semantic"

// MeasureWidth returns the width of text in 1/1000-em units, the same scale
// PDF width arrays and font bounding boxes use. For an embedded font it sums
// ShapeText's per-glyph advances (already in that scale at the fixed shaping
// size); for a non-embedded font it falls back to helvetica standard widths,
// since nothing in the retrieval pack carries an AFM or StandardWidths table
// for any other built-in font.
func MeasureWidth(font *semantic.Font, text string) float64 {
	if font != nil && font.Descriptor != nil && len(font.Descriptor.FontFile) > 0 {
		glyphs, err := ShapeText(text, font)
		if err == nil {
			var total float64
			for _, g := range glyphs {
				total += g.XAdvance
			}
			return total
		}
	}
	return measureHelveticaWidth(text)
}

func measureHelveticaWidth(text string) float64 {
	var total float64
	for _, r := range text {
		if w, ok := helveticaWidths[r]; ok {
			total += float64(w)
		} else {
			total += 556 // helvetica's average-width glyphs round to 556
		}
	}
	return total
}

// helveticaWidths holds the Adobe standard width metrics (1/1000 em) for
// Helvetica's WinAnsi-reachable ASCII range plus the German umlauts and
// sharp s, the AFM's AFM StandardWidths table as published in the PDF32000
// reference.
var helveticaWidths = map[rune]int{
	' ': 278, '!': 278, '"': 355, '#': 556, '$': 556, '%': 889, '&': 667, '\'': 191,
	'(': 333, ')': 333, '*': 389, '+': 584, ',': 278, '-': 333, '.': 278, '/': 278,
	'0': 556, '1': 556, '2': 556, '3': 556, '4': 556, '5': 556, '6': 556, '7': 556,
	'8': 556, '9': 556, ':': 278, ';': 278, '<': 584, '=': 584, '>': 584, '?': 556,
	'@': 1015,
	'A': 667, 'B': 667, 'C': 722, 'D': 722, 'E': 667, 'F': 611, 'G': 778, 'H': 722,
	'I': 278, 'J': 500, 'K': 667, 'L': 556, 'M': 833, 'N': 722, 'O': 778, 'P': 667,
	'Q': 778, 'R': 722, 'S': 667, 'T': 611, 'U': 722, 'V': 667, 'W': 944, 'X': 667,
	'Y': 667, 'Z': 611,
	'[': 278, '\\': 278, ']': 278, '^': 469, '_': 556, '`': 333,
	'a': 556, 'b': 556, 'c': 500, 'd': 556, 'e': 556, 'f': 278, 'g': 556, 'h': 556,
	'i': 222, 'j': 222, 'k': 500, 'l': 222, 'm': 833, 'n': 556, 'o': 556, 'p': 556,
	'q': 556, 'r': 333, 's': 500, 't': 278, 'u': 556, 'v': 500, 'w': 722, 'x': 500,
	'y': 500, 'z': 500,
	'{': 334, '|': 260, '}': 334, '~': 584,
	'ä': 556, 'ö': 556, 'ü': 556, 'Ä': 667, 'Ö': 778, 'Ü': 722, 'ß': 611,
}
