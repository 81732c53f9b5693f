package imaging

import (
	"encoding/binary"
	"fmt"
)

// tiffXResolution extracts the XResolution tag (282, RATIONAL) from a raw
// TIFF byte stream. golang.org/x/image/tiff decodes pixel data but does not
// expose IFD tags, so resolution metadata needs this small hand-rolled
// reader; no other TIFF metadata library appears anywhere in the retrieval
// pack, so this is a stdlib-justified leaf, the same as mets's generic XML
// tree.
func tiffXResolution(data []byte) (numerator, denominator uint32, ok bool) {
	if len(data) < 8 {
		return 0, 0, false
	}
	var order binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, 0, false
	}
	if order.Uint16(data[2:4]) != 42 {
		return 0, 0, false
	}
	ifdOffset := order.Uint32(data[4:8])

	for ifdOffset != 0 {
		if int(ifdOffset)+2 > len(data) {
			return 0, 0, false
		}
		count := order.Uint16(data[ifdOffset : ifdOffset+2])
		entriesStart := ifdOffset + 2
		for i := uint16(0); i < count; i++ {
			entryOff := entriesStart + uint32(i)*12
			if int(entryOff)+12 > len(data) {
				return 0, 0, false
			}
			tag := order.Uint16(data[entryOff : entryOff+2])
			typ := order.Uint16(data[entryOff+2 : entryOff+4])
			valueOffsetField := data[entryOff+8 : entryOff+12]
			if tag == 282 && typ == 5 { // XResolution, RATIONAL
				valOff := order.Uint32(valueOffsetField)
				if int(valOff)+8 > len(data) {
					return 0, 0, false
				}
				num := order.Uint32(data[valOff : valOff+4])
				den := order.Uint32(data[valOff+4 : valOff+8])
				return num, den, den != 0
			}
		}
		nextOff := entriesStart + uint32(count)*12
		if int(nextOff)+4 > len(data) {
			return 0, 0, false
		}
		ifdOffset = order.Uint32(data[nextOff : nextOff+4])
	}
	return 0, 0, false
}

func roundResolution(num, den uint32) (int, error) {
	if den == 0 {
		return 0, fmt.Errorf("zero denominator in TIFF resolution rational")
	}
	return int((num + den/2) / den), nil
}
