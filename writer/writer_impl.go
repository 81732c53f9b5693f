package writer

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/archivian/derivate/ir/raw"
	"github.com/archivian/derivate/ir/semantic"
)

type impl struct{ interceptors []Interceptor }

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("%d %d obj\n", ref.Num, ref.Gen))
	buf.Write(serializePrimitive(obj))
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

// Write builds the full PDF object graph via objectBuilder (info dictionary,
// XMP metadata, output intents, embedded files, page content/resources,
// annotations, outlines, AcroForm) and serializes it as a classic
// cross-reference table, or as a linearized stream when cfg.Linearize is
// set. Incremental updates append a new body and xref section onto the
// bytes already present in out.
func (w *impl) Write(ctx Context, doc *semantic.Document, out WriterAt, cfg Config) error {
	if doc.Encrypted && !(doc.Permissions.Modify || doc.Permissions.Assemble) {
		return fmt.Errorf("document permissions forbid modification")
	}

	if cfg.Linearize {
		return w.writeLinearized(ctx, doc, out, cfg)
	}

	inc := incrementalContext(doc, out, cfg)

	builder := newObjectBuilder(doc, cfg, inc.startObjNum)
	objects, catalogRef, infoRef, encryptRef, err := builder.Build()
	if err != nil {
		return err
	}

	ordered := make([]raw.ObjectRef, 0, len(objects))
	for ref := range objects {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Num < ordered[j].Num })

	var buf bytes.Buffer
	if !cfg.Incremental || len(inc.base) == 0 {
		buf.WriteString("%PDF-" + pdfVersion(cfg) + "\n%\xE2\xE3\xCF\xD3\n")
	} else {
		buf.Write(inc.base)
	}

	offsets := make(map[int]int64, len(ordered))
	for _, ref := range ordered {
		offsets[ref.Num] = int64(buf.Len())
		serialized, err := w.SerializeObject(ref, objects[ref])
		if err != nil {
			return err
		}
		buf.Write(serialized)
	}

	maxObjNum := 0
	if len(ordered) > 0 {
		maxObjNum = ordered[len(ordered)-1].Num
	}
	if cfg.Incremental && inc.prevMaxObj > maxObjNum {
		maxObjNum = inc.prevMaxObj
	}
	size := maxObjNum + 1
	ids := fileID(doc, cfg)

	if cfg.XRefStreams {
		xrefRef := raw.ObjectRef{Num: size, Gen: 0}
		size++
		indexArr, entries := xrefStreamIndexAndEntries(offsets)
		xrefOffset := int64(buf.Len())
		entries = appendXRefStreamEntry(entries, 1, xrefOffset, 0)
		indexArr.Append(raw.NumberInt(int64(xrefRef.Num)))
		indexArr.Append(raw.NumberInt(1))

		xrefDict := buildTrailer(size, catalogRef, infoRef, encryptRef, doc, cfg, inc.prevOffset, ids)
		xrefDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XRef"))
		xrefDict.Set(raw.NameLiteral("W"), raw.NewArray(raw.NumberInt(1), raw.NumberInt(4), raw.NumberInt(1)))
		xrefDict.Set(raw.NameLiteral("Index"), indexArr)
		xrefDict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(entries))))

		serialized, err := w.SerializeObject(xrefRef, raw.NewStream(xrefDict, entries))
		if err != nil {
			return err
		}
		buf.Write(serialized)
		buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOffset))
	} else {
		xrefOffset := int64(buf.Len())
		buf.WriteString(fmt.Sprintf("xref\n0 %d\n", size))
		buf.WriteString("0000000000 65535 f \n")
		for i := 1; i < size; i++ {
			if off, ok := offsets[i]; ok {
				buf.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
			} else {
				buf.WriteString("0000000000 65535 f \n")
			}
		}
		trailer := buildTrailer(size, catalogRef, infoRef, encryptRef, doc, cfg, inc.prevOffset, ids)
		buf.WriteString("trailer\n")
		buf.Write(serializePrimitive(trailer))
		buf.WriteString(fmt.Sprintf("\nstartxref\n%d\n%%%%EOF\n", xrefOffset))
	}

	written := buf.Bytes()
	if cfg.Incremental && len(inc.base) > 0 {
		written = written[len(inc.base):]
	}
	_, err = out.Write(written)
	return err
}
