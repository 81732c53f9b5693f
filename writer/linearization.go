package writer

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/archivian/derivate/ir/raw"
	"github.com/archivian/derivate/ir/semantic"
)

type linearizer struct {
	objects map[raw.ObjectRef]raw.Object
	catalog raw.ObjectRef
	info    *raw.ObjectRef
	encrypt *raw.ObjectRef

	firstPageRef raw.ObjectRef
	pageList     []raw.ObjectRef

	page1Refs  map[raw.ObjectRef]bool
	sharedRefs map[raw.ObjectRef]bool
	otherRefs  map[raw.ObjectRef]bool

	// pageObjects[i] holds the objects unique to page i, used for the hint
	// table; index 0 is page 1.
	pageObjects []map[raw.ObjectRef]bool

	renumber map[raw.ObjectRef]raw.ObjectRef
}

func newLinearizer(objects map[raw.ObjectRef]raw.Object, catalog raw.ObjectRef, info, encrypt *raw.ObjectRef) *linearizer {
	return &linearizer{
		objects:    objects,
		catalog:    catalog,
		info:       info,
		encrypt:    encrypt,
		page1Refs:  make(map[raw.ObjectRef]bool),
		sharedRefs: make(map[raw.ObjectRef]bool),
		otherRefs:  make(map[raw.ObjectRef]bool),
		renumber:   make(map[raw.ObjectRef]raw.ObjectRef),
	}
}

func (l *linearizer) classify() error {
	pagesRef, err := l.findPagesRef()
	if err != nil {
		return err
	}
	pageList, err := l.getPageList(pagesRef)
	if err != nil {
		return err
	}
	if len(pageList) == 0 {
		return fmt.Errorf("no pages found")
	}
	l.firstPageRef = pageList[0]
	l.pageList = pageList
	l.pageObjects = make([]map[raw.ObjectRef]bool, len(pageList))

	page1Candidates := make(map[raw.ObjectRef]bool)
	l.traverse(pageList[0], page1Candidates)
	page1Candidates[l.catalog] = true

	otherUsage := make(map[raw.ObjectRef]bool)
	for i := 1; i < len(pageList); i++ {
		l.traverse(pageList[i], otherUsage)
	}

	for ref := range page1Candidates {
		if otherUsage[ref] {
			l.sharedRefs[ref] = true
		} else {
			l.page1Refs[ref] = true
		}
	}
	l.pageObjects[0] = l.page1Refs

	for i := 1; i < len(pageList); i++ {
		l.pageObjects[i] = make(map[raw.ObjectRef]bool)
		visited := make(map[raw.ObjectRef]bool)
		l.traverse(pageList[i], visited)
		for ref := range visited {
			if !l.page1Refs[ref] && !l.sharedRefs[ref] {
				l.pageObjects[i][ref] = true
			}
		}
	}

	for ref := range l.objects {
		if !l.page1Refs[ref] && !l.sharedRefs[ref] {
			l.otherRefs[ref] = true
		}
	}

	// The catalog must stay reachable from the first-page section.
	if l.sharedRefs[l.catalog] {
		delete(l.sharedRefs, l.catalog)
		l.page1Refs[l.catalog] = true
	}

	return nil
}

func (l *linearizer) renumberObjects() (map[raw.ObjectRef]raw.Object, raw.ObjectRef, raw.ObjectRef, error) {
	newObjects := make(map[raw.ObjectRef]raw.Object)
	nextObj := 1

	linDictRef := raw.ObjectRef{Num: nextObj, Gen: 0}
	nextObj++

	var p1 []raw.ObjectRef
	for ref := range l.page1Refs {
		p1 = append(p1, ref)
	}
	sort.Slice(p1, func(i, j int) bool { return p1[i].Num < p1[j].Num })
	for _, oldRef := range p1 {
		newRef := raw.ObjectRef{Num: nextObj, Gen: 0}
		l.renumber[oldRef] = newRef
		newObjects[newRef] = l.objects[oldRef]
		nextObj++
	}

	hintRef := raw.ObjectRef{Num: nextObj, Gen: 0}
	nextObj++

	var shared []raw.ObjectRef
	for ref := range l.sharedRefs {
		shared = append(shared, ref)
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i].Num < shared[j].Num })
	for _, oldRef := range shared {
		newRef := raw.ObjectRef{Num: nextObj, Gen: 0}
		l.renumber[oldRef] = newRef
		newObjects[newRef] = l.objects[oldRef]
		nextObj++
	}

	var other []raw.ObjectRef
	for ref := range l.otherRefs {
		other = append(other, ref)
	}
	sort.Slice(other, func(i, j int) bool { return other[i].Num < other[j].Num })
	for _, oldRef := range other {
		newRef := raw.ObjectRef{Num: nextObj, Gen: 0}
		l.renumber[oldRef] = newRef
		newObjects[newRef] = l.objects[oldRef]
		nextObj++
	}

	for ref, obj := range newObjects {
		newObjects[ref] = l.updateRefs(obj)
	}

	l.catalog = l.renumber[l.catalog]
	if l.info != nil {
		newInfo := l.renumber[*l.info]
		l.info = &newInfo
	}
	if l.encrypt != nil {
		newEnc := l.renumber[*l.encrypt]
		l.encrypt = &newEnc
	}

	return newObjects, linDictRef, hintRef, nil
}

func (l *linearizer) updateRefs(obj raw.Object) raw.Object {
	switch v := obj.(type) {
	case raw.RefObj:
		if newRef, ok := l.renumber[v.Ref()]; ok {
			return raw.Ref(newRef.Num, newRef.Gen)
		}
		return v
	case *raw.ArrayObj:
		newArr := raw.NewArray()
		for _, item := range v.Items {
			newArr.Append(l.updateRefs(item))
		}
		return newArr
	case *raw.DictObj:
		newDict := raw.Dict()
		for k, val := range v.KV {
			newDict.Set(raw.NameLiteral(k), l.updateRefs(val))
		}
		return newDict
	case *raw.StreamObj:
		newDict := l.updateRefs(v.Dict).(*raw.DictObj)
		return raw.NewStream(newDict, v.Data)
	default:
		return v
	}
}

func (l *linearizer) generateHintStream(offsets map[int]int64, lengths map[int]int64) ([]byte, error) {
	type pageInfo struct {
		nObjects    int
		length      int64
		nShared     int
		sharedIndex int
	}
	infos := make([]pageInfo, len(l.pageList))

	var sharedList []raw.ObjectRef
	for ref := range l.sharedRefs {
		sharedList = append(sharedList, ref)
	}
	sort.Slice(sharedList, func(i, j int) bool {
		return l.renumber[sharedList[i]].Num < l.renumber[sharedList[j]].Num
	})
	sharedIdxMap := make(map[raw.ObjectRef]int)
	for i, ref := range sharedList {
		sharedIdxMap[ref] = i
	}

	for i, pageRef := range l.pageList {
		objs := l.pageObjects[i]
		infos[i].nObjects = len(objs)

		var length int64
		for ref := range objs {
			newRef := l.renumber[ref]
			if ln, ok := lengths[newRef.Num]; ok {
				length += ln
			}
		}
		infos[i].length = length

		seenShared := make(map[int]bool)
		var visit func(ref raw.ObjectRef)
		visit = func(ref raw.ObjectRef) {
			if l.sharedRefs[ref] {
				seenShared[sharedIdxMap[ref]] = true
				return
			}
			if !l.pageObjects[i][ref] && ref != pageRef {
				return
			}
			obj, ok := l.objects[ref]
			if !ok {
				return
			}
			for _, r := range l.extractRefs(obj) {
				visit(r)
			}
		}
		visit(pageRef)

		infos[i].nShared = len(seenShared)
		minIdx := -1
		for idx := range seenShared {
			if minIdx == -1 || idx < minIdx {
				minIdx = idx
			}
		}
		if minIdx == -1 {
			minIdx = 0
		}
		infos[i].sharedIndex = minIdx
	}

	var maxNObjects, maxLength, maxNShared, maxSharedIndex int64
	for _, info := range infos {
		if int64(info.nObjects) > maxNObjects {
			maxNObjects = int64(info.nObjects)
		}
		if info.length > maxLength {
			maxLength = info.length
		}
		if int64(info.nShared) > maxNShared {
			maxNShared = int64(info.nShared)
		}
		if int64(info.sharedIndex) > maxSharedIndex {
			maxSharedIndex = int64(info.sharedIndex)
		}
	}

	bitsNObjects := bitsNeeded(maxNObjects)
	bitsLength := bitsNeeded(maxLength)
	bitsNShared := bitsNeeded(maxNShared)
	bitsSharedIndex := bitsNeeded(maxSharedIndex)

	var buf bytes.Buffer
	bw := newBitWriter(&buf)

	minObjs := infos[0].nObjects
	for _, info := range infos {
		if info.nObjects < minObjs {
			minObjs = info.nObjects
		}
	}
	bw.write(uint64(minObjs), 32)

	p1Ref := l.renumber[l.firstPageRef]
	bw.write(uint64(offsets[p1Ref.Num]), 32)
	bw.write(uint64(bitsNObjects), 16)

	minLength := infos[0].length
	for _, info := range infos {
		if info.length < minLength {
			minLength = info.length
		}
	}
	bw.write(uint64(minLength), 32)
	bw.write(uint64(bitsLength), 16)
	bw.write(0, 32) // content stream offset, unused (no object streams in the first-page section)
	bw.write(0, 16)
	bw.write(0, 32)
	bw.write(0, 16)
	bw.write(uint64(bitsNShared), 16)
	bw.write(uint64(bitsSharedIndex), 16)
	bw.write(0, 16)
	bw.write(0, 16)

	for _, info := range infos {
		bw.write(uint64(info.nObjects-minObjs), uint(bitsNObjects))
		bw.write(uint64(info.length-minLength), uint(bitsLength))
		bw.write(uint64(info.nShared), uint(bitsNShared))
		bw.write(uint64(info.sharedIndex), uint(bitsSharedIndex))
	}
	bw.flush()

	firstSharedOffset := int64(0)
	if len(sharedList) > 0 {
		firstSharedOffset = offsets[l.renumber[sharedList[0]].Num]
	}
	bw.write(uint64(firstSharedOffset), 32)
	bw.write(0, 32)

	maxSharedLen := int64(0)
	for _, ref := range sharedList {
		newRef := l.renumber[ref]
		if ln, ok := lengths[newRef.Num]; ok && ln > maxSharedLen {
			maxSharedLen = ln
		}
	}
	bitsSharedLen := bitsNeeded(maxSharedLen)
	bw.write(uint64(bitsSharedLen), 16)
	bw.write(0, 16)

	for _, ref := range sharedList {
		newRef := l.renumber[ref]
		bw.write(uint64(lengths[newRef.Num]), uint(bitsSharedLen))
	}
	bw.flush()

	return buf.Bytes(), nil
}

func bitsNeeded(val int64) int {
	if val == 0 {
		return 0
	}
	bits := 0
	for val > 0 {
		bits++
		val >>= 1
	}
	return bits
}

type bitWriter struct {
	buf         *bytes.Buffer
	accumulator uint64
	bits        uint
}

func newBitWriter(buf *bytes.Buffer) *bitWriter { return &bitWriter{buf: buf} }

func (w *bitWriter) write(val uint64, n uint) {
	if n == 0 {
		return
	}
	w.accumulator = (w.accumulator << n) | (val & ((1 << n) - 1))
	w.bits += n
	for w.bits >= 8 {
		w.bits -= 8
		w.buf.WriteByte(byte(w.accumulator >> w.bits))
	}
}

func (w *bitWriter) flush() {
	if w.bits > 0 {
		w.accumulator <<= (8 - w.bits)
		w.buf.WriteByte(byte(w.accumulator))
		w.bits = 0
		w.accumulator = 0
	}
}

func (l *linearizer) findPagesRef() (raw.ObjectRef, error) {
	catObj, ok := l.objects[l.catalog]
	if !ok {
		return raw.ObjectRef{}, fmt.Errorf("catalog missing")
	}
	catDict, ok := catObj.(*raw.DictObj)
	if !ok {
		return raw.ObjectRef{}, fmt.Errorf("catalog not a dict")
	}
	pagesObj, ok := catDict.Get(raw.NameLiteral("Pages"))
	if !ok {
		return raw.ObjectRef{}, fmt.Errorf("Pages missing in catalog")
	}
	if ref, ok := pagesObj.(raw.RefObj); ok {
		return ref.Ref(), nil
	}
	return raw.ObjectRef{}, fmt.Errorf("Pages not a ref")
}

func (l *linearizer) getPageList(pagesRef raw.ObjectRef) ([]raw.ObjectRef, error) {
	var list []raw.ObjectRef
	var visit func(ref raw.ObjectRef) error
	visit = func(ref raw.ObjectRef) error {
		obj, ok := l.objects[ref]
		if !ok {
			return nil
		}
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			return nil
		}
		typ, ok := dict.Get(raw.NameLiteral("Type"))
		if !ok {
			return nil
		}
		name, ok := typ.(raw.NameObj)
		if !ok {
			return nil
		}
		switch name.Value() {
		case "Page":
			list = append(list, ref)
		case "Pages":
			kids, ok := dict.Get(raw.NameLiteral("Kids"))
			if !ok {
				return nil
			}
			arr, ok := kids.(*raw.ArrayObj)
			if !ok {
				return nil
			}
			for _, item := range arr.Items {
				if kRef, ok := item.(raw.RefObj); ok {
					if err := visit(kRef.Ref()); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	if err := visit(pagesRef); err != nil {
		return nil, err
	}
	return list, nil
}

func (l *linearizer) traverse(root raw.ObjectRef, visited map[raw.ObjectRef]bool) {
	if visited[root] {
		return
	}
	visited[root] = true
	obj, ok := l.objects[root]
	if !ok {
		return
	}
	for _, r := range l.extractRefs(obj) {
		l.traverse(r, visited)
	}
}

func (l *linearizer) extractRefs(obj raw.Object) []raw.ObjectRef {
	var refs []raw.ObjectRef
	switch v := obj.(type) {
	case raw.RefObj:
		refs = append(refs, v.Ref())
	case *raw.ArrayObj:
		for _, item := range v.Items {
			refs = append(refs, l.extractRefs(item)...)
		}
	case *raw.DictObj:
		for _, val := range v.KV {
			refs = append(refs, l.extractRefs(val)...)
		}
	case *raw.StreamObj:
		refs = append(refs, l.extractRefs(v.Dict)...)
	}
	return refs
}

// writeLinearized builds the object graph, splits it into the first-page,
// shared, and remaining sections per the linearized-PDF layout, and emits a
// file-1-optimized-for-incremental-display file: linearization dict, first
// page objects, a hint stream, then the rest, closing with a main xref.
func (w *impl) writeLinearized(ctx Context, doc *semantic.Document, out WriterAt, cfg Config) error {
	builder := newObjectBuilder(doc, cfg, 1)
	objects, catalogRef, infoRef, encryptRef, err := builder.Build()
	if err != nil {
		return err
	}

	l := newLinearizer(objects, catalogRef, infoRef, encryptRef)
	if err := l.classify(); err != nil {
		return err
	}
	newObjects, linDictRef, hintRef, err := l.renumberObjects()
	if err != nil {
		return err
	}
	idPair := fileID(doc, cfg)

	linDict := raw.Dict()
	linDict.Set(raw.NameLiteral("Linearized"), raw.NumberInt(1))
	linDict.Set(raw.NameLiteral("L"), raw.NumberInt(0))
	linDict.Set(raw.NameLiteral("H"), raw.NewArray(raw.NumberInt(0), raw.NumberInt(0)))
	linDict.Set(raw.NameLiteral("O"), raw.NumberInt(int64(l.renumber[l.firstPageRef].Num)))
	linDict.Set(raw.NameLiteral("E"), raw.NumberInt(0))
	linDict.Set(raw.NameLiteral("N"), raw.NumberInt(int64(len(doc.Pages))))
	linDict.Set(raw.NameLiteral("T"), raw.NumberInt(0))
	newObjects[linDictRef] = linDict

	hintStream := raw.NewStream(raw.Dict(), make([]byte, 4096))
	hintStream.Dict.Set(raw.NameLiteral("S"), raw.NumberInt(0))
	newObjects[hintRef] = hintStream

	sortedRefs := make([]raw.ObjectRef, 0, len(newObjects))
	for ref := range newObjects {
		sortedRefs = append(sortedRefs, ref)
	}
	sort.Slice(sortedRefs, func(i, j int) bool { return sortedRefs[i].Num < sortedRefs[j].Num })

	lengths := make(map[int]int64)
	offsets := make(map[int]int64)

	maxP1Num := 1
	for ref := range l.page1Refs {
		if n := l.renumber[ref].Num; n > maxP1Num {
			maxP1Num = n
		}
	}

	header := []byte("%PDF-" + pdfVersion(cfg) + "\n%\xE2\xE3\xCF\xD3\n")
	headerLen := int64(len(header))

	var fileLen int64
	// Three passes let the hint stream and linearization dict settle to
	// their final byte length before the final write, since both depend on
	// object offsets that shift as those two objects themselves grow.
	for pass := 0; pass < 3; pass++ {
		for _, ref := range sortedRefs {
			data, _ := w.SerializeObject(ref, newObjects[ref])
			lengths[ref.Num] = int64(len(data))
		}

		currentOffset := headerLen
		offsets[linDictRef.Num] = currentOffset
		currentOffset += lengths[linDictRef.Num]

		fpTrailer := buildTrailer(maxP1Num+1, raw.ObjectRef{}, nil, nil, doc, cfg, 0, idPair)
		fpTrailerBytes := serializePrimitive(fpTrailer)
		xrefLen := int64(5 + len(fmt.Sprintf("0 %d\n", maxP1Num+1)) + (maxP1Num+1)*20)
		xrefLen += int64(len("trailer\n") + len(fpTrailerBytes) + 1)
		currentOffset += xrefLen

		for _, ref := range sortedRefs {
			if ref.Num > 1 && ref.Num <= maxP1Num {
				offsets[ref.Num] = currentOffset
				currentOffset += lengths[ref.Num]
			}
		}

		offsets[hintRef.Num] = currentOffset
		currentOffset += lengths[hintRef.Num]

		for _, ref := range sortedRefs {
			if ref.Num > hintRef.Num {
				offsets[ref.Num] = currentOffset
				currentOffset += lengths[ref.Num]
			}
		}

		fileLen = currentOffset
		maxObjNum := sortedRefs[len(sortedRefs)-1].Num
		size := maxObjNum + 1
		entryCount := size - (maxP1Num + 1)
		if entryCount < 0 {
			entryCount = 0
		}
		fpXRefOffset := offsets[linDictRef.Num] + lengths[linDictRef.Num]
		mainTrailer := buildTrailer(size, l.catalog, l.info, l.encrypt, doc, cfg, 0, idPair)
		mainTrailer.Set(raw.NameLiteral("Prev"), raw.NumberInt(fpXRefOffset))
		trailerBytes := serializePrimitive(mainTrailer)
		mainXRefLen := int64(len("xref\n"))
		mainXRefLen += int64(len(fmt.Sprintf("%d %d\n", maxP1Num+1, entryCount)))
		mainXRefLen += int64(entryCount) * 20
		mainXRefLen += int64(len("trailer\n"))
		mainXRefLen += int64(len(trailerBytes))
		mainXRefLen += int64(len("\nstartxref\n"))
		mainXRefLen += int64(len(fmt.Sprintf("%d\n%%EOF\n", currentOffset)))
		fileLen += mainXRefLen

		hintData, err := l.generateHintStream(offsets, lengths)
		if err != nil {
			return err
		}
		hintStream.Data = hintData

		linDict.Set(raw.NameLiteral("L"), raw.NumberInt(fileLen))
		linDict.Set(raw.NameLiteral("H"), raw.NewArray(
			raw.NumberInt(offsets[hintRef.Num]),
			raw.NumberInt(lengths[hintRef.Num]),
		))
		linDict.Set(raw.NameLiteral("E"), raw.NumberInt(offsets[hintRef.Num]))
		linDict.Set(raw.NameLiteral("T"), raw.NumberInt(currentOffset))
	}

	var buf bytes.Buffer
	buf.Write(header)

	serialized, _ := w.SerializeObject(linDictRef, newObjects[linDictRef])
	buf.Write(serialized)

	buf.WriteString("xref\n")
	buf.WriteString(fmt.Sprintf("0 %d\n", maxP1Num+1))
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxP1Num; i++ {
		if off, ok := offsets[i]; ok {
			buf.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	fpTrailer := buildTrailer(maxP1Num+1, raw.ObjectRef{}, nil, nil, doc, cfg, 0, idPair)
	buf.WriteString("trailer\n")
	buf.Write(serializePrimitive(fpTrailer))
	buf.WriteString("\n")

	for _, ref := range sortedRefs {
		if ref.Num > 1 && ref.Num <= maxP1Num {
			serialized, _ := w.SerializeObject(ref, newObjects[ref])
			buf.Write(serialized)
		}
	}

	serialized, _ = w.SerializeObject(hintRef, newObjects[hintRef])
	buf.Write(serialized)

	for _, ref := range sortedRefs {
		if ref.Num > hintRef.Num {
			serialized, _ := w.SerializeObject(ref, newObjects[ref])
			buf.Write(serialized)
		}
	}

	actualMainXRefOffset := int64(buf.Len())
	maxObjNum := sortedRefs[len(sortedRefs)-1].Num
	size := maxObjNum + 1

	buf.WriteString("xref\n")
	buf.WriteString(fmt.Sprintf("%d %d\n", maxP1Num+1, size-(maxP1Num+1)))
	for i := maxP1Num + 1; i < size; i++ {
		if off, ok := offsets[i]; ok {
			buf.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := buildTrailer(size, l.catalog, l.info, l.encrypt, doc, cfg, 0, idPair)
	fpXRefOffset := offsets[linDictRef.Num] + lengths[linDictRef.Num]
	trailer.Set(raw.NameLiteral("Prev"), raw.NumberInt(fpXRefOffset))
	buf.WriteString("trailer\n")
	buf.Write(serializePrimitive(trailer))
	buf.WriteString("\nstartxref\n")
	buf.WriteString(fmt.Sprintf("%d\n%%EOF\n", actualMainXRefOffset))

	_, err = out.Write(buf.Bytes())
	return err
}
