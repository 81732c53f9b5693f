package pdfcompose

import (
	"fmt"
	"strings"

	"github.com/archivian/derivate/mets"
)

// buildXMP generates a minimal XMP metadata packet carrying dc:title and
// dc:creator; no pdf:Producer entry is written. No XMP/RDF library appears anywhere in the
// retrieval pack, so this is a stdlib (fmt/strings) leaf producing a fixed,
// hand-written RDF template rather than a general-purpose XMP writer.
func buildXMP(desc *mets.DescriptiveData) []byte {
	title, creator := "", ""
	if desc != nil {
		title = desc.Title
		creator = desc.Person
	}

	var b strings.Builder
	b.WriteString(`<?xpacket begin="﻿" id="W5M0MpCehiHzreSzNTczkc9d"?>`)
	b.WriteString("\n<x:xmpmeta xmlns:x=\"adobe:ns:meta/\">\n")
	b.WriteString("  <rdf:RDF xmlns:rdf=\"http://www.w3.org/1999/02/22-rdf-syntax-ns#\">\n")
	b.WriteString("    <rdf:Description rdf:about=\"\"\n")
	b.WriteString("        xmlns:dc=\"http://purl.org/dc/elements/1.1/\">\n")
	fmt.Fprintf(&b, "      <dc:title><rdf:Alt><rdf:li xml:lang=\"x-default\">%s</rdf:li></rdf:Alt></dc:title>\n", escapeXML(title))
	fmt.Fprintf(&b, "      <dc:creator><rdf:Seq><rdf:li>%s</rdf:li></rdf:Seq></dc:creator>\n", escapeXML(creator))
	b.WriteString("    </rdf:Description>\n")
	b.WriteString("  </rdf:RDF>\n")
	b.WriteString("</x:xmpmeta>\n")
	b.WriteString(`<?xpacket end="w"?>`)
	return []byte(b.String())
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
