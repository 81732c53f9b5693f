// Package mets parses METS/MODS XML, exposes read-only descriptive data,
// physical page sequence, and logical structure tree projections, and
// enriches a parsed document with a new PDF file group before writing it
// back.
//
// METS documents must be edited and re-serialised (unlike ALTO, which is
// read-only here), so this package keeps a generic, namespace-aware element
// tree rather than decoding straight into fixed Go structs the way alto.Parse
// does: none of the pack's XML-adjacent libraries (goldmark, treeblood) edit
// arbitrary namespaced XML trees, so this is a stdlib-justified leaf, built
// the same way encoding/xml's token stream is used by
// tenebris-tech-x2md's namespace-stripping decoder, extended from a one-shot
// decode into a mutable tree because enrichment needs to insert and reorder
// elements in place.
package mets

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
)

// Attr is a namespace-qualified XML attribute.
type Attr struct {
	Space, Local string
	Value        string
}

// Node is a generic XML element: a local name, a resolved namespace URI,
// attributes, child elements in document order, and any direct character
// data (mixed content beyond simple text is not modelled; METS/MODS does not
// need it).
type Node struct {
	Space, Local string
	Attrs        []Attr
	Children     []*Node
	Text         string
}

// Attr returns the value of the first attribute named local, regardless of
// namespace, and whether it was present.
func (n *Node) Attr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets (or replaces) the attribute named local.
func (n *Node) SetAttr(local, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Local == local {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Local: local, Value: value})
}

// Child returns the first direct child element named local, or nil.
func (n *Node) Child(local string) *Node {
	for _, c := range n.Children {
		if c.Local == local {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all direct children named local, in document order.
func (n *Node) ChildrenNamed(local string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// Find performs a depth-first search for the first descendant (including n
// itself) named local.
func (n *Node) Find(local string) *Node {
	if n.Local == local {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(local); found != nil {
			return found
		}
	}
	return nil
}

// FindAll performs a depth-first search collecting every descendant
// (including n itself) named local.
func (n *Node) FindAll(local string) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		if cur.Local == local {
			out = append(out, cur)
		}
		for _, c := range cur.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// Document is a parsed METS/MODS XML document.
type Document struct {
	Root *Node
}

// Parse builds a Document from raw METS/MODS XML bytes.
func Parse(data []byte) (*Document, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false

	var root *Node
	var stack []*Node
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("mets: decode: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Space: t.Name.Space, Local: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Space: a.Name.Space, Local: a.Name.Local, Value: a.Value})
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("mets: empty document")
	}
	return &Document{Root: root}, nil
}

// namespacePrefixes maps the namespace URIs METS/MODS documents use to the
// conventional prefixes this package writes back out with.
var namespacePrefixes = map[string]string{
	"http://www.loc.gov/METS/":                  "mets",
	"http://www.loc.gov/mods/v3":                "mods",
	"http://www.w3.org/1999/xlink":               "xlink",
	"http://www.w3.org/2001/XMLSchema-instance":  "xsi",
}

// Serialize renders the document back to XML, declaring every well-known
// namespace on the root element.
func (d *Document) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	writeNode(&buf, d.Root, true)
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *Node, isRoot bool) {
	prefix := ""
	if n.Space != "" {
		if p, ok := namespacePrefixes[n.Space]; ok {
			prefix = p + ":"
		}
	}
	buf.WriteByte('<')
	buf.WriteString(prefix)
	buf.WriteString(n.Local)
	if isRoot {
		type decl struct{ prefix, uri string }
		decls := make([]decl, 0, len(namespacePrefixes))
		for uri, p := range namespacePrefixes {
			decls = append(decls, decl{prefix: p, uri: uri})
		}
		sort.Slice(decls, func(i, j int) bool { return decls[i].prefix < decls[j].prefix })
		for _, d := range decls {
			buf.WriteByte(' ')
			buf.WriteString("xmlns:")
			buf.WriteString(d.prefix)
			buf.WriteString(`="`)
			xml.EscapeText(buf, []byte(d.uri))
			buf.WriteByte('"')
		}
	}
	for _, a := range n.Attrs {
		aprefix := ""
		if a.Space != "" {
			if p, ok := namespacePrefixes[a.Space]; ok {
				aprefix = p + ":"
			}
		}
		buf.WriteByte(' ')
		buf.WriteString(aprefix)
		buf.WriteString(a.Local)
		buf.WriteString(`="`)
		xml.EscapeText(buf, []byte(a.Value))
		buf.WriteByte('"')
	}
	if len(n.Children) == 0 && n.Text == "" {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	if n.Text != "" {
		xml.EscapeText(buf, []byte(n.Text))
	}
	for _, c := range n.Children {
		writeNode(buf, c, false)
	}
	buf.WriteByte('<')
	buf.WriteByte('/')
	buf.WriteString(prefix)
	buf.WriteString(n.Local)
	buf.WriteByte('>')
}
