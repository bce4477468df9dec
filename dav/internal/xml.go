// Package internal reconstructs the small slice of WebDAV/CalDAV/CardDAV
// request and response plumbing the dav package needs: PROPFIND/REPORT/
// PROPPATCH/MKCOL request bodies and a streaming multistatus response
// parser. It is intentionally narrower than a general-purpose WebDAV
// client: every element here exists because §4.5 of the specification
// names it.
package internal

import (
	"bytes"
	"encoding/xml"
)

const (
	NamespaceDAV     = "DAV:"
	NamespaceCalDAV  = "urn:ietf:params:xml:ns:caldav"
	NamespaceCardDAV = "urn:ietf:params:xml:ns:carddav"
	NamespaceAppleIC = "http://apple.com/ns/ical/"
)

// Depth is the value of the WebDAV "Depth" header.
type Depth int

const (
	DepthZero Depth = iota
	DepthOne
)

func (d Depth) String() string {
	if d == DepthOne {
		return "1"
	}
	return "0"
}

// Href is a DAV:href element.
type Href struct {
	XMLName xml.Name `xml:"DAV: href"`
	Value   string   `xml:",chardata"`
}

// NewPropfind builds a PROPFIND request body naming the given empty
// properties — a PROPFIND asks for names, never values.
func NewPropfind(names ...xml.Name) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	root := startElement(NamespaceDAV, "propfind")
	prop := startElement(NamespaceDAV, "prop")
	if err := writeTokens(enc, startToken(root)); err != nil {
		return nil, err
	}
	if err := writeTokens(enc, startToken(prop)); err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := writeTokens(enc, xml.StartElement{Name: name}, xml.EndElement{Name: name}); err != nil {
			return nil, err
		}
	}
	if err := writeTokens(enc, xml.EndElement{Name: prop.Name}, xml.EndElement{Name: root.Name}); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewProppatchSet builds a PROPPATCH body that sets name to value, per
// §4.5.5's single-property, no-status-parsing contract.
func NewProppatchSet(name xml.Name, value string) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	root := startElement(NamespaceDAV, "propertyupdate")
	set := startElement(NamespaceDAV, "set")
	prop := startElement(NamespaceDAV, "prop")
	if err := writeTokens(enc, startToken(root), startToken(set), startToken(prop)); err != nil {
		return nil, err
	}
	if err := enc.EncodeElement(value, xml.StartElement{Name: name}); err != nil {
		return nil, err
	}
	if err := writeTokens(enc,
		xml.EndElement{Name: prop.Name},
		xml.EndElement{Name: set.Name},
		xml.EndElement{Name: root.Name},
	); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewMkcol builds an extended-MKCOL body (RFC 5689) marking the new
// resource a collection of the given extra resource type, e.g. the
// caldav:calendar or carddav:addressbook tag.
func NewMkcol(extra xml.Name) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	root := startElement(NamespaceDAV, "mkcol")
	set := startElement(NamespaceDAV, "set")
	prop := startElement(NamespaceDAV, "prop")
	resourceType := startElement(NamespaceDAV, "resourcetype")
	collection := startElement(NamespaceDAV, "collection")

	if err := writeTokens(enc, startToken(root), startToken(set), startToken(prop), startToken(resourceType)); err != nil {
		return nil, err
	}
	if err := writeTokens(enc, startToken(collection), xml.EndElement{Name: collection.Name}); err != nil {
		return nil, err
	}
	if err := writeTokens(enc, xml.StartElement{Name: extra}, xml.EndElement{Name: extra}); err != nil {
		return nil, err
	}
	if err := writeTokens(enc,
		xml.EndElement{Name: resourceType.Name},
		xml.EndElement{Name: prop.Name},
		xml.EndElement{Name: set.Name},
		xml.EndElement{Name: root.Name},
	); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func startElement(space, local string) xml.StartElement {
	return xml.StartElement{Name: xml.Name{Space: space, Local: local}}
}

func startToken(s xml.StartElement) xml.Token { return s }

func writeTokens(enc *xml.Encoder, tokens ...xml.Token) error {
	for _, t := range tokens {
		if err := enc.EncodeToken(t); err != nil {
			return err
		}
	}
	return nil
}
