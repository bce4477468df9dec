package internal

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// Response is one <DAV:response> record, flattened to the fields §4.5.4
// names. Absent string fields are "".
type Response struct {
	Href                 string
	ETag                 string
	MimeType             string
	CurrentUserPrincipal string
	CalendarHomeSet      string
	AddressbookHomeSet   string
	DisplayName          string
	AppleCalendarColor   string

	IsCollection  bool
	IsCalendar    bool
	IsAddressbook bool
}

// parseState names what a text node currently being read should fill.
type parseState int

const (
	stateOuter parseState = iota
	stateResponse
	stateHref
	stateETag
	stateContentType
	stateDisplayName
	stateAppleCalendarColor
)

// ParseMultistatus reads a DAV:multistatus document, yielding one
// Response per DAV:response element. It is a small finite-state machine
// over element start/text/end events — the same shape as a streaming XML
// reader's event loop: unknown elements at any depth are ignored, a
// response without a DAV:href is skipped, and EOF mid-response yields
// nothing rather than an error.
//
// current-user-principal, calendar-home-set, and addressbook-home-set
// each wrap a nested DAV:href rather than carrying text directly, so
// they are tracked with a separate "container" layer: entering one of
// them points hrefTarget at the matching Response field, and the next
// DAV:href's text lands there instead of Response.Href.
func ParseMultistatus(r io.Reader) ([]Response, error) {
	dec := xml.NewDecoder(r)

	var out []Response
	state := stateOuter
	var current Response
	var container xml.Name
	var hrefTarget *string

	for {
		tok, err := dec.Token()
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return out, nil
		}
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) && syntaxErr.Msg == "unexpected EOF" {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case state == stateOuter && isDAV(t.Name, "response"):
				state = stateResponse
				current = Response{}
				hrefTarget = nil

			case state == stateResponse && hrefTarget == nil && isDAV(t.Name, "href"):
				state = stateHref
			case state == stateResponse && hrefTarget == nil && isDAV(t.Name, "getetag"):
				state = stateETag
			case state == stateResponse && hrefTarget == nil && isDAV(t.Name, "getcontenttype"):
				state = stateContentType
			case state == stateResponse && hrefTarget == nil && isDAV(t.Name, "displayname"):
				state = stateDisplayName
			case state == stateResponse && hrefTarget == nil && isApple(t.Name, "calendar-color"):
				state = stateAppleCalendarColor

			case state == stateResponse && isDAV(t.Name, "current-user-principal"):
				container = t.Name
				hrefTarget = &current.CurrentUserPrincipal
			case state == stateResponse && isCalDAV(t.Name, "calendar-home-set"):
				container = t.Name
				hrefTarget = &current.CalendarHomeSet
			case state == stateResponse && isCardDAV(t.Name, "addressbook-home-set"):
				container = t.Name
				hrefTarget = &current.AddressbookHomeSet

			case state == stateResponse && hrefTarget != nil && isDAV(t.Name, "href"):
				state = stateHref

			case state == stateResponse && isDAV(t.Name, "collection"):
				current.IsCollection = true
			case state == stateResponse && isCalDAV(t.Name, "calendar"):
				current.IsCalendar = true
			case state == stateResponse && isCardDAV(t.Name, "addressbook"):
				current.IsAddressbook = true
			}

		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch state {
			case stateHref:
				if hrefTarget != nil {
					*hrefTarget = text
				} else {
					current.Href = text
				}
			case stateETag:
				current.ETag = strings.Trim(text, `"`)
			case stateContentType:
				current.MimeType = text
			case stateDisplayName:
				current.DisplayName = text
			case stateAppleCalendarColor:
				current.AppleCalendarColor = text
			}

		case xml.EndElement:
			switch {
			case state == stateResponse && isDAV(t.Name, "response"):
				if current.Href != "" {
					out = append(out, current)
				}
				state = stateOuter
			case state == stateHref:
				state = stateResponse
			case state != stateResponse && state != stateOuter:
				state = stateResponse
			case hrefTarget != nil && t.Name == container:
				hrefTarget = nil
			}
		}
	}
}

func isDAV(name xml.Name, local string) bool    { return name.Space == NamespaceDAV && name.Local == local }
func isCalDAV(name xml.Name, local string) bool  { return name.Space == NamespaceCalDAV && name.Local == local }
func isCardDAV(name xml.Name, local string) bool { return name.Space == NamespaceCardDAV && name.Local == local }
func isApple(name xml.Name, local string) bool   { return name.Space == NamespaceAppleIC && name.Local == local }
