// Package dav implements the shared CalDAV/CardDAV client machinery
// (§4.5): discovery, listing, item CRUD, and metadata, parameterized by
// a Capability describing how the two protocols differ.
package dav

import (
	"encoding/xml"

	"github.com/yinjun1991/vdirstore/dav/internal"
)

// Capability is the storage-type capability set from §4.5's table: the
// handful of facts that differ between CalDAV and CardDAV, everything
// else (discovery chain, listing, item CRUD) is shared.
type Capability struct {
	// MimeSubstring is matched against getcontenttype during listing.
	MimeSubstring string
	// FileExtension is appended to a generated href on upload.
	FileExtension string
	// ContentType is sent on PUT.
	ContentType string
	// WellKnownPath is the RFC 6764 discovery bootstrap path.
	WellKnownPath string
	// HomeSetProperty names the home-set property PROPFIND asks for.
	HomeSetProperty xml.Name
	// CollectionResourceType names the tag identifying a collection of
	// this type (caldav:calendar or carddav:addressbook).
	CollectionResourceType xml.Name
	// ColorProperty is the metadata property for MetaColor, or the zero
	// xml.Name if unsupported (CardDAV has no color concept).
	ColorProperty xml.Name
	// itemTypes are the VCALENDAR component names a REPORT-based listing
	// queries one at a time (empty for CardDAV, which has no per-type
	// split and always uses PROPFIND).
	itemTypes []string
}

// DisplayNameProperty is shared by both capabilities.
var DisplayNameProperty = xml.Name{Space: internal.NamespaceDAV, Local: "displayname"}

var CalDAV = Capability{
	MimeSubstring:          "text/calendar",
	FileExtension:          ".ics",
	ContentType:            "text/calendar",
	WellKnownPath:          "/.well-known/caldav",
	HomeSetProperty:        xml.Name{Space: internal.NamespaceCalDAV, Local: "calendar-home-set"},
	CollectionResourceType: xml.Name{Space: internal.NamespaceCalDAV, Local: "calendar"},
	ColorProperty:          xml.Name{Space: internal.NamespaceAppleIC, Local: "calendar-color"},
	itemTypes:              []string{"VEVENT", "VTODO", "VJOURNAL"},
}

var CardDAV = Capability{
	MimeSubstring:          "vcard",
	FileExtension:          ".vcf",
	ContentType:            "text/vcard",
	WellKnownPath:          "/.well-known/carddav",
	HomeSetProperty:        xml.Name{Space: internal.NamespaceCardDAV, Local: "addressbook-home-set"},
	CollectionResourceType: xml.Name{Space: internal.NamespaceCardDAV, Local: "addressbook"},
}
