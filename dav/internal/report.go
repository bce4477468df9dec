package internal

import (
	"bytes"
	"encoding/xml"
	"time"
)

// TimeRangeLayout is the "date with UTC time" format RFC 5545 uses for
// calendar-query time-range bounds.
const TimeRangeLayout = "20060102T150405Z"

// CalendarQuery builds a CalDAV REPORT body (RFC 4791 §9.5) with a single
// comp-filter chain: VCALENDAR > itemType, optionally narrowed by a UTC
// time-range. Only getetag is requested back; calendar-data is not, since
// this REPORT only selects which items exist.
func CalendarQuery(itemType string, start, end time.Time) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	root := startElement(NamespaceCalDAV, "calendar-query")
	prop := startElement(NamespaceDAV, "prop")
	getetag := startElement(NamespaceDAV, "getetag")
	filter := startElement(NamespaceCalDAV, "filter")
	outerComp := startElement(NamespaceCalDAV, "comp-filter")
	outerComp.Attr = []xml.Attr{{Name: xml.Name{Local: "name"}, Value: "VCALENDAR"}}
	innerComp := startElement(NamespaceCalDAV, "comp-filter")
	innerComp.Attr = []xml.Attr{{Name: xml.Name{Local: "name"}, Value: itemType}}

	if err := writeTokens(enc, startToken(root), startToken(prop), startToken(getetag), xml.EndElement{Name: getetag.Name}, xml.EndElement{Name: prop.Name}); err != nil {
		return nil, err
	}
	if err := writeTokens(enc, startToken(filter), startToken(outerComp), startToken(innerComp)); err != nil {
		return nil, err
	}

	if !start.IsZero() || !end.IsZero() {
		timeRange := startElement(NamespaceCalDAV, "time-range")
		if !start.IsZero() {
			timeRange.Attr = append(timeRange.Attr, xml.Attr{Name: xml.Name{Local: "start"}, Value: start.UTC().Format(TimeRangeLayout)})
		}
		if !end.IsZero() {
			timeRange.Attr = append(timeRange.Attr, xml.Attr{Name: xml.Name{Local: "end"}, Value: end.UTC().Format(TimeRangeLayout)})
		}
		if err := writeTokens(enc, startToken(timeRange), xml.EndElement{Name: timeRange.Name}); err != nil {
			return nil, err
		}
	}

	if err := writeTokens(enc,
		xml.EndElement{Name: innerComp.Name},
		xml.EndElement{Name: outerComp.Name},
		xml.EndElement{Name: filter.Name},
		xml.EndElement{Name: root.Name},
	); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
