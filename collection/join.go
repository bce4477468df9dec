package collection

import (
	"bytes"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"

	"github.com/yinjun1991/vdirstore/item"
)

// Join is the inverse of Split: it re-serializes a set of items into one
// concatenated collection, per §4.3's join_collection algorithm.
func Join(items []*item.Item) (string, error) {
	if len(items) == 0 {
		return "", nil
	}

	switch items[0].RootName() {
	case ical.CompCalendar:
		return joinCalendars(items)
	case "VCARD":
		return joinCards(items)
	default:
		return "", unexpectedVobject(items[0].RootName())
	}
}

// joinCalendars merges every item's subcomponents directly into one
// VCALENDAR wrapper, since the inner and outer component names match.
func joinCalendars(items []*item.Item) (string, error) {
	wrapper := ical.NewCalendar()

	var version string
	for _, it := range items {
		cal, ok := it.Calendar()
		if !ok {
			return "", unexpectedVobject(it.RootName())
		}
		if v := cal.Props.Get(ical.PropVersion); v != nil && v.Value != "" {
			switch {
			case version == "":
				version = v.Value
			case version != v.Value:
				return "", unexpectedVobjectVersion(version, v.Value)
			}
		}
		wrapper.Children = append(wrapper.Children, cal.Children...)
	}
	if version != "" {
		wrapper.Props.SetText(ical.PropVersion, version)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(wrapper); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// joinCards wraps every VCARD item as a direct subcomponent of a
// VADDRESSBOOK: go-vcard has no VADDRESSBOOK type of its own (it is a
// CardDAV convention, not part of the vCard grammar), so the wrapper is
// built at the text level around each card's own serialization.
func joinCards(items []*item.Item) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VADDRESSBOOK\r\n")
	for _, it := range items {
		card, ok := it.Card()
		if !ok {
			return "", unexpectedVobject(it.RootName())
		}
		if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
			return "", err
		}
	}
	buf.WriteString("END:VADDRESSBOOK\r\n")
	return buf.String(), nil
}
