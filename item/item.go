// Package item implements the content-addressable Item value: a parsed (or
// raw, unparseable) vobject together with its stable identity and hash.
package item

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
)

// ErrUnparseable is wrapped by errors returned from operations that require
// a Parsed item (Hash, WithUID) when the item could not be parsed and, for
// Ident, when no UID fallback is available either.
var ErrUnparseable = errors.New("item: unparseable vobject")

// Item is one of two variants: Parsed, wrapping a decoded VCALENDAR or
// VCARD root, or Unparseable, preserving the raw text verbatim. It is
// immutable; WithUID returns a new value.
type Item struct {
	raw      string
	calendar *ical.Calendar
	card     vcard.Card
}

// FromRaw parses raw vobject text into an Item. Parse failure does not
// return an error: the result is simply an Unparseable item holding raw.
func FromRaw(raw string) *Item {
	it := &Item{raw: raw}

	kind, ok := sniffRoot(raw)
	if !ok {
		return it
	}

	switch kind {
	case ical.CompCalendar:
		cal, err := ical.NewDecoder(strings.NewReader(raw)).Decode()
		if err == nil {
			it.calendar = cal
		}
	case "VCARD":
		card, err := vcard.NewDecoder(strings.NewReader(raw)).Decode()
		if err == nil {
			it.card = card
		}
	}
	return it
}

// sniffRoot returns the name following the first non-blank BEGIN: line.
func sniffRoot(raw string) (string, bool) {
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		name, ok := strings.CutPrefix(line, "BEGIN:")
		return name, ok
	}
	return "", false
}

// IsParsed reports whether the item successfully parsed as a vobject.
func (it *Item) IsParsed() bool {
	return it.calendar != nil || it.card != nil
}

// RootName returns the parsed root component's name (ical.CompCalendar or
// "VCARD"), or "" if the item is unparseable. Used by the collection codec
// to decide which wrapper an item belongs under.
func (it *Item) RootName() string {
	switch {
	case it.calendar != nil:
		return ical.CompCalendar
	case it.card != nil:
		return "VCARD"
	default:
		return ""
	}
}

// Calendar returns the item's parsed VCALENDAR tree and true, or nil and
// false if the item is not a parsed calendar. Exposed for the collection
// codec, which needs direct tree access to merge/split items; callers must
// not mutate the returned tree.
func (it *Item) Calendar() (*ical.Calendar, bool) {
	return it.calendar, it.calendar != nil
}

// Card returns the item's parsed VCARD fields and true, or nil and false
// if the item is not a parsed card. Exposed for the collection codec; see
// Calendar.
func (it *Item) Card() (vcard.Card, bool) {
	return it.card, it.card != nil
}

// Raw returns the canonical serialization: the text the item was built
// from, for a freshly-parsed item, or the bytes of its last re-encode.
func (it *Item) Raw() string { return it.raw }

// UID returns the value of the innermost UID property found by depth-first
// descent, or the empty string if absent or unparseable.
func (it *Item) UID() string {
	switch {
	case it.calendar != nil:
		return uidFromComponent(it.calendar.Component)
	case it.card != nil:
		return it.card.Value(vcard.FieldUID)
	default:
		return ""
	}
}

func uidFromComponent(c *ical.Component) string {
	if p := c.Props.Get(ical.PropUID); p != nil && p.Value != "" {
		return p.Value
	}
	for _, child := range c.Children {
		if uid := uidFromComponent(child); uid != "" {
			return uid
		}
	}
	return ""
}

// Hash computes the SHA-256 content hash described in §4.1: strip
// server-volatile properties, serialize, line-sort, digest. Only defined
// for Parsed items.
func (it *Item) Hash() (string, error) {
	if !it.IsParsed() {
		return "", fmt.Errorf("item: hash: %w", ErrUnparseable)
	}

	var serialized string
	var err error
	if it.calendar != nil {
		serialized, err = hashableCalendar(it.calendar)
	} else {
		serialized, err = hashableCard(it.card)
	}
	if err != nil {
		return "", fmt.Errorf("item: hash: %w", err)
	}

	lines := strings.Split(serialized, "\r\n")
	sort.Strings(lines)
	normalized := strings.Join(lines, "\r\n")

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// Ident returns UID if present, else Hash. It fails only when the item is
// both unparseable and has no UID to fall back on.
func (it *Item) Ident() (string, error) {
	if uid := it.UID(); uid != "" {
		return uid, nil
	}
	h, err := it.Hash()
	if err != nil {
		return "", fmt.Errorf("item: ident: %w", ErrUnparseable)
	}
	return h, nil
}

// WithUID returns a new item with every VEVENT/VTODO/VJOURNAL/VCARD
// component, at any depth, given UID uid (removed if uid is empty), then
// reparsed from the re-serialized form so from_raw/hash stay consistent.
func (it *Item) WithUID(uid string) (*Item, error) {
	if !it.IsParsed() {
		return nil, fmt.Errorf("item: with_uid: %w", ErrUnparseable)
	}

	var buf bytes.Buffer
	if it.calendar != nil {
		clone := cloneCalendar(it.calendar)
		setCalendarUID(clone.Component, uid)
		if err := ical.NewEncoder(&buf).Encode(clone); err != nil {
			return nil, err
		}
	} else {
		clone := cloneCard(it.card)
		if uid == "" {
			delete(clone, vcardKey(vcard.FieldUID))
		} else {
			clone.SetValue(vcard.FieldUID, uid)
		}
		if err := vcard.NewEncoder(&buf).Encode(clone); err != nil {
			return nil, err
		}
	}

	return FromRaw(buf.String()), nil
}

func setCalendarUID(c *ical.Component, uid string) {
	switch c.Name {
	case ical.CompEvent, ical.CompToDo, ical.CompJournal:
		if uid == "" {
			c.Props.Del(ical.PropUID)
		} else {
			c.Props.SetText(ical.PropUID, uid)
		}
	}
	for _, child := range c.Children {
		setCalendarUID(child, uid)
	}
}
