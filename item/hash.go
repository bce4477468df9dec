package item

import (
	"bytes"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
)

// commonStripped are removed at every component, calendar or contact alike,
// before hashing. Servers rewrite these across round-trips; none of them
// contribute to "is this the same item".
var commonStripped = []string{
	"PRODID",
	"METHOD",
	"X-RADICALE-NAME",
	"REV",
	"LAST-MODIFIED",
	"CREATED",
	"DTSTAMP",
	"UID",
}

func stripNode(n node) {
	for _, name := range commonStripped {
		n.DeleteProperty(name)
	}
	if n.Name() == ical.CompCalendar {
		if n.Property("CALSCALE") == "GREGORIAN" {
			n.DeleteProperty("CALSCALE")
		}
		n.DeleteProperty("X-WR-CALNAME")
		n.DeleteProperty("X-WR-TIMEZONE")
		n.DropChildren(func(name string) bool { return name == ical.CompTimezone })
	}
	for _, child := range n.Children() {
		stripNode(child)
	}
}

func hashableCalendar(cal *ical.Calendar) (string, error) {
	clone := cloneCalendar(cal)
	stripNode(icalNode{clone.Component})

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(clone); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func hashableCard(c vcard.Card) (string, error) {
	clone := cloneCard(c)
	stripNode(vcardNode{clone})

	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(clone); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func cloneComponent(c *ical.Component) *ical.Component {
	clone := &ical.Component{Name: c.Name, Props: make(ical.Props, len(c.Props))}
	for key, values := range c.Props {
		cloned := make([]ical.Prop, len(values))
		for i, p := range values {
			cloned[i] = ical.Prop{Name: p.Name, Value: p.Value, Params: cloneParams(p.Params)}
		}
		clone.Props[key] = cloned
	}
	clone.Children = make([]*ical.Component, len(c.Children))
	for i, child := range c.Children {
		clone.Children[i] = cloneComponent(child)
	}
	return clone
}

func cloneCalendar(cal *ical.Calendar) *ical.Calendar {
	return &ical.Calendar{Component: cloneComponent(cal.Component)}
}

func cloneParams(p ical.Params) ical.Params {
	if p == nil {
		return nil
	}
	clone := make(ical.Params, len(p))
	for k, v := range p {
		cp := make([]string, len(v))
		copy(cp, v)
		clone[k] = cp
	}
	return clone
}

func cloneCard(c vcard.Card) vcard.Card {
	clone := make(vcard.Card, len(c))
	for key, fields := range c {
		cloned := make([]*vcard.Field, len(fields))
		for i, f := range fields {
			cp := *f
			cp.Params = cloneVCardParams(f.Params)
			cloned[i] = &cp
		}
		clone[key] = cloned
	}
	return clone
}

func cloneVCardParams(p vcard.Params) vcard.Params {
	if p == nil {
		return nil
	}
	clone := make(vcard.Params, len(p))
	for k, v := range p {
		cp := make([]string, len(v))
		copy(cp, v)
		clone[k] = cp
	}
	return clone
}
