package item

import (
	"strings"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
)

func vcardKey(name string) string {
	return strings.ToUpper(name)
}

// node is the minimal "properties + children" view that the hashing walk in
// hash.go needs. It lets the same tree-walk strip properties from an
// *ical.Component tree (VCALENDAR/VEVENT/VTIMEZONE/...) and from a flat
// vcard.Card without forking the algorithm per vobject format.
type node interface {
	Name() string
	Property(name string) string
	DeleteProperty(name string)
	DropChildren(match func(name string) bool)
	Children() []node
}

type icalNode struct {
	c *ical.Component
}

func (n icalNode) Name() string { return n.c.Name }

func (n icalNode) Property(name string) string {
	p := n.c.Props.Get(name)
	if p == nil {
		return ""
	}
	return p.Value
}

func (n icalNode) DeleteProperty(name string) {
	n.c.Props.Del(name)
}

func (n icalNode) DropChildren(match func(name string) bool) {
	kept := n.c.Children[:0]
	for _, child := range n.c.Children {
		if !match(child.Name) {
			kept = append(kept, child)
		}
	}
	n.c.Children = kept
}

func (n icalNode) Children() []node {
	out := make([]node, len(n.c.Children))
	for i, child := range n.c.Children {
		out[i] = icalNode{child}
	}
	return out
}

// vcardNode presents a flat vcard.Card as a childless node so the VCARD case
// goes through the same removal walk as VCALENDAR trees.
type vcardNode struct {
	c vcard.Card
}

func (n vcardNode) Name() string { return "VCARD" }

func (n vcardNode) Property(name string) string {
	return n.c.Value(name)
}

func (n vcardNode) DeleteProperty(name string) {
	delete(n.c, vcardKey(name))
}

func (n vcardNode) DropChildren(func(string) bool) {}

func (n vcardNode) Children() []node { return nil }
