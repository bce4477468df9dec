// Package collection implements the VCALENDAR/VADDRESSBOOK split/join
// codec: decomposing a monolithic collection file into independently
// addressable items, and rejoining them losslessly.
package collection

import (
	"bytes"
	"sort"
	"strings"

	"github.com/emersion/go-ical"

	"github.com/yinjun1991/vdirstore/item"
	"github.com/yinjun1991/vdirstore/storage"
)

// Split decomposes a concatenated stream of vobject components into
// individually-addressable items, per §4.3's split_collection algorithm.
func Split(raw string) ([]*item.Item, error) {
	blocks, err := blocksOf(raw)
	if err != nil {
		return nil, err
	}

	var out []*item.Item
	for _, b := range blocks {
		switch b.name {
		case "VCARD":
			out = append(out, item.FromRaw(b.raw))
		case "VADDRESSBOOK":
			children, err := innerBlocks(b)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				if child.name != "VCARD" {
					return nil, unexpectedVobject(child.name)
				}
				out = append(out, item.FromRaw(child.raw))
			}
		case ical.CompCalendar:
			items, err := splitVCalendar(b.raw)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		default:
			return nil, unexpectedVobject(b.name)
		}
	}
	return out, nil
}

// splitVCalendar implements §4.3's split_vcalendar: strip METHOD, partition
// VTIMEZONE from the actual items, group items by UID (recurrence
// overrides share a wrapper), re-attach only the VTIMEZONEs a group's
// properties actually reference, and emit UID-keyed wrappers (sorted by
// UID) before UID-less ones.
func splitVCalendar(raw string) ([]*item.Item, error) {
	cal, err := ical.NewDecoder(strings.NewReader(raw)).Decode()
	if err != nil {
		return nil, &storage.Error{Kind: storage.ItemUnparseable, Err: err}
	}
	cal.Props.Del(ical.PropMethod)

	tzMap := make(map[string]*ical.Component)
	var members []*ical.Component
	for _, child := range cal.Children {
		switch child.Name {
		case ical.CompTimezone:
			if tzid := child.Props.Get(ical.PropTimezoneID); tzid != nil && tzid.Value != "" {
				tzMap[tzid.Value] = child
			}
		case ical.CompEvent, ical.CompToDo, ical.CompJournal:
			members = append(members, child)
		default:
			return nil, unexpectedVobject(child.Name)
		}
	}

	groups := make(map[string][]*ical.Component)
	var uidOrder []string
	var unkeyed [][]*ical.Component

	for _, m := range members {
		uid := ""
		if p := m.Props.Get(ical.PropUID); p != nil {
			uid = p.Value
		}
		if uid == "" {
			unkeyed = append(unkeyed, []*ical.Component{m})
			continue
		}
		if _, seen := groups[uid]; !seen {
			uidOrder = append(uidOrder, uid)
		}
		groups[uid] = append(groups[uid], m)
	}
	sort.Strings(uidOrder)

	var out []*item.Item
	emit := func(group []*ical.Component) error {
		raw, err := wrapGroup(cal.Props, tzMap, group)
		if err != nil {
			return err
		}
		out = append(out, item.FromRaw(raw))
		return nil
	}
	for _, uid := range uidOrder {
		if err := emit(groups[uid]); err != nil {
			return nil, err
		}
	}
	for _, group := range unkeyed {
		if err := emit(group); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// wrapGroup clones the calendar's own properties (minus children) into a
// fresh wrapper, re-attaches the VTIMEZONEs referenced by a TZID parameter
// anywhere in group, appends group, and serializes.
func wrapGroup(calProps ical.Props, tzMap map[string]*ical.Component, group []*ical.Component) (string, error) {
	wrapper := &ical.Component{Name: ical.CompCalendar, Props: cloneProps(calProps)}

	referenced := make(map[string]bool)
	for _, m := range group {
		for _, values := range m.Props {
			for _, p := range values {
				if tzid := p.Params.Get(ical.PropTimezoneID); tzid != "" {
					referenced[tzid] = true
				}
			}
		}
	}
	var tzids []string
	for tzid := range referenced {
		if _, ok := tzMap[tzid]; ok {
			tzids = append(tzids, tzid)
		}
	}
	sort.Strings(tzids)
	for _, tzid := range tzids {
		wrapper.Children = append(wrapper.Children, tzMap[tzid])
	}
	wrapper.Children = append(wrapper.Children, group...)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(&ical.Calendar{Component: wrapper}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func cloneProps(p ical.Props) ical.Props {
	clone := make(ical.Props, len(p))
	for key, values := range p {
		cloned := make([]ical.Prop, len(values))
		copy(cloned, values)
		clone[key] = cloned
	}
	return clone
}
