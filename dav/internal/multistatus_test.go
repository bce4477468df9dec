package internal

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"
)

const sampleMultistatus = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/cal/evt-1.ics</D:href>
    <D:propstat>
      <D:prop>
        <D:getetag>"abc123"</D:getetag>
        <D:getcontenttype>text/calendar; component=vevent</D:getcontenttype>
        <D:resourcetype/>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/cal/</D:href>
    <D:propstat>
      <D:prop>
        <D:resourcetype><D:collection/><C:calendar/></D:resourcetype>
        <D:displayname>Personal</D:displayname>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/principals/alice/</D:href>
    <D:propstat>
      <D:prop>
        <C:calendar-home-set><D:href>/cal/</D:href></C:calendar-home-set>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

func TestParseMultistatusItemResponse(t *testing.T) {
	got, err := ParseMultistatus(strings.NewReader(sampleMultistatus))
	if err != nil {
		t.Fatalf("ParseMultistatus: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d responses, want 3", len(got))
	}

	item := got[0]
	if item.Href != "/cal/evt-1.ics" {
		t.Errorf("Href = %q", item.Href)
	}
	if item.ETag != "abc123" {
		t.Errorf("ETag = %q, want unquoted abc123", item.ETag)
	}
	if !strings.Contains(item.MimeType, "text/calendar") {
		t.Errorf("MimeType = %q", item.MimeType)
	}
	if item.IsCollection {
		t.Errorf("item response should not be a collection")
	}
}

func TestParseMultistatusCollectionResponse(t *testing.T) {
	got, err := ParseMultistatus(strings.NewReader(sampleMultistatus))
	if err != nil {
		t.Fatalf("ParseMultistatus: %v", err)
	}
	coll := got[1]
	if !coll.IsCollection || !coll.IsCalendar {
		t.Fatalf("collection response = %+v, want IsCollection && IsCalendar", coll)
	}
	if coll.DisplayName != "Personal" {
		t.Errorf("DisplayName = %q", coll.DisplayName)
	}
}

func TestParseMultistatusHomeSetResponse(t *testing.T) {
	got, err := ParseMultistatus(strings.NewReader(sampleMultistatus))
	if err != nil {
		t.Fatalf("ParseMultistatus: %v", err)
	}
	principal := got[2]
	if principal.CalendarHomeSet != "/cal/" {
		t.Fatalf("CalendarHomeSet = %q, want /cal/", principal.CalendarHomeSet)
	}
	if principal.Href != "/principals/alice/" {
		t.Fatalf("Href = %q", principal.Href)
	}
}

func TestParseMultistatusEmpty(t *testing.T) {
	got, err := ParseMultistatus(strings.NewReader(`<D:multistatus xmlns:D="DAV:"></D:multistatus>`))
	if err != nil {
		t.Fatalf("ParseMultistatus: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d responses, want 0", len(got))
	}
}

func TestNewPropfindNamesRequestedProperties(t *testing.T) {
	body, err := NewPropfind(
		xml.Name{Space: NamespaceDAV, Local: "resourcetype"},
		xml.Name{Space: NamespaceDAV, Local: "getetag"},
	)
	if err != nil {
		t.Fatalf("NewPropfind: %v", err)
	}
	s := string(body)
	if !strings.Contains(s, "resourcetype") || !strings.Contains(s, "getetag") {
		t.Fatalf("NewPropfind body missing requested properties: %s", s)
	}
}

func TestNewProppatchSetEmbedsValue(t *testing.T) {
	body, err := NewProppatchSet(xml.Name{Space: NamespaceDAV, Local: "displayname"}, "Personal")
	if err != nil {
		t.Fatalf("NewProppatchSet: %v", err)
	}
	if !strings.Contains(string(body), "Personal") {
		t.Fatalf("NewProppatchSet body missing value: %s", body)
	}
}

func TestCalendarQueryEmbedsTimeRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	body, err := CalendarQuery("VEVENT", start, end)
	if err != nil {
		t.Fatalf("CalendarQuery: %v", err)
	}
	s := string(body)
	if !strings.Contains(s, "20240101T000000Z") || !strings.Contains(s, "20240201T000000Z") {
		t.Fatalf("CalendarQuery body missing formatted time-range: %s", s)
	}
	if !strings.Contains(s, `name="VEVENT"`) {
		t.Fatalf("CalendarQuery body missing item-type comp-filter: %s", s)
	}
}
