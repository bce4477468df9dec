package dav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yinjun1991/vdirstore/config"
	"github.com/yinjun1991/vdirstore/item"
	"github.com/yinjun1991/vdirstore/logging"
	"github.com/yinjun1991/vdirstore/storage"
	"github.com/yinjun1991/vdirstore/transport"
)

func newTestStorage(t *testing.T, srv *httptest.Server, cap Capability, cfg config.DAV) *Storage {
	t.Helper()
	tc, err := transport.New(srv.URL, transport.Config{}, nil, logging.Nop())
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	if cfg.URL == "" {
		cfg.URL = srv.URL + "/cal/"
	}
	s, err := New(tc, cap, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

const listingMultistatus = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/cal/</D:href>
    <D:propstat>
      <D:prop><D:resourcetype><D:collection/><C:calendar/></D:resourcetype></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/cal/evt-1.ics</D:href>
    <D:propstat>
      <D:prop>
        <D:getcontenttype>text/calendar; component=vevent</D:getcontenttype>
        <D:getetag>"etag-1"</D:getetag>
        <D:resourcetype/>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/cal/contact.vcf</D:href>
    <D:propstat>
      <D:prop>
        <D:getcontenttype>text/vcard</D:getcontenttype>
        <D:getetag>"etag-2"</D:getetag>
        <D:resourcetype/>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

func TestListSkipsCollectionAndFiltersMimetype(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			t.Fatalf("expected PROPFIND, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(listingMultistatus))
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CalDAV, config.DAV{})
	got, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Href != "/cal/evt-1.ics" || got[0].ETag != "etag-1" {
		t.Fatalf("List = %+v, want one entry for evt-1.ics", got)
	}
}

func TestGetDetectsPathMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cal/evt-1.ics" {
			http.Redirect(w, r, "/other/evt-1.ics", http.StatusFound)
			return
		}
		w.Header().Set("ETag", `"etag-1"`)
		w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CalDAV, config.DAV{})
	_, _, err := s.Get(context.Background(), "evt-1.ics")
	if kind, ok := storage.KindOf(err); !ok || kind != storage.ItemNotFound {
		t.Fatalf("KindOf(err) = %v, %v, want ItemNotFound", kind, ok)
	}
}

func TestGetMissingEtagFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CalDAV, config.DAV{})
	_, _, err := s.Get(context.Background(), "evt-1.ics")
	if kind, ok := storage.KindOf(err); !ok || kind != storage.EtagNotFound {
		t.Fatalf("KindOf(err) = %v, %v, want EtagNotFound", kind, ok)
	}
}

func TestUpdateWrongEtagOnPreconditionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Match") == "" {
			t.Fatalf("expected If-Match header on update")
		}
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CalDAV, config.DAV{})
	it := item.FromRaw("BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:1\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n")
	_, err := s.Update(context.Background(), "evt-1.ics", it, "etag-1")
	if kind, ok := storage.KindOf(err); !ok || kind != storage.WrongEtag {
		t.Fatalf("KindOf(err) = %v, %v, want WrongEtag", kind, ok)
	}
}

func TestUploadAlreadyExistingOnPreconditionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "*" {
			t.Fatalf("expected If-None-Match: * on upload, got %q", r.Header.Get("If-None-Match"))
		}
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CalDAV, config.DAV{})
	it := item.FromRaw("BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:1\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n")
	_, _, err := s.Upload(context.Background(), it)
	if kind, ok := storage.KindOf(err); !ok || kind != storage.ItemAlreadyExisting {
		t.Fatalf("KindOf(err) = %v, %v, want ItemAlreadyExisting", kind, ok)
	}
}

func TestUploadToleratesMissingResponseEtag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CalDAV, config.DAV{})
	it := item.FromRaw("BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:1\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n")
	_, etag, err := s.Upload(context.Background(), it)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if etag != "" {
		t.Fatalf("etag = %q, want empty string when server omits it", etag)
	}
}

func TestDeleteWrongEtagOnPreconditionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CalDAV, config.DAV{})
	err := s.Delete(context.Background(), "evt-1.ics", "etag-1")
	if kind, ok := storage.KindOf(err); !ok || kind != storage.WrongEtag {
		t.Fatalf("KindOf(err) = %v, %v, want WrongEtag", kind, ok)
	}
}

func TestGetMetaReturnsFirstNonEmptyValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(`<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/cal/</D:href>
    <D:propstat><D:prop><D:displayname>  Personal  </D:displayname></D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>
  </D:response>
</D:multistatus>`))
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CalDAV, config.DAV{})
	got, err := s.GetMeta(context.Background(), storage.MetaDisplayName)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if got != "Personal" {
		t.Fatalf("GetMeta = %q, want trimmed Personal", got)
	}
}

func TestCardDAVColorUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request for unsupported metadata key")
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CardDAV, config.DAV{})
	_, err := s.GetMeta(context.Background(), storage.MetaColor)
	if kind, ok := storage.KindOf(err); !ok || kind != storage.MetadataValueUnsupported {
		t.Fatalf("KindOf(err) = %v, %v, want MetadataValueUnsupported", kind, ok)
	}
}

func TestDiscoverFollowsWellKnownPrincipalHomeSet(t *testing.T) {
	var sawWellKnown, sawPrincipalPropfind, sawHomeSetPropfind bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/.well-known/caldav":
			sawWellKnown = true
			http.Redirect(w, r, "/dav/", http.StatusFound)
		case r.Method == http.MethodGet && r.URL.Path == "/dav/":
			w.WriteHeader(http.StatusOK)
		case r.Method == "PROPFIND" && r.URL.Path == "/dav/":
			sawPrincipalPropfind = true
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusMultiStatus)
			w.Write([]byte(`<D:multistatus xmlns:D="DAV:"><D:response><D:href>/dav/</D:href>
<D:propstat><D:prop><D:current-user-principal><D:href>/principals/alice/</D:href></D:current-user-principal></D:prop>
<D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response></D:multistatus>`))
		case r.Method == "PROPFIND" && r.URL.Path == "/principals/alice/":
			sawHomeSetPropfind = true
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusMultiStatus)
			w.Write([]byte(`<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav"><D:response><D:href>/principals/alice/</D:href>
<D:propstat><D:prop><C:calendar-home-set><D:href>/cal/</D:href></C:calendar-home-set></D:prop>
<D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response></D:multistatus>`))
		case r.Method == "PROPFIND" && r.URL.Path == "/cal/":
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusMultiStatus)
			w.Write([]byte(`<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav"><D:response><D:href>/cal/personal/</D:href>
<D:propstat><D:prop><D:resourcetype><D:collection/><C:calendar/></D:resourcetype></D:prop>
<D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response></D:multistatus>`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	tc, err := transport.New(srv.URL, transport.Config{}, nil, logging.Nop())
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	got, err := Discover(context.Background(), tc, CalDAV, config.DAV{HTTP: config.HTTP{URL: srv.URL + "/"}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !sawWellKnown || !sawPrincipalPropfind || !sawHomeSetPropfind {
		t.Fatalf("discovery chain incomplete: wellKnown=%v principal=%v homeSet=%v", sawWellKnown, sawPrincipalPropfind, sawHomeSetPropfind)
	}
	if len(got) != 1 || got[0].Collection != "personal" {
		t.Fatalf("Discover = %+v, want one collection named personal", got)
	}
}

func TestCreateRejectsRootURLWithoutCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	tc, err := transport.New(srv.URL, transport.Config{}, nil, logging.Nop())
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	_, err = Create(context.Background(), tc, CalDAV, config.DAV{HTTP: config.HTTP{URL: srv.URL + "/"}})
	if kind, ok := storage.KindOf(err); !ok || kind != storage.BadDiscoveryConfig {
		t.Fatalf("KindOf(err) = %v, %v, want BadDiscoveryConfig", kind, ok)
	}
}

func TestCalendarQueryListingIssuesReportPerItemType(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(`<D:multistatus xmlns:D="DAV:"></D:multistatus>`))
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CalDAV, config.DAV{ItemTypes: []string{"VEVENT", "VTODO"}})
	_, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	reportCount := 0
	for _, m := range methods {
		if m == "REPORT" {
			reportCount++
		}
	}
	if reportCount != 2 {
		t.Fatalf("issued %d REPORTs, want one per configured item type (2)", reportCount)
	}
}

func TestSetMetaUnsupportedForCardDAVColor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request for unsupported SetMeta key")
	}))
	defer srv.Close()

	s := newTestStorage(t, srv, CardDAV, config.DAV{})
	err := s.SetMeta(context.Background(), storage.MetaColor, "#ffffff")
	if kind, ok := storage.KindOf(err); !ok || kind != storage.MetadataValueUnsupported {
		t.Fatalf("KindOf(err) = %v, %v, want MetadataValueUnsupported", kind, ok)
	}
}
