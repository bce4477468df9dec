package dav

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/yinjun1991/vdirstore/config"
	"github.com/yinjun1991/vdirstore/logging"
	"github.com/yinjun1991/vdirstore/storage"
	"github.com/yinjun1991/vdirstore/storage/storagetest"
	"github.com/yinjun1991/vdirstore/transport"
)

// fakeCollection is a minimal stateful CalDAV collection server, grounded
// on the same "single shared mock, every storage variant exercises it"
// pattern as cyp0633-libcaldora's mock_storage.go: just enough PROPFIND/
// GET/PUT/DELETE to let storagetest.Run's P1-P4 battery exercise a real
// conditional-PUT/DELETE HTTP round trip instead of a Go-level fake.
type fakeCollection struct {
	mu    sync.Mutex
	seq   int
	hrefs map[string]string // href -> body
	etags map[string]string // href -> etag
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{hrefs: map[string]string{}, etags: map[string]string{}}
}

func (f *fakeCollection) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	href := strings.TrimPrefix(r.URL.Path, "/cal")

	switch r.Method {
	case "PROPFIND":
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="utf-8"?><D:multistatus xmlns:D="DAV:">`)
		for h, etag := range f.etags {
			fmt.Fprintf(&b, `<D:response><D:href>/cal%s</D:href><D:propstat><D:prop>
<D:getcontenttype>text/calendar</D:getcontenttype><D:getetag>"%s"</D:getetag><D:resourcetype/>
</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>`, h, etag)
		}
		b.WriteString(`</D:multistatus>`)
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, b.String())

	case http.MethodGet:
		body, ok := f.hrefs[href]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"`+f.etags[href]+`"`)
		io.WriteString(w, body)

	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		existing, exists := f.etags[href]

		if ifNoneMatch := r.Header.Get("If-None-Match"); ifNoneMatch == "*" {
			if exists {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
		} else if ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`); ifMatch != "" {
			if !exists || ifMatch != existing {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
		}

		f.seq++
		newETag := fmt.Sprintf("etag-%d", f.seq)
		f.hrefs[href] = string(body)
		f.etags[href] = newETag
		w.Header().Set("ETag", `"`+newETag+`"`)
		w.WriteHeader(http.StatusCreated)

	case http.MethodDelete:
		existing, exists := f.etags[href]
		ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)
		if !exists || ifMatch != existing {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		delete(f.hrefs, href)
		delete(f.etags, href)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		srv := httptest.NewServer(newFakeCollection())
		t.Cleanup(srv.Close)

		tc, err := transport.New(srv.URL, transport.Config{}, nil, logging.Nop())
		if err != nil {
			t.Fatalf("transport.New: %v", err)
		}
		s, err := New(tc, CalDAV, config.DAV{HTTP: config.HTTP{URL: srv.URL + "/cal/"}})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}
