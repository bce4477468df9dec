package dav

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/yinjun1991/vdirstore/config"
	"github.com/yinjun1991/vdirstore/dav/internal"
	"github.com/yinjun1991/vdirstore/href"
	"github.com/yinjun1991/vdirstore/item"
	"github.com/yinjun1991/vdirstore/storage"
	"github.com/yinjun1991/vdirstore/transport"
)

const dateLayout = "2006-01-02"

// Storage implements storage.Storage against a single CalDAV or CardDAV
// collection, with Capability supplying everything that differs between
// the two protocols.
type Storage struct {
	client *internal.Client
	cap    Capability
	cfg    config.DAV

	dateRange mo.Option[[2]time.Time]
}

// New builds a Storage for cfg's collection URL. cap must be CalDAV or
// CardDAV.
func New(t *transport.Client, cap Capability, cfg config.DAV) (*Storage, error) {
	s := &Storage{client: internal.New(t), cap: cap, cfg: cfg}

	if cap.CollectionResourceType.Local == "calendar" && (cfg.StartDate != "" || cfg.EndDate != "") {
		start, end, err := parseDateRange(cfg.StartDate, cfg.EndDate)
		if err != nil {
			return nil, err
		}
		s.dateRange = mo.Some([2]time.Time{start, end})
	}
	return s, nil
}

func parseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if startDate != "" {
		start, err = time.Parse(dateLayout, startDate)
		if err != nil {
			return start, end, &storage.Error{Kind: storage.BadDiscoveryConfig, Err: err}
		}
	}
	if endDate != "" {
		end, err = time.Parse(dateLayout, endDate)
		if err != nil {
			return start, end, &storage.Error{Kind: storage.BadDiscoveryConfig, Err: err}
		}
	}
	return start, end, nil
}

// List implements storage.Storage (§4.5.1).
func (s *Storage) List(ctx context.Context) ([]storage.ListedItem, error) {
	if s.cap.CollectionResourceType.Local == "calendar" && (s.dateRange.IsPresent() || len(s.cfg.ItemTypes) > 0) {
		return s.listByReport(ctx)
	}
	return s.listByPropfind(ctx)
}

func (s *Storage) listByPropfind(ctx context.Context) ([]storage.ListedItem, error) {
	resps, err := s.client.Propfind(ctx, s.cfg.URL, internal.DepthOne,
		xmlName(internal.NamespaceDAV, "resourcetype"),
		xmlName(internal.NamespaceDAV, "getcontenttype"),
		xmlName(internal.NamespaceDAV, "getetag"),
	)
	if err != nil {
		return nil, err
	}
	return s.filterListing(resps), nil
}

func (s *Storage) listByReport(ctx context.Context) ([]storage.ListedItem, error) {
	itemTypes := s.cfg.ItemTypes
	if len(itemTypes) == 0 {
		itemTypes = s.cap.itemTypes
	}

	var start, end time.Time
	if v, ok := s.dateRange.Get(); ok {
		start, end = v[0], v[1]
	}

	seen := make(map[string]bool)
	var out []storage.ListedItem
	for _, t := range itemTypes {
		body, err := internal.CalendarQuery(t, start, end)
		if err != nil {
			return nil, err
		}
		resps, err := s.client.Report(ctx, s.cfg.URL, body)
		if err != nil {
			return nil, err
		}
		for _, li := range s.filterListing(resps) {
			if seen[li.Href] {
				continue
			}
			seen[li.Href] = true
			out = append(out, li)
		}
	}
	return out, nil
}

// filterListing applies the skip/normalize/dedupe rules of §4.5.1 to a
// batch of parsed multistatus responses.
func (s *Storage) filterListing(resps []internal.Response) []storage.ListedItem {
	seen := make(map[string]bool)
	var out []storage.ListedItem
	for _, r := range resps {
		if r.IsCollection || r.IsCalendar || r.IsAddressbook {
			continue
		}
		if r.MimeType != "" && !strings.Contains(r.MimeType, s.cap.MimeSubstring) {
			continue
		}
		p := normalizePath(s.cfg.URL, r.Href)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, storage.ListedItem{Href: p, ETag: r.ETag})
	}
	return out
}

// Get implements storage.Storage (§4.5.2).
func (s *Storage) Get(ctx context.Context, href string) (*item.Item, string, error) {
	target, err := absoluteURL(s.cfg.URL, href)
	if err != nil {
		return nil, "", &storage.Error{Kind: storage.ItemNotFound, Href: href}
	}

	body, headers, finalURL, err := s.client.Get(ctx, target)
	if err != nil {
		return nil, "", err
	}

	resolvedPath := normalizePath(s.cfg.URL, finalURL)
	if resolvedPath != normalizePath(s.cfg.URL, href) {
		return nil, "", &storage.Error{Kind: storage.ItemNotFound, Href: href}
	}

	etag := strings.Trim(headers.Get("ETag"), `"`)
	if etag == "" {
		return nil, "", &storage.Error{Kind: storage.EtagNotFound, Href: href}
	}

	return item.FromRaw(body), etag, nil
}

// Upload implements storage.Storage (§4.5.2's put with etag == None).
func (s *Storage) Upload(ctx context.Context, it *item.Item) (string, string, error) {
	ident, err := it.Ident()
	if err != nil {
		return "", "", &storage.Error{Kind: storage.ItemUnparseable, Err: err}
	}
	h := href.Generate(ident) + s.cap.FileExtension
	return s.put(ctx, h, it, "", true)
}

// Update implements storage.Storage (§4.5.2's put with etag == Some).
func (s *Storage) Update(ctx context.Context, href string, it *item.Item, etag string) (string, error) {
	_, newETag, err := s.put(ctx, href, it, etag, false)
	return newETag, err
}

// put issues the conditional PUT and interprets 412 per §4.5.2: If-Match
// (create == false) means WrongEtag, If-None-Match (create == true) means
// ItemAlreadyExisting. It returns the final resolved path, matching what
// List emits, not the href the caller passed in.
func (s *Storage) put(ctx context.Context, href string, it *item.Item, etag string, create bool) (string, string, error) {
	target, err := absoluteURL(s.cfg.URL, href)
	if err != nil {
		return "", "", &storage.Error{Kind: storage.BadDiscoveryConfig, Href: href, Err: err}
	}
	finalPath := normalizePath(s.cfg.URL, target)

	conditionalHeader, conditionalValue := "If-Match", fmt.Sprintf("%q", strings.Trim(etag, `"`))
	if create {
		conditionalHeader, conditionalValue = "If-None-Match", "*"
	}

	resp, err := s.client.Put(ctx, target, s.cap.ContentType, conditionalHeader, conditionalValue, it.Raw())
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPreconditionFailed {
		if create {
			return "", "", &storage.Error{Kind: storage.ItemAlreadyExisting, Href: href}
		}
		return "", "", &storage.Error{Kind: storage.WrongEtag, Href: href}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", &storage.Error{Kind: storage.RequestFailed, Href: href, Err: fmt.Errorf("dav: put: unexpected status %s", resp.Status)}
	}

	return finalPath, strings.Trim(resp.Header.Get("ETag"), `"`), nil
}

// Delete implements storage.Storage (§4.5.2).
func (s *Storage) Delete(ctx context.Context, href, etag string) error {
	target, err := absoluteURL(s.cfg.URL, href)
	if err != nil {
		return &storage.Error{Kind: storage.BadDiscoveryConfig, Href: href, Err: err}
	}

	resp, err := s.client.Delete(ctx, target, fmt.Sprintf("%q", strings.Trim(etag, `"`)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPreconditionFailed {
		return &storage.Error{Kind: storage.WrongEtag, Href: href}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &storage.Error{Kind: storage.RequestFailed, Href: href, Err: fmt.Errorf("dav: delete: unexpected status %s", resp.Status)}
	}
	return nil
}

// SetBuffered is a no-op: every mutation already goes straight to the
// server, there is nothing to buffer.
func (s *Storage) SetBuffered(bool) {}

// Flush is a no-op for the same reason as SetBuffered.
func (s *Storage) Flush(ctx context.Context) error { return nil }

// GetMeta implements storage.Storage (§4.5.5).
func (s *Storage) GetMeta(ctx context.Context, key storage.MetaKey) (string, error) {
	prop, ok := s.metaProperty(key)
	if !ok {
		return "", &storage.Error{Kind: storage.MetadataValueUnsupported}
	}
	resps, err := s.client.Propfind(ctx, s.cfg.URL, internal.DepthZero, prop)
	if err != nil {
		return "", err
	}
	for _, r := range resps {
		var v string
		switch key {
		case storage.MetaDisplayName:
			v = r.DisplayName
		case storage.MetaColor:
			v = r.AppleCalendarColor
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	return "", nil
}

// SetMeta implements storage.Storage (§4.5.5).
func (s *Storage) SetMeta(ctx context.Context, key storage.MetaKey, value string) error {
	prop, ok := s.metaProperty(key)
	if !ok {
		return &storage.Error{Kind: storage.MetadataValueUnsupported}
	}
	return s.client.Proppatch(ctx, s.cfg.URL, prop, value)
}

func (s *Storage) metaProperty(key storage.MetaKey) (xml.Name, bool) {
	switch key {
	case storage.MetaDisplayName:
		return DisplayNameProperty, true
	case storage.MetaColor:
		if s.cap.ColorProperty == (xml.Name{}) {
			return xml.Name{}, false
		}
		return s.cap.ColorProperty, true
	default:
		return xml.Name{}, false
	}
}

// DeleteCollection implements storage.Storage. force must be true, per the
// shared contract documented on storage.Storage.
func (s *Storage) DeleteCollection(ctx context.Context, force bool) error {
	if !force {
		return &storage.Error{Kind: storage.BadDiscoveryConfig, URL: s.cfg.URL}
	}
	req, err := s.client.HTTP.NewRequest(ctx, http.MethodDelete, s.cfg.URL, nil)
	if err != nil {
		return &storage.Error{Kind: storage.BadDiscoveryConfig, URL: s.cfg.URL, Err: err}
	}
	resp, err := s.client.HTTP.DoRaw(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &storage.Error{Kind: storage.RequestFailed, URL: s.cfg.URL, Err: fmt.Errorf("dav: delete_collection: unexpected status %s", resp.Status)}
	}
	return nil
}

// Discover runs collection discovery for cfg (§4.5.3). It is a package
// function, not a method satisfying storage.ConfigurableStorage.
func Discover(ctx context.Context, t *transport.Client, cap Capability, cfg config.DAV) ([]config.DAV, error) {
	return discover(ctx, internal.New(t), cap, cfg)
}

// Create creates the collection cfg names, or returns it if it already
// exists (§4.5.3). Like Discover, it is a package function.
func Create(ctx context.Context, t *transport.Client, cap Capability, cfg config.DAV) (config.DAV, error) {
	return create(ctx, internal.New(t), cap, cfg)
}

func xmlName(space, local string) xml.Name { return xml.Name{Space: space, Local: local} }

func normalizePath(baseURL, rawHref string) string {
	abs, err := absoluteURL(baseURL, rawHref)
	if err != nil {
		return ""
	}
	u, err := url.Parse(abs)
	if err != nil {
		return ""
	}
	return path.Clean(u.Path)
}
