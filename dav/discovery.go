package dav

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/yinjun1991/vdirstore/config"
	"github.com/yinjun1991/vdirstore/dav/internal"
	"github.com/yinjun1991/vdirstore/storage"
)

// discover runs the well-known -> principal -> home-set -> collections
// chain (§4.5.3) and returns one config.DAV per discovered collection.
func discover(ctx context.Context, client *internal.Client, cap Capability, cfg config.DAV) ([]config.DAV, error) {
	wellKnown := resolveWellKnown(ctx, client, cfg.URL, cap.WellKnownPath)

	homeSetURL, err := resolveHomeSet(ctx, client, cap, cfg.URL, wellKnown)
	if err != nil {
		return nil, err
	}

	resps, err := client.Propfind(ctx, homeSetURL, internal.DepthOne,
		xmlName(internal.NamespaceDAV, "resourcetype"),
	)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []config.DAV
	for _, r := range resps {
		if !matchesCollectionType(r, cap) {
			continue
		}
		abs, err := absoluteURL(homeSetURL, r.Href)
		if err != nil {
			continue
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true

		name := lastPathSegment(abs)
		next := cfg
		next.URL = abs
		next.Collection = name
		out = append(out, next)
	}
	return out, nil
}

// resolveWellKnown follows GET well-known/path, returning the final
// redirected URL, or the configured URL on any failure.
func resolveWellKnown(ctx context.Context, client *internal.Client, configuredURL, wellKnownPath string) string {
	base, err := url.Parse(configuredURL)
	if err != nil {
		return configuredURL
	}
	wk := *base
	wk.Path = wellKnownPath
	wk.RawQuery = ""

	req, err := client.HTTP.NewRequest(ctx, http.MethodGet, wk.String(), nil)
	if err != nil {
		return configuredURL
	}
	resp, err := client.HTTP.Do(req, wk.String())
	if err != nil {
		return configuredURL
	}
	defer resp.Body.Close()
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return configuredURL
}

// resolveHomeSet implements steps 2 and 3 of §4.5.3.
func resolveHomeSet(ctx context.Context, client *internal.Client, cap Capability, configuredURL, wellKnown string) (string, error) {
	u, err := url.Parse(configuredURL)
	if err == nil && u.Path != "" && u.Path != "/" {
		return configuredURL, nil
	}

	principalResps, err := client.Propfind(ctx, wellKnown, internal.DepthZero,
		xmlName(internal.NamespaceDAV, "current-user-principal"),
	)
	if err != nil {
		return "", err
	}
	principal := firstNonEmpty(principalResps, func(r internal.Response) string { return r.CurrentUserPrincipal })
	if principal == "" {
		return "", &storage.Error{Kind: storage.NoPrincipalURL, URL: wellKnown}
	}
	principalURL, err := absoluteURL(wellKnown, principal)
	if err != nil {
		return "", &storage.Error{Kind: storage.NoPrincipalURL, URL: wellKnown}
	}

	homeSetResps, err := client.Propfind(ctx, principalURL, internal.DepthZero, cap.HomeSetProperty)
	if err != nil {
		return "", err
	}
	homeSet := firstNonEmpty(homeSetResps, func(r internal.Response) string {
		if cap.CollectionResourceType.Local == "calendar" {
			return r.CalendarHomeSet
		}
		return r.AddressbookHomeSet
	})
	if homeSet == "" {
		return "", &storage.Error{Kind: storage.NoHomesetURL, URL: principalURL}
	}
	return absoluteURL(principalURL, homeSet)
}

// create implements the create(config) algorithm of §4.5.3: cfg.Collection
// names the collection to create (required when cfg.URL is a root URL,
// since there is then nothing else to derive a target path from).
func create(ctx context.Context, client *internal.Client, cap Capability, cfg config.DAV) (config.DAV, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return config.DAV{}, &storage.Error{Kind: storage.BadDiscoveryConfig, URL: cfg.URL, Err: err}
	}

	rootURL := u.Path == "" || u.Path == "/"
	if rootURL && cfg.Collection == "" {
		return config.DAV{}, &storage.Error{Kind: storage.BadDiscoveryConfig, URL: cfg.URL}
	}

	if existing, derr := discover(ctx, client, cap, cfg); derr == nil {
		for _, e := range existing {
			if e.Collection == cfg.Collection {
				return e, nil
			}
		}
	}

	var target string
	if !rootURL {
		target = cfg.URL
	} else {
		wellKnown := resolveWellKnown(ctx, client, cfg.URL, cap.WellKnownPath)
		homeSet, herr := resolveHomeSet(ctx, client, cap, cfg.URL, wellKnown)
		if herr != nil {
			return config.DAV{}, herr
		}
		target, err = absoluteURL(homeSet, cfg.Collection+"/")
		if err != nil {
			return config.DAV{}, &storage.Error{Kind: storage.BadDiscoveryConfig, URL: cfg.URL, Err: err}
		}
	}

	if err := client.Mkcol(ctx, target, cap.CollectionResourceType); err != nil {
		return config.DAV{}, err
	}

	next := cfg
	next.URL = target
	next.Collection = lastPathSegment(target)
	return next, nil
}

func matchesCollectionType(r internal.Response, cap Capability) bool {
	switch cap.CollectionResourceType.Local {
	case "calendar":
		return r.IsCalendar
	case "addressbook":
		return r.IsAddressbook
	default:
		return false
	}
}

func firstNonEmpty(resps []internal.Response, f func(internal.Response) string) string {
	for _, r := range resps {
		if v := f(r); v != "" {
			return v
		}
	}
	return ""
}

func absoluteURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func lastPathSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	trimmed := strings.Trim(u.Path, "/")
	segs := strings.Split(trimmed, "/")
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
