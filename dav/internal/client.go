package internal

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"

	"github.com/yinjun1991/vdirstore/transport"
)

// Client issues PROPFIND/REPORT/PROPPATCH/MKCOL/GET/PUT/DELETE requests
// against a DAV collection through a shared transport.Client, and parses
// multistatus bodies with ParseMultistatus.
type Client struct {
	HTTP *transport.Client
}

func New(t *transport.Client) *Client { return &Client{HTTP: t} }

func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string, href string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, url, body, headers)
	if err != nil {
		return nil, err
	}
	return c.HTTP.Do(req, href)
}

// doRaw is like do but skips the generic status-to-error mapping, for
// callers (Put, Delete) that interpret 412 differently depending on
// which conditional header they sent.
func (c *Client) doRaw(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, url, body, headers)
	if err != nil {
		return nil, err
	}
	return c.HTTP.DoRaw(req)
}

func (c *Client) newRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := c.HTTP.NewRequest(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Propfind issues a PROPFIND for the named properties at the given depth
// and returns the parsed multistatus responses.
func (c *Client) Propfind(ctx context.Context, url string, depth Depth, names ...xml.Name) ([]Response, error) {
	body, err := NewPropfind(names...)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, "PROPFIND", url, body, map[string]string{"Depth": depth.String()}, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ParseMultistatus(resp.Body)
}

// Report issues the given REPORT body (always Depth: 1) and returns the
// parsed multistatus responses.
func (c *Client) Report(ctx context.Context, url string, body []byte) ([]Response, error) {
	resp, err := c.do(ctx, "REPORT", url, body, map[string]string{"Depth": DepthOne.String()}, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ParseMultistatus(resp.Body)
}

// Proppatch sets name to value on url via PROPPATCH. Per §4.5.5 the
// response body is not parsed for per-property status codes; only the
// overall HTTP status is checked (by transport.Client.Do).
func (c *Client) Proppatch(ctx context.Context, url string, name xml.Name, value string) error {
	body, err := NewProppatchSet(name, value)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, "PROPPATCH", url, body, nil, url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Mkcol creates url as a collection of the given extended resource type.
func (c *Client) Mkcol(ctx context.Context, url string, extra xml.Name) error {
	body, err := NewMkcol(extra)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, "MKCOL", url, body, nil, url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Get fetches url and returns the raw body alongside the response
// headers (so the caller can read ETag/Content-Type/Location) and the
// final, post-redirect URL the body actually came from (so the caller
// can detect a server that redirected the request to a different item).
func (c *Client) Get(ctx context.Context, url string) (string, http.Header, string, error) {
	resp, err := c.do(ctx, http.MethodGet, url, nil, nil, url)
	if err != nil {
		return "", nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, "", err
	}
	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return string(body), resp.Header, finalURL, nil
}

// Put uploads body to url with the given Content-Type and conditional
// header (If-Match/If-None-Match, built by the caller since the exact
// value differs between create and update). The response is returned
// unmapped — a 412 means different things depending on which
// conditional header was sent, so the dav package interprets the status
// itself.
func (c *Client) Put(ctx context.Context, url, contentType, conditionalHeader, conditionalValue, body string) (*http.Response, error) {
	headers := map[string]string{"Content-Type": contentType}
	if conditionalHeader != "" {
		headers[conditionalHeader] = conditionalValue
	}
	return c.doRaw(ctx, http.MethodPut, url, []byte(body), headers)
}

// Delete removes url, sending If-Match: etag. Like Put, the response is
// returned unmapped so the caller can distinguish 412 (WrongEtag).
func (c *Client) Delete(ctx context.Context, url, etag string) (*http.Response, error) {
	return c.doRaw(ctx, http.MethodDelete, url, nil, map[string]string{"If-Match": etag})
}
