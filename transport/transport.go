// Package transport builds the shared HTTP client used by the httpstorage
// and dav backends, and wraps every request/response pair with debug
// logging and the domain error mapping described in the specification.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/pkcs12"

	"github.com/yinjun1991/vdirstore/credentials"
	"github.com/yinjun1991/vdirstore/storage"
)

const defaultUserAgent = "vdirsyncer/0.17.0"

// Config holds the transport options. It mirrors the credential and TLS
// fields of config.HTTP (without URL) and adds CABundle, a PEM file of
// pinned root CAs, which config.HTTP does not carry; it is a separate type,
// so callers copy the fields over.
type Config struct {
	Username         string
	Password         string
	UserAgent        string
	VerifyCert       *bool
	CABundle         string
	AuthCert         string
	AuthCertPassword string
}

// Client wraps an *http.Client with the credentials, headers, and logging
// the specification requires of every outbound request.
type Client struct {
	HTTP      *http.Client
	BaseURL   string
	username  string
	password  string
	userAgent string
	log       zerolog.Logger
}

// New builds a Client from cfg. Password is resolved through resolver if
// it has a "keyring:" prefix; pass credentials.NewResolver() for the real
// OS keyring, or a Resolver wrapping a fake in tests.
func New(baseURL string, cfg Config, resolver *credentials.Resolver, log zerolog.Logger) (*Client, error) {
	password := cfg.Password
	if resolver != nil && password != "" {
		resolved, err := resolver.Resolve(password)
		if err != nil {
			return nil, storage.NewError(storage.BadDiscoveryConfig, err)
		}
		password = resolved
	}

	tlsConfig := &tls.Config{}
	if cfg.VerifyCert != nil && !*cfg.VerifyCert {
		tlsConfig.InsecureSkipVerify = true
	}
	if cfg.CABundle != "" {
		pem, err := os.ReadFile(cfg.CABundle)
		if err != nil {
			return nil, storage.NewError(storage.BadDiscoveryConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, storage.NewError(storage.BadDiscoveryConfig, fmt.Errorf("transport: no certificates found in %s", cfg.CABundle))
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.AuthCert != "" {
		cert, err := loadPKCS12Identity(cfg.AuthCert, cfg.AuthCertPassword)
		if err != nil {
			return nil, storage.NewError(storage.BadDiscoveryConfig, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		HTTP:      &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConfig}},
		BaseURL:   baseURL,
		username:  cfg.Username,
		password:  password,
		userAgent: userAgent,
		log:       log,
	}, nil
}

// loadPKCS12Identity decrypts a client identity bundle (matching
// reqwest::Identity::from_pkcs12_der in the original vdirsyncer) with
// password and converts it to a tls.Certificate.
func loadPKCS12Identity(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, err
	}
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: decoding %s: %w", path, err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// NewRequest builds a request for url, used as given (it is not resolved
// against c.BaseURL), with the auth and User-Agent headers set, ready for Do.
func (c *Client) NewRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// Do sends req, logging it at debug (with Authorization redacted) and
// mapping the response status to a *storage.Error on failure. href is
// attached to any resulting error for diagnostics; it may be empty.
func (c *Client) Do(req *http.Request, href string) (*http.Response, error) {
	c.logRequest(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, storage.NewError(storage.RequestFailed, err)
	}

	c.logResponse(resp)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	c.log.Debug().Str("href", href).Int("status", resp.StatusCode).Bytes("body", body).Msg("transport: error response")

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, &storage.Error{Kind: storage.ItemNotFound, Href: href}
	case http.StatusUnsupportedMediaType:
		return nil, &storage.Error{Kind: storage.UnsupportedVobject, Href: href}
	case http.StatusPreconditionFailed, http.StatusConflict:
		return nil, &storage.Error{Kind: storage.WrongEtag, Href: href}
	default:
		return nil, &storage.Error{
			Kind: storage.RequestFailed,
			Href: href,
			Err:  fmt.Errorf("transport: unexpected status %s", resp.Status),
		}
	}
}

// DoRaw sends req with the same request/response logging as Do (error
// response bodies are left unread for the caller), but returns the response
// for any status code without mapping it to a *storage.Error — callers
// that need to interpret a status themselves (DAV's conditional PUT/
// DELETE semantics depend on whether an If-Match or If-None-Match header
// was set, which Do's generic mapping doesn't know about) use this
// instead of Do.
func (c *Client) DoRaw(req *http.Request) (*http.Response, error) {
	c.logRequest(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, storage.NewError(storage.RequestFailed, err)
	}
	c.logResponse(resp)
	return resp, nil
}

func (c *Client) logRequest(req *http.Request) {
	ev := c.log.Debug().Str("method", req.Method).Str("url", req.URL.String())
	headerNames := make([]string, 0, len(req.Header))
	for name := range req.Header {
		headerNames = append(headerNames, name)
	}
	ev.Strs("headers", headerNames).Msg("> request")
}

func (c *Client) logResponse(resp *http.Response) {
	c.log.Debug().Int("status", resp.StatusCode).Str("url", resp.Request.URL.String()).Msg("< response")
}
