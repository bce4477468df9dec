package storage

import (
	"errors"
	"fmt"
)

// Kind is the single domain error enum shared by every backend and by the
// collection codec. Every failure mode named in the specification maps to
// exactly one Kind.
type Kind int

const (
	ItemUnparseable Kind = iota
	UnexpectedVobjectVersion
	UnexpectedVobject
	ItemNotFound
	ItemAlreadyExisting
	WrongEtag
	MtimeMismatch
	UnsupportedVobject
	ReadOnly
	MetadataValueUnsupported
	BadDiscoveryConfig
	EtagNotFound
	NoPrincipalURL
	NoHomesetURL
	// RequestFailed is a generic transport-level failure: the request
	// never got a classifiable response (connection error, timeout) or
	// got one outside the statuses the caller knows how to interpret
	// (a 5xx, or a 4xx with no domain-specific meaning here). Unlike
	// BadDiscoveryConfig it says nothing about the user's configuration
	// being wrong.
	RequestFailed
)

func (k Kind) String() string {
	switch k {
	case ItemUnparseable:
		return "item_unparseable"
	case UnexpectedVobjectVersion:
		return "unexpected_vobject_version"
	case UnexpectedVobject:
		return "unexpected_vobject"
	case ItemNotFound:
		return "item_not_found"
	case ItemAlreadyExisting:
		return "item_already_existing"
	case WrongEtag:
		return "wrong_etag"
	case MtimeMismatch:
		return "mtime_mismatch"
	case UnsupportedVobject:
		return "unsupported_vobject"
	case ReadOnly:
		return "read_only"
	case MetadataValueUnsupported:
		return "metadata_value_unsupported"
	case BadDiscoveryConfig:
		return "bad_discovery_config"
	case EtagNotFound:
		return "etag_not_found"
	case NoPrincipalURL:
		return "no_principal_url"
	case NoHomesetURL:
		return "no_homeset_url"
	case RequestFailed:
		return "request_failed"
	default:
		return "unknown"
	}
}

// Error is the one domain error type every backend returns. It carries
// whatever identifying context the failing operation had on hand — the
// specification requires user-visible errors to include the offending
// href, filepath, or URL verbatim.
type Error struct {
	Kind Kind

	Href string
	Path string
	URL  string

	Expected string
	Got      string

	Err error
}

func (e *Error) Error() string {
	msg := "storage: " + e.Kind.String()
	switch {
	case e.Href != "":
		msg += fmt.Sprintf(" (href=%q)", e.Href)
	case e.Path != "":
		msg += fmt.Sprintf(" (path=%q)", e.Path)
	case e.URL != "":
		msg += fmt.Sprintf(" (url=%q)", e.URL)
	}
	if e.Expected != "" || e.Got != "" {
		msg += fmt.Sprintf(" expected=%q got=%q", e.Expected, e.Got)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports Kind equality so callers can errors.Is(err, &storage.Error{Kind: storage.ItemNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf reports the Kind of err, if err is or wraps a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// NewError is a small convenience constructor used throughout the backends.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
