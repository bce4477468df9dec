// Package credentials resolves a config password field that may be either
// a literal secret or a reference into the OS keyring, so DAV/HTTP configs
// never need to carry plaintext passwords on disk.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrKeyringUnavailable is returned when the resolver was asked to reach
// the OS keyring and no backend is available (headless CI, missing
// D-Bus/Secret Service, etc).
var ErrKeyringUnavailable = errors.New("credentials: system keyring not available")

const keyringPrefix = "keyring:"

// Backend is the minimal keyring surface a resolver needs; it exists so
// tests can substitute an in-memory fake instead of the real OS keyring.
type Backend interface {
	Get(service, account string) (string, error)
}

type systemBackend struct{}

func (systemBackend) Get(service, account string) (string, error) {
	pw, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", err
		}
		return "", ErrKeyringUnavailable
	}
	return pw, nil
}

// Resolver resolves password config values, dereferencing keyring
// references through Backend.
type Resolver struct {
	Backend Backend
}

// NewResolver returns a Resolver backed by the real OS keyring.
func NewResolver() *Resolver {
	return &Resolver{Backend: systemBackend{}}
}

// Resolve returns value unchanged unless it has the form
// "keyring:<service>/<account>", in which case it looks the password up
// in the keyring.
func (r *Resolver) Resolve(value string) (string, error) {
	ref, ok := strings.CutPrefix(value, keyringPrefix)
	if !ok {
		return value, nil
	}

	service, account, ok := strings.Cut(ref, "/")
	if !ok {
		return "", fmt.Errorf("credentials: malformed reference %q, want keyring:<service>/<account>", value)
	}

	return r.Backend.Get(service, account)
}
