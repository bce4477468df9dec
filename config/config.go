// Package config holds the plain, YAML-taggable configuration structs for
// each backend (§6 of the specification). Loading a file, resolving
// environment overrides, and exposing a CLI surface around these structs
// is the job of a host application, not this package.
package config

// Filesystem configures the per-file directory backend (§4.2).
type Filesystem struct {
	Path       string `yaml:"path"`
	FileExt    string `yaml:"fileext"`
	PostHook   string `yaml:"post_hook,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// Singlefile configures the single-file collection backend (§4.3). Path
// may contain exactly one "%s" placeholder for discovery.
type Singlefile struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection,omitempty"`
}

// HTTP configures the read-only HTTP backend (§4.4) and is embedded by DAV
// (§4.5/§4.6) for the options they share.
type HTTP struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`
	// Password may be a literal secret or a "keyring:<service>/<account>"
	// reference resolved through the credentials package.
	Password   string `yaml:"password,omitempty"`
	UserAgent  string `yaml:"useragent,omitempty"`
	VerifyCert *bool  `yaml:"verify_cert,omitempty"`
	// AuthCert is a path to a PKCS#12 bundle (client certificate + private
	// key) presented for mutual TLS, decrypted with AuthCertPassword.
	AuthCert         string `yaml:"auth_cert,omitempty"`
	AuthCertPassword string `yaml:"auth_cert_password,omitempty"`
}

// DAV configures the CalDAV/CardDAV backend (§4.5).
type DAV struct {
	HTTP `yaml:",inline"`

	Collection string `yaml:"collection,omitempty"`

	// CalDAV-only filters; ignored by the CardDAV storage variant.
	ItemTypes []string `yaml:"item_types,omitempty"`
	StartDate string   `yaml:"start_date,omitempty"`
	EndDate   string   `yaml:"end_date,omitempty"`
}
