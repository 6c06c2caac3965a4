// Package security holds platform-wide TLS configuration types shared by
// every component that terminates or dials a secured connection, so a
// config document has one shape for TLS regardless of which transport or
// listener consumes it.
package security

// Config holds platform-wide security configuration.
type Config struct {
	TLS TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig holds TLS configuration for servers and clients.
type TLSConfig struct {
	Server ServerTLSConfig `yaml:"server,omitempty"`
	Client ClientTLSConfig `yaml:"client,omitempty"`
}

// ServerMTLSConfig holds mTLS configuration for servers (client certificate
// validation).
type ServerMTLSConfig struct {
	Enabled           bool     `yaml:"enabled"`
	ClientCAFiles     []string `yaml:"client_ca_files,omitempty"`
	RequireClientCert bool     `yaml:"require_client_cert,omitempty"`
	AllowedClientCNs  []string `yaml:"allowed_client_cns,omitempty"`
}

// ServerTLSConfig holds TLS configuration for a bound listener.
type ServerTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	MinVersion string `yaml:"min_version,omitempty"` // "1.2" or "1.3"

	MTLS ServerMTLSConfig `yaml:"mtls,omitempty"`
}

// ClientMTLSConfig holds mTLS configuration for clients (client certificate
// provision).
type ClientMTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
}

// ClientTLSConfig holds TLS configuration for an outgoing connection.
// The system CA bundle is always trusted first; CAFiles are additional
// trusted CAs.
type ClientTLSConfig struct {
	CAFiles            []string `yaml:"ca_files,omitempty"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify,omitempty"` // dev/test only
	MinVersion         string   `yaml:"min_version,omitempty"`

	MTLS ClientMTLSConfig `yaml:"mtls,omitempty"`
}
