package auth

import (
	"encoding/base64"
	"strings"

	"github.com/beamlit/telemetry-go/pkg/config"
)

// CredentialState classifies the configured client credentials. Missing and
// invalid credentials are not errors: telemetry export proceeds
// unauthenticated and the collector rejects it server-side.
type CredentialState int

const (
	// CredentialsMissing means no credentials were configured.
	CredentialsMissing CredentialState = iota
	// CredentialsInvalid means the configured value could not be decoded.
	CredentialsInvalid
	// CredentialsValid means a client_id/client_secret pair was decoded.
	CredentialsValid
)

// String returns the state name for logs.
func (s CredentialState) String() string {
	switch s {
	case CredentialsMissing:
		return "missing"
	case CredentialsInvalid:
		return "invalid"
	case CredentialsValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Credentials is a decoded client-credentials pair.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// ParseCredentials decodes a base64-encoded "client_id:client_secret" value.
// The returned state makes the missing/invalid/valid decision explicit
// instead of burying it in control flow.
func ParseCredentials(encoded config.Secret) (Credentials, CredentialState) {
	if !encoded.IsSet() {
		return Credentials{}, CredentialsMissing
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded.Value())
	if err != nil {
		return Credentials{}, CredentialsInvalid
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 2 {
		return Credentials{}, CredentialsInvalid
	}

	return Credentials{ClientID: parts[0], ClientSecret: parts[1]}, CredentialsValid
}
