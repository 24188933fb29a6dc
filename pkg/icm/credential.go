package icm

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	jwtpkg "github.com/splax/icm/pkg/jwt"
)

// CredentialType is the only accepted key-file type tag.
const CredentialType = "internal-credential-key"

// Credential is the parsed content of a service-account key file.
type Credential struct {
	Type         string `json:"type"`
	KeyID        int64  `json:"private_key_id"`
	KeyName      string `json:"private_key_name"`
	PrivateKey   string `json:"private_key"`
	AccessDomain string `json:"access_domain"`
	AuthURL      string `json:"auth_url"`

	signer *rsa.PrivateKey
}

// LoadCredential reads and validates a key file.
func LoadCredential(path string) (*Credential, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ConfigError{Reason: "path to key file is missing"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Reason: "missing or unreadable key file", Err: err}
	}
	cred, err := ParseCredential(data)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return nil, err
	}
	return cred, nil
}

// ParseCredential decodes key-file JSON and checks its type tag and key material.
func ParseCredential(data []byte) (*Credential, error) {
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, &ConfigError{Reason: "invalid key file", Err: err}
	}
	if cred.Type != CredentialType {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid key file type %q", cred.Type)}
	}
	if strings.TrimSpace(cred.AuthURL) == "" {
		return nil, &ConfigError{Reason: "key file has no auth_url"}
	}
	signer, err := jwtpkg.ParseRSAPrivateKey(cred.PrivateKey)
	if err != nil {
		return nil, &ConfigError{Reason: "key file private key is not a valid RSA PEM", Err: err}
	}
	cred.signer = signer
	return &cred, nil
}
