package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/splax/icm/pkg/crypto"
	"github.com/splax/icm/pkg/icm"
)

type keyFile struct {
	Type         string `json:"type"`
	KeyID        int64  `json:"private_key_id"`
	KeyName      string `json:"private_key_name"`
	PrivateKey   string `json:"private_key"`
	AccessDomain string `json:"access_domain"`
	AuthURL      string `json:"auth_url"`
}

type accountEntry struct {
	KeyID        int64  `json:"key_id"`
	KeyName      string `json:"key_name"`
	PublicKey    string `json:"public_key"`
	AccessDomain string `json:"access_domain"`
}

// commandKeygen writes a client key file and registers its public half in the
// emulator's service accounts file.
func commandKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	name := fs.String("name", "", "Key name")
	id := fs.Int64("id", 0, "Numeric key id")
	domain := fs.String("domain", "", "Access domain")
	authURL := fs.String("auth-url", "http://localhost:4100/auth/token", "Token exchange URL")
	out := fs.String("out", "icm_key.json", "Key file to write")
	accounts := fs.String("accounts", "service_accounts.json", "Service accounts file to update (empty to skip)")
	bits := fs.Int("bits", crypto.DefaultKeyBits, "RSA key size")
	fs.Parse(args)

	if err := required("--name", *name, "--domain", *domain, "--auth-url", *authURL); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("--id must be positive")
	}
	if _, err := os.Stat(*out); err == nil {
		return fmt.Errorf("%s already exists", *out)
	}

	pair, err := crypto.GenerateKeyPair(*bits)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(keyFile{
		Type:         icm.CredentialType,
		KeyID:        *id,
		KeyName:      *name,
		PrivateKey:   pair.PrivateKeyPEM,
		AccessDomain: *domain,
		AuthURL:      *authURL,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return err
	}
	fmt.Printf("key file written: %s\n", *out)

	if *accounts == "" {
		return nil
	}
	if err := registerAccount(*accounts, accountEntry{
		KeyID:        *id,
		KeyName:      *name,
		PublicKey:    pair.PublicKeyPEM,
		AccessDomain: *domain,
	}); err != nil {
		return err
	}
	fmt.Printf("service account registered: %s\n", *accounts)
	return nil
}

func registerAccount(path string, entry accountEntry) error {
	var entries []accountEntry
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	for _, existing := range entries {
		if existing.KeyName == entry.KeyName || existing.KeyID == entry.KeyID {
			return fmt.Errorf("service account %s (%d) already registered", existing.KeyName, existing.KeyID)
		}
	}
	entries = append(entries, entry)
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
