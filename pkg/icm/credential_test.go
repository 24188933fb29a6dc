package icm

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCredentialErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}
	valid := func(mutate func(map[string]any)) string {
		var fields map[string]any
		if err := json.Unmarshal(keyFileJSON(t, "https://icm.local/auth/token"), &fields); err != nil {
			t.Fatalf("decode key file: %v", err)
		}
		mutate(fields)
		data, _ := json.Marshal(fields)
		return string(data)
	}

	cases := []struct {
		name   string
		path   string
		reason string
	}{
		{name: "empty path", path: "", reason: "path to key file is missing"},
		{name: "missing file", path: filepath.Join(dir, "absent.json"), reason: "missing or unreadable"},
		{name: "bad json", path: write("bad.json", "{"), reason: "invalid key file"},
		{name: "wrong type", path: write("type.json", valid(func(m map[string]any) { m["type"] = "service_account" })), reason: `invalid key file type "service_account"`},
		{name: "no auth url", path: write("auth.json", valid(func(m map[string]any) { delete(m, "auth_url") })), reason: "no auth_url"},
		{name: "bad key", path: write("key.json", valid(func(m map[string]any) { m["private_key"] = "nope" })), reason: "not a valid RSA PEM"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadCredential(tc.path)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %T: %v", err, err)
			}
			if !strings.Contains(cfgErr.Reason, tc.reason) {
				t.Fatalf("reason %q does not mention %q", cfgErr.Reason, tc.reason)
			}
			if tc.path != "" && cfgErr.Path != tc.path {
				t.Fatalf("path = %q, want %q", cfgErr.Path, tc.path)
			}
		})
	}
}

func TestLoadCredential(t *testing.T) {
	path := writeKeyFile(t, "https://icm.local/auth/token")
	cred, err := LoadCredential(path)
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if cred.KeyID != 7 || cred.KeyName != "svc-key" || cred.AccessDomain != "acme.internal" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if cred.signer == nil {
		t.Fatalf("expected parsed private key")
	}
}
