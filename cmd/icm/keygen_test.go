package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/splax/icm/internal/service/auth"
	"github.com/splax/icm/pkg/icm"
)

func TestKeygenWritesLoadableFiles(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.json")
	accountsPath := filepath.Join(dir, "accounts.json")

	err := commandKeygen([]string{
		"--name", "svc-key", "--id", "7", "--domain", "acme.internal",
		"--auth-url", "http://localhost:4100/auth/token",
		"--out", keyPath, "--accounts", accountsPath, "--bits", "1024",
	})
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	cred, err := icm.LoadCredential(keyPath)
	if err != nil {
		t.Fatalf("load generated key file: %v", err)
	}
	if cred.KeyName != "svc-key" || cred.KeyID != 7 || cred.AccessDomain != "acme.internal" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	accounts, err := auth.LoadServiceAccounts(accountsPath)
	if err != nil {
		t.Fatalf("load accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].KeyName != "svc-key" {
		t.Fatalf("unexpected accounts %+v", accounts)
	}

	if err := registerAccount(accountsPath, accountEntry{KeyID: 7, KeyName: "other"}); err == nil {
		t.Fatalf("expected duplicate key id to be rejected")
	}
	if err := os.Remove(keyPath); err != nil {
		t.Fatalf("remove key: %v", err)
	}
	if err := commandKeygen([]string{"--name", "svc-key", "--id", "7", "--domain", "acme.internal", "--out", keyPath, "--accounts", accountsPath, "--bits", "1024"}); err == nil {
		t.Fatalf("expected re-registration to fail")
	}
}

func TestRequired(t *testing.T) {
	if err := required("--a", "x", "--b", " "); err == nil || err.Error() != "--b is required" {
		t.Fatalf("unexpected error %v", err)
	}
	if err := required("--a", "x"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
