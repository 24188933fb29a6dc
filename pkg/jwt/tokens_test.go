package jwt

import (
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/splax/icm/pkg/crypto"
)

func newKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	pair, err := crypto.GenerateKeyPair(1024)
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	priv, err := ParseRSAPrivateKey(pair.PrivateKeyPEM)
	if err != nil {
		t.Fatalf("parse private key: %v", err)
	}
	pub, err := ParseRSAPublicKey(pair.PublicKeyPEM)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	return priv, pub
}

func TestSignAssertionClaims(t *testing.T) {
	priv, pub := newKeys(t)
	now := time.Now().Truncate(time.Second)

	token, err := SignAssertion(priv, "svc-key", "acme.internal", "https://icm.local/auth/token", now)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	lookup := func(issuer string) (*rsa.PublicKey, error) {
		if issuer != "svc-key" {
			t.Fatalf("unexpected issuer lookup %q", issuer)
		}
		return pub, nil
	}
	got, err := ParseAssertion(token, "https://icm.local/auth/token", lookup, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Subject != "acme.internal" {
		t.Fatalf("unexpected subject %q", got.Subject)
	}
	if got.Audience != "https://icm.local/auth/token" {
		t.Fatalf("unexpected audience %q", got.Audience)
	}
	if got.ExpiresAt.Sub(got.IssuedAt) != AssertionTTL {
		t.Fatalf("expected 60s lifetime, got %s", got.ExpiresAt.Sub(got.IssuedAt))
	}
}

func TestParseAssertionRejectsExpired(t *testing.T) {
	priv, pub := newKeys(t)
	issued := time.Now().Add(-5 * time.Minute)
	token, err := SignAssertion(priv, "svc-key", "acme", "aud", issued)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	lookup := func(string) (*rsa.PublicKey, error) { return pub, nil }
	if _, err := ParseAssertion(token, "aud", lookup, nil); err == nil {
		t.Fatalf("expected expired assertion to fail")
	}
}

func TestParseAssertionRejectsWrongAudience(t *testing.T) {
	priv, pub := newKeys(t)
	token, err := SignAssertion(priv, "svc-key", "acme", "aud-a", time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	lookup := func(string) (*rsa.PublicKey, error) { return pub, nil }
	if _, err := ParseAssertion(token, "aud-b", lookup, nil); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestParseAssertionPropagatesLookupError(t *testing.T) {
	priv, _ := newKeys(t)
	token, err := SignAssertion(priv, "unknown", "acme", "aud", time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	errUnknown := errors.New("unknown issuer")
	lookup := func(string) (*rsa.PublicKey, error) { return nil, errUnknown }
	if _, err := ParseAssertion(token, "", lookup, nil); !errors.Is(err, errUnknown) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	now := time.Now()
	token, err := GenerateToken(7, "svc-key", "acme", "secret", time.Hour, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := Parse(token, "secret", nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.AccountID != 7 || claims.KeyName != "svc-key" || claims.Domain != "acme" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := Parse(token, "other-secret", nil); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestAccessTokenExpiresWithClock(t *testing.T) {
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := GenerateToken(7, "svc-key", "acme", "secret", time.Minute, issued)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	later := func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := Parse(token, "secret", later); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
