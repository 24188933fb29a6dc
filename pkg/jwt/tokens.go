package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// AssertionTTL is the lifetime of a signed assertion.
const AssertionTTL = 60 * time.Second

// Assertion is the verified content of a service-account assertion.
type Assertion struct {
	Issuer    string
	Subject   string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// KeyLookup resolves the public key registered for an assertion issuer.
type KeyLookup func(issuer string) (*rsa.PublicKey, error)

// SignAssertion issues an RS256 assertion valid for AssertionTTL from now.
func SignAssertion(key *rsa.PrivateKey, issuer, subject, audience string, now time.Time) (string, error) {
	if key == nil {
		return "", errors.New("rsa private key is required")
	}
	claims := jwtlib.MapClaims{
		"iss": issuer,
		"sub": subject,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(AssertionTTL).Unix(),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	return token.SignedString(key)
}

// ParseAssertion verifies an RS256 assertion against the issuer's registered key.
// An empty audience skips the audience check.
func ParseAssertion(token, audience string, lookup KeyLookup, now func() time.Time) (*Assertion, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodRS256.Name}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
	}
	if audience != "" {
		opts = append(opts, jwtlib.WithAudience(audience))
	}
	if now != nil {
		opts = append(opts, jwtlib.WithTimeFunc(now))
	}
	parsed, err := jwtlib.ParseWithClaims(token, jwtlib.MapClaims{}, func(t *jwtlib.Token) (interface{}, error) {
		issuer, err := t.Claims.GetIssuer()
		if err != nil {
			return nil, err
		}
		if issuer == "" {
			return nil, errors.New("assertion issuer missing")
		}
		return lookup(issuer)
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return assertionFromClaims(claims)
}

func assertionFromClaims(claims jwtlib.MapClaims) (*Assertion, error) {
	out := &Assertion{}
	var err error
	if out.Issuer, err = claims.GetIssuer(); err != nil {
		return nil, err
	}
	if out.Subject, err = claims.GetSubject(); err != nil {
		return nil, err
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return nil, err
	}
	if len(aud) > 0 {
		out.Audience = aud[0]
	}
	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, err
	}
	if iat == nil {
		return nil, fmt.Errorf("%w: iat missing", jwtlib.ErrTokenInvalidClaims)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, err
	}
	out.IssuedAt = iat.Time
	out.ExpiresAt = exp.Time
	return out, nil
}

// Claims defines the access token payload issued by the server.
type Claims struct {
	AccountID int64  `json:"account_id"`
	KeyName   string `json:"key_name"`
	Domain    string `json:"domain"`
	jwtlib.RegisteredClaims
}

// GenerateToken issues a signed access token for a service account.
func GenerateToken(accountID int64, keyName, domain, secret string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		AccountID: accountID,
		KeyName:   keyName,
		Domain:    domain,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    "icm",
			Subject:   keyName,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates and extracts access token claims. A nil now uses the wall clock.
func Parse(token string, secret string, now func() time.Time) (*Claims, error) {
	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name})}
	if now != nil {
		opts = append(opts, jwtlib.WithTimeFunc(now))
	}
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ParseRSAPrivateKey decodes a PEM encoded PKCS#1 or PKCS#8 RSA private key.
func ParseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	return jwtlib.ParseRSAPrivateKeyFromPEM([]byte(pemData))
}

// ParseRSAPublicKey decodes a PEM encoded RSA public key.
func ParseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	return jwtlib.ParseRSAPublicKeyFromPEM([]byte(pemData))
}
