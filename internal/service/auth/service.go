package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/splax/icm/internal/domain"
	"github.com/splax/icm/pkg/config"
	jwtpkg "github.com/splax/icm/pkg/jwt"
)

var (
	// ErrInvalidAssertion is returned when an assertion cannot be exchanged.
	ErrInvalidAssertion = errors.New("invalid assertion")
	// ErrInvalidToken is returned when a bearer token is rejected.
	ErrInvalidToken = errors.New("invalid access token")

	errUnknownAccount = errors.New("unknown service account")
	errDomainMismatch = errors.New("assertion subject does not match the account's access domain")
)

// Token is the result of a successful exchange.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Info describes the identity behind an access token.
type Info struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service exchanges service-account assertions for access tokens.
type Service struct {
	byName map[string]domain.ServiceAccount
	byID   map[int64]domain.ServiceAccount
	logger *slog.Logger
	cfg    config.ServerConfig
	now    func() time.Time
}

// New constructs a Service over the registered accounts.
func New(accounts []domain.ServiceAccount, logger *slog.Logger, cfg config.ServerConfig) Service {
	s := Service{
		byName: make(map[string]domain.ServiceAccount, len(accounts)),
		byID:   make(map[int64]domain.ServiceAccount, len(accounts)),
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, acct := range accounts {
		s.byName[acct.KeyName] = acct
		s.byID[acct.KeyID] = acct
	}
	return s
}

// WithClock returns a copy of the service using now as its time source.
func (s Service) WithClock(now func() time.Time) Service {
	s.now = now
	return s
}

// accountFile is one entry of the service accounts file.
type accountFile struct {
	KeyID        int64  `json:"key_id"`
	KeyName      string `json:"key_name"`
	PublicKey    string `json:"public_key"`
	AccessDomain string `json:"access_domain"`
}

// LoadServiceAccounts reads the JSON registry of service accounts.
func LoadServiceAccounts(path string) ([]domain.ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service accounts: %w", err)
	}
	return ParseServiceAccounts(data)
}

// ParseServiceAccounts decodes a JSON list of service accounts.
func ParseServiceAccounts(data []byte) ([]domain.ServiceAccount, error) {
	var entries []accountFile
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode service accounts: %w", err)
	}
	accounts := make([]domain.ServiceAccount, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.KeyName) == "" {
			return nil, fmt.Errorf("service account %d has no key_name", e.KeyID)
		}
		pub, err := jwtpkg.ParseRSAPublicKey(e.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("service account %s: %w", e.KeyName, err)
		}
		accounts = append(accounts, domain.ServiceAccount{
			KeyID:        e.KeyID,
			KeyName:      e.KeyName,
			AccessDomain: e.AccessDomain,
			PublicKey:    pub,
		})
	}
	return accounts, nil
}

// lookup resolves an assertion issuer, which is either a key name or a numeric key id.
func (s Service) lookup(issuer string) (domain.ServiceAccount, bool) {
	if acct, ok := s.byName[issuer]; ok {
		return acct, true
	}
	if id, err := strconv.ParseInt(issuer, 10, 64); err == nil {
		acct, ok := s.byID[id]
		return acct, ok
	}
	return domain.ServiceAccount{}, false
}

// Exchange verifies a signed assertion and issues an access token.
func (s Service) Exchange(ctx context.Context, assertion string) (Token, error) {
	assertion = strings.TrimSpace(assertion)
	if assertion == "" {
		return Token{}, fmt.Errorf("%w: assertion is required", ErrInvalidAssertion)
	}
	var acct domain.ServiceAccount
	keys := func(issuer string) (*rsa.PublicKey, error) {
		found, ok := s.lookup(issuer)
		if !ok {
			return nil, errUnknownAccount
		}
		acct = found
		return found.PublicKey, nil
	}
	claims, err := jwtpkg.ParseAssertion(assertion, s.cfg.AuthAudience, keys, s.now)
	if err != nil {
		s.logger.Warn("assertion rejected", "error", err)
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}
	if claims.Subject != acct.AccessDomain {
		s.logger.Warn("assertion rejected", "key_name", acct.KeyName, "error", errDomainMismatch)
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidAssertion, errDomainMismatch)
	}
	ttl := s.cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	token, err := jwtpkg.GenerateToken(acct.KeyID, acct.KeyName, acct.AccessDomain, s.cfg.SigningSecret, ttl, s.now())
	if err != nil {
		return Token{}, err
	}
	s.logger.Info("access token issued", "key_name", acct.KeyName, "domain", acct.AccessDomain)
	return Token{AccessToken: token, TokenType: "Bearer", ExpiresIn: int64(ttl / time.Second)}, nil
}

// Authorize validates a bearer token and returns its claims.
func (s Service) Authorize(ctx context.Context, token string) (*jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: token required", ErrInvalidToken)
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.SigningSecret, s.now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, ok := s.byName[claims.KeyName]; !ok {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, errUnknownAccount)
	}
	return claims, nil
}

// Describe converts access token claims into Info.
func Describe(claims *jwtpkg.Claims) Info {
	info := Info{ID: claims.AccountID, Name: claims.KeyName, Domain: claims.Domain}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return info
}
