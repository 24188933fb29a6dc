package icm

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/splax/icm/pkg/logger"
)

const (
	// DefaultTokenLifetime is how long an access token is reused after it was issued.
	DefaultTokenLifetime = 50 * time.Minute
	defaultTimeout       = 15 * time.Second
	tokenPath            = "/auth/token"
	tokenInfoPath        = "/auth/token/info"
)

// ClaimSet selects the assertion issuer claim.
type ClaimSet int

const (
	// ClaimSetKeyName sets iss to the key name.
	ClaimSetKeyName ClaimSet = iota
	// ClaimSetKeyID sets iss to the numeric key id, as older servers expect.
	ClaimSetKeyID
)

// ParseClaimSet maps "key_name" or "key_id" to a ClaimSet.
func ParseClaimSet(name string) (ClaimSet, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "key_name":
		return ClaimSetKeyName, nil
	case "key_id":
		return ClaimSetKeyID, nil
	default:
		return 0, fmt.Errorf("unknown claim set %q", name)
	}
}

// ExchangeMode selects where assertions are posted.
type ExchangeMode int

const (
	// ExchangeAtAuthURL posts to the auth URL as written in the key file.
	ExchangeAtAuthURL ExchangeMode = iota
	// ExchangeAtTokenPath posts to the auth URL with /auth/token appended.
	ExchangeAtTokenPath
)

// ParseExchangeMode maps "auth_url" or "token_path" to an ExchangeMode.
func ParseExchangeMode(name string) (ExchangeMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auth_url":
		return ExchangeAtAuthURL, nil
	case "token_path":
		return ExchangeAtTokenPath, nil
	default:
		return 0, fmt.Errorf("unknown exchange mode %q", name)
	}
}

type settings struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	claimSet   ClaimSet
	exchange   ExchangeMode
	lifetime   time.Duration
	now        func() time.Time
}

func newSettings(opts []Option) settings {
	s := settings{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Discard(),
		lifetime:   DefaultTokenLifetime,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option customises client and token manager instantiation.
type Option func(*settings)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(s *settings) {
		if h != nil {
			s.httpClient = h
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger used for request and refresh diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBaseURL overrides the resource base URL derived from the auth URL.
func WithBaseURL(base string) Option {
	return func(s *settings) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithClaimSet selects the assertion issuer claim.
func WithClaimSet(cs ClaimSet) Option {
	return func(s *settings) { s.claimSet = cs }
}

// WithExchangeMode selects the token exchange endpoint.
func WithExchangeMode(m ExchangeMode) Option {
	return func(s *settings) { s.exchange = m }
}

// WithTokenLifetime overrides the 50 minute reuse window.
func WithTokenLifetime(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// deriveBaseURL strips the token endpoint suffix from an auth URL.
func deriveBaseURL(authURL string) string {
	base := strings.TrimRight(strings.TrimSpace(authURL), "/")
	base = strings.TrimSuffix(base, tokenPath)
	return strings.TrimRight(base, "/")
}

func exchangeURL(authURL string, mode ExchangeMode) string {
	trimmed := strings.TrimRight(strings.TrimSpace(authURL), "/")
	if mode == ExchangeAtTokenPath {
		return trimmed + tokenPath
	}
	return trimmed
}
