package icm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	jwtpkg "github.com/splax/icm/pkg/jwt"
)

// tokenLeeway is subtracted from server-reported expiries.
const tokenLeeway = 30 * time.Second

// TokenInfo describes the identity behind the current access token.
type TokenInfo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type cachedToken struct {
	value     string
	issuedAt  time.Time
	expiresAt time.Time
}

func (c cachedToken) usable(now time.Time) bool {
	return c.value != "" && now.Before(c.expiresAt)
}

// TokenManager mints assertions, exchanges them for access tokens and caches
// the result. It is safe for concurrent use; concurrent refreshes are coalesced.
type TokenManager struct {
	transport *transport
	s         settings

	mu         sync.Mutex
	cred       *Credential
	cached     cachedToken
	generation uint64

	group singleflight.Group
}

// NewTokenManager returns a TokenManager for the credential.
func NewTokenManager(cred *Credential, opts ...Option) (*TokenManager, error) {
	if cred == nil {
		return nil, &ConfigError{Reason: "credential is required"}
	}
	return newTokenManager(cred, newSettings(opts)), nil
}

func newTokenManager(cred *Credential, s settings) *TokenManager {
	return &TokenManager{
		transport: &transport{httpClient: s.httpClient, logger: s.logger},
		s:         s,
		cred:      cred,
	}
}

// AccessToken returns the cached token while it is fresh, refreshing it otherwise.
// The shared refresh outlives any one caller; each caller stops waiting when its
// own ctx is done.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	cred := m.cred
	if cred == nil {
		m.mu.Unlock()
		return "", &ConfigError{Reason: "no credential loaded", Err: ErrClosed}
	}
	if m.cached.usable(m.s.now()) {
		token := m.cached.value
		m.mu.Unlock()
		return token, nil
	}
	generation := m.generation
	m.mu.Unlock()

	key := "access-token:" + strconv.FormatUint(generation, 10)
	ch := m.group.DoChan(key, func() (interface{}, error) {
		return m.refresh(context.WithoutCancel(ctx), cred, generation)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &AuthError{Op: "token exchange", Err: ctx.Err()}
	}
}

// refresh mints a token for cred. The result is cached only while generation
// is still current.
func (m *TokenManager) refresh(ctx context.Context, cred *Credential, generation uint64) (string, error) {
	m.mu.Lock()
	if m.generation == generation && m.cached.usable(m.s.now()) {
		token := m.cached.value
		m.mu.Unlock()
		return token, nil
	}
	m.mu.Unlock()

	assertion, err := m.assertion(cred, m.s.now())
	if err != nil {
		return "", &AuthError{Op: "sign assertion", Err: err}
	}
	token, expiresIn, err := m.exchange(ctx, cred, assertion)
	if err != nil {
		return "", err
	}

	issued := m.s.now()
	entry := cachedToken{value: token, issuedAt: issued, expiresAt: issued.Add(m.s.lifetime)}
	if expiresIn > 0 {
		if serverExpiry := withLeeway(issued, issued.Add(expiresIn)); serverExpiry.Before(entry.expiresAt) {
			entry.expiresAt = serverExpiry
		}
	}

	m.mu.Lock()
	if m.generation == generation {
		m.cached = entry
	}
	m.mu.Unlock()
	m.s.logger.Debug("icm access token refreshed", "key_name", cred.KeyName, "expires_at", entry.expiresAt)
	return token, nil
}

// withLeeway pulls expiry back by tokenLeeway unless that would end the window
// at or before issued, in which case the server's expiry is used as is.
func withLeeway(issued, expiry time.Time) time.Time {
	if limit := expiry.Add(-tokenLeeway); limit.After(issued) {
		return limit
	}
	return expiry
}

func (m *TokenManager) assertion(cred *Credential, now time.Time) (string, error) {
	if cred.signer == nil {
		return "", errors.New("credential has no parsed private key")
	}
	issuer := cred.KeyName
	if m.s.claimSet == ClaimSetKeyID {
		issuer = strconv.FormatInt(cred.KeyID, 10)
	}
	return jwtpkg.SignAssertion(cred.signer, issuer, cred.AccessDomain, cred.AuthURL, now)
}

func (m *TokenManager) exchange(ctx context.Context, cred *Credential, assertion string) (string, time.Duration, error) {
	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	body := map[string]string{"assertion": assertion}
	endpoint := exchangeURL(cred.AuthURL, m.s.exchange)
	if err := m.transport.send(ctx, "token exchange", http.MethodPost, endpoint, body, "", &payload); err != nil {
		up, cause := classify(err)
		return "", 0, &AuthError{Op: "token exchange", Upstream: up, Err: cause}
	}
	if payload.AccessToken == "" {
		return "", 0, &AuthError{Op: "token exchange", Err: errors.New("response missing access_token")}
	}
	return payload.AccessToken, time.Duration(payload.ExpiresIn) * time.Second, nil
}

// TokenInfo fetches identity metadata for the current access token. A reported
// expiry earlier than the cached window shortens the cache entry.
func (m *TokenManager) TokenInfo(ctx context.Context) (*TokenInfo, error) {
	token, err := m.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	var info TokenInfo
	if err := m.transport.send(ctx, "token info", http.MethodGet, m.BaseURL()+tokenInfoPath, nil, token, &info); err != nil {
		up, cause := classify(err)
		if up.Status == http.StatusUnauthorized {
			m.discard(token)
		}
		return nil, &AuthError{Op: "token info", Upstream: up, Err: cause}
	}
	m.observeExpiry(token, info.ExpiresAt)
	return &info, nil
}

// BaseURL is the resource root derived from the credential's auth URL.
func (m *TokenManager) BaseURL() string {
	if m.s.baseURL != "" {
		return m.s.baseURL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return ""
	}
	return deriveBaseURL(m.cred.AuthURL)
}

// Invalidate drops the cached token so the next call refreshes.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.cached = cachedToken{}
	m.mu.Unlock()
}

// Reset swaps the credential and clears the cache. A nil credential leaves the
// manager unusable until the next Reset.
func (m *TokenManager) Reset(cred *Credential) {
	m.mu.Lock()
	m.cred = cred
	m.cached = cachedToken{}
	m.generation++
	m.mu.Unlock()
}

// discard clears the cache only if it still holds token.
func (m *TokenManager) discard(token string) {
	m.mu.Lock()
	if m.cached.value == token {
		m.cached = cachedToken{}
	}
	m.mu.Unlock()
}

func (m *TokenManager) observeExpiry(token string, expiresAt time.Time) {
	if expiresAt.IsZero() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached.value != token {
		return
	}
	if limit := withLeeway(m.cached.issuedAt, expiresAt); limit.Before(m.cached.expiresAt) {
		m.cached.expiresAt = limit
	}
}
