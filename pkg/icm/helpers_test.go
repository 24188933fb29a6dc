package icm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/splax/icm/pkg/crypto"
)

var (
	keyOnce sync.Once
	keyPair crypto.KeyPair
	keyErr  error
)

func testKeyPair(t *testing.T) crypto.KeyPair {
	t.Helper()
	keyOnce.Do(func() {
		keyPair, keyErr = crypto.GenerateKeyPair(1024)
	})
	if keyErr != nil {
		t.Fatalf("generate key pair: %v", keyErr)
	}
	return keyPair
}

func keyFileJSON(t *testing.T, authURL string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"type":             CredentialType,
		"private_key_id":   7,
		"private_key_name": "svc-key",
		"private_key":      testKeyPair(t).PrivateKeyPEM,
		"access_domain":    "acme.internal",
		"auth_url":         authURL,
	})
	if err != nil {
		t.Fatalf("marshal key file: %v", err)
	}
	return data
}

func testCredential(t *testing.T, authURL string) *Credential {
	t.Helper()
	cred, err := ParseCredential(keyFileJSON(t, authURL))
	if err != nil {
		t.Fatalf("parse credential: %v", err)
	}
	return cred
}

func writeKeyFile(t *testing.T, authURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, keyFileJSON(t, authURL), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}

// fakeICM is a minimal in-process ICM server.
type fakeICM struct {
	*httptest.Server

	exchanges atomic.Int32
	calls     atomic.Int32

	mu             sync.Mutex
	expiresIn      int
	exchangeDelay  time.Duration
	exchangeStatus int
	infoExpiresAt  time.Time
	assertions     []string
	exchangePaths  []string
	revoked        map[string]bool
	lastQuery      string
	lastRequestID  string
	nextID         int64
	projects       map[string]*Project
	environments   map[string]*Environment
	values         map[string]*ParameterValue
}

func newFakeICM(t *testing.T) *fakeICM {
	t.Helper()
	f := &fakeICM{
		revoked:      make(map[string]bool),
		projects:     make(map[string]*Project),
		environments: make(map[string]*Environment),
		values:       make(map[string]*ParameterValue),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", f.handleExchange)
	mux.HandleFunc("POST /custom/exchange", f.handleExchange)
	mux.HandleFunc("GET /auth/token/info", f.authorized(f.handleInfo))
	mux.HandleFunc("GET /projects", f.authorized(f.handleListProjects))
	mux.HandleFunc("POST /projects", f.authorized(f.handleCreateProject))
	mux.HandleFunc("GET /projects/{p}", f.authorized(f.handleGetProject))
	mux.HandleFunc("PUT /projects/{p}", f.authorized(f.handleUpdateProject))
	mux.HandleFunc("DELETE /projects/{p}", f.authorized(f.handleRemoveProject))
	mux.HandleFunc("POST /projects/{p}/environments", f.authorized(f.handleCreateEnvironment))
	mux.HandleFunc("GET /projects/{p}/value/{param}/{env}", f.authorized(f.handleValue))
	mux.HandleFunc("POST /projects/{p}/value/{param}/{env}", f.authorized(f.handleValue))
	mux.HandleFunc("PUT /projects/{p}/value/{param}/{env}", f.authorized(f.handleValue))
	mux.HandleFunc("DELETE /projects/{p}/value/{param}/{env}", f.authorized(f.handleValue))
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeICM) client(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(testCredential(t, f.URL+"/auth/token"), opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message})
}

func (f *fakeICM) handleExchange(w http.ResponseWriter, r *http.Request) {
	n := f.exchanges.Add(1)
	var req struct {
		Assertion string `json:"assertion"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.assertions = append(f.assertions, req.Assertion)
	f.exchangePaths = append(f.exchangePaths, r.URL.Path)
	delay, status, expiresIn := f.exchangeDelay, f.exchangeStatus, f.expiresIn
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		writeFailure(w, status, "invalid_assertion", "assertion rejected")
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"access_token": fmt.Sprintf("token-%d", n),
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

func (f *fakeICM) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		f.lastRequestID = r.Header.Get("X-Request-ID")
		f.lastQuery = r.URL.RawQuery
		revoked := f.revoked[token]
		f.mu.Unlock()
		if !strings.HasPrefix(token, "token-") || revoked {
			writeFailure(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
			return
		}
		next(w, r)
	}
}

func (f *fakeICM) handleInfo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	expires := f.infoExpiresAt
	f.mu.Unlock()
	writeData(w, http.StatusOK, TokenInfo{ID: 7, Name: "svc-key", Domain: "acme.internal", ExpiresAt: expires})
}

func (f *fakeICM) handleListProjects(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := ProjectList{Projects: []Project{}}
	for _, p := range f.projects {
		list.Projects = append(list.Projects, *p)
	}
	list.Pagination = PaginationInfo{Page: 1, Per: 50, Total: len(list.Projects), TotalPages: 1}
	writeData(w, http.StatusOK, list)
}

func decodeName(r *http.Request) string {
	var body struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body.Name
}

func (f *fakeICM) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	name := decodeName(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[name]; ok {
		writeFailure(w, http.StatusConflict, "conflict", "project already exists")
		return
	}
	f.nextID++
	p := &Project{ID: f.nextID, Name: name, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	f.projects[name] = p
	writeData(w, http.StatusCreated, p)
}

func (f *fakeICM) handleGetProject(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[r.PathValue("p")]
	if !ok {
		writeFailure(w, http.StatusNotFound, "not_found", "project not found")
		return
	}
	writeData(w, http.StatusOK, p)
}

func (f *fakeICM) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	name := decodeName(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[r.PathValue("p")]
	if !ok {
		writeFailure(w, http.StatusNotFound, "not_found", "project not found")
		return
	}
	delete(f.projects, p.Name)
	p.Name = name
	f.projects[name] = p
	writeData(w, http.StatusOK, p)
}

func (f *fakeICM) handleRemoveProject(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[r.PathValue("p")]
	if !ok {
		writeFailure(w, http.StatusNotFound, "not_found", "project not found")
		return
	}
	delete(f.projects, p.Name)
	writeData(w, http.StatusOK, p)
}

func (f *fakeICM) handleCreateEnvironment(w http.ResponseWriter, r *http.Request) {
	name := decodeName(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[r.PathValue("p")]
	if !ok {
		writeFailure(w, http.StatusNotFound, "not_found", "project not found")
		return
	}
	f.nextID++
	env := &Environment{ID: f.nextID, ProjectID: p.ID, Name: name}
	f.environments[p.Name+"/"+name] = env
	writeData(w, http.StatusCreated, env)
}

func (f *fakeICM) handleValue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[r.PathValue("p")]
	if !ok {
		writeFailure(w, http.StatusNotFound, "not_found", "project not found")
		return
	}
	key := p.Name + "/" + r.PathValue("param") + "/" + r.PathValue("env")
	existing, exists := f.values[key]
	switch r.Method {
	case http.MethodGet:
		if !exists {
			writeFailure(w, http.StatusNotFound, CodeValueNotFound, "value not set")
			return
		}
		writeData(w, http.StatusOK, existing)
	case http.MethodPost:
		if exists {
			writeFailure(w, http.StatusConflict, "conflict", "value already exists")
			return
		}
		f.nextID++
		v := &ParameterValue{ID: f.nextID, ProjectID: p.ID, Value: body.Value}
		f.values[key] = v
		writeData(w, http.StatusCreated, v)
	case http.MethodPut:
		if !exists {
			writeFailure(w, http.StatusNotFound, CodeValueNotFound, "value not set")
			return
		}
		existing.Value = body.Value
		writeData(w, http.StatusOK, existing)
	case http.MethodDelete:
		if !exists {
			writeFailure(w, http.StatusNotFound, CodeValueNotFound, "value not set")
			return
		}
		delete(f.values, key)
		writeData(w, http.StatusOK, existing)
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}
