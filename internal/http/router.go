package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/icm/internal/domain"
	"github.com/splax/icm/internal/repository"
	"github.com/splax/icm/internal/service/auth"
	"github.com/splax/icm/internal/service/environment"
	"github.com/splax/icm/internal/service/parameter"
	"github.com/splax/icm/internal/service/project"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	auth      auth.Service
	projects  project.Service
	envs      environment.Service
	params    parameter.Service
	limiter   RateLimiter
	rateLimit int
	dbHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	tokensIssued       prometheus.Counter
}

const (
	rateWindowDefault  = time.Minute
	rateLimitExchange  = 30
	healthCheckTimeout = 2 * time.Second
	maxBodyBytes       = 1 << 20
)

// NewRouter assembles routes with dependencies. rateLimit is the per-account
// request budget per minute; zero disables limiting.
func NewRouter(logger *slog.Logger, authSvc auth.Service, projectSvc project.Service, envSvc environment.Service, paramSvc parameter.Service, limiter RateLimiter, rateLimit int, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		auth:      authSvc,
		projects:  projectSvc,
		envs:      envSvc,
		params:    paramSvc,
		limiter:   limiter,
		rateLimit: rateLimit,
		dbHealth:  dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/token", r.audit("/auth/token", r.withRateLimit(rateLimitExchange, rateWindowDefault, rateLimitKeyIP, r.handleTokenExchange)))
	r.mux.HandleFunc("/auth/token/info", r.audit("/auth/token/info", r.handlerAuthRate(r.rateLimit, rateWindowDefault, r.handleTokenInfo)))
	r.mux.HandleFunc("/projects", r.audit("/projects", r.handlerAuthRate(r.rateLimit, rateWindowDefault, r.handleProjects)))
	r.mux.HandleFunc("/projects/", r.audit("/projects/", r.handlerAuthRate(r.rateLimit, rateWindowDefault, r.handleProjectSubroutes)))
}

func (r *Router) handleTokenExchange(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Assertion string `json:"assertion"`
	}
	if !decodeBody(w, req, &payload) {
		return
	}
	token, err := r.auth.Exchange(req.Context(), payload.Assertion)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidAssertion) {
			writeError(w, http.StatusUnauthorized, codeInvalidAssertion, err.Error())
			return
		}
		r.logger.Error("token exchange failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "token exchange failed")
		return
	}
	r.recordTokenIssued()
	writeData(w, http.StatusOK, token)
}

func (r *Router) handleTokenInfo(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	claims, ok := claimsFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for token info", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, codeInternal, "authorization context missing")
		return
	}
	writeData(w, http.StatusOK, auth.Describe(claims))
}

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		projects, pagination, err := r.projects.List(req.Context(), pageFromQuery(req))
		if err != nil {
			r.fail(w, "project", err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"projects": projects, "pagination": pagination})
	case http.MethodPost:
		name, ok := decodeName(w, req)
		if !ok {
			return
		}
		proj, err := r.projects.Create(req.Context(), name)
		if err != nil {
			r.fail(w, "project", err)
			return
		}
		writeData(w, http.StatusCreated, proj)
	default:
		r.methodNotAllowed(w)
	}
}

// handleProjectSubroutes dispatches everything below /projects/{project}.
func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	parts, ok := pathSegments(strings.TrimPrefix(req.URL.EscapedPath(), "/projects/"))
	if !ok || len(parts) == 0 || parts[0] == "" {
		r.notFound(w)
		return
	}
	projectName := parts[0]
	switch {
	case len(parts) == 1:
		setRoute(w, "/projects/{project}")
		r.handleProject(w, req, projectName)
	case len(parts) == 2 && parts[1] == "environments":
		setRoute(w, "/projects/{project}/environments")
		r.handleEnvironments(w, req, projectName)
	case len(parts) == 3 && parts[1] == "environments":
		setRoute(w, "/projects/{project}/environments/{environment}")
		r.handleEnvironment(w, req, projectName, parts[2])
	case len(parts) == 2 && parts[1] == "parameters":
		setRoute(w, "/projects/{project}/parameters")
		r.handleParameters(w, req, projectName)
	case len(parts) == 3 && parts[1] == "parameters":
		setRoute(w, "/projects/{project}/parameters/{parameter}")
		r.handleParameter(w, req, projectName, parts[2])
	case len(parts) == 4 && parts[1] == "value":
		setRoute(w, "/projects/{project}/value/{parameter}/{environment}")
		r.handleValue(w, req, projectName, parts[2], parts[3])
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProject(w http.ResponseWriter, req *http.Request, name string) {
	var (
		proj *domain.Project
		err  error
	)
	switch req.Method {
	case http.MethodGet:
		proj, err = r.projects.Get(req.Context(), name)
	case http.MethodPut:
		newName, ok := decodeName(w, req)
		if !ok {
			return
		}
		proj, err = r.projects.Rename(req.Context(), name, newName)
	case http.MethodDelete:
		proj, err = r.projects.Remove(req.Context(), name)
	default:
		r.methodNotAllowed(w)
		return
	}
	if err != nil {
		r.fail(w, "project", err)
		return
	}
	writeData(w, http.StatusOK, proj)
}

func (r *Router) handleEnvironments(w http.ResponseWriter, req *http.Request, projectName string) {
	switch req.Method {
	case http.MethodGet:
		envs, pagination, err := r.envs.List(req.Context(), projectName, pageFromQuery(req))
		if err != nil {
			r.fail(w, "environment", err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"environments": envs, "pagination": pagination})
	case http.MethodPost:
		name, ok := decodeName(w, req)
		if !ok {
			return
		}
		env, err := r.envs.Create(req.Context(), projectName, name)
		if err != nil {
			r.fail(w, "environment", err)
			return
		}
		writeData(w, http.StatusCreated, env)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleEnvironment(w http.ResponseWriter, req *http.Request, projectName, name string) {
	var (
		env *domain.Environment
		err error
	)
	switch req.Method {
	case http.MethodPut:
		newName, ok := decodeName(w, req)
		if !ok {
			return
		}
		env, err = r.envs.Rename(req.Context(), projectName, name, newName)
	case http.MethodDelete:
		env, err = r.envs.Remove(req.Context(), projectName, name)
	default:
		r.methodNotAllowed(w)
		return
	}
	if err != nil {
		r.fail(w, "environment", err)
		return
	}
	writeData(w, http.StatusOK, env)
}

func (r *Router) handleParameters(w http.ResponseWriter, req *http.Request, projectName string) {
	switch req.Method {
	case http.MethodGet:
		params, pagination, err := r.params.List(req.Context(), projectName, pageFromQuery(req))
		if err != nil {
			r.fail(w, "parameter", err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"parameters": params, "pagination": pagination})
	case http.MethodPost:
		name, ok := decodeName(w, req)
		if !ok {
			return
		}
		param, err := r.params.Create(req.Context(), projectName, name)
		if err != nil {
			r.fail(w, "parameter", err)
			return
		}
		writeData(w, http.StatusCreated, param)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleParameter(w http.ResponseWriter, req *http.Request, projectName, name string) {
	var (
		param *domain.Parameter
		err   error
	)
	switch req.Method {
	case http.MethodPut:
		newName, ok := decodeName(w, req)
		if !ok {
			return
		}
		param, err = r.params.Rename(req.Context(), projectName, name, newName)
	case http.MethodDelete:
		param, err = r.params.Remove(req.Context(), projectName, name)
	default:
		r.methodNotAllowed(w)
		return
	}
	if err != nil {
		r.fail(w, "parameter", err)
		return
	}
	writeData(w, http.StatusOK, param)
}

func (r *Router) handleValue(w http.ResponseWriter, req *http.Request, projectName, paramName, envName string) {
	var (
		value  *parameter.Value
		err    error
		status = http.StatusOK
	)
	switch req.Method {
	case http.MethodGet:
		value, err = r.params.GetValue(req.Context(), projectName, paramName, envName)
	case http.MethodPost, http.MethodPut:
		var payload struct {
			Value *string `json:"value"`
		}
		if !decodeBody(w, req, &payload) {
			return
		}
		if payload.Value == nil {
			writeErrorBody(w, http.StatusBadRequest, codeInvalidRequest, "value is required", map[string]string{"field": "value"})
			return
		}
		if req.Method == http.MethodPost {
			value, err = r.params.CreateValue(req.Context(), projectName, paramName, envName, *payload.Value)
			status = http.StatusCreated
		} else {
			value, err = r.params.UpdateValue(req.Context(), projectName, paramName, envName, *payload.Value)
		}
	case http.MethodDelete:
		value, err = r.params.RemoveValue(req.Context(), projectName, paramName, envName)
	default:
		r.methodNotAllowed(w)
		return
	}
	if err != nil {
		r.fail(w, "value", err)
		return
	}
	writeData(w, status, value)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// fail maps service errors onto the error envelope.
func (r *Router) fail(w http.ResponseWriter, kind string, err error) {
	var missing *repository.MissingError
	switch {
	case errors.Is(err, parameter.ErrValueNotFound):
		writeError(w, http.StatusNotFound, codeValueNotFound, "value not set")
	case errors.As(err, &missing):
		writeError(w, http.StatusNotFound, codeNotFound, missing.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, kind+" not found")
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, codeConflict, kind+" already exists")
	case errors.Is(err, repository.ErrInvalidArgument):
		msg := strings.TrimPrefix(err.Error(), repository.ErrInvalidArgument.Error()+": ")
		writeErrorBody(w, http.StatusBadRequest, codeInvalidRequest, msg, map[string]string{"field": "name"})
	default:
		r.logger.Error("request failed", "kind", kind, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

func decodeBody(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return false
	}
	return true
}

func decodeName(w http.ResponseWriter, req *http.Request) (string, bool) {
	var payload struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, req, &payload) {
		return "", false
	}
	return payload.Name, true
}

func pageFromQuery(req *http.Request) domain.Page {
	query := req.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	per, _ := strconv.Atoi(query.Get("per"))
	return domain.Page{Page: page, Per: per}
}

// pathSegments splits an escaped path and unescapes each segment so names may
// contain reserved characters.
func pathSegments(escaped string) ([]string, bool) {
	escaped = strings.TrimSuffix(escaped, "/")
	raw := strings.Split(escaped, "/")
	parts := make([]string, 0, len(raw))
	for _, segment := range raw {
		part, err := url.PathUnescape(segment)
		if err != nil {
			return nil, false
		}
		parts = append(parts, part)
	}
	return parts, true
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		recorder := &statusRecorder{ResponseWriter: w, route: route}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, recorder.route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", recorder.route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			fields = append(fields, "key_name", info.KeyName, "domain", info.Domain)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	route  string
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func setRoute(w http.ResponseWriter, route string) {
	if sr, ok := w.(*statusRecorder); ok {
		sr.route = route
	}
}

func routeOf(w http.ResponseWriter, req *http.Request) string {
	if sr, ok := w.(*statusRecorder); ok && sr.route != "" {
		return sr.route
	}
	return req.URL.Path
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, codeMethod, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, codeNotFound, "not found")
}
