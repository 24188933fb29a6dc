package icm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound matches an APIError whose upstream status is 404.
var ErrNotFound = errors.New("icm: resource not found")

// ErrClosed is the cause of ConfigError values returned after Close.
var ErrClosed = errors.New("icm: client closed")

// ConfigError reports a missing, unreadable or invalid credential.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("icm config: ")
	b.WriteString(e.Reason)
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Upstream carries the diagnostic fields of an error envelope.
type Upstream struct {
	Status    int
	Code      string
	Message   string
	ErrorBody json.RawMessage
}

func (u Upstream) describe(b *strings.Builder) {
	if u.Status == 0 {
		return
	}
	fmt.Fprintf(b, " (status %d", u.Status)
	if u.Code != "" {
		fmt.Fprintf(b, ", code %s", u.Code)
	}
	b.WriteString(")")
	if u.Message != "" {
		b.WriteString(": ")
		b.WriteString(u.Message)
	}
	if len(u.ErrorBody) > 0 && string(u.ErrorBody) != "null" {
		b.WriteString("; errors: ")
		b.Write(u.ErrorBody)
	}
}

// AuthError reports a failed assertion exchange or token info request.
type AuthError struct {
	Op string
	Upstream
	Err error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "icm auth %s failed", e.Op)
	e.Upstream.describe(&b)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// ContextError reports a Session operation invoked without the required selection.
type ContextError struct {
	Op      string
	Missing string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("icm %s: no %s selected", e.Op, e.Missing)
}

// APIError reports a failed resource call, tagged with the operation name.
type APIError struct {
	Op string
	Upstream
	Err error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "icm %s failed", e.Op)
	e.Upstream.describe(&b)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// Is reports ErrNotFound for 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// errorEnvelope is the server's error payload.
type errorEnvelope struct {
	Code      flexCode        `json:"code"`
	Message   string          `json:"message"`
	ErrorBody json.RawMessage `json:"errorBody"`
}

// flexCode accepts numeric and string error codes.
type flexCode string

func (c *flexCode) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = flexCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = flexCode(n.String())
	return nil
}

// upstreamFrom builds Upstream from a non-2xx response body.
func upstreamFrom(status int, body []byte) Upstream {
	up := Upstream{Status: status}
	if len(body) == 0 {
		return up
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		up.Message = strings.TrimSpace(string(body))
		return up
	}
	up.Code = string(env.Code)
	up.Message = env.Message
	up.ErrorBody = env.ErrorBody
	if up.Message == "" && up.Code == "" {
		up.Message = strings.TrimSpace(string(body))
	}
	return up
}

// statusError is returned by the transport for non-2xx responses before
// it is tagged with an operation.
type statusError struct {
	Upstream
}

func (e *statusError) Error() string {
	var b strings.Builder
	b.WriteString("unexpected response")
	e.Upstream.describe(&b)
	return b.String()
}
