package icm

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestUpstreamFromEnvelope(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		code    string
		message string
	}{
		{name: "string code", body: `{"code":"not_found","message":"project not found"}`, code: "not_found", message: "project not found"},
		{name: "numeric code", body: `{"code":404,"message":"gone"}`, code: "404", message: "gone"},
		{name: "plain text", body: "bad gateway", message: "bad gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := upstreamFrom(http.StatusNotFound, []byte(tc.body))
			if up.Code != tc.code || up.Message != tc.message {
				t.Fatalf("got code %q message %q", up.Code, up.Message)
			}
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{
		Op:       "create environment",
		Upstream: upstreamFrom(http.StatusBadRequest, []byte(`{"code":"invalid_request","message":"name is required","errorBody":{"field":"name"}}`)),
	}
	msg := err.Error()
	for _, want := range []string{"create environment", "status 400", "invalid_request", "name is required", `"field":"name"`} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("400 must not match ErrNotFound")
	}
}

func TestDeriveBaseURL(t *testing.T) {
	cases := map[string]string{
		"https://icm.local/auth/token":  "https://icm.local",
		"https://icm.local/auth/token/": "https://icm.local",
		"https://icm.local/v1/":         "https://icm.local/v1",
	}
	for in, want := range cases {
		if got := deriveBaseURL(in); got != want {
			t.Fatalf("deriveBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}
