package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAuth(t *testing.T) {
	const secret = "test-secret"
	var gotSubject, gotPage string
	h := Auth(secret)(RequireScope(ScopeConversationsRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = GetSubject(r.Context())
		gotPage = GetPageID(r.Context())
	})))

	good, err := NewToken(secret, "ops", "123", []string{ScopeConversationsRead}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	noScope, _ := NewToken(secret, "ops", "", nil, time.Hour)
	expired, _ := NewToken(secret, "ops", "", []string{ScopeConversationsRead}, -time.Hour)
	forged, _ := NewToken("other-secret", "ops", "", []string{ScopeConversationsRead}, time.Hour)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized},
		{"no scope", "Bearer " + noScope, http.StatusForbidden},
		{"ok", "Bearer " + good, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if gotSubject != "ops" || gotPage != "123" {
		t.Errorf("claims in context = %q, %q", gotSubject, gotPage)
	}
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHubSignature(t *testing.T) {
	const body = `{"object":"page"}`
	var valid bool
	var seenBody string
	h := HubSignature("app-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		valid = SignatureValid(r.Context())
		b, _ := io.ReadAll(r.Body)
		seenBody = string(b)
	}))

	for _, tt := range []struct {
		header string
		want   bool
	}{
		{sign("app-secret", body), true},
		{sign("wrong", body), false},
		{"sha1=abc", false},
		{"", false},
	} {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", tt.header)
		h.ServeHTTP(httptest.NewRecorder(), req)
		if valid != tt.want {
			t.Errorf("header %q: valid = %v", tt.header, valid)
		}
		if seenBody != body {
			t.Errorf("body not restored: %q", seenBody)
		}
	}

	open := HubSignature("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		valid = SignatureValid(r.Context())
	}))
	open.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook", nil))
	if !valid {
		t.Error("empty secret should accept every request")
	}
}

func TestValidation(t *testing.T) {
	if err := ValidatePageID("104729384756"); err != nil {
		t.Error(err)
	}
	for _, bad := range []string{"", "abc", "12 3", strings.Repeat("1", 40)} {
		if ValidateSenderID(bad) == nil {
			t.Errorf("ValidateSenderID(%q) accepted", bad)
		}
	}

	if n, _ := ParseLimit("", 20, 100); n != 20 {
		t.Errorf("default limit = %d", n)
	}
	if n, _ := ParseLimit("500", 20, 100); n != 100 {
		t.Errorf("capped limit = %d", n)
	}
	if _, err := ParseLimit("-1", 20, 100); err == nil {
		t.Error("negative limit accepted")
	}
}
