package middleware

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
)

// SignatureValidKey is the context key for the webhook signature result.
const SignatureValidKey ContextKey = "signature_valid"

// MaxWebhookBody bounds the webhook body read for signature checks.
const MaxWebhookBody = 1 << 20

// HubSignature checks X-Hub-Signature-256 against appSecret and records the
// result in the request context. The request always continues so the webhook
// can acknowledge it; an empty secret marks every request valid.
func HubSignature(appSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if appSecret == "" {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), SignatureValidKey, true)))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBody))
			r.Body.Close()
			valid := err == nil && ValidSignature(appSecret, body, r.Header.Get("X-Hub-Signature-256"))
			r.Body = io.NopCloser(bytes.NewReader(body))

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), SignatureValidKey, valid)))
		})
	}
}

// ValidSignature reports whether header is "sha256=<hex hmac of body>".
func ValidSignature(appSecret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignatureValid reports the result recorded by HubSignature. Requests that
// did not pass through it are treated as valid.
func SignatureValid(ctx context.Context) bool {
	v, ok := ctx.Value(SignatureValidKey).(bool)
	return !ok || v
}
