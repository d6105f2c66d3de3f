// Package auth resolves the authenticated identity from a bearer token.
// Identity management itself lives outside this service; the middleware only
// verifies the token issued by the front-end session layer and exposes the
// subject through requestcontext.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "trustboard/pkg/domainerrors"
	"trustboard/pkg/httputil"
	"trustboard/pkg/requestcontext"
)

// Verifier validates a bearer token and returns the user ID it identifies.
type Verifier interface {
	Verify(token string) (string, error)
}

// HMACVerifier validates HS256 tokens with a shared signing key.
type HMACVerifier struct {
	key []byte
}

func NewHMACVerifier(signingKey string) *HMACVerifier {
	return &HMACVerifier{key: []byte(signingKey)}
}

func (v *HMACVerifier) Verify(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.key, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return subject, nil
}

// RequireAuth rejects requests without a valid bearer token and injects the
// authenticated user ID into context for downstream rate limiting and domain
// checks.
func RequireAuth(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected bearer token",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx := requestcontext.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
