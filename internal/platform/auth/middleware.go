package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/trademate/api/internal/platform/httpx"
)

const (
	roleClaim            = "role"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns Firebase ID tokens into request identities.
type Authenticator struct {
	verifier TokenVerifier
	timeout  time.Duration
}

// NewAuthenticator wraps verifier for middleware use.
func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier, timeout: defaultVerifyTimeout}
}

// RequireFirebaseAuth rejects requests without a valid bearer token. When roles are given the
// identity must carry at least one of them.
func (a *Authenticator) RequireFirebaseAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteFailure(ctx, w, httpx.Unauthorized("authorization header missing or invalid"))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteFailure(ctx, w, httpx.Unauthorized("authorization service unavailable"))
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			decoded, err := a.verifier.VerifyIDToken(verifyCtx, token)
			cancel()
			if err != nil {
				message := "firebase id token invalid"
				if firebaseauth.IsIDTokenExpired(err) {
					message = "firebase id token expired"
				}
				httpx.WriteFailure(ctx, w, httpx.Unauthorized(message))
				return
			}

			identity := &Identity{
				UID:   decoded.UID,
				Email: claimString(decoded.Claims, "email"),
				Roles: rolesFromClaims(decoded.Claims),
			}
			if len(identity.Roles) == 0 {
				identity.Roles = []string{RoleUser}
			}
			if len(roles) > 0 && !identity.HasAnyRole(roles...) {
				httpx.WriteFailure(ctx, w, httpx.NewFailure(http.StatusForbidden, "Forbidden", "identity does not have required role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func rolesFromClaims(claims map[string]any) []string {
	var out []string
	add := func(value string) {
		value = normaliseRole(value)
		if value == "" {
			return
		}
		for _, existing := range out {
			if existing == value {
				return
			}
		}
		out = append(out, value)
	}
	switch v := claims[roleClaim].(type) {
	case string:
		add(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, item := range v {
			add(item)
		}
	}
	return out
}

func claimString(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
