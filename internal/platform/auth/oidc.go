package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/trademate/api/internal/platform/httpx"
)

var (
	// ErrJWKSKeyNotFound is returned when a kid is absent from the key set.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport and decoding failures while refreshing keys.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const defaultJWKSRefreshInterval = 15 * time.Minute

// JWKSCache fetches a JSON Web Key Set on demand and keeps it until Cache-Control max-age expires.
type JWKSCache struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu     sync.RWMutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time
}

// NewJWKSCache builds a cache for url. A nil client uses a 10s timeout client.
func NewJWKSCache(url string, client *http.Client) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSCache{url: url, client: client, now: time.Now}
}

// Keyfunc adapts the cache to jwt parsing, accepting RS256 only.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Method)
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return c.Key(ctx, kid)
	}
}

// Key returns the public key for kid, refreshing when the set is stale or the kid is unknown.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	if key, ok := c.cached(kid); ok {
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.cached(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) cached(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.keys) == 0 || !c.now().Before(c.expiry) {
		return nil, false
	}
	jwk, ok := c.keys[kid]
	if !ok {
		return nil, false
	}
	return jwk.Key, true
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	validity := parseMaxAge(resp.Header.Get("Cache-Control"))
	if validity <= 0 {
		validity = defaultJWKSRefreshInterval
	}

	c.mu.Lock()
	c.keys = keys
	c.expiry = c.now().Add(validity)
	c.mu.Unlock()
	return nil
}

func parseMaxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// ServiceIdentity is the verified caller of an internal endpoint.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity stores identity on ctx.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext returns the identity stored by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// OIDCValidator verifies Google-signed OIDC tokens such as those sent by Cloud Scheduler.
type OIDCValidator struct {
	cache  *JWKSCache
	logger *zap.Logger
}

// NewOIDCValidator builds a validator backed by cache.
func NewOIDCValidator(cache *JWKSCache, logger *zap.Logger) *OIDCValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OIDCValidator{cache: cache, logger: logger}
}

// RequireOIDC requires a bearer token signed by a key in the cache, issued by one of issuers and
// addressed to audience.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	allowed := make(map[string]struct{}, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowed[issuer] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if v == nil || v.cache == nil || audience == "" {
				httpx.WriteFailure(ctx, w, httpx.NewFailure(http.StatusServiceUnavailable, "Unavailable", "oidc verification not configured"))
				return
			}
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteFailure(ctx, w, httpx.Unauthorized("oidc token missing"))
				return
			}

			claims := jwt.MapClaims{}
			parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
			if _, err := parser.ParseWithClaims(token, claims, v.cache.Keyfunc(ctx)); err != nil {
				v.logger.Warn("oidc verification failed", zap.Error(err))
				if errors.Is(err, ErrJWKSFetchFailed) {
					httpx.WriteFailure(ctx, w, httpx.NewFailure(http.StatusServiceUnavailable, "Unavailable", "oidc keys unavailable"))
					return
				}
				httpx.WriteFailure(ctx, w, httpx.Unauthorized("oidc token verification failed"))
				return
			}

			issuer, _ := claims["iss"].(string)
			if _, ok := allowed[issuer]; len(allowed) > 0 && !ok {
				v.logger.Warn("oidc issuer mismatch", zap.String("issuer", issuer))
				httpx.WriteFailure(ctx, w, httpx.Unauthorized("oidc issuer mismatch"))
				return
			}
			if !claims.VerifyAudience(audience, true) {
				v.logger.Warn("oidc audience mismatch", zap.String("expected", audience))
				httpx.WriteFailure(ctx, w, httpx.Unauthorized("oidc audience mismatch"))
				return
			}

			identity := &ServiceIdentity{Issuer: issuer}
			identity.Subject, _ = claims["sub"].(string)
			identity.Email, _ = claims["email"].(string)
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}
