package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type oidcFixture struct {
	validator *OIDCValidator
	key       *rsa.PrivateKey
	fetches   *atomic.Int32
	now       time.Time
}

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "scheduler", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}

	fetches := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)
	original := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = original })

	cache := NewJWKSCache(server.URL, server.Client())
	cache.now = func() time.Time { return now }
	return &oidcFixture{validator: NewOIDCValidator(cache, nil), key: key, fetches: fetches, now: now}
}

func (f *oidcFixture) sign(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"aud":   "https://api.trademate.test/internal",
		"iss":   "https://accounts.google.com",
		"sub":   "1234",
		"email": "scheduler@tm-prod.iam.gserviceaccount.com",
		"exp":   float64(f.now.Add(time.Hour).Unix()),
		"iat":   float64(f.now.Unix()),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "scheduler"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *oidcFixture) serve(token string) (*httptest.ResponseRecorder, *ServiceIdentity) {
	var seen *ServiceIdentity
	handler := f.validator.RequireOIDC("https://api.trademate.test/internal", []string{"https://accounts.google.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = ServiceIdentityFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
	req := httptest.NewRequest(http.MethodPost, "/internal/carts/reclaim", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, seen
}

func TestRequireOIDCAcceptsSchedulerToken(t *testing.T) {
	f := newOIDCFixture(t)
	rr, identity := f.serve(f.sign(t, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if identity == nil || identity.Email != "scheduler@tm-prod.iam.gserviceaccount.com" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	f.serve(f.sign(t, nil))
	if got := f.fetches.Load(); got != 1 {
		t.Fatalf("expected keys fetched once, got %d", got)
	}
}

func TestRequireOIDCRejectsAudienceMismatch(t *testing.T) {
	f := newOIDCFixture(t)
	rr, _ := f.serve(f.sign(t, func(c jwt.MapClaims) { c["aud"] = "https://elsewhere.test" }))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireOIDCRejectsUnknownIssuer(t *testing.T) {
	f := newOIDCFixture(t)
	rr, _ := f.serve(f.sign(t, func(c jwt.MapClaims) { c["iss"] = "https://evil.test" }))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireOIDCRejectsMissingToken(t *testing.T) {
	f := newOIDCFixture(t)
	rr, _ := f.serve("")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireOIDCReportsUnavailableKeys(t *testing.T) {
	f := newOIDCFixture(t)
	token := f.sign(t, nil)
	f.validator.cache.url = "http://127.0.0.1:1/jwks"
	rr, _ := f.serve(token)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestParseMaxAge(t *testing.T) {
	if got := parseMaxAge("public, max-age=3600, must-revalidate"); got != time.Hour {
		t.Fatalf("expected 1h, got %s", got)
	}
	if got := parseMaxAge("no-store"); got != 0 {
		t.Fatalf("expected 0, got %s", got)
	}
}
