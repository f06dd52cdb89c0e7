package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultDownloadExpiry = 15 * time.Minute
	maxDownloadExpiry     = 7 * 24 * time.Hour
)

var (
	errNoSigner      = errors.New("storage: signer is required")
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
)

// Signer signs payloads on behalf of a service account.
type Signer interface {
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// ServiceAccountSigner signs with a private key loaded from a service account JSON key.
type ServiceAccountSigner struct {
	email string
	key   *rsa.PrivateKey
}

// NewServiceAccountSignerFromFile reads a service account JSON key from path.
func NewServiceAccountSignerFromFile(path string) (*ServiceAccountSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read service account file: %w", err)
	}
	var raw struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("storage: decode service account json: %w", err)
	}
	if strings.TrimSpace(raw.ClientEmail) == "" || strings.TrimSpace(raw.PrivateKey) == "" {
		return nil, errors.New("storage: service account json lacks client_email or private_key")
	}
	block, _ := pem.Decode([]byte(raw.PrivateKey))
	if block == nil {
		return nil, errors.New("storage: failed to decode PEM private key")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("storage: private key is not RSA")
	}
	return &ServiceAccountSigner{email: strings.TrimSpace(raw.ClientEmail), key: key}, nil
}

// Email returns the service account email.
func (s *ServiceAccountSigner) Email() string { return s.email }

// SignBytes signs payload with RSA SHA256.
func (s *ServiceAccountSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign payload: %w", err)
	}
	return sig, nil
}

// Client issues V4 signed download URLs for invoice PDFs held in one bucket.
type Client struct {
	signer Signer
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// NewClient builds a Client. A non-positive expiry uses 15 minutes.
func NewClient(signer Signer, bucket string, expiry time.Duration) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	if expiry <= 0 {
		expiry = defaultDownloadExpiry
	}
	if expiry > maxDownloadExpiry {
		expiry = maxDownloadExpiry
	}
	return &Client{signer: signer, bucket: bucket, expiry: expiry, now: time.Now}, nil
}

// DownloadURL signs a GET URL for object. Paths that are already absolute http(s) URLs or gs://
// URIs for another bucket are returned as stored.
func (c *Client) DownloadURL(ctx context.Context, object string) (string, error) {
	object = strings.TrimSpace(object)
	if strings.HasPrefix(object, "https://") || strings.HasPrefix(object, "http://") {
		return object, nil
	}
	bucket := c.bucket
	if rest, ok := strings.CutPrefix(object, "gs://"); ok {
		b, o, found := strings.Cut(rest, "/")
		if !found {
			return "", errInvalidObject
		}
		bucket, object = b, o
	}
	object = strings.TrimPrefix(object, "/")
	if object == "" {
		return "", errInvalidObject
	}

	url, err := storage.SignedURL(bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Method:         "GET",
		Expires:        c.now().Add(c.expiry),
		Scheme:         storage.SigningSchemeV4,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
		QueryParameters: map[string][]string{"response-content-type": {"application/pdf"}},
	})
	if err != nil {
		return "", fmt.Errorf("storage: sign download url: %w", err)
	}
	return url, nil
}
