package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultStockTimeout        = 10 * time.Second
	defaultSignedURLTTL        = 15 * time.Minute
	defaultDeliveryTimezone    = "Africa/Johannesburg"
	defaultCardFixedFee        = "2.00"
	defaultCurrency            = "ZAR"
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer          = "https://accounts.google.com"
)

var defaultDeliveryCities = []string{
	"Johannesburg",
	"Sandton",
	"Randburg",
	"Rosebank",
	"Midrand",
	"Fourways",
	"Roodepoort",
}

// Config is the full runtime configuration grouped by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	Storage   StorageConfig
	Stock     StockConfig
	PubSub    PubSubConfig
	Mail      MailConfig
	PSP       PSPConfig
	Delivery  DeliveryConfig
	Pricing   PricingConfig
	Security  SecurityConfig
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores the Firebase project used for auth and push.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig locates invoice PDFs and the key used to sign download URLs.
type StorageConfig struct {
	InvoicesBucket     string
	SignedURLTTL       time.Duration
	ServiceAccountFile string
}

// StockConfig points at the external catalog that holds sale stock reservations.
type StockConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// PubSubConfig names the order event topic. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// MailConfig holds SendGrid credentials. An empty key disables email.
type MailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// PSPConfig holds payment gateway credentials.
type PSPConfig struct {
	StripeAPIKey string
}

// DeliveryConfig configures fast delivery eligibility.
type DeliveryConfig struct {
	Cities   []string
	Timezone string
}

// PricingConfig carries the fixed card processing fee. Rates are not configurable.
type PricingConfig struct {
	CardFixedFee string
	Currency     string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls verification of Google-signed scheduler tokens.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret implements SecretResolver.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists missing or invalid fields.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError wraps a failed secret resolution.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError lists required secrets that resolved to empty values. Names are hashed in the
// message so logs never reveal which credential is absent in which environment.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		redacted = append(redacted, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the missing field names.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the dotenv path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies explicit values that win over the OS environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the OS environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver for secret:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret fields (e.g. "PSP.StripeAPIKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// Lookup returns the effective value for key using the same precedence as Load
// (explicit map, then OS env, then dotenv). It lets main build the secret fetcher before Load.
func Lookup(key string, opts ...Option) (string, bool, error) {
	options := newLoaderOptions(opts...)
	lookup, err := options.lookupFunc()
	if err != nil {
		return "", false, err
	}
	value, ok := lookup(key)
	return value, ok, nil
}

// Load builds Config from defaults, dotenv, environment and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts...)
	lookup, err := options.lookupFunc()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			InvoicesBucket:     stringWithDefault(lookup, "API_STORAGE_INVOICES_BUCKET", ""),
			SignedURLTTL:       durationWithDefault(lookup, "API_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
			ServiceAccountFile: stringWithDefault(lookup, "API_STORAGE_SIGNER_KEY_FILE", ""),
		},
		Stock: StockConfig{
			BaseURL: strings.TrimRight(stringWithDefault(lookup, "API_STOCK_BASE_URL", ""), "/"),
			APIKey:  stringWithDefault(lookup, "API_STOCK_API_KEY", ""),
			Timeout: durationWithDefault(lookup, "API_STOCK_TIMEOUT", defaultStockTimeout),
		},
		PubSub: PubSubConfig{
			ProjectID:        stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic: stringWithDefault(lookup, "API_PUBSUB_ORDER_EVENTS_TOPIC", ""),
		},
		Mail: MailConfig{
			SendGridAPIKey: stringWithDefault(lookup, "API_SENDGRID_API_KEY", ""),
			FromEmail:      stringWithDefault(lookup, "API_SENDGRID_FROM_EMAIL", ""),
			FromName:       stringWithDefault(lookup, "API_SENDGRID_FROM_NAME", "Orders"),
		},
		PSP: PSPConfig{
			StripeAPIKey: stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
		},
		Delivery: DeliveryConfig{
			Cities:   csvWithDefault(lookup, "API_DELIVERY_CITIES", defaultDeliveryCities),
			Timezone: stringWithDefault(lookup, "API_DELIVERY_TIMEZONE", defaultDeliveryTimezone),
		},
		Pricing: PricingConfig{
			CardFixedFee: stringWithDefault(lookup, "API_PRICING_CARD_FIXED_FEE", defaultCardFixedFee),
			Currency:     strings.ToUpper(stringWithDefault(lookup, "API_PRICING_CURRENCY", defaultCurrency)),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS", []string{defaultOIDCIssuer}),
			},
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Stock.APIKey", &cfg.Stock.APIKey},
		{"Mail.SendGridAPIKey", &cfg.Mail.SendGridAPIKey},
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range options.requiredSecrets {
		name = strings.TrimSpace(name)
		if name != "" && resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}

	return cfg, nil
}

func newLoaderOptions(opts ...Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

func (o loaderOptions) lookupFunc() (func(string) (string, bool), error) {
	dotEnv, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := o.envMap[key]; ok {
			return value, true
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	if cfg.Stock.BaseURL == "" {
		invalid = append(invalid, "Stock.BaseURL")
	}
	if cfg.Stock.Timeout <= 0 {
		invalid = append(invalid, "Stock.Timeout")
	}
	if len(cfg.Delivery.Cities) == 0 {
		invalid = append(invalid, "Delivery.Cities")
	}
	if _, err := time.LoadLocation(cfg.Delivery.Timezone); err != nil {
		invalid = append(invalid, "Delivery.Timezone")
	}
	if _, err := strconv.ParseFloat(cfg.Pricing.CardFixedFee, 64); err != nil {
		invalid = append(invalid, "Pricing.CardFixedFee")
	}
	if cfg.Mail.SendGridAPIKey != "" && cfg.Mail.FromEmail == "" {
		invalid = append(invalid, "Mail.FromEmail")
	}
	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := "secret://" + strings.TrimPrefix(strings.TrimPrefix(trimmed, "secret://"), "sm://")
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string, fallback []string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
