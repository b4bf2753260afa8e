package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultEnvironment         = "local"
	defaultLogLevel            = "info"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultBackendTimeout      = 10 * time.Second
	defaultSessionTTL          = 30 * 24 * time.Hour
	defaultNotificationTTL     = 3 * time.Second
	defaultPageIdleTTL         = 30 * time.Minute
	defaultPageJanitorInterval = time.Minute
	defaultPageSize            = 12
	defaultPlaceholderImage    = "/images/placeholder.jpg"
	defaultLoginPath           = "/login"
	defaultCurrency            = "INR"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Backend     BackendConfig
	Firebase    FirebaseConfig
	Session     SessionConfig
	Stripe      StripeConfig
	Redis       RedisConfig
	Cloudinary  CloudinaryConfig
	Storefront  StorefrontConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// BackendConfig points at the commerce REST API.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// FirebaseConfig stores the identity provider project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	SigningKey string
	Secure     bool
	TTL        time.Duration
}

// StripeConfig holds the payment widget keys.
type StripeConfig struct {
	SecretKey      string
	PublishableKey string
}

// RedisConfig enables cross-replica event fan-out when URL is set.
type RedisConfig struct {
	URL string
}

// CloudinaryConfig enables image delivery URL rewriting when URL is set.
type CloudinaryConfig struct {
	URL            string
	Transformation string
}

// StorefrontConfig groups page behaviour knobs.
type StorefrontConfig struct {
	NotificationTTL     time.Duration
	PageIdleTTL         time.Duration
	PageJanitorInterval time.Duration
	PageSize            int
	PlaceholderImage    string
	LoginPath           string
	Currency            string
}

// SecretsConfig names the Secret Manager project used for secret:// references.
type SecretsConfig struct {
	ProjectID string
}

// IsProduction reports whether the service runs with production hardening.
func (c Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over the process env.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles configuration from defaults, .env overrides, environment variables and
// secret references, in increasing order of precedence (explicit map wins).
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENV", defaultEnvironment)),
		LogLevel:    stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "STOREFRONT_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:     durationWithDefault(lookup, "STOREFRONT_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "STOREFRONT_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "STOREFRONT_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "STOREFRONT_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_BACKEND_URL", ""), "/"),
			Timeout: durationWithDefault(lookup, "STOREFRONT_BACKEND_TIMEOUT", defaultBackendTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "STOREFRONT_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "STOREFRONT_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Session: SessionConfig{
			SigningKey: stringWithDefault(lookup, "STOREFRONT_SESSION_SIGNING_KEY", ""),
			Secure:     boolWithDefault(lookup, "STOREFRONT_SESSION_SECURE", false),
			TTL:        durationWithDefault(lookup, "STOREFRONT_SESSION_TTL", defaultSessionTTL),
		},
		Stripe: StripeConfig{
			SecretKey:      stringWithDefault(lookup, "STOREFRONT_STRIPE_SECRET_KEY", ""),
			PublishableKey: stringWithDefault(lookup, "STOREFRONT_STRIPE_PUBLISHABLE_KEY", ""),
		},
		Redis: RedisConfig{
			URL: stringWithDefault(lookup, "STOREFRONT_REDIS_URL", ""),
		},
		Cloudinary: CloudinaryConfig{
			URL:            stringWithDefault(lookup, "STOREFRONT_CLOUDINARY_URL", ""),
			Transformation: stringWithDefault(lookup, "STOREFRONT_CLOUDINARY_TRANSFORMATION", "c_fill,f_auto,q_auto,w_600"),
		},
		Storefront: StorefrontConfig{
			NotificationTTL:     durationWithDefault(lookup, "STOREFRONT_NOTIFICATION_TTL", defaultNotificationTTL),
			PageIdleTTL:         durationWithDefault(lookup, "STOREFRONT_PAGE_IDLE_TTL", defaultPageIdleTTL),
			PageJanitorInterval: durationWithDefault(lookup, "STOREFRONT_PAGE_JANITOR_INTERVAL", defaultPageJanitorInterval),
			PageSize:            intWithDefault(lookup, "STOREFRONT_PAGE_SIZE", defaultPageSize),
			PlaceholderImage:    stringWithDefault(lookup, "STOREFRONT_PLACEHOLDER_IMAGE", defaultPlaceholderImage),
			LoginPath:           stringWithDefault(lookup, "STOREFRONT_LOGIN_PATH", defaultLoginPath),
			Currency:            strings.ToUpper(stringWithDefault(lookup, "STOREFRONT_CURRENCY", defaultCurrency)),
		},
		Secrets: SecretsConfig{
			ProjectID: stringWithDefault(lookup, "STOREFRONT_SECRETS_PROJECT_ID", ""),
		},
	}

	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.IsProduction() {
		cfg.Session.Secure = true
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Session.SigningKey", &cfg.Session.SigningKey},
		{"Stripe.SecretKey", &cfg.Stripe.SecretKey},
		{"Redis.URL", &cfg.Redis.URL},
		{"Cloudinary.URL", &cfg.Cloudinary.URL},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", target.name, err)
		}
		*target.field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) error {
	var missing []string
	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Backend.BaseURL == "" {
		missing = append(missing, "Backend.BaseURL")
	}
	if cfg.Backend.Timeout <= 0 {
		missing = append(missing, "Backend.Timeout")
	}
	if cfg.IsProduction() {
		if cfg.Session.SigningKey == "" {
			missing = append(missing, "Session.SigningKey")
		}
		if cfg.Firebase.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
	}
	if cfg.Storefront.NotificationTTL <= 0 {
		missing = append(missing, "Storefront.NotificationTTL")
	}
	if cfg.Storefront.PageIdleTTL <= 0 {
		missing = append(missing, "Storefront.PageIdleTTL")
	}
	if cfg.Storefront.PageSize <= 0 {
		missing = append(missing, "Storefront.PageSize")
	}
	if !strings.HasPrefix(cfg.Storefront.LoginPath, "/") {
		missing = append(missing, "Storefront.LoginPath")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
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

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
