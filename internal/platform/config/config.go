package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix = "LM_"

	defaultPort            = "8080"
	defaultEnvironment     = "local"
	defaultRateCeiling     = 2500 // cents
	defaultTaxBasisPoints  = 825  // 8.25%
	defaultUnpaidTTL       = 10 * time.Minute
	defaultSweepInterval   = 1 * time.Minute
	defaultIdemHeader      = "Idempotency-Key"
	defaultIdemTTL         = 24 * time.Hour
	defaultIdemCleanupTick = 10 * time.Minute
	defaultIdemBatchSize   = 100
)

// Config is the fully resolved runtime configuration for the API process.
type Config struct {
	Environment string
	Server      ServerConfig
	Firestore   FirestoreConfig
	Stripe      StripeConfig
	Shipping    ShippingConfig
	Mailer      MailerConfig
	Checkout    CheckoutConfig
	Sweep       SweepConfig
	Idempotency IdempotencyConfig
	Admin       AdminConfig
	PubSub      PubSubConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// FirestoreConfig identifies the Firestore project backing the order store.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StripeConfig carries Stripe credentials and invoicing behaviour.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	DaysUntilDue  int
}

// ShippingConfig configures the rate quoting / label purchase API and the warehouse origin.
type ShippingConfig struct {
	BaseURL          string
	APIToken         string
	RateCeilingCents int64
	Origin           OriginAddress
}

// OriginAddress is the ship-from address included on every quote request.
type OriginAddress struct {
	Name    string
	Street1 string
	City    string
	State   string
	Zip     string
	Country string
	Phone   string
	Email   string
}

// MailerConfig configures the transactional mail API used by the notification dispatcher.
type MailerConfig struct {
	BaseURL      string
	APIKey       string
	FromAddress  string
	OwnerAddress string
}

// CheckoutConfig carries storefront redirect URLs and the tax policy rate.
type CheckoutConfig struct {
	SuccessURL     string
	CancelURL      string
	PackingSlipURL string
	TaxBasisPoints int64
}

// SweepConfig controls the abandoned-order cleanup job.
type SweepConfig struct {
	Interval  time.Duration
	UnpaidTTL time.Duration
}

// IdempotencyConfig controls the idempotency-key middleware and its record retention.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// AdminConfig carries the shared secret settings guarding admin routes.
type AdminConfig struct {
	HMACSecret string
	ClockSkew  time.Duration
}

// PubSubConfig names the topic receiving order lifecycle events.
type PubSubConfig struct {
	OrderEventsTopic string
}

// SecretResolver resolves secret:// references found in environment values.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to the SecretResolver interface.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret implements SecretResolver.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	if f == nil {
		return "", errors.New("config: secret resolver not configured")
	}
	return f(ctx, ref)
}

// ValidationError reports configuration fields that failed validation.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid configuration: %s", strings.Join(e.Problems, "; "))
}

// Option customises configuration loading.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envOverrides map[string]string
	skipSystem   bool
	resolver     SecretResolver
}

// WithEnvFile loads additional values from the named dotenv file when present.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = strings.TrimSpace(path)
	}
}

// WithEnvMap overlays the provided values over the system environment, primarily for tests.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		if o.envOverrides == nil {
			o.envOverrides = make(map[string]string, len(values))
		}
		for k, v := range values {
			o.envOverrides[k] = v
		}
	}
}

// WithoutSystemEnv ignores the process environment, primarily for tests.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.skipSystem = true
	}
}

// WithSecretResolver installs the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.resolver = resolver
	}
}

// Load assembles the Config from environment values, resolving secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	values := map[string]string{}
	if options.envFile != "" {
		fileValues, err := loadDotEnv(options.envFile)
		if err != nil {
			return Config{}, err
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}
	if !options.skipSystem {
		for _, entry := range os.Environ() {
			if idx := strings.Index(entry, "="); idx > 0 {
				values[entry[:idx]] = entry[idx+1:]
			}
		}
	}
	for k, v := range options.envOverrides {
		values[k] = v
	}

	lookup := func(key string) (string, bool) {
		value, ok := values[envPrefix+key]
		if !ok {
			value, ok = values[key]
		}
		return value, ok
	}

	cfg := Config{
		Environment: stringWithDefault(lookup, "ENVIRONMENT", defaultEnvironment),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "PORT", defaultPort),
			ShutdownTimeout: durationWithDefault(lookup, "SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Stripe: StripeConfig{
			APIKey:        stringWithDefault(lookup, "STRIPE_API_KEY", ""),
			WebhookSecret: stringWithDefault(lookup, "STRIPE_WEBHOOK_SECRET", ""),
			DaysUntilDue:  intWithDefault(lookup, "STRIPE_INVOICE_DAYS_UNTIL_DUE", 7),
		},
		Shipping: ShippingConfig{
			BaseURL:          stringWithDefault(lookup, "SHIPPING_API_URL", "https://api.goshippo.com"),
			APIToken:         stringWithDefault(lookup, "SHIPPING_API_TOKEN", ""),
			RateCeilingCents: int64WithDefault(lookup, "SHIPPING_RATE_CEILING_CENTS", defaultRateCeiling),
			Origin: OriginAddress{
				Name:    stringWithDefault(lookup, "SHIP_FROM_NAME", ""),
				Street1: stringWithDefault(lookup, "SHIP_FROM_STREET1", ""),
				City:    stringWithDefault(lookup, "SHIP_FROM_CITY", ""),
				State:   stringWithDefault(lookup, "SHIP_FROM_STATE", ""),
				Zip:     stringWithDefault(lookup, "SHIP_FROM_ZIP", ""),
				Country: stringWithDefault(lookup, "SHIP_FROM_COUNTRY", "US"),
				Phone:   stringWithDefault(lookup, "SHIP_FROM_PHONE", ""),
				Email:   stringWithDefault(lookup, "SHIP_FROM_EMAIL", ""),
			},
		},
		Mailer: MailerConfig{
			BaseURL:      stringWithDefault(lookup, "MAILER_API_URL", ""),
			APIKey:       stringWithDefault(lookup, "MAILER_API_KEY", ""),
			FromAddress:  stringWithDefault(lookup, "MAILER_FROM", ""),
			OwnerAddress: stringWithDefault(lookup, "OWNER_EMAIL", ""),
		},
		Checkout: CheckoutConfig{
			SuccessURL:     stringWithDefault(lookup, "CHECKOUT_SUCCESS_URL", ""),
			CancelURL:      stringWithDefault(lookup, "CHECKOUT_CANCEL_URL", ""),
			PackingSlipURL: stringWithDefault(lookup, "PACKING_SLIP_URL", ""),
			TaxBasisPoints: int64WithDefault(lookup, "TAX_BASIS_POINTS", defaultTaxBasisPoints),
		},
		Sweep: SweepConfig{
			Interval:  durationWithDefault(lookup, "SWEEP_INTERVAL", defaultSweepInterval),
			UnpaidTTL: durationWithDefault(lookup, "SWEEP_UNPAID_TTL", defaultUnpaidTTL),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "IDEMPOTENCY_HEADER", defaultIdemHeader),
			TTL:              durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdemTTL),
			CleanupInterval:  durationWithDefault(lookup, "IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdemCleanupTick),
			CleanupBatchSize: intWithDefault(lookup, "IDEMPOTENCY_CLEANUP_BATCH", defaultIdemBatchSize),
		},
		Admin: AdminConfig{
			HMACSecret: stringWithDefault(lookup, "ADMIN_HMAC_SECRET", ""),
			ClockSkew:  durationWithDefault(lookup, "ADMIN_HMAC_CLOCK_SKEW", 5*time.Minute),
		},
		PubSub: PubSubConfig{
			OrderEventsTopic: stringWithDefault(lookup, "ORDER_EVENTS_TOPIC", ""),
		},
	}

	if options.resolver != nil {
		if err := resolveSecrets(ctx, &cfg, options.resolver); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) error {
	fields := []*string{
		&cfg.Stripe.APIKey,
		&cfg.Stripe.WebhookSecret,
		&cfg.Shipping.APIToken,
		&cfg.Mailer.APIKey,
		&cfg.Admin.HMACSecret,
	}
	for _, field := range fields {
		if !isSecretReference(*field) {
			continue
		}
		resolved, err := resolver.ResolveSecret(ctx, *field)
		if err != nil {
			return fmt.Errorf("config: resolve secret: %w", err)
		}
		*field = resolved
	}
	return nil
}

func validateConfig(cfg Config) error {
	var problems []string
	if strings.TrimSpace(cfg.Server.Port) == "" {
		problems = append(problems, "server port is required")
	}
	if cfg.Checkout.TaxBasisPoints < 0 {
		problems = append(problems, "tax basis points must not be negative")
	}
	if cfg.Shipping.RateCeilingCents <= 0 {
		problems = append(problems, "shipping rate ceiling must be positive")
	}
	if cfg.Sweep.UnpaidTTL <= 0 {
		problems = append(problems, "sweep unpaid ttl must be positive")
	}
	if isSecretReference(cfg.Stripe.APIKey) || isSecretReference(cfg.Stripe.WebhookSecret) {
		problems = append(problems, "unresolved stripe secret reference")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), "secret://")
}

func loadDotEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: open env file: %w", err)
	}
	defer file.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, `"'`)
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file: %w", err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
