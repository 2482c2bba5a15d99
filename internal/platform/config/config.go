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
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultEnvironment          = "local"
	defaultTokenVerifyTimeout   = 5 * time.Second
	defaultFetchTimeout         = 3 * time.Second
	defaultPlacementTimeout     = 5 * time.Second
	defaultHistoryLimit         = 50
	defaultSourceMode           = SourceModeLocal
	defaultEventsDriver         = EventsDriverNone
	defaultEventsTopic          = "order-events"
	defaultServiceTokenIssuer   = "shopmesh-api"
	defaultServiceTokenTTL      = 5 * time.Minute
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyStore     = "order_idempotency"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultMetricsPath          = "/metrics"
	defaultPlacementPerMinute   = 10
	defaultBasketWritesPerMin   = 120
)

// SourceMode selects how foreign entities are resolved.
type SourceMode string

const (
	// SourceModeLocal resolves entities straight from this deployment's repositories.
	SourceModeLocal SourceMode = "local"
	// SourceModeRemote resolves entities through the owning service's bulk endpoint.
	SourceModeRemote SourceMode = "remote"
)

// EventsDriver selects the order event transport.
type EventsDriver string

const (
	EventsDriverNone   EventsDriver = "none"
	EventsDriverPubSub EventsDriver = "pubsub"
	EventsDriverKafka  EventsDriver = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Aggregation AggregationConfig
	Events      EventsConfig
	ServiceAuth ServiceAuthConfig
	Idempotency IdempotencyConfig
	Metrics     MetricsConfig
	RateLimits  RateLimitConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	VerifyTimeout   time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AggregationConfig tunes cross-service lookups.
type AggregationConfig struct {
	FetchTimeout     time.Duration
	PlacementTimeout time.Duration
	HistoryLimit     int
	CatalogMode      SourceMode
	CatalogBaseURL   string
	AddressMode      SourceMode
	AddressBaseURL   string
}

// EventsConfig selects where order events are published.
type EventsConfig struct {
	Driver       EventsDriver
	Topic        string
	KafkaBrokers []string
}

// ServiceAuthConfig configures service tokens used on internal bulk endpoints.
type ServiceAuthConfig struct {
	SigningSecret string
	Issuer        string
	TokenTTL      time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	Collection       string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// RateLimitConfig controls per-user request throttling. Zero disables a limit.
type RateLimitConfig struct {
	PlacementsPerMinute   int
	BasketWritesPerMinute int
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

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
// Names are redacted in the error string.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		redacted = append(redacted, redactSecretName(name))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the missing secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over the process environment.
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

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "ServiceAuth.SigningSecret") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the merged key/value environment using the same precedence as Load
// (dotenv < process env < explicit map). cmd/api uses it to configure the secret fetcher before Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnvValues))
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
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
		value, ok := dotEnvValues[key]
		return value, ok
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "SHOPMESH_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "SHOPMESH_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "SHOPMESH_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "SHOPMESH_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "SHOPMESH_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "SHOPMESH_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "SHOPMESH_FIREBASE_CREDENTIALS_FILE", ""),
			VerifyTimeout:   durationWithDefault(lookup, "SHOPMESH_FIREBASE_VERIFY_TIMEOUT", defaultTokenVerifyTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "SHOPMESH_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "SHOPMESH_FIRESTORE_EMULATOR_HOST", ""),
		},
		Aggregation: AggregationConfig{
			FetchTimeout:     durationWithDefault(lookup, "SHOPMESH_FETCH_TIMEOUT", defaultFetchTimeout),
			PlacementTimeout: durationWithDefault(lookup, "SHOPMESH_PLACEMENT_FETCH_TIMEOUT", defaultPlacementTimeout),
			HistoryLimit:     intWithDefault(lookup, "SHOPMESH_ORDER_HISTORY_LIMIT", defaultHistoryLimit),
			CatalogMode:      SourceMode(strings.ToLower(stringWithDefault(lookup, "SHOPMESH_CATALOG_MODE", string(defaultSourceMode)))),
			CatalogBaseURL:   stringWithDefault(lookup, "SHOPMESH_CATALOG_BASE_URL", ""),
			AddressMode:      SourceMode(strings.ToLower(stringWithDefault(lookup, "SHOPMESH_ADDRESS_MODE", string(defaultSourceMode)))),
			AddressBaseURL:   stringWithDefault(lookup, "SHOPMESH_ADDRESS_BASE_URL", ""),
		},
		Events: EventsConfig{
			Driver:       EventsDriver(strings.ToLower(stringWithDefault(lookup, "SHOPMESH_EVENTS_DRIVER", string(defaultEventsDriver)))),
			Topic:        stringWithDefault(lookup, "SHOPMESH_EVENTS_TOPIC", defaultEventsTopic),
			KafkaBrokers: csvWithDefault(lookup, "SHOPMESH_KAFKA_BROKERS"),
		},
		ServiceAuth: ServiceAuthConfig{
			SigningSecret: stringWithDefault(lookup, "SHOPMESH_SERVICE_TOKEN_SECRET", ""),
			Issuer:        stringWithDefault(lookup, "SHOPMESH_SERVICE_TOKEN_ISSUER", defaultServiceTokenIssuer),
			TokenTTL:      durationWithDefault(lookup, "SHOPMESH_SERVICE_TOKEN_TTL", defaultServiceTokenTTL),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "SHOPMESH_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			Collection:       stringWithDefault(lookup, "SHOPMESH_IDEMPOTENCY_COLLECTION", defaultIdempotencyStore),
			TTL:              durationWithDefault(lookup, "SHOPMESH_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "SHOPMESH_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "SHOPMESH_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Metrics: MetricsConfig{
			Enabled: boolWithDefault(lookup, "SHOPMESH_METRICS_ENABLED", true),
			Path:    stringWithDefault(lookup, "SHOPMESH_METRICS_PATH", defaultMetricsPath),
		},
		RateLimits: RateLimitConfig{
			PlacementsPerMinute:   intWithDefault(lookup, "SHOPMESH_RATELIMIT_PLACEMENTS_PER_MIN", defaultPlacementPerMinute),
			BasketWritesPerMinute: intWithDefault(lookup, "SHOPMESH_RATELIMIT_BASKET_WRITES_PER_MIN", defaultBasketWritesPerMin),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"ServiceAuth.SigningSecret", &cfg.ServiceAuth.SigningSecret},
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

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	if cfg.Firebase.VerifyTimeout <= 0 {
		invalid = append(invalid, "Firebase.VerifyTimeout")
	}
	if cfg.Aggregation.FetchTimeout <= 0 {
		invalid = append(invalid, "Aggregation.FetchTimeout")
	}
	if cfg.Aggregation.PlacementTimeout <= 0 {
		invalid = append(invalid, "Aggregation.PlacementTimeout")
	}
	if cfg.Aggregation.HistoryLimit <= 0 {
		invalid = append(invalid, "Aggregation.HistoryLimit")
	}
	invalid = append(invalid, validateSource("Aggregation.Catalog", cfg.Aggregation.CatalogMode, cfg.Aggregation.CatalogBaseURL)...)
	invalid = append(invalid, validateSource("Aggregation.Address", cfg.Aggregation.AddressMode, cfg.Aggregation.AddressBaseURL)...)
	if cfg.Aggregation.CatalogMode == SourceModeRemote || cfg.Aggregation.AddressMode == SourceModeRemote {
		if strings.TrimSpace(cfg.ServiceAuth.SigningSecret) == "" {
			invalid = append(invalid, "ServiceAuth.SigningSecret")
		}
	}

	switch cfg.Events.Driver {
	case EventsDriverNone:
	case EventsDriverPubSub:
		if cfg.Events.Topic == "" {
			invalid = append(invalid, "Events.Topic")
		}
	case EventsDriverKafka:
		if cfg.Events.Topic == "" {
			invalid = append(invalid, "Events.Topic")
		}
		if len(cfg.Events.KafkaBrokers) == 0 {
			invalid = append(invalid, "Events.KafkaBrokers")
		}
	default:
		invalid = append(invalid, "Events.Driver")
	}

	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		invalid = append(invalid, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		invalid = append(invalid, "Idempotency.CleanupBatchSize")
	}
	if cfg.RateLimits.PlacementsPerMinute < 0 {
		invalid = append(invalid, "RateLimits.PlacementsPerMinute")
	}
	if cfg.RateLimits.BasketWritesPerMinute < 0 {
		invalid = append(invalid, "RateLimits.BasketWritesPerMinute")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		invalid = append(invalid, "Metrics.Path")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func validateSource(prefix string, mode SourceMode, baseURL string) []string {
	switch mode {
	case SourceModeLocal:
		return nil
	case SourceModeRemote:
		if strings.TrimSpace(baseURL) == "" {
			return []string{prefix + "BaseURL"}
		}
		return nil
	default:
		return []string{prefix + "Mode"}
	}
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
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

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
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
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
