package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete swarmroute configuration tree.
type Config struct {
	// Server configures the operational HTTP API.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Swarm configures the agent pool plumbing: registry, events,
	// inference invokers, context compression, persistence.
	Swarm SwarmConfig `yaml:"swarm" env:"SWARM"`

	// Routing configures the task scorer's decision cache.
	Routing RoutingConfig `yaml:"routing" env:"ROUTING"`

	// Trust configures the trust evaluator.
	Trust TrustConfig `yaml:"trust" env:"TRUST"`

	// Risk configures the interaction risk tracker.
	Risk RiskConfig `yaml:"risk" env:"RISK"`

	// Delegation configures the orchestrator.
	Delegation DelegationConfig `yaml:"delegation" env:"DELEGATION"`

	// Redis configures the redis connection shared by redis-backed stores.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database configures the relational connection for the audit log.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OTLP export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP listener and its middleware chain.
type ServerConfig struct {
	// HTTP port.
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics port for the dedicated prometheus listener.
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// Read timeout.
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// Write timeout.
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// Graceful shutdown timeout.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// Rate limit in requests per second.
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// Burst allowance on top of the rate limit.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// EnableAuth turns on bearer-token auth for the API routes.
	EnableAuth bool `yaml:"enable_auth" env:"ENABLE_AUTH"`
	// AuthSecret signs and verifies API tokens. Required when auth is on.
	AuthSecret string `yaml:"auth_secret" env:"AUTH_SECRET"`
	// AllowedOrigin for CORS. "*" allows any origin.
	AllowedOrigin string `yaml:"allowed_origin" env:"ALLOWED_ORIGIN"`
	// TLSCertFile serves the API over TLS when set together with TLSKeyFile.
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	// TLSKeyFile is the private key paired with TLSCertFile.
	TLSKeyFile string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// SwarmConfig groups the agent-pool subsystems.
type SwarmConfig struct {
	// Registry configures heartbeat health checking.
	Registry RegistryConfig `yaml:"registry" env:"REGISTRY"`
	// Events configures the lifecycle event bus.
	Events EventsConfig `yaml:"events" env:"EVENTS"`
	// Inference configures the local and remote invokers.
	Inference InferenceConfig `yaml:"inference" env:"INFERENCE"`
	// Compression configures handoff context compression.
	Compression CompressionConfig `yaml:"compression" env:"COMPRESSION"`
	// Persistence configures the decision store and audit log.
	Persistence PersistenceConfig `yaml:"persistence" env:"PERSISTENCE"`
}

// RegistryConfig configures the agent registry.
type RegistryConfig struct {
	// EnableHealthCheck enables the heartbeat staleness checker.
	EnableHealthCheck bool `yaml:"enable_health_check" env:"ENABLE_HEALTH_CHECK"`
	// HeartbeatInterval is how often staleness is evaluated.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	// HeartbeatTimeout is the staleness threshold.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" env:"HEARTBEAT_TIMEOUT"`
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	// BufferSize bounds the in-flight event queue.
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE"`
}

// InferenceConfig configures the inference invokers.
type InferenceConfig struct {
	// LocalURL is the local inference backend root. Empty disables the
	// local path.
	LocalURL string `yaml:"local_url" env:"LOCAL_URL"`
	// RemoteURL is the remote inference backend root. Empty disables the
	// remote path.
	RemoteURL string `yaml:"remote_url" env:"REMOTE_URL"`
	// Timeout bounds one invocation end to end.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Breaker configures the circuit breaker around the local path.
	Breaker BreakerConfig `yaml:"breaker" env:"BREAKER"`
}

// BreakerConfig configures the local-path circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the circuit.
	MaxFailures uint32 `yaml:"max_failures" env:"MAX_FAILURES"`
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Interval is the closed-state period after which counts reset.
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// CompressionConfig configures handoff context compression.
type CompressionConfig struct {
	// Enabled turns context compression on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// MinTokens is the gate under which payloads skip compression.
	MinTokens int `yaml:"min_tokens" env:"MIN_TOKENS"`
	// Encoding names the tokenizer encoding backing the gate.
	Encoding string `yaml:"encoding" env:"ENCODING"`
}

// PersistenceConfig configures the decision store and the audit log.
type PersistenceConfig struct {
	// DecisionStore backend: memory, redis.
	DecisionStore string `yaml:"decision_store" env:"DECISION_STORE"`
	// KeyPrefix namespaces redis keys.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// RetentionTTL bounds how long a stored decision stays readable.
	RetentionTTL time.Duration `yaml:"retention_ttl" env:"RETENTION_TTL"`
	// MaxEntries bounds the memory backend.
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
	// MaxIndexSize bounds the redis recency index.
	MaxIndexSize int64 `yaml:"max_index_size" env:"MAX_INDEX_SIZE"`
	// EnableAuditLog turns the relational delegation audit on.
	EnableAuditLog bool `yaml:"enable_audit_log" env:"ENABLE_AUDIT_LOG"`
	// AuditRetention is the purge cutoff for audit records.
	AuditRetention time.Duration `yaml:"audit_retention" env:"AUDIT_RETENTION"`
}

// RoutingConfig configures the routing decision cache.
type RoutingConfig struct {
	// CacheTTL is the maximum age at which a decision is still replayed.
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// CacheMaxEntries caps the cache.
	CacheMaxEntries int `yaml:"cache_max_entries" env:"CACHE_MAX_ENTRIES"`
}

// TrustConfig configures the trust evaluator.
type TrustConfig struct {
	// HistorySize caps the per-agent outcome history.
	HistorySize int `yaml:"history_size" env:"HISTORY_SIZE"`
	// ConfidenceThreshold is the score at or above which the
	// recommendation becomes trust.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	// MinTrustThreshold is the score under which the recommendation
	// becomes distrust.
	MinTrustThreshold float64 `yaml:"min_trust_threshold" env:"MIN_TRUST_THRESHOLD"`
	// TrustDecayRate is the per-hour decay multiplier.
	TrustDecayRate float64 `yaml:"trust_decay_rate" env:"TRUST_DECAY_RATE"`
	// MaxConcurrentEvaluations bounds the ranking fan-out.
	MaxConcurrentEvaluations int `yaml:"max_concurrent_evaluations" env:"MAX_CONCURRENT_EVALUATIONS"`
	// EvidenceTimeout bounds one external evidence lookup.
	EvidenceTimeout time.Duration `yaml:"evidence_timeout" env:"EVIDENCE_TIMEOUT"`
}

// RiskConfig configures the interaction risk tracker.
type RiskConfig struct {
	// WindowSize caps the per-agent observation window.
	WindowSize int `yaml:"window_size" env:"WINDOW_SIZE"`
	// GlobalWindowSize caps the cross-agent chronology.
	GlobalWindowSize int `yaml:"global_window_size" env:"GLOBAL_WINDOW_SIZE"`
	// FailedHandoffThreshold raises handoff_failure.
	FailedHandoffThreshold int `yaml:"failed_handoff_threshold" env:"FAILED_HANDOFF_THRESHOLD"`
	// ConsecutiveFailureThreshold raises cascading_failure.
	ConsecutiveFailureThreshold int `yaml:"consecutive_failure_threshold" env:"CONSECUTIVE_FAILURE_THRESHOLD"`
	// ConsensusFailureRate raises consensus_failure.
	ConsensusFailureRate float64 `yaml:"consensus_failure_rate" env:"CONSENSUS_FAILURE_RATE"`
	// MaxAverageLatencyMs raises latency_degradation above it.
	MaxAverageLatencyMs float64 `yaml:"max_average_latency_ms" env:"MAX_AVERAGE_LATENCY_MS"`
	// MinHandoffSuccessRate raises throughput_degradation below it.
	MinHandoffSuccessRate float64 `yaml:"min_handoff_success_rate" env:"MIN_HANDOFF_SUCCESS_RATE"`
}

// DelegationConfig configures the orchestrator.
type DelegationConfig struct {
	// EnableLocalInference turns the local-first attempt on.
	EnableLocalInference bool `yaml:"enable_local_inference" env:"ENABLE_LOCAL_INFERENCE"`
	// EnableTrustRouting turns trust-aware ranking on.
	EnableTrustRouting bool `yaml:"enable_trust_routing" env:"ENABLE_TRUST_ROUTING"`
	// LatencyTargetMs is the measured latency SLA.
	LatencyTargetMs float64 `yaml:"latency_target_ms" env:"LATENCY_TARGET_MS"`
}

// RedisConfig configures the redis connection.
type RedisConfig struct {
	// Address host:port.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password, empty for none.
	Password string `yaml:"password" env:"PASSWORD"`
	// Database number.
	DB int `yaml:"db" env:"DB"`
	// Connection pool size.
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// Minimum idle connections.
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig configures the relational connection.
type DatabaseConfig struct {
	// Driver: postgres, sqlite.
	Driver string `yaml:"driver" env:"DRIVER"`
	// Host.
	Host string `yaml:"host" env:"HOST"`
	// Port.
	Port int `yaml:"port" env:"PORT"`
	// User.
	User string `yaml:"user" env:"USER"`
	// Password.
	Password string `yaml:"password" env:"PASSWORD"`
	// Database name, or the file path for sqlite.
	Name string `yaml:"name" env:"NAME"`
	// SSL mode.
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// Maximum open connections.
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// Maximum idle connections.
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// Connection maximum lifetime.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format string `yaml:"format" env:"FORMAT"`
	// Output paths.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with the call site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stack traces at error level.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	// Enabled turns export on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC endpoint.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// Service name reported in the resource.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// Trace sample rate on [0,1].
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration with fixed precedence:
// defaults, then YAML file, then environment.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SWARMROUTE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file. A missing file keeps the defaults.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv overlays environment variables.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct, recursing into nested sections.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue parses one environment value into a field.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration accepts "30s" style values.
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration from path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from the environment only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for structural errors, collecting all
// of them into one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.EnableAuth && c.Server.AuthSecret == "" {
		errs = append(errs, "auth_secret is required when auth is enabled")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	if c.Routing.CacheTTL <= 0 {
		errs = append(errs, "routing cache_ttl must be positive")
	}
	if c.Routing.CacheMaxEntries <= 0 {
		errs = append(errs, "routing cache_max_entries must be positive")
	}

	if c.Trust.HistorySize <= 0 {
		errs = append(errs, "trust history_size must be positive")
	}
	if c.Trust.ConfidenceThreshold < 0 || c.Trust.ConfidenceThreshold > 1 {
		errs = append(errs, "trust confidence_threshold must be between 0 and 1")
	}
	if c.Trust.MinTrustThreshold < 0 || c.Trust.MinTrustThreshold > 1 {
		errs = append(errs, "trust min_trust_threshold must be between 0 and 1")
	}
	if c.Trust.MinTrustThreshold >= c.Trust.ConfidenceThreshold {
		errs = append(errs, "trust min_trust_threshold must be below confidence_threshold")
	}
	if c.Trust.TrustDecayRate < 0 || c.Trust.TrustDecayRate > 1 {
		errs = append(errs, "trust trust_decay_rate must be between 0 and 1")
	}

	if c.Risk.WindowSize <= 0 {
		errs = append(errs, "risk window_size must be positive")
	}
	if c.Risk.ConsensusFailureRate < 0 || c.Risk.ConsensusFailureRate > 1 {
		errs = append(errs, "risk consensus_failure_rate must be between 0 and 1")
	}
	if c.Risk.MinHandoffSuccessRate < 0 || c.Risk.MinHandoffSuccessRate > 1 {
		errs = append(errs, "risk min_handoff_success_rate must be between 0 and 1")
	}

	if c.Delegation.LatencyTargetMs <= 0 {
		errs = append(errs, "delegation latency_target_ms must be positive")
	}

	switch c.Swarm.Persistence.DecisionStore {
	case "", "memory", "redis":
	default:
		errs = append(errs, "persistence decision_store must be memory or redis")
	}

	switch c.Database.Driver {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, "database driver must be postgres or sqlite")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, "log format must be json or console")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
