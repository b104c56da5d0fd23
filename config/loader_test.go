package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 10*time.Minute, cfg.Routing.CacheTTL)
	assert.InDelta(t, 0.3, cfg.Trust.MinTrustThreshold, 0.001)
	assert.True(t, cfg.Delegation.EnableLocalInference)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

routing:
  cache_ttl: 5m
  cache_max_entries: 500

trust:
  min_trust_threshold: 0.4
  trust_decay_rate: 0.05

delegation:
  enable_local_inference: false
  latency_target_ms: 1500

swarm:
  inference:
    local_url: "http://edge:8090"
    breaker:
      max_failures: 3
  persistence:
    decision_store: "redis"

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 5*time.Minute, cfg.Routing.CacheTTL)
	assert.Equal(t, 500, cfg.Routing.CacheMaxEntries)

	assert.InDelta(t, 0.4, cfg.Trust.MinTrustThreshold, 0.001)
	assert.InDelta(t, 0.05, cfg.Trust.TrustDecayRate, 0.001)
	// Untouched values keep their defaults.
	assert.Equal(t, 100, cfg.Trust.HistorySize)

	assert.False(t, cfg.Delegation.EnableLocalInference)
	assert.InDelta(t, 1500, cfg.Delegation.LatencyTargetMs, 0.001)

	assert.Equal(t, "http://edge:8090", cfg.Swarm.Inference.LocalURL)
	assert.Equal(t, uint32(3), cfg.Swarm.Inference.Breaker.MaxFailures)
	assert.Equal(t, "redis", cfg.Swarm.Persistence.DecisionStore)

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"SWARMROUTE_SERVER_HTTP_PORT":                "7777",
		"SWARMROUTE_ROUTING_CACHE_TTL":               "2m",
		"SWARMROUTE_TRUST_MIN_TRUST_THRESHOLD":       "0.5",
		"SWARMROUTE_DELEGATION_LATENCY_TARGET_MS":    "3000",
		"SWARMROUTE_SWARM_INFERENCE_LOCAL_URL":       "http://env-edge:8090",
		"SWARMROUTE_SWARM_EVENTS_BUFFER_SIZE":        "512",
		"SWARMROUTE_SWARM_COMPRESSION_ENABLED":       "false",
		"SWARMROUTE_SWARM_INFERENCE_BREAKER_TIMEOUT": "45s",
		"SWARMROUTE_REDIS_ADDR":                      "env-redis:6379",
		"SWARMROUTE_LOG_LEVEL":                       "warn",
		"SWARMROUTE_LOG_OUTPUT_PATHS":                "stdout, /var/log/swarmroute.log",
	}

	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 2*time.Minute, cfg.Routing.CacheTTL)
	assert.InDelta(t, 0.5, cfg.Trust.MinTrustThreshold, 0.001)
	assert.InDelta(t, 3000, cfg.Delegation.LatencyTargetMs, 0.001)
	assert.Equal(t, "http://env-edge:8090", cfg.Swarm.Inference.LocalURL)
	assert.Equal(t, 512, cfg.Swarm.Events.BufferSize)
	assert.False(t, cfg.Swarm.Compression.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Swarm.Inference.Breaker.Timeout)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/var/log/swarmroute.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
redis:
  addr: "yaml-redis:6379"
  db: 3
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	os.Setenv("SWARMROUTE_SERVER_HTTP_PORT", "9999")
	os.Setenv("SWARMROUTE_REDIS_ADDR", "env-redis:6379")
	defer func() {
		os.Unsetenv("SWARMROUTE_SERVER_HTTP_PORT")
		os.Unsetenv("SWARMROUTE_REDIS_ADDR")
	}()

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// Environment wins over the file.
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	// File values without an environment override stay.
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	os.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")
	os.Setenv("MYAPP_LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("MYAPP_SERVER_HTTP_PORT")
		os.Unsetenv("MYAPP_LOG_LEVEL")
	}()

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	os.Setenv("SWARMROUTE_SERVER_HTTP_PORT", "80")
	defer os.Unsetenv("SWARMROUTE_SERVER_HTTP_PORT")

	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	_, err = NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	os.Setenv("SWARMROUTE_SERVER_HTTP_PORT", "not-a-number")
	defer os.Unsetenv("SWARMROUTE_SERVER_HTTP_PORT")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SWARMROUTE_SERVER_HTTP_PORT")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid HTTP port (negative)",
			modify: func(c *Config) {
				c.Server.HTTPPort = -1
			},
			wantErr: true,
		},
		{
			name: "invalid HTTP port (too large)",
			modify: func(c *Config) {
				c.Server.HTTPPort = 70000
			},
			wantErr: true,
		},
		{
			name: "auth enabled without secret",
			modify: func(c *Config) {
				c.Server.EnableAuth = true
			},
			wantErr: true,
		},
		{
			name: "auth enabled with secret",
			modify: func(c *Config) {
				c.Server.EnableAuth = true
				c.Server.AuthSecret = "s3cret"
			},
			wantErr: false,
		},
		{
			name: "tls cert without key",
			modify: func(c *Config) {
				c.Server.TLSCertFile = "/etc/tls/server.crt"
			},
			wantErr: true,
		},
		{
			name: "tls cert and key together",
			modify: func(c *Config) {
				c.Server.TLSCertFile = "/etc/tls/server.crt"
				c.Server.TLSKeyFile = "/etc/tls/server.key"
			},
			wantErr: false,
		},
		{
			name: "zero cache TTL",
			modify: func(c *Config) {
				c.Routing.CacheTTL = 0
			},
			wantErr: true,
		},
		{
			name: "trust threshold above one",
			modify: func(c *Config) {
				c.Trust.ConfidenceThreshold = 1.5
			},
			wantErr: true,
		},
		{
			name: "distrust threshold above trust threshold",
			modify: func(c *Config) {
				c.Trust.MinTrustThreshold = 0.8
			},
			wantErr: true,
		},
		{
			name: "negative decay rate",
			modify: func(c *Config) {
				c.Trust.TrustDecayRate = -0.1
			},
			wantErr: true,
		},
		{
			name: "zero risk window",
			modify: func(c *Config) {
				c.Risk.WindowSize = 0
			},
			wantErr: true,
		},
		{
			name: "consensus failure rate above one",
			modify: func(c *Config) {
				c.Risk.ConsensusFailureRate = 1.2
			},
			wantErr: true,
		},
		{
			name: "zero latency target",
			modify: func(c *Config) {
				c.Delegation.LatencyTargetMs = 0
			},
			wantErr: true,
		},
		{
			name: "unknown decision store",
			modify: func(c *Config) {
				c.Swarm.Persistence.DecisionStore = "etcd"
			},
			wantErr: true,
		},
		{
			name: "unknown database driver",
			modify: func(c *Config) {
				c.Database.Driver = "oracle"
			},
			wantErr: true,
		},
		{
			name: "unknown log level",
			modify: func(c *Config) {
				c.Log.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "unknown log format",
			modify: func(c *Config) {
				c.Log.Format = "xml"
			},
			wantErr: true,
		},
		{
			name: "sample rate above one",
			modify: func(c *Config) {
				c.Telemetry.SampleRate = 2
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = -1
	cfg.Log.Level = "verbose"
	cfg.Delegation.LatencyTargetMs = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
	assert.Contains(t, err.Error(), "log level")
	assert.Contains(t, err.Error(), "latency_target_ms")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver:   "postgres",
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				Password: "pass",
				Name:     "dbname",
				SSLMode:  "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "sqlite DSN",
			config: DatabaseConfig{
				Driver: "sqlite",
				Name:   "/path/to/db.sqlite",
			},
			expected: "/path/to/db.sqlite",
		},
		{
			name: "unknown driver",
			config: DatabaseConfig{
				Driver: "unknown",
			},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8080
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0644)
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	os.Setenv("SWARMROUTE_TELEMETRY_SERVICE_NAME", "env-only-service")
	defer os.Unsetenv("SWARMROUTE_TELEMETRY_SERVICE_NAME")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only-service", cfg.Telemetry.ServiceName)
}
