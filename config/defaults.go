package config

import "time"

// DefaultConfig returns the complete default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Swarm:      DefaultSwarmConfig(),
		Routing:    DefaultRoutingConfig(),
		Trust:      DefaultTrustConfig(),
		Risk:       DefaultRiskConfig(),
		Delegation: DefaultDelegationConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		EnableAuth:      false,
		AuthSecret:      "",
		AllowedOrigin:   "*",
	}
}

// DefaultSwarmConfig returns the default swarm configuration.
func DefaultSwarmConfig() SwarmConfig {
	return SwarmConfig{
		Registry: RegistryConfig{
			EnableHealthCheck: true,
			HeartbeatInterval: 30 * time.Second,
			HeartbeatTimeout:  90 * time.Second,
		},
		Events: EventsConfig{
			BufferSize: 256,
		},
		Inference: InferenceConfig{
			LocalURL:  "",
			RemoteURL: "",
			Timeout:   30 * time.Second,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Compression: CompressionConfig{
			Enabled:   true,
			MinTokens: 256,
			Encoding:  "cl100k_base",
		},
		Persistence: PersistenceConfig{
			DecisionStore:  "memory",
			KeyPrefix:      "swarmroute:",
			RetentionTTL:   24 * time.Hour,
			MaxEntries:     1000,
			MaxIndexSize:   10000,
			EnableAuditLog: false,
			AuditRetention: 30 * 24 * time.Hour,
		},
	}
}

// DefaultRoutingConfig returns the default routing configuration.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		CacheTTL:        10 * time.Minute,
		CacheMaxEntries: 1000,
	}
}

// DefaultTrustConfig returns the default trust configuration.
func DefaultTrustConfig() TrustConfig {
	return TrustConfig{
		HistorySize:              100,
		ConfidenceThreshold:      0.7,
		MinTrustThreshold:        0.3,
		TrustDecayRate:           0.01,
		MaxConcurrentEvaluations: 8,
		EvidenceTimeout:          2 * time.Second,
	}
}

// DefaultRiskConfig returns the default risk configuration.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		WindowSize:                  50,
		GlobalWindowSize:            200,
		FailedHandoffThreshold:      2,
		ConsecutiveFailureThreshold: 3,
		ConsensusFailureRate:        0.4,
		MaxAverageLatencyMs:         2000,
		MinHandoffSuccessRate:       0.8,
	}
}

// DefaultDelegationConfig returns the default delegation configuration.
func DefaultDelegationConfig() DelegationConfig {
	return DelegationConfig{
		EnableLocalInference: true,
		EnableTrustRouting:   true,
		LatencyTargetMs:      2000,
	}
}

// DefaultRedisConfig returns the default redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig returns the default database configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "swarmroute",
		Password:        "",
		Name:            "swarmroute",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "swarmroute",
		SampleRate:   0.1,
	}
}
