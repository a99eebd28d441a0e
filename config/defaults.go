package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Conversation: DefaultConversationConfig(),
		Handoff:      DefaultHandoffConfig(),
		Workflow:     DefaultWorkflowConfig(),
		Snapshot:     DefaultSnapshotConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     DefaultDatabaseConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
		Metrics:      DefaultMetricsConfig(),
	}
}

// DefaultConversationConfig returns the state store defaults.
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		ActionLogSize: 256,
	}
}

// DefaultHandoffConfig returns the coordinator defaults.
func DefaultHandoffConfig() HandoffConfig {
	return HandoffConfig{
		PreserveContext:    true,
		EnableAutoHandoffs: false,
		HandoffThreshold:   0.7,
		MaxActiveAgents:    3,
		PendingTTL:         5 * time.Minute,
	}
}

// DefaultWorkflowConfig returns the engine defaults.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxSteps:         50,
		MaxDuration:      5 * time.Minute,
		AllowParallel:    false,
		RetryFailedSteps: true,
		MaxRetries:       0,
		RetryDelay:       200 * time.Millisecond,
	}
}

// DefaultSnapshotConfig returns the snapshot defaults.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		Capacity:       10,
		ConflictWindow: time.Minute,
	}
}

// DefaultRedisConfig returns the Redis sink defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  false,
		Addr:     "localhost:6379",
		DB:       0,
		PoolSize: 10,
		TTL:      24 * time.Hour,
	}
}

// DefaultDatabaseConfig returns the relational sink defaults.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled: false,
		DSN:     "agentcoord.db",
	}
}

// DefaultLogConfig returns the logging defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the tracing defaults.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentcoord",
		SampleRate:   1.0,
	}
}

// DefaultMetricsConfig returns the metrics defaults.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "agentcoord",
	}
}
