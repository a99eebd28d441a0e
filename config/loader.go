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

// Config is the complete coordination configuration.
type Config struct {
	// Conversation controls the state store.
	Conversation ConversationConfig `yaml:"conversation" env:"CONVERSATION"`

	// Handoff controls the handoff coordinator.
	Handoff HandoffConfig `yaml:"handoff" env:"HANDOFF"`

	// Workflow controls the execution engine.
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// Snapshot controls snapshot retention and conflict detection.
	Snapshot SnapshotConfig `yaml:"snapshot" env:"SNAPSHOT"`

	// Redis configures the optional snapshot sink.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database configures the optional relational snapshot sink.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures tracing export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics configures prometheus collection.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// ConversationConfig controls the state store.
type ConversationConfig struct {
	// ActionLogSize bounds the in-memory audit log.
	ActionLogSize int `yaml:"action_log_size" env:"ACTION_LOG_SIZE"`
}

// HandoffConfig controls the handoff coordinator.
type HandoffConfig struct {
	PreserveContext    bool          `yaml:"preserve_context" env:"PRESERVE_CONTEXT"`
	EnableAutoHandoffs bool          `yaml:"enable_auto_handoffs" env:"ENABLE_AUTO_HANDOFFS"`
	HandoffThreshold   float64       `yaml:"handoff_threshold" env:"HANDOFF_THRESHOLD"`
	MaxActiveAgents    int           `yaml:"max_active_agents" env:"MAX_ACTIVE_AGENTS"`
	PendingTTL         time.Duration `yaml:"pending_ttl" env:"PENDING_TTL"`
}

// WorkflowConfig controls the execution engine.
type WorkflowConfig struct {
	MaxSteps         int           `yaml:"max_steps" env:"MAX_STEPS"`
	MaxDuration      time.Duration `yaml:"max_duration" env:"MAX_DURATION"`
	AllowParallel    bool          `yaml:"allow_parallel" env:"ALLOW_PARALLEL"`
	CostLimit        float64       `yaml:"cost_limit" env:"COST_LIMIT"`
	RetryFailedSteps bool          `yaml:"retry_failed_steps" env:"RETRY_FAILED_STEPS"`
	MaxRetries       int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay       time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	StepsPerSecond   float64       `yaml:"steps_per_second" env:"STEPS_PER_SECOND"`
	DefaultModel     string        `yaml:"default_model" env:"DEFAULT_MODEL"`
}

// SnapshotConfig controls snapshot retention and conflict detection.
type SnapshotConfig struct {
	// Capacity bounds the in-memory snapshot ring.
	Capacity int `yaml:"capacity" env:"CAPACITY"`

	// ConflictWindow is how close divergent writes must be to count
	// as a conflict.
	ConflictWindow time.Duration `yaml:"conflict_window" env:"CONFLICT_WINDOW"`
}

// RedisConfig configures the Redis snapshot sink.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	PoolSize int           `yaml:"pool_size" env:"POOL_SIZE"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

// DatabaseConfig configures the relational snapshot sink.
type DatabaseConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// DSN is the sqlite path or server connection string.
	DSN string `yaml:"dsn" env:"DSN"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format: json, console.
	Format string `yaml:"format" env:"FORMAT"`

	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig configures prometheus collection.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Loader loads configuration with defaults, file, env precedence.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the AGENTCOORD env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTCOORD"}
}

// WithConfigPath sets the YAML file to load. A missing file is not an
// error; defaults apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then YAML file, then
// environment overrides, then validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate rejects configurations the components cannot run with.
func (c *Config) Validate() error {
	if c.Workflow.MaxSteps <= 0 {
		return fmt.Errorf("workflow.max_steps must be positive, got %d", c.Workflow.MaxSteps)
	}
	if c.Workflow.MaxDuration <= 0 {
		return fmt.Errorf("workflow.max_duration must be positive, got %s", c.Workflow.MaxDuration)
	}
	if c.Handoff.HandoffThreshold < 0 || c.Handoff.HandoffThreshold > 1 {
		return fmt.Errorf("handoff.handoff_threshold must be in [0,1], got %g", c.Handoff.HandoffThreshold)
	}
	if c.Snapshot.Capacity <= 0 {
		return fmt.Errorf("snapshot.capacity must be positive, got %d", c.Snapshot.Capacity)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field is not settable")
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
			return nil
		}
		return fmt.Errorf("unsupported slice type %s", field.Type())
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
