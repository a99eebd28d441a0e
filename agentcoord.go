// Package agentcoord coordinates multiple specialized agents sharing
// one logical conversation: an agent directory with suitability
// scoring, a reducer-backed conversation state store, a handoff
// coordinator, a bounded workflow execution engine, and snapshot-based
// recovery with conflict detection.
//
// Usage:
//
//	cfg := config.DefaultConfig()
//	sys, err := agentcoord.New(cfg, myReasoner, agentcoord.WithConversationID("conv-1"))
//	defer sys.Close(context.Background())
package agentcoord

import (
	"context"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/BaSui01/agentcoord/agent"
	"github.com/BaSui01/agentcoord/config"
	"github.com/BaSui01/agentcoord/conversation"
	"github.com/BaSui01/agentcoord/handoff"
	"github.com/BaSui01/agentcoord/internal/metrics"
	"github.com/BaSui01/agentcoord/internal/telemetry"
	"github.com/BaSui01/agentcoord/snapshot"
	"github.com/BaSui01/agentcoord/workflow"
)

// System wires the coordination components for one conversation.
type System struct {
	Directory   *agent.Directory
	Scorer      *agent.Scorer
	Store       *conversation.Store
	Coordinator *handoff.Coordinator
	Engine      *workflow.Engine
	Snapshots   *snapshot.Manager
	Detector    *snapshot.Detector
	Resolver    *snapshot.Resolver

	logger    *zap.Logger
	telemetry *telemetry.Provider
	redis     *redis.Client
}

// Option customizes system construction.
type Option func(*options)

type options struct {
	conversationID string
	logger         *zap.Logger
	sinks          []snapshot.Sink
}

// WithConversationID sets the conversation the system coordinates.
func WithConversationID(id string) Option {
	return func(o *options) { o.conversationID = id }
}

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSinks adds snapshot sinks beyond the configured ones.
func WithSinks(sinks ...snapshot.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// New builds a fully wired coordination system from configuration. The
// reasoner may be nil; reasoning steps then fail until one is bound at
// engine construction by the caller.
func New(cfg *config.Config, reasoner workflow.Reasoner, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := &options{conversationID: "default"}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = NewLogger(cfg.Log)
	}

	provider, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	dir := agent.NewDirectory(logger)
	scorer := agent.NewScorer(dir)
	store := conversation.NewStore(o.conversationID, nil, logger)
	store.SetActionLogCap(cfg.Conversation.ActionLogSize)
	if collector != nil {
		store.SetCollector(collector)
	}

	coordinator := handoff.NewCoordinator(dir, scorer, store, handoff.Options{
		PreserveContext:    cfg.Handoff.PreserveContext,
		EnableAutoHandoffs: cfg.Handoff.EnableAutoHandoffs,
		HandoffThreshold:   cfg.Handoff.HandoffThreshold,
		MaxActiveAgents:    cfg.Handoff.MaxActiveAgents,
		PendingTTL:         cfg.Handoff.PendingTTL,
	}, logger)
	if collector != nil {
		coordinator.SetCollector(collector)
	}

	engineOpts := []workflow.Option{}
	if collector != nil {
		engineOpts = append(engineOpts, workflow.WithMetrics(collector))
	}
	engine := workflow.NewEngine(workflow.Config{
		MaxSteps:         cfg.Workflow.MaxSteps,
		MaxDuration:      cfg.Workflow.MaxDuration,
		AllowParallel:    cfg.Workflow.AllowParallel,
		CostLimit:        cfg.Workflow.CostLimit,
		RetryFailedSteps: cfg.Workflow.RetryFailedSteps,
		MaxRetries:       cfg.Workflow.MaxRetries,
		RetryDelay:       cfg.Workflow.RetryDelay,
		StepsPerSecond:   cfg.Workflow.StepsPerSecond,
		DefaultModel:     cfg.Workflow.DefaultModel,
	}, reasoner, logger, engineOpts...)

	sys := &System{
		Directory:   dir,
		Scorer:      scorer,
		Store:       store,
		Coordinator: coordinator,
		Engine:      engine,
		logger:      logger,
		telemetry:   provider,
	}

	sinks := o.sinks
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		sys.redis = client
		sinks = append(sinks, snapshot.NewRedisSink(client, snapshot.RedisSinkConfig{
			TTL: cfg.Redis.TTL,
		}))
	}
	if cfg.Database.Enabled {
		db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		gormSink, err := snapshot.NewGormSink(db)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, gormSink)
	}

	managerOpts := []snapshot.Option{
		snapshot.WithCapacity(cfg.Snapshot.Capacity),
		snapshot.WithDirectory(dir),
		snapshot.WithSinks(sinks...),
	}
	if collector != nil {
		managerOpts = append(managerOpts, snapshot.WithMetrics(collector))
	}
	sys.Snapshots = snapshot.NewManager(store, logger, managerOpts...)
	sys.Detector = snapshot.NewDetector(cfg.Snapshot.ConflictWindow, store.Bus(), collector, logger)
	sys.Resolver = snapshot.NewResolver(store, logger)

	logger.Info("coordination system ready",
		zap.String("conversation_id", o.conversationID),
		zap.Bool("redis_sink", cfg.Redis.Enabled),
		zap.Bool("database_sink", cfg.Database.Enabled),
	)
	return sys, nil
}

// Close flushes telemetry and releases external connections.
func (s *System) Close(ctx context.Context) error {
	var firstErr error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	_ = s.logger.Sync()
	return firstErr
}

// NewLogger builds a zap logger from log configuration, falling back to
// the production defaults when the configuration cannot build.
func NewLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	buildOpts := []zap.Option{}
	if cfg.EnableCaller {
		buildOpts = append(buildOpts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		buildOpts = append(buildOpts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(buildOpts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
