package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/agentcoord/types"
)

// RedisSinkConfig configures snapshot persistence in Redis.
type RedisSinkConfig struct {
	// KeyPrefix namespaces snapshot keys, default "agentcoord:snapshot".
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// TTL expires persisted snapshots. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// DefaultRedisSinkConfig returns the Redis sink defaults.
func DefaultRedisSinkConfig() RedisSinkConfig {
	return RedisSinkConfig{
		KeyPrefix: "agentcoord:snapshot",
		TTL:       24 * time.Hour,
	}
}

// RedisSink stores each snapshot as a JSON value keyed by snapshot id.
type RedisSink struct {
	client redis.UniversalClient
	config RedisSinkConfig
}

// NewRedisSink creates a Redis-backed snapshot sink.
func NewRedisSink(client redis.UniversalClient, config RedisSinkConfig) *RedisSink {
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisSinkConfig().KeyPrefix
	}
	return &RedisSink{client: client, config: config}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) key(id string) string {
	return fmt.Sprintf("%s:%s", s.config.KeyPrefix, id)
}

// Save writes the snapshot and updates the latest pointer for the
// snapshot's conversation.
func (s *RedisSink) Save(ctx context.Context, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}
	if err := s.client.Set(ctx, s.key(snap.ID), payload, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	latest := fmt.Sprintf("%s:latest:%s", s.config.KeyPrefix, snap.Context.ConversationID)
	return s.client.Set(ctx, latest, snap.ID, s.config.TTL).Err()
}

// Load fetches a persisted snapshot by id.
func (s *RedisSink) Load(ctx context.Context, id string) (*Snapshot, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewErrorf(types.ErrSnapshotNotFound, "snapshot %s not in redis", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, types.NewErrorf(types.ErrStateCorrupted,
			"snapshot %s is not valid JSON", id).WithCause(err)
	}
	return &snap, nil
}

// LatestID returns the id of the newest persisted snapshot for a
// conversation.
func (s *RedisSink) LatestID(ctx context.Context, conversationID string) (string, error) {
	latest := fmt.Sprintf("%s:latest:%s", s.config.KeyPrefix, conversationID)
	id, err := s.client.Get(ctx, latest).Result()
	if errors.Is(err, redis.Nil) {
		return "", types.NewErrorf(types.ErrSnapshotNotFound,
			"no snapshots persisted for conversation %s", conversationID)
	}
	return id, err
}
