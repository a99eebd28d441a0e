package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/agentcoord/types"
)

// SnapshotRecord is the relational row a snapshot is persisted as. The
// full context travels as a JSON blob; the indexed columns exist for
// lookup and pruning.
type SnapshotRecord struct {
	ID             string    `gorm:"primaryKey;size:64"`
	ConversationID string    `gorm:"index;size:64"`
	Version        uint64    `gorm:"index"`
	Payload        []byte    `gorm:"type:blob"`
	CreatedAt      time.Time `gorm:"index"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (SnapshotRecord) TableName() string { return "conversation_snapshots" }

// GormSink stores snapshots in a relational database through gorm.
type GormSink struct {
	db *gorm.DB
}

// NewGormSink creates a database-backed snapshot sink and migrates its
// table.
func NewGormSink(db *gorm.DB) (*GormSink, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.AutoMigrate(&SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot table: %w", err)
	}
	return &GormSink{db: db}, nil
}

func (s *GormSink) Name() string { return "gorm" }

func (s *GormSink) Save(ctx context.Context, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}
	record := SnapshotRecord{
		ID:             snap.ID,
		ConversationID: snap.Context.ConversationID,
		Version:        snap.Version,
		Payload:        payload,
		CreatedAt:      snap.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

func (s *GormSink) Load(ctx context.Context, id string) (*Snapshot, error) {
	var record SnapshotRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrSnapshotNotFound, "snapshot %s not in database", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(record.Payload, &snap); err != nil {
		return nil, types.NewErrorf(types.ErrStateCorrupted,
			"snapshot %s payload is not valid JSON", id).WithCause(err)
	}
	return &snap, nil
}

// Prune deletes persisted snapshots for a conversation beyond the most
// recent keep entries.
func (s *GormSink) Prune(ctx context.Context, conversationID string, keep int) error {
	if keep <= 0 {
		return fmt.Errorf("keep must be positive")
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&SnapshotRecord{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		Offset(keep).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return err
	}
	return s.db.WithContext(ctx).Delete(&SnapshotRecord{}, "id IN ?", ids).Error
}
