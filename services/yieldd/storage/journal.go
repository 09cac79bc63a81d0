package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"yieldsplit/core/host"
)

// ErrNotFound is returned when a receipt is not in the journal.
var ErrNotFound = errors.New("journal: not found")

const defaultFilePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// ReceiptRecord is one committed transaction.
type ReceiptRecord struct {
	ID        uint          `gorm:"primaryKey" json:"-"`
	Sequence  uint64        `gorm:"uniqueIndex" json:"sequence"`
	Hash      string        `gorm:"size:64;uniqueIndex" json:"hash"`
	Op        string        `gorm:"size:64;index" json:"op"`
	Timestamp uint64        `gorm:"index" json:"timestamp"`
	Signers   string        `json:"signers"`
	Events    []EventRecord `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE" json:"events,omitempty"`
	CreatedAt time.Time     `json:"recorded_at"`
}

// EventRecord is one event emitted by a committed transaction.
type EventRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ReceiptID  uint      `gorm:"index" json:"-"`
	Sequence   uint64    `gorm:"index" json:"sequence"`
	Position   int       `json:"position"`
	Type       string    `gorm:"size:64;index" json:"type"`
	Attributes string    `json:"-"`
	Timestamp  uint64    `json:"timestamp"`
	CreatedAt  time.Time `json:"-"`
}

// Attrs decodes the stored attributes.
func (e EventRecord) Attrs() map[string]string {
	out := map[string]string{}
	if e.Attributes != "" {
		_ = json.Unmarshal([]byte(e.Attributes), &out)
	}
	return out
}

// MarshalJSON renders attributes as an object.
func (e EventRecord) MarshalJSON() ([]byte, error) {
	type alias EventRecord
	return json.Marshal(struct {
		alias
		Attributes map[string]string `json:"attributes"`
	}{alias: alias(e), Attributes: e.Attrs()})
}

// Journal persists receipts and their events.
type Journal struct {
	db *gorm.DB
}

// FileDSN converts a filesystem path into an on-disk SQLite DSN.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("journal path required")
	}
	if strings.HasPrefix(trimmed, "file:") {
		return trimmed, nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve journal path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// Open connects to the journal database and migrates its schema. driver is
// "sqlite" or "postgres".
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		resolved, err := FileDSN(dsn)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(resolved)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New wraps an open database and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database required")
	}
	if err := db.AutoMigrate(&ReceiptRecord{}, &EventRecord{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores receipt, labelled with op.
func (j *Journal) Record(ctx context.Context, op string, receipt *host.Receipt) error {
	if j == nil || receipt == nil {
		return nil
	}
	signers := make([]string, 0, len(receipt.Signers))
	for _, s := range receipt.Signers {
		signers = append(signers, s.String())
	}
	record := ReceiptRecord{
		Sequence:  receipt.Sequence,
		Hash:      receipt.HashHex(),
		Op:        op,
		Timestamp: receipt.Timestamp,
		Signers:   strings.Join(signers, ","),
	}
	for i, ev := range receipt.Events {
		rendered := ev.Event()
		attrs, err := json.Marshal(rendered.Attributes)
		if err != nil {
			return fmt.Errorf("journal: encode attributes: %w", err)
		}
		record.Events = append(record.Events, EventRecord{
			Sequence:   receipt.Sequence,
			Position:   i,
			Type:       rendered.Type,
			Attributes: string(attrs),
			Timestamp:  receipt.Timestamp,
		})
	}
	if err := j.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("journal: record %d: %w", receipt.Sequence, err)
	}
	return nil
}

// Query filters journal events.
type Query struct {
	Type  string
	After uint64
	Limit int
}

// Events returns events matching q in commit order.
func (j *Journal) Events(ctx context.Context, q Query) ([]EventRecord, error) {
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	tx := j.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", q.After)
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	var out []EventRecord
	if err := tx.Order("sequence ASC").Order("position ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: query events: %w", err)
	}
	return out, nil
}

// Receipt returns the receipt with the given hash and its events.
func (j *Journal) Receipt(ctx context.Context, hash string) (*ReceiptRecord, error) {
	var record ReceiptRecord
	err := j.db.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("hash = ?", strings.ToLower(strings.TrimSpace(hash))).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: receipt: %w", err)
	}
	return &record, nil
}

// LastSequence returns the highest recorded sequence, zero when empty.
func (j *Journal) LastSequence(ctx context.Context) (uint64, error) {
	var seq uint64
	err := j.db.WithContext(ctx).Model(&ReceiptRecord{}).Select("COALESCE(MAX(sequence), 0)").Scan(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("journal: last sequence: %w", err)
	}
	return seq, nil
}
