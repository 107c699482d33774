// Package eventlog keeps an append-only SQL journal of committed protocol
// events so the API can page through history after a restart.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"usdacore/core/events"
)

const defaultPageSize = 100

// Entry is one journalled event.
type Entry struct {
	Seq        uint64            `gorm:"primaryKey;autoIncrement" json:"seq"`
	ID         string            `gorm:"size:36;uniqueIndex" json:"id"`
	Type       string            `gorm:"size:64;index" json:"type"`
	Attributes map[string]string `gorm:"serializer:json" json:"attributes"`
	CreatedAt  time.Time         `gorm:"index" json:"createdAt"`
}

func (Entry) TableName() string { return "protocol_events" }

// Query filters a page of entries. AfterSeq is exclusive.
type Query struct {
	Type     string
	AfterSeq uint64
	Limit    int
}

// Journal persists events through gorm.
type Journal struct {
	db    *gorm.DB
	clock func() time.Time
}

// Open connects to a sqlite database at dsn, for example "file:events.db" or
// "file::memory:?cache=shared", and migrates the schema.
func Open(dsn string) (*Journal, error) {
	if dsn == "" {
		return nil, errors.New("eventlog: dsn required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %q: %w", dsn, err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("eventlog: nil database")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	return &Journal{db: db, clock: time.Now}, nil
}

// Publish appends evts in one transaction. Events without an attribute
// rendering are stored with their type only.
func (j *Journal) Publish(ctx context.Context, evts []events.Event) error {
	if len(evts) == 0 {
		return nil
	}
	now := j.clock().UTC()
	rows := make([]Entry, 0, len(evts))
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		row := Entry{ID: uuid.NewString(), Type: evt.EventType(), CreatedAt: now}
		if rendered := events.ToTypes(evt); rendered != nil {
			row.Attributes = rendered.Attributes
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// List returns entries in sequence order.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultPageSize
	}
	tx := j.db.WithContext(ctx).Model(&Entry{}).Where("seq > ?", q.AfterSeq)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	var out []Entry
	if err := tx.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("eventlog: list: %w", err)
	}
	return out, nil
}

// Count reports how many entries of eventType exist; empty counts all.
func (j *Journal) Count(ctx context.Context, eventType string) (int64, error) {
	tx := j.db.WithContext(ctx).Model(&Entry{})
	if eventType != "" {
		tx = tx.Where("type = ?", eventType)
	}
	var n int64
	return n, tx.Count(&n).Error
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
