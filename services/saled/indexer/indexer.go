package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crowdsale/core/events"
	"crowdsale/core/types"
	"crowdsale/native/sale"
)

const cursorName = "events"

// Open connects to the index database and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Indexer copies the event log into the index database.
type Indexer struct {
	db     *gorm.DB
	log    *events.Log
	logger *slog.Logger
	now    func() time.Time
}

func New(db *gorm.DB, log *events.Log, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, log: log, logger: logger, now: time.Now}
}

// Cursor returns the last indexed sequence.
func (ix *Indexer) Cursor(ctx context.Context) (uint64, error) {
	return LastSequence(ctx, ix.db)
}

// LastSequence returns the last sequence indexed in db, zero when empty.
func LastSequence(ctx context.Context, db *gorm.DB) (uint64, error) {
	var cursor Cursor
	err := db.WithContext(ctx).Where("name = ?", cursorName).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cursor.Value, nil
}

// Sync indexes every event recorded after the stored cursor.
func (ix *Indexer) Sync(ctx context.Context) (int, error) {
	cursor, err := ix.Cursor(ctx)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, evt := range ix.log.Since(cursor) {
		if err := ix.apply(ctx, evt); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Run indexes the backlog and then follows the log until ctx is done.
func (ix *Indexer) Run(ctx context.Context) error {
	updates, cancel := ix.log.Subscribe()
	defer cancel()
	if _, err := ix.Sync(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-updates:
			if !ok {
				return nil
			}
			// Sync reads from the cursor, which also covers entries the
			// subscription dropped.
			if _, err := ix.Sync(ctx); err != nil {
				ix.logger.Error("indexer: sync failed", "error", err)
			}
		}
	}
}

func (ix *Indexer) apply(ctx context.Context, evt *types.Event) error {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	now := ix.now().UTC()
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := EventRecord{ID: uuid.New(), Sequence: evt.Sequence, Type: evt.Type, Attributes: string(attrs), IndexedAt: now}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("indexer: insert event %d: %w", evt.Sequence, err)
		}
		switch evt.Type {
		case sale.EventTypeTokenBought:
			purchase := Purchase{
				ID:        uuid.New(),
				Sequence:  evt.Sequence,
				Buyer:     evt.Attributes["account"],
				Currency:  evt.Attributes["currency"],
				Value:     evt.Attributes["value"],
				Amount:    evt.Attributes["amount"],
				Referral:  evt.Attributes["referral"],
				IndexedAt: now,
			}
			if err := tx.Create(&purchase).Error; err != nil {
				return fmt.Errorf("indexer: insert purchase %d: %w", evt.Sequence, err)
			}
		case sale.EventTypeTokenWithdrew:
			withdrawal := Withdrawal{
				ID:        uuid.New(),
				Sequence:  evt.Sequence,
				Account:   evt.Attributes["account"],
				Amount:    evt.Attributes["amount"],
				IndexedAt: now,
			}
			if err := tx.Create(&withdrawal).Error; err != nil {
				return fmt.Errorf("indexer: insert withdrawal %d: %w", evt.Sequence, err)
			}
		}
		return tx.Save(&Cursor{Name: cursorName, Value: evt.Sequence}).Error
	})
}

// Purchases lists the purchases of buyer in sequence order. An empty buyer
// lists all purchases.
func (ix *Indexer) Purchases(ctx context.Context, buyer string) ([]Purchase, error) {
	var out []Purchase
	query := ix.db.WithContext(ctx).Order("sequence asc")
	if buyer != "" {
		query = query.Where("buyer = ?", buyer)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Withdrawals lists the withdrawals of account in sequence order.
func (ix *Indexer) Withdrawals(ctx context.Context, account string) ([]Withdrawal, error) {
	var out []Withdrawal
	query := ix.db.WithContext(ctx).Order("sequence asc")
	if account != "" {
		query = query.Where("account = ?", account)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Events lists indexed events of the given type, newest first.
func (ix *Indexer) Events(ctx context.Context, eventType string, limit int) ([]EventRecord, error) {
	var out []EventRecord
	query := ix.db.WithContext(ctx).Order("sequence desc")
	if eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
