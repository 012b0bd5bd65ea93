// Package indexer projects committed ledger events into a relational store for
// history queries the state trie cannot answer cheaply.
package indexer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"healthkey/core/events"
	"healthkey/core/types"
	"healthkey/crypto"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var ErrUnsupportedDriver = errors.New("indexer: unsupported driver")

// Indexer consumes committed receipts. It satisfies core.EventSink.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to driver/dsn and migrates the schema.
func Open(driver, dsn string, logger *slog.Logger) (*Indexer, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("indexer: dsn must be provided")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return New(db, logger)
}

// New wraps an existing handle.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: logger}, nil
}

// Close releases the connection pool.
func (ix *Indexer) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Consume records the profile and reward events of receipt. Replaying a
// receipt is a no-op.
func (ix *Indexer) Consume(ctx context.Context, receipt *types.Receipt, evts []events.Event) error {
	if receipt == nil {
		return nil
	}
	txHash := hex.EncodeToString(receipt.TxHash)
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, evt := range evts {
			switch e := evt.(type) {
			case events.ProfileInitialized:
				rec := ProfileRecord{
					Authority:      addressString(e.Authority),
					Address:        addressString(e.Profile),
					ContentPointer: e.ContentPointer,
					Goal:           e.Goal,
					CreatedAt:      e.CreatedAt,
					Slot:           receipt.Slot,
					TxHash:         txHash,
				}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
					return fmt.Errorf("insert profile: %w", err)
				}
			case events.UserRewarded:
				rec := RewardRecord{
					TxHash:         txHash,
					EventIndex:     i,
					Slot:           receipt.Slot,
					Timestamp:      receipt.Timestamp,
					Recipient:      addressString(e.Recipient),
					RecipientToken: addressString(e.RecipientToken),
					VaultAuthority: addressString(e.VaultAuthority),
					Mint:           addressString(e.Mint),
					Amount:         e.Amount,
					AccountCreated: e.AccountCreated,
				}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
					return fmt.Errorf("insert reward: %w", err)
				}
				ix.logger.Debug("reward indexed",
					slog.String("recipient", rec.Recipient),
					slog.Uint64("amount", rec.Amount),
					slog.Uint64("slot", rec.Slot))
			}
		}
		return nil
	})
}

// RewardHistory lists rewards paid to recipient, newest first.
func (ix *Indexer) RewardHistory(ctx context.Context, recipient [20]byte, limit int) ([]RewardRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	var out []RewardRecord
	err := ix.db.WithContext(ctx).
		Where("recipient = ?", addressString(recipient)).
		Order("slot DESC").Order("event_index DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: reward history: %w", err)
	}
	return out, nil
}

// TotalRewarded sums every reward paid to recipient.
func (ix *Indexer) TotalRewarded(ctx context.Context, recipient [20]byte) (uint64, error) {
	var rows []RewardRecord
	err := ix.db.WithContext(ctx).
		Select("amount").
		Where("recipient = ?", addressString(recipient)).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("indexer: total rewarded: %w", err)
	}
	var total uint64
	for _, row := range rows {
		next := total + row.Amount
		if next < total {
			return 0, fmt.Errorf("indexer: reward total overflows")
		}
		total = next
	}
	return total, nil
}

// Profile returns the indexed profile of authority.
func (ix *Indexer) Profile(ctx context.Context, authority [20]byte) (*ProfileRecord, bool, error) {
	var rec ProfileRecord
	err := ix.db.WithContext(ctx).First(&rec, "authority = ?", addressString(authority)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("indexer: profile: %w", err)
	}
	return &rec, true, nil
}

// LastSlot returns the highest slot that produced an indexed row.
func (ix *Indexer) LastSlot(ctx context.Context) (uint64, error) {
	var last uint64
	for _, model := range []any{&ProfileRecord{}, &RewardRecord{}} {
		var row struct{ Slot *uint64 }
		if err := ix.db.WithContext(ctx).Model(model).Select("MAX(slot) AS slot").Scan(&row).Error; err != nil {
			return 0, fmt.Errorf("indexer: last slot: %w", err)
		}
		if row.Slot != nil && *row.Slot > last {
			last = *row.Slot
		}
	}
	return last, nil
}

func addressString(raw [20]byte) string {
	return crypto.FromRaw(raw).String()
}
