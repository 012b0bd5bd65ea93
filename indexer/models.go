package indexer

import "gorm.io/gorm"

// ProfileRecord mirrors a committed user profile.
type ProfileRecord struct {
	Authority      string `gorm:"primaryKey;size:64"`
	Address        string `gorm:"uniqueIndex;size:64"`
	ContentPointer string `gorm:"size:100"`
	Goal           string `gorm:"size:100"`
	CreatedAt      int64
	Slot           uint64 `gorm:"index"`
	TxHash         string `gorm:"size:64"`
}

func (ProfileRecord) TableName() string { return "profiles" }

// RewardRecord is one executed reward payout.
type RewardRecord struct {
	ID             uint   `gorm:"primaryKey"`
	TxHash         string `gorm:"uniqueIndex:idx_reward_tx;size:64"`
	EventIndex     int    `gorm:"uniqueIndex:idx_reward_tx"`
	Slot           uint64 `gorm:"index"`
	Timestamp      int64
	Recipient      string `gorm:"index;size:64"`
	RecipientToken string `gorm:"size:64"`
	VaultAuthority string `gorm:"size:64"`
	Mint           string `gorm:"index;size:64"`
	Amount         uint64
	AccountCreated bool
}

func (RewardRecord) TableName() string { return "rewards" }

// AutoMigrate creates or updates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ProfileRecord{}, &RewardRecord{})
}
