package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed event of the sale.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	IndexedAt  time.Time
}

// Purchase is a decoded sale.token_bought event. Amounts are decimal strings
// of base units.
type Purchase struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence  uint64    `gorm:"uniqueIndex;not null"`
	Buyer     string    `gorm:"size:42;index"`
	Currency  string    `gorm:"size:42;index"`
	Value     string    `gorm:"size:80"`
	Amount    string    `gorm:"size:80"`
	Referral  string    `gorm:"size:42;index"`
	IndexedAt time.Time
}

// Withdrawal is a decoded sale.token_withdrew event.
type Withdrawal struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence  uint64    `gorm:"uniqueIndex;not null"`
	Account   string    `gorm:"size:42;index"`
	Amount    string    `gorm:"size:80"`
	IndexedAt time.Time
}

// Cursor stores the last indexed sequence.
type Cursor struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value uint64 `gorm:"not null"`
}

// AutoMigrate creates or updates the index schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{}, &Purchase{}, &Withdrawal{}, &Cursor{})
}
