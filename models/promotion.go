package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Promotion is a time-bound payout multiplier.
type Promotion struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	Name        string          `gorm:"size:128;not null" json:"name"`
	Multiplier  decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"multiplier"`
	StartDate   time.Time       `gorm:"index;not null" json:"start_date"`
	EndDate     time.Time       `gorm:"index;not null" json:"end_date"`
	Description string          `gorm:"type:text" json:"description"`
	CreatedBy   string          `gorm:"size:36" json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ActiveAt reports whether now falls inside [StartDate, EndDate].
func (p Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.StartDate) && !now.After(p.EndDate)
}
