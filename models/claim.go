package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim is an immutable record of one successful claim and its reward breakdown.
type Claim struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	UserID         string          `gorm:"size:36;index:idx_claims_user_time;not null" json:"user_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	BonusAmount    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"bonus_amount"`
	BonusReason    string          `gorm:"size:64" json:"bonus_reason,omitempty"`
	Multiplier     decimal.Decimal `gorm:"type:decimal(10,4);not null;default:1" json:"multiplier"`
	PromotionBonus decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"promotion_bonus"`
	Total          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total"`
	Streak         int             `gorm:"not null" json:"streak"`
	ClaimedAt      time.Time       `gorm:"index:idx_claims_user_time;not null" json:"claimed_at"`
}
