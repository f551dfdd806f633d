package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Referral links a referee to the user whose code they registered with.
type Referral struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ReferrerID   string          `gorm:"size:36;index;not null" json:"referrer_id"`
	RefereeID    string          `gorm:"size:36;uniqueIndex;not null" json:"referee_id"`
	BonusAwarded decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"bonus_awarded"`
	RewardedAt   *time.Time      `json:"rewarded_at"`
	CreatedAt    time.Time       `json:"created_at"`
}
