package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bonus grant reasons written by the server itself.
const (
	GrantReasonReferral = "referral bonus"
)

// BonusGrant audits a balance change that did not come from a claim.
type BonusGrant struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	UserID    string          `gorm:"size:36;index;not null" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Reason    string          `gorm:"size:255" json:"reason"`
	GrantedBy string          `gorm:"size:36" json:"granted_by"`
	CreatedAt time.Time       `json:"created_at"`
}
