package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User holds identity and reward state. Claim state (TotalClaims, Streak,
// LastClaim, Balance) is only written by the claim service, admin actions and
// the lapsed-streak sweep.
type User struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	Username          string          `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash      string          `gorm:"size:255" json:"-"`
	TotalClaims       int64           `gorm:"not null;default:0" json:"total_claims"`
	Streak            int             `gorm:"not null;default:0" json:"streak"`
	LastClaim         *time.Time      `gorm:"index" json:"last_claim"`
	Balance           decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	IsAdmin           bool            `gorm:"not null;default:false" json:"is_admin"`
	IsBanned          bool            `gorm:"not null;default:false" json:"is_banned"`
	ReferralCode      string          `gorm:"size:16;uniqueIndex" json:"referral_code"`
	ReferredBy        *string         `gorm:"size:36;index" json:"referred_by,omitempty"`
	UsernameChangedAt *time.Time      `json:"username_changed_at,omitempty"`
	RegisterIP        string          `gorm:"size:45" json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// BeforeCreate fills the identifier and timestamps when the caller left them empty.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
