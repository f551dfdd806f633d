package models

import "time"

// Blacklist entry kinds.
const (
	BlacklistKindIP       = "ip"
	BlacklistKindUsername = "username"
)

// BlacklistEntry blocks an IP address or a username.
type BlacklistEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Kind      string    `gorm:"size:16;uniqueIndex:idx_blacklist_kind_value;not null" json:"kind"`
	Value     string    `gorm:"size:128;uniqueIndex:idx_blacklist_kind_value;not null" json:"value"`
	Reason    string    `gorm:"size:255" json:"reason"`
	CreatedBy string    `gorm:"size:36" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
