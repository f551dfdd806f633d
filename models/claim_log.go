package models

import "time"

// Claim attempt results recorded in the audit log.
const (
	ClaimResultSuccess        = "success"
	ClaimResultAlreadyClaimed = "already_claimed"
	ClaimResultAdminForbidden = "admin_forbidden"
	ClaimResultBanned         = "banned"
	ClaimResultConflict       = "conflict"
	ClaimResultError          = "error"
)

// ClaimLog audits every claim attempt, successful or not.
type ClaimLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:36;index" json:"user_id"`
	Username  string    `gorm:"size:64;index" json:"username"`
	Result    string    `gorm:"size:32;index" json:"result"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	SourceIP  string    `gorm:"size:45" json:"source_ip"`
}
