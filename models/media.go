package models

import "time"

// Media is an admin-uploaded asset kept in object storage.
type Media struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Key         string    `gorm:"size:512;uniqueIndex;not null" json:"key"`
	URL         string    `gorm:"size:1024;not null" json:"url"`
	ContentType string    `gorm:"size:128" json:"content_type"`
	Size        int64     `json:"size"`
	Caption     string    `gorm:"size:255" json:"caption"`
	UploadedBy  string    `gorm:"size:36" json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}
