package models

import (
	"time"
)

// DefaultClientInstanceID is used when a client does not tell its
// instances apart.
const DefaultClientInstanceID = "default"

type ActiveSession struct {
	ID               uint      `gorm:"primarykey" json:"-"`
	UserID           string    `gorm:"not null;uniqueIndex:idx_active_sessions_user_instance" json:"user_id"`
	ClientInstanceID string    `gorm:"not null;default:default;uniqueIndex:idx_active_sessions_user_instance" json:"client_instance_id"`
	LastActivity     time.Time `gorm:"not null;index" json:"last_activity"`
	CreatedAt        time.Time `json:"created_at"`
	IPAddress        string    `json:"ip_address,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
}
