package models

import (
	"time"
)

// AdmissionSetting is the tenant-level admission configuration. Nil
// fields fall back to process defaults.
type AdmissionSetting struct {
	EntityID                 string `gorm:"primarykey"`
	MaxConcurrentUsers       *int
	TimeoutWindowMinutes     *int
	HeartbeatIntervalSeconds *int
	ValidatorTimeoutSeconds  *int
	ReaperIntervalSeconds    *int
	UpdatedAt                time.Time
}

// SessionLimitOverride raises the number of concurrent client instances
// a single user may hold. It does not touch the global user cap.
type SessionLimitOverride struct {
	UserID      string `gorm:"primarykey"`
	MaxSessions int    `gorm:"not null"`
	Note        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
