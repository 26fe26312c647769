package database

import (
	"time"
)

// ReachabilityRecord tracks whether a requester can still receive
// delivered tracks. Requesters without a row are treated as reachable.
type ReachabilityRecord struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	RequesterID string    `json:"requester_id" gorm:"uniqueIndex;not null"`
	State       string    `json:"state" gorm:"not null;default:'active'"`
	LastEvent   string    `json:"last_event"`
	ChangedAt   time.Time `json:"changed_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CachedTrack maps a resolved source to a previously produced artifact so
// repeat requests skip the download stage entirely.
type CachedTrack struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	SourceID    string    `json:"source_id" gorm:"uniqueIndex;not null"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	ArtifactRef string    `json:"artifact_ref" gorm:"not null"`
	SizeBytes   int64     `json:"size_bytes"`
	HitCount    int64     `json:"hit_count" gorm:"default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
