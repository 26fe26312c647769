package pipelinemodule

import (
	"os"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tunegrab/tunegrab/internal/database"
	"github.com/tunegrab/tunegrab/internal/logger"
	"github.com/tunegrab/tunegrab/internal/types"
)

// gormTrackCache backs the track cache with the shared database. A hit
// requires the recorded artifact file to still exist; stale rows are
// dropped on lookup.
type gormTrackCache struct {
	db *gorm.DB
}

// NewTrackCache creates a database-backed track cache.
func NewTrackCache(db *gorm.DB) TrackCache {
	return &gormTrackCache{db: db}
}

func (c *gormTrackCache) Lookup(sourceID string) (*types.DownloadArtifact, bool) {
	var record database.CachedTrack
	if err := c.db.Where("source_id = ?", sourceID).Take(&record).Error; err != nil {
		return nil, false
	}

	if _, err := os.Stat(record.ArtifactRef); err != nil {
		c.db.Delete(&record)
		return nil, false
	}

	c.db.Model(&record).UpdateColumn("hit_count", gorm.Expr("hit_count + 1"))

	return &types.DownloadArtifact{
		FilePath:  record.ArtifactRef,
		Codec:     "mp3",
		SizeBytes: record.SizeBytes,
		Title:     record.Title,
		Artist:    record.Artist,
	}, true
}

func (c *gormTrackCache) Save(sourceID string, artifact *types.DownloadArtifact) {
	record := database.CachedTrack{
		SourceID:    sourceID,
		Title:       artifact.Title,
		Artist:      artifact.Artist,
		ArtifactRef: artifact.FilePath,
		SizeBytes:   artifact.SizeBytes,
	}
	err := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "artist", "artifact_ref", "size_bytes", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		logger.Warn("track cache write failed", []logger.Field{
			logger.String("source_id", sourceID),
			logger.Err(err),
		})
	}
}
