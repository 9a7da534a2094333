package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/zfogg/sidechain/feedengine/internal/models"
	"github.com/zfogg/sidechain/feedengine/internal/reputation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReputationRepository stores advisory reputation snapshots.
type ReputationRepository struct {
	db *gorm.DB
}

func NewReputationRepository(db *gorm.DB) *ReputationRepository {
	return &ReputationRepository{db: db}
}

// LastScore returns the stored score, with found=false when none exists.
func (r *ReputationRepository) LastScore(ctx context.Context, userID string) (int, bool, error) {
	var rec models.UserReputation
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load stored reputation: %w", err)
	}
	return rec.Score, true, nil
}

// SaveScore upserts the snapshot for userID.
func (r *ReputationRepository) SaveScore(ctx context.Context, userID string, result reputation.Result) error {
	rec := models.UserReputation{
		UserID: userID,
		Score:  result.Score,
		Bucket: result.Bucket.String(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "bucket", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save reputation: %w", err)
	}
	return nil
}
