package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/roastpage/internal/domain"
	"gorm.io/gorm"
)

// RoastRepository handles roast data operations.
// Writes made on behalf of a background execution take the roast version
// they were started for and fail with ErrVersionConflict once a retry has
// moved the row on.
type RoastRepository struct {
	db *gorm.DB
}

// NewRoastRepository creates a new RoastRepository.
func NewRoastRepository(db *gorm.DB) *RoastRepository {
	return &RoastRepository{db: db}
}

// Ping checks that the roasts table is reachable.
func (r *RoastRepository) Ping(ctx context.Context) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Roast{}).Limit(1).Count(&count).Error; err != nil {
		return fmt.Errorf("roasts table unreachable: %w", err)
	}
	return nil
}

// Create inserts a new roast record.
func (r *RoastRepository) Create(ctx context.Context, roast *domain.Roast) error {
	return r.db.WithContext(ctx).Create(roast).Error
}

// GetByID retrieves a roast by its ID.
// Returns ErrRoastNotFound when no row matches.
func (r *RoastRepository) GetByID(ctx context.Context, id string) (*domain.Roast, error) {
	var roast domain.Roast
	if err := r.db.WithContext(ctx).First(&roast, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoastNotFound
		}
		return nil, err
	}
	return &roast, nil
}

// List returns roasts newest first. A non-positive limit returns every row.
func (r *RoastRepository) List(ctx context.Context, limit, offset int) ([]domain.Roast, error) {
	var roasts []domain.Roast
	query := r.db.WithContext(ctx).Order("created_at DESC").Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&roasts).Error; err != nil {
		return nil, err
	}
	return roasts, nil
}

// ListStale returns roasts still processing whose last update is before cutoff.
func (r *RoastRepository) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Roast, error) {
	var roasts []domain.Roast
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.RoastStatusProcessing, cutoff).
		Order("created_at").
		Find(&roasts).Error; err != nil {
		return nil, err
	}
	return roasts, nil
}

// MarkProcessing re-asserts status=processing for the given version.
func (r *RoastRepository) MarkProcessing(ctx context.Context, id string, version int) error {
	return r.updateVersioned(ctx, id, version, map[string]interface{}{
		"status": domain.RoastStatusProcessing,
	})
}

// SetScreenshot records the screenshot reference for the given version.
func (r *RoastRepository) SetScreenshot(ctx context.Context, id string, version int, screenshotURL string) error {
	return r.updateVersioned(ctx, id, version, map[string]interface{}{
		"screenshot_url": screenshotURL,
	})
}

// Complete stores the analysis and marks the roast completed.
func (r *RoastRepository) Complete(ctx context.Context, id string, version int, analysis *domain.AnalysisResult, completedAt time.Time) error {
	if analysis == nil {
		return fmt.Errorf("complete roast %s: analysis is required", id)
	}
	return r.updateVersioned(ctx, id, version, map[string]interface{}{
		"ai_analysis":  analysis,
		"score":        analysis.Score,
		"status":       domain.RoastStatusCompleted,
		"completed_at": completedAt,
	})
}

// Fail marks the roast failed.
func (r *RoastRepository) Fail(ctx context.Context, id string, version int, completedAt time.Time) error {
	return r.updateVersioned(ctx, id, version, map[string]interface{}{
		"status":       domain.RoastStatusFailed,
		"completed_at": completedAt,
	})
}

// ResetForRetry clears a roast's results, sets it back to processing and
// bumps its version. The returned roast carries the new version.
// Returns ErrRoastNotFound when the row is missing or has no URL; the row
// is left untouched in that case.
func (r *RoastRepository) ResetForRetry(ctx context.Context, id string) (*domain.Roast, error) {
	var reset *domain.Roast
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var roast domain.Roast
		if err := tx.First(&roast, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoastNotFound
			}
			return err
		}
		if roast.URL == "" {
			return ErrRoastNotFound
		}

		res := tx.Model(&domain.Roast{}).
			Where("id = ? AND version = ?", id, roast.Version).
			Updates(map[string]interface{}{
				"status":         domain.RoastStatusProcessing,
				"completed_at":   nil,
				"score":          nil,
				"screenshot_url": nil,
				"ai_analysis":    nil,
				"version":        roast.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		roast.Status = domain.RoastStatusProcessing
		roast.CompletedAt = nil
		roast.Score = nil
		roast.ScreenshotURL = nil
		roast.Analysis = nil
		roast.Version++
		reset = &roast
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reset, nil
}

// Delete removes a roast and its feedback items.
func (r *RoastRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("roast_id = ?", id).Delete(&domain.FeedbackItem{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Roast{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRoastNotFound
		}
		return nil
	})
}

func (r *RoastRepository) updateVersioned(ctx context.Context, id string, version int, values map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&domain.Roast{}).
		Where("id = ? AND version = ?", id, version).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

// conflictOrMissing tells apart a deleted roast from one that moved to a newer version.
func (r *RoastRepository) conflictOrMissing(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Roast{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrRoastNotFound
	}
	return ErrVersionConflict
}
