package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/roastpage/internal/domain"
	"gorm.io/gorm"
)

// FeedbackRepository handles feedback item operations.
type FeedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository creates a new FeedbackRepository.
func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// ItemError reports a single feedback row that could not be inserted.
type ItemError struct {
	Index    int
	Category string
	Err      error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("feedback item %d (%s): %v", e.Index, e.Category, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// ListByRoastID returns a roast's feedback items in insertion order.
func (r *FeedbackRepository) ListByRoastID(ctx context.Context, roastID string) ([]domain.FeedbackItem, error) {
	var items []domain.FeedbackItem
	if err := r.db.WithContext(ctx).
		Where("roast_id = ?", roastID).
		Order("created_at").
		Order("id").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteByRoastID removes every feedback item of a roast.
func (r *FeedbackRepository) DeleteByRoastID(ctx context.Context, roastID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("roast_id = ?", roastID).Delete(&domain.FeedbackItem{})
	return res.RowsAffected, res.Error
}

// ReplaceForRoast swaps a roast's feedback for items, provided the roast is
// still at version. Each row is inserted under its own savepoint: a failing
// row is rolled back and reported in the returned ItemErrors while the rest
// are kept. The returned error is non-nil only when the whole batch could
// not run, ErrVersionConflict included.
func (r *FeedbackRepository) ReplaceForRoast(ctx context.Context, roastID string, version int, items []domain.FeedbackItem) (int, []ItemError, error) {
	inserted := 0
	var itemErrs []ItemError

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claiming the roast row first serializes concurrent replacements.
		res := tx.Model(&domain.Roast{}).
			Where("id = ? AND version = ?", roastID, version).
			Update("updated_at", time.Now().UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		if err := tx.Where("roast_id = ?", roastID).Delete(&domain.FeedbackItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear feedback: %w", err)
		}

		base := time.Now().UTC()
		for i := range items {
			item := items[i]
			item.RoastID = roastID
			if item.ID == "" {
				item.ID = uuid.New().String()
			}
			// Distinct timestamps keep ListByRoastID in insertion order.
			item.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)

			savepoint := fmt.Sprintf("feedback_%d", i)
			if err := tx.SavePoint(savepoint).Error; err != nil {
				return err
			}
			if err := tx.Create(&item).Error; err != nil {
				if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
					return rbErr
				}
				itemErrs = append(itemErrs, ItemError{Index: i, Category: item.Category, Err: err})
				continue
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return inserted, itemErrs, nil
}
