package repository

import (
	"context"
	"fmt"

	"collabd/internal/models"

	"gorm.io/gorm"
)

// EditRepositoryImpl persists accepted edit operations with GORM.
// Sessions restart at version 0 after they empty out, so (document_id,
// version) is not unique over time; reads order by applied_at.
type EditRepositoryImpl struct {
	db *gorm.DB
}

func NewEditRepository(db *gorm.DB) *EditRepositoryImpl {
	return &EditRepositoryImpl{db: db}
}

// StoreEdit writes one edit operation.
func (r *EditRepositoryImpl) StoreEdit(ctx context.Context, op *models.EditOperation) error {
	if err := r.db.WithContext(ctx).Create(op).Error; err != nil {
		return fmt.Errorf("failed to store edit: %w", err)
	}
	return nil
}

// ListEdits returns the most recent limit edits of a document, oldest first.
func (r *EditRepositoryImpl) ListEdits(ctx context.Context, documentID string, limit int) ([]*models.EditOperation, error) {
	var edits []*models.EditOperation

	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("applied_at DESC").
		Order("version DESC").
		Limit(limit).
		Find(&edits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list edits: %w", err)
	}

	for i, j := 0, len(edits)-1; i < j; i, j = i+1, j-1 {
		edits[i], edits[j] = edits[j], edits[i]
	}
	return edits, nil
}

// DeleteEditsBefore prunes a document's archived edits older than the
// keepCount most recent ones. keepCount 0 drops the whole archive of the document.
func (r *EditRepositoryImpl) DeleteEditsBefore(ctx context.Context, documentID string, keepCount int) (int64, error) {
	if keepCount <= 0 {
		result := r.db.WithContext(ctx).
			Where("document_id = ?", documentID).
			Delete(&models.EditOperation{})
		if result.Error != nil {
			return 0, fmt.Errorf("failed to prune edits: %w", result.Error)
		}
		return result.RowsAffected, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.EditOperation{}).
		Where("document_id = ?", documentID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count edits: %w", err)
	}

	if count <= int64(keepCount) {
		return 0, nil
	}

	var cutoff models.EditOperation
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("applied_at ASC").
		Offset(int(count - int64(keepCount))).
		First(&cutoff).Error; err != nil {
		return 0, fmt.Errorf("failed to find prune cutoff: %w", err)
	}

	result := r.db.WithContext(ctx).
		Where("document_id = ? AND applied_at < ?", documentID, cutoff.Timestamp).
		Delete(&models.EditOperation{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune edits: %w", result.Error)
	}
	return result.RowsAffected, nil
}
