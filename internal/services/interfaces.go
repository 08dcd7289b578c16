package services

import (
	"context"

	"collabd/internal/models"
)

// Interfaces live with their consumer. The archiver only needs to write edits.

// EditRepository is the durable store the archiver writes accepted edits to.
type EditRepository interface {
	StoreEdit(ctx context.Context, op *models.EditOperation) error
}
