package repository

import (
	"context"

	"github.com/rpattn/tradeboard/internal/domain"

	"github.com/google/uuid"
)

// UploadLogRepository defines the interface for upload audit log operations
type UploadLogRepository interface {
	Record(ctx context.Context, entry domain.UploadLogEntry) error
	List(ctx context.Context, sessionID uuid.UUID, limit int, offset int) ([]domain.UploadLogEntry, error)
}
