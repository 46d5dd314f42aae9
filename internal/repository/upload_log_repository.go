package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/tradeboard/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// querier is the subset of pgxpool.Pool used by repositories.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type uploadLogRepository struct {
	pool querier
}

// NewUploadLogRepository wires a repository backed by a pgx pool.
func NewUploadLogRepository(pool querier) UploadLogRepository {
	return &uploadLogRepository{pool: pool}
}

func (r *uploadLogRepository) Record(ctx context.Context, entry domain.UploadLogEntry) error {
	if r.pool == nil {
		return fmt.Errorf("upload log repository not initialized")
	}

	var rowNumber any
	if entry.RowNumber != nil {
		rowNumber = *entry.RowNumber
	}
	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO upload_logs (id, session_id, file_name, sheet_name, row_number, column_name, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id,
		entry.SessionID,
		entry.FileName,
		entry.SheetName,
		rowNumber,
		entry.Column,
		entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record upload log: %w", err)
	}

	return nil
}

func (r *uploadLogRepository) List(ctx context.Context, sessionID uuid.UUID, limit int, offset int) ([]domain.UploadLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("upload log repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, session_id, file_name, sheet_name, row_number, column_name, error_message, created_at
		 FROM upload_logs
		 WHERE session_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		sessionID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.UploadLogEntry{}
	for rows.Next() {
		var (
			entry     domain.UploadLogEntry
			rowNumber pgtype.Int4
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.FileName,
			&entry.SheetName,
			&rowNumber,
			&entry.Column,
			&entry.ErrorMessage,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan upload log: %w", scanErr)
		}

		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate upload logs: %w", rowsErr)
	}

	return logs, nil
}
