package domain

import (
	"time"

	"github.com/google/uuid"
)

// UploadLogEntry captures upload outcomes and cell level issues found while loading.
type UploadLogEntry struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	FileName     string    `json:"file_name"`
	SheetName    string    `json:"sheet_name"`
	RowNumber    *int      `json:"row_number,omitempty"`
	Column       string    `json:"column,omitempty"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
