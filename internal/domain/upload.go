package domain

import (
	"time"

	"github.com/google/uuid"
)

// UploadStatus tracks the lifecycle of an ingested file.
type UploadStatus string

const (
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusFailed    UploadStatus = "failed"
)

// Upload represents one ingested tabular file and its metadata.
// Immutable after creation except for Status.
type Upload struct {
	ID          uuid.UUID    `json:"upload_id"`
	Filename    string       `json:"filename"`
	FilePath    string       `json:"file_path"`
	NumRows     int          `json:"num_rows"`
	NumFeatures int          `json:"num_features"`
	Status      UploadStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewUpload creates an upload record for a file that has been saved to disk.
func NewUpload(filename, filePath string, numRows, numFeatures int) Upload {
	return Upload{
		ID:          uuid.New(),
		Filename:    filename,
		FilePath:    filePath,
		NumRows:     numRows,
		NumFeatures: numFeatures,
		Status:      UploadStatusCompleted,
		CreatedAt:   time.Now(),
	}
}
