package domain

import (
	"time"

	"github.com/google/uuid"
)

// InferenceStatus marks the outcome of one inference attempt.
type InferenceStatus string

const (
	InferenceStatusSuccess InferenceStatus = "success"
	InferenceStatusError   InferenceStatus = "error"
)

// InferenceLogEntry is the append-only audit record for one inference
// attempt, success or failure. UploadID is uuid.Nil when the attempt
// failed before an upload record existed. Entries are never mutated
// after creation except through an explicit notes update.
type InferenceLogEntry struct {
	ID                uuid.UUID       `json:"log_id"`
	UploadID          uuid.UUID       `json:"upload_id"`
	Filename          string          `json:"csv_filename"`
	TotalSamples      int             `json:"total_samples"`
	NormalCount       int             `json:"normal_count"`
	AnomalyCount      int             `json:"anomaly_count"`
	AnomalyPercentage float64         `json:"anomaly_percentage"`
	Threshold         float64         `json:"threshold"`
	InferenceTimeMS   float64         `json:"inference_time_ms"`
	Status            InferenceStatus `json:"model_status"`
	ErrorMessage      *string         `json:"error_message,omitempty"`
	Notes             *string         `json:"user_notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NewInferenceLogEntry stamps identity and creation time on a log entry.
func NewInferenceLogEntry(uploadID uuid.UUID, filename string, status InferenceStatus) InferenceLogEntry {
	return InferenceLogEntry{
		ID:        uuid.New(),
		UploadID:  uploadID,
		Filename:  filename,
		Status:    status,
		CreatedAt: time.Now(),
	}
}

// LogStatistics aggregates the audit log. Sample and anomaly totals and
// the averages cover successful attempts only.
type LogStatistics struct {
	TotalLogs                int     `json:"total_logs"`
	SuccessfulInferences     int     `json:"successful_inferences"`
	FailedInferences         int     `json:"failed_inferences"`
	TotalSamplesProcessed    int64   `json:"total_samples_processed"`
	TotalAnomaliesDetected   int64   `json:"total_anomalies_detected"`
	AverageAnomalyPercentage float64 `json:"average_anomaly_percentage"`
	AverageInferenceTimeMS   float64 `json:"average_inference_time_ms"`
}
