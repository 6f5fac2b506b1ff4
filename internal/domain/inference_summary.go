package domain

import (
	"time"

	"github.com/google/uuid"
)

// InferenceSummary aggregates one inference run over an upload.
// At most one summary exists per upload; NormalCount+AnomalyCount
// always equals TotalSamples.
type InferenceSummary struct {
	ID                uuid.UUID `json:"summary_id"`
	UploadID          uuid.UUID `json:"upload_id"`
	TotalSamples      int       `json:"total_samples"`
	NormalCount       int       `json:"normal_count"`
	AnomalyCount      int       `json:"anomaly_count"`
	AnomalyPercentage float64   `json:"anomaly_percentage"`
	InferenceTimeMS   float64   `json:"inference_time_ms"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewInferenceSummary stamps identity and creation time on batch statistics.
func NewInferenceSummary(uploadID uuid.UUID, totalSamples, normalCount, anomalyCount int, anomalyPercentage, inferenceTimeMS float64) InferenceSummary {
	return InferenceSummary{
		ID:                uuid.New(),
		UploadID:          uploadID,
		TotalSamples:      totalSamples,
		NormalCount:       normalCount,
		AnomalyCount:      anomalyCount,
		AnomalyPercentage: anomalyPercentage,
		InferenceTimeMS:   inferenceTimeMS,
		Status:            "completed",
		CreatedAt:         time.Now(),
	}
}
