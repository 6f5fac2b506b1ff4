package domain

import (
	"time"

	"github.com/google/uuid"
)

// Prediction is the verdict for a single row of an upload.
// AnomalyScore is the raw discriminator output: higher means the row
// looks MORE normal; IsAnomaly is 1 when the score fell below the
// threshold used for the run.
type Prediction struct {
	ID           uuid.UUID `json:"prediction_id"`
	UploadID     uuid.UUID `json:"upload_id"`
	RowIndex     int       `json:"row_index"`
	AnomalyScore float64   `json:"anomaly_score"`
	IsAnomaly    int       `json:"is_anomaly"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewPredictions builds per-row prediction records from a batch result,
// assigning gap-free row indexes 0..len(scores)-1 in input order.
func NewPredictions(uploadID uuid.UUID, scores []float64, verdicts []int, confidences []float64) []Prediction {
	now := time.Now()
	predictions := make([]Prediction, len(scores))
	for i := range scores {
		confidence := scores[i]
		if confidences != nil {
			confidence = confidences[i]
		}
		predictions[i] = Prediction{
			ID:           uuid.New(),
			UploadID:     uploadID,
			RowIndex:     i,
			AnomalyScore: scores[i],
			IsAnomaly:    verdicts[i],
			Confidence:   confidence,
			CreatedAt:    now,
		}
	}
	return predictions
}
