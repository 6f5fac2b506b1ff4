package repository

import (
	"context"
	"fmt"

	"anomaly-detection-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type predictionRepository struct {
	db Querier
}

// NewPredictionRepository wires a repository backed by pgx.
func NewPredictionRepository(db Querier) PredictionRepository {
	return &predictionRepository{db: db}
}

// CreateBatch bulk-inserts one prediction per sample. Input order is
// preserved: callers assign row_index 0..N-1 before handing rows over.
func (r *predictionRepository) CreateBatch(ctx context.Context, predictions []domain.Prediction) error {
	if len(predictions) == 0 {
		return nil
	}

	copied, err := r.db.CopyFrom(
		ctx,
		pgx.Identifier{"predictions"},
		[]string{"prediction_id", "upload_id", "row_index", "anomaly_score", "is_anomaly", "confidence", "created_at"},
		pgx.CopyFromSlice(len(predictions), func(i int) ([]any, error) {
			p := predictions[i]
			return []any{p.ID, p.UploadID, p.RowIndex, p.AnomalyScore, p.IsAnomaly, p.Confidence, p.CreatedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to store predictions: %w", err)
	}
	if copied != int64(len(predictions)) {
		return fmt.Errorf("stored %d of %d predictions", copied, len(predictions))
	}
	return nil
}

func (r *predictionRepository) ListByUpload(ctx context.Context, uploadID uuid.UUID) ([]domain.Prediction, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT prediction_id, upload_id, row_index, anomaly_score, is_anomaly, confidence, created_at
		 FROM predictions
		 WHERE upload_id = $1
		 ORDER BY row_index`,
		uploadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	predictions := []domain.Prediction{}
	for rows.Next() {
		var (
			prediction domain.Prediction
			createdAt  pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&prediction.ID,
			&prediction.UploadID,
			&prediction.RowIndex,
			&prediction.AnomalyScore,
			&prediction.IsAnomaly,
			&prediction.Confidence,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", scanErr)
		}
		if createdAt.Valid {
			prediction.CreatedAt = createdAt.Time
		}
		predictions = append(predictions, prediction)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", rowsErr)
	}
	return predictions, nil
}
