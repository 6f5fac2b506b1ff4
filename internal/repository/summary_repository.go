package repository

import (
	"context"
	"errors"
	"fmt"

	"anomaly-detection-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const uniqueViolationCode = "23505"

type summaryRepository struct {
	db Querier
}

// NewSummaryRepository wires a repository backed by pgx.
func NewSummaryRepository(db Querier) SummaryRepository {
	return &summaryRepository{db: db}
}

// Create stores the single summary for an upload. A second summary for the
// same upload is rejected with ErrSummaryExists rather than overwritten.
func (r *summaryRepository) Create(ctx context.Context, summary domain.InferenceSummary) (domain.InferenceSummary, error) {
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO inference_summary
		     (summary_id, upload_id, total_samples, normal_count, anomaly_count, anomaly_percentage, inference_time_ms, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		summary.ID,
		summary.UploadID,
		summary.TotalSamples,
		summary.NormalCount,
		summary.AnomalyCount,
		summary.AnomalyPercentage,
		summary.InferenceTimeMS,
		summary.Status,
		summary.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.InferenceSummary{}, fmt.Errorf("upload %s: %w", summary.UploadID, ErrSummaryExists)
		}
		return domain.InferenceSummary{}, fmt.Errorf("failed to store summary: %w", err)
	}
	return summary, nil
}

func (r *summaryRepository) GetByUpload(ctx context.Context, uploadID uuid.UUID) (domain.InferenceSummary, error) {
	var (
		summary   domain.InferenceSummary
		createdAt pgtype.Timestamptz
	)
	err := r.db.QueryRow(
		ctx,
		`SELECT summary_id, upload_id, total_samples, normal_count, anomaly_count, anomaly_percentage, inference_time_ms, status, created_at
		 FROM inference_summary
		 WHERE upload_id = $1`,
		uploadID,
	).Scan(
		&summary.ID,
		&summary.UploadID,
		&summary.TotalSamples,
		&summary.NormalCount,
		&summary.AnomalyCount,
		&summary.AnomalyPercentage,
		&summary.InferenceTimeMS,
		&summary.Status,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.InferenceSummary{}, fmt.Errorf("summary for upload %s: %w", uploadID, ErrNotFound)
		}
		return domain.InferenceSummary{}, fmt.Errorf("failed to get summary: %w", err)
	}
	if createdAt.Valid {
		summary.CreatedAt = createdAt.Time
	}
	return summary, nil
}
