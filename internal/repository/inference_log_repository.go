package repository

import (
	"context"
	"errors"
	"fmt"

	"anomaly-detection-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type inferenceLogRepository struct {
	db Querier
}

// NewInferenceLogRepository wires a repository backed by pgx.
func NewInferenceLogRepository(db Querier) InferenceLogRepository {
	return &inferenceLogRepository{db: db}
}

// Append records one inference attempt. A uuid.Nil upload id is stored as
// NULL so attempts that failed before an upload existed are still audited.
func (r *inferenceLogRepository) Append(ctx context.Context, entry domain.InferenceLogEntry) (domain.InferenceLogEntry, error) {
	var uploadID any
	if entry.UploadID != uuid.Nil {
		uploadID = entry.UploadID
	}

	_, err := r.db.Exec(
		ctx,
		`INSERT INTO inference_logs
		     (log_id, upload_id, csv_filename, total_samples, normal_count, anomaly_count,
		      anomaly_percentage, threshold, inference_time_ms, model_status, error_message, user_notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID,
		uploadID,
		entry.Filename,
		entry.TotalSamples,
		entry.NormalCount,
		entry.AnomalyCount,
		entry.AnomalyPercentage,
		entry.Threshold,
		entry.InferenceTimeMS,
		string(entry.Status),
		entry.ErrorMessage,
		entry.Notes,
		entry.CreatedAt,
	)
	if err != nil {
		return domain.InferenceLogEntry{}, fmt.Errorf("failed to append inference log: %w", err)
	}
	return entry, nil
}

func (r *inferenceLogRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.InferenceLogEntry, error) {
	row := r.db.QueryRow(
		ctx,
		logSelectColumns+` FROM inference_logs WHERE log_id = $1`,
		id,
	)
	entry, err := scanLogEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.InferenceLogEntry{}, fmt.Errorf("log %s: %w", id, ErrNotFound)
		}
		return domain.InferenceLogEntry{}, fmt.Errorf("failed to get inference log: %w", err)
	}
	return entry, nil
}

func (r *inferenceLogRepository) List(ctx context.Context, uploadID *uuid.UUID, limit, offset int) ([]domain.InferenceLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := logSelectColumns + ` FROM inference_logs`
	args := []any{}
	if uploadID != nil {
		query += ` WHERE upload_id = $1`
		args = append(args, *uploadID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inference logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.InferenceLogEntry{}
	for rows.Next() {
		entry, scanErr := scanLogEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan inference log: %w", scanErr)
		}
		logs = append(logs, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate inference logs: %w", rowsErr)
	}
	return logs, nil
}

// Statistics aggregates the audit log; sums and averages cover
// successful attempts only.
func (r *inferenceLogRepository) Statistics(ctx context.Context) (domain.LogStatistics, error) {
	var stats domain.LogStatistics
	err := r.db.QueryRow(
		ctx,
		`SELECT
		     COUNT(*),
		     COUNT(*) FILTER (WHERE model_status = 'error'),
		     COALESCE(SUM(total_samples) FILTER (WHERE model_status = 'success'), 0),
		     COALESCE(SUM(anomaly_count) FILTER (WHERE model_status = 'success'), 0),
		     COALESCE(AVG(anomaly_percentage) FILTER (WHERE model_status = 'success'), 0),
		     COALESCE(AVG(inference_time_ms) FILTER (WHERE model_status = 'success'), 0)
		 FROM inference_logs`,
	).Scan(
		&stats.TotalLogs,
		&stats.FailedInferences,
		&stats.TotalSamplesProcessed,
		&stats.TotalAnomaliesDetected,
		&stats.AverageAnomalyPercentage,
		&stats.AverageInferenceTimeMS,
	)
	if err != nil {
		return domain.LogStatistics{}, fmt.Errorf("failed to aggregate inference logs: %w", err)
	}
	stats.SuccessfulInferences = stats.TotalLogs - stats.FailedInferences
	return stats, nil
}

func (r *inferenceLogRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE inference_logs SET user_notes = $2 WHERE log_id = $1`,
		id,
		notes,
	)
	if err != nil {
		return fmt.Errorf("failed to update log notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("log %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *inferenceLogRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", days)
	}
	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM inference_logs WHERE created_at < now() - make_interval(days => $1)`,
		days,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

const logSelectColumns = `SELECT log_id, upload_id, csv_filename, total_samples, normal_count, anomaly_count,
    anomaly_percentage, threshold, inference_time_ms, model_status, error_message, user_notes, created_at`

func scanLogEntry(row pgx.Row) (domain.InferenceLogEntry, error) {
	var (
		entry        domain.InferenceLogEntry
		uploadID     pgtype.UUID
		status       string
		errorMessage pgtype.Text
		notes        pgtype.Text
		createdAt    pgtype.Timestamptz
	)
	if err := row.Scan(
		&entry.ID,
		&uploadID,
		&entry.Filename,
		&entry.TotalSamples,
		&entry.NormalCount,
		&entry.AnomalyCount,
		&entry.AnomalyPercentage,
		&entry.Threshold,
		&entry.InferenceTimeMS,
		&status,
		&errorMessage,
		&notes,
		&createdAt,
	); err != nil {
		return domain.InferenceLogEntry{}, err
	}
	entry.Status = domain.InferenceStatus(status)
	if uploadID.Valid {
		entry.UploadID = uuid.UUID(uploadID.Bytes)
	}
	if errorMessage.Valid {
		value := errorMessage.String
		entry.ErrorMessage = &value
	}
	if notes.Valid {
		value := notes.String
		entry.Notes = &value
	}
	if createdAt.Valid {
		entry.CreatedAt = createdAt.Time
	}
	return entry, nil
}
