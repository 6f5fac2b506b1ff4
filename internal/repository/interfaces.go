package repository

import (
	"context"
	"errors"

	"anomaly-detection-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrSummaryExists is returned when a second summary is stored for the
	// same upload. One summary per upload is enforced by the schema; callers
	// must treat a duplicate as a programming error, not overwrite.
	ErrSummaryExists = errors.New("summary already exists for upload")
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so repositories
// can run standalone or inside a shared transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// UploadRepository defines the interface for upload record operations
type UploadRepository interface {
	Create(ctx context.Context, upload domain.Upload) (domain.Upload, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Upload, error)
	List(ctx context.Context) ([]domain.Upload, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.UploadStatus) error
}

// PredictionRepository defines the interface for per-row prediction operations
type PredictionRepository interface {
	CreateBatch(ctx context.Context, predictions []domain.Prediction) error
	ListByUpload(ctx context.Context, uploadID uuid.UUID) ([]domain.Prediction, error)
}

// SummaryRepository defines the interface for inference summary operations
type SummaryRepository interface {
	Create(ctx context.Context, summary domain.InferenceSummary) (domain.InferenceSummary, error)
	GetByUpload(ctx context.Context, uploadID uuid.UUID) (domain.InferenceSummary, error)
}

// InferenceLogRepository defines the interface for the append-only audit log
type InferenceLogRepository interface {
	Append(ctx context.Context, entry domain.InferenceLogEntry) (domain.InferenceLogEntry, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.InferenceLogEntry, error)
	List(ctx context.Context, uploadID *uuid.UUID, limit, offset int) ([]domain.InferenceLogEntry, error)
	Statistics(ctx context.Context) (domain.LogStatistics, error)
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}
