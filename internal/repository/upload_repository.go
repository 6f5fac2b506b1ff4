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

type uploadRepository struct {
	db Querier
}

// NewUploadRepository wires a repository backed by pgx.
func NewUploadRepository(db Querier) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) Create(ctx context.Context, upload domain.Upload) (domain.Upload, error) {
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO uploads (upload_id, filename, file_path, num_rows, num_features, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		upload.ID,
		upload.Filename,
		upload.FilePath,
		upload.NumRows,
		upload.NumFeatures,
		string(upload.Status),
		upload.CreatedAt,
	)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("failed to create upload: %w", err)
	}
	return upload, nil
}

func (r *uploadRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Upload, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT upload_id, filename, file_path, num_rows, num_features, status, created_at
		 FROM uploads
		 WHERE upload_id = $1`,
		id,
	)

	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Upload{}, fmt.Errorf("upload %s: %w", id, ErrNotFound)
		}
		return domain.Upload{}, fmt.Errorf("failed to get upload: %w", err)
	}
	return upload, nil
}

func (r *uploadRepository) List(ctx context.Context) ([]domain.Upload, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT upload_id, filename, file_path, num_rows, num_features, status, created_at
		 FROM uploads
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	uploads := []domain.Upload{}
	for rows.Next() {
		upload, scanErr := scanUpload(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", scanErr)
		}
		uploads = append(uploads, upload)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate uploads: %w", rowsErr)
	}
	return uploads, nil
}

func (r *uploadRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.UploadStatus) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE uploads SET status = $2 WHERE upload_id = $1`,
		id,
		string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upload %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanUpload(row pgx.Row) (domain.Upload, error) {
	var (
		upload    domain.Upload
		status    string
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&upload.ID,
		&upload.Filename,
		&upload.FilePath,
		&upload.NumRows,
		&upload.NumFeatures,
		&status,
		&createdAt,
	); err != nil {
		return domain.Upload{}, err
	}
	upload.Status = domain.UploadStatus(status)
	if createdAt.Valid {
		upload.CreatedAt = createdAt.Time
	}
	return upload, nil
}
