// Package inference orchestrates the full scoring pipeline: file intake,
// normalization, discriminator scoring, persistence, artifacts, and the
// append-only audit log.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"anomaly-detection-api/internal/domain"
	"anomaly-detection-api/internal/normalizer"
	"anomaly-detection-api/internal/repository"
	"anomaly-detection-api/internal/results"
	"anomaly-detection-api/internal/scoring"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrValidation marks client-side input problems.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound marks lookups for records that do not exist.
	ErrNotFound = errors.New("not found")
)

// Scorer is the model surface the orchestrator needs.
type Scorer interface {
	Load() error
	Loaded() bool
	PredictBatch(m *mat.Dense, threshold float64) (scoring.Result, error)
}

// Service wires the pipeline stages together.
type Service struct {
	uploads     repository.UploadRepository
	predictions repository.PredictionRepository
	summaries   repository.SummaryRepository
	logs        repository.InferenceLogRepository
	resultStore repository.ResultStore
	files       *results.Store
	norm        *normalizer.FeatureNormalizer
	engine      Scorer
	now         func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(
	uploads repository.UploadRepository,
	predictions repository.PredictionRepository,
	summaries repository.SummaryRepository,
	logs repository.InferenceLogRepository,
	resultStore repository.ResultStore,
	files *results.Store,
	norm *normalizer.FeatureNormalizer,
	engine Scorer,
	opts ...Option,
) *Service {
	service := &Service{
		uploads:     uploads,
		predictions: predictions,
		summaries:   summaries,
		logs:        logs,
		resultStore: resultStore,
		files:       files,
		norm:        norm,
		engine:      engine,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// UploadResponse describes a stored upload.
type UploadResponse struct {
	UploadID    uuid.UUID `json:"upload_id"`
	Filename    string    `json:"filename"`
	NumRows     int       `json:"num_rows"`
	NumFeatures int       `json:"num_features"`
}

// PredictResponse is the full outcome of one inference run.
type PredictResponse struct {
	UploadID          uuid.UUID `json:"upload_id"`
	Filename          string    `json:"filename"`
	TotalSamples      int       `json:"total"`
	NormalCount       int       `json:"normal_count"`
	AttackCount       int       `json:"attack_count"`
	AnomalyPercentage float64   `json:"anomaly_percentage"`
	Predictions       []int     `json:"predictions"`
	AnomalyScores     []float64 `json:"anomaly_scores"`
	DownloadFilename  string    `json:"download_filename"`
	LogID             uuid.UUID `json:"log_id"`
}

// ResultResponse bundles everything persisted for one upload.
type ResultResponse struct {
	Upload      domain.Upload            `json:"upload"`
	Predictions []domain.Prediction      `json:"predictions"`
	Summary     *domain.InferenceSummary `json:"summary,omitempty"`
}

// UploadWithSummary pairs an upload with its summary when one exists.
type UploadWithSummary struct {
	Upload  domain.Upload            `json:"upload"`
	Summary *domain.InferenceSummary `json:"summary,omitempty"`
}

// Upload validates and stores a capture file without scoring it. A payload
// that fails normalization leaves no upload record behind.
func (s *Service) Upload(ctx context.Context, filename string, payload []byte) (UploadResponse, error) {
	if len(payload) == 0 {
		return UploadResponse{}, fmt.Errorf("%w: file is empty", ErrValidation)
	}

	path, err := s.files.SaveUpload(filename, payload)
	if err != nil {
		if errors.Is(err, results.ErrInvalidFilename) {
			return UploadResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return UploadResponse{}, fmt.Errorf("store upload: %w", err)
	}

	_, rows, features, err := s.norm.Normalize(filename, payload)
	if err != nil {
		return UploadResponse{}, validationError(err)
	}

	upload := domain.NewUpload(filename, path, rows, features)
	created, err := s.uploads.Create(ctx, upload)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("persist upload: %w", err)
	}

	log.Printf("[inference] stored upload %s (%s: %d rows, %d features)", created.ID, filename, rows, features)
	return UploadResponse{
		UploadID:    created.ID,
		Filename:    created.Filename,
		NumRows:     created.NumRows,
		NumFeatures: created.NumFeatures,
	}, nil
}

// Predict runs the full pipeline over a fresh payload. Every attempt leaves
// exactly one audit log entry behind, success or failure.
func (s *Service) Predict(ctx context.Context, filename string, payload []byte, threshold float64) (PredictResponse, error) {
	if err := validateThreshold(threshold); err != nil {
		return PredictResponse{}, err
	}
	if len(payload) == 0 {
		err := fmt.Errorf("%w: file is empty", ErrValidation)
		s.logFailure(ctx, uuid.Nil, filename, threshold, err)
		return PredictResponse{}, err
	}

	path, err := s.files.SaveUpload(filename, payload)
	if err != nil {
		if errors.Is(err, results.ErrInvalidFilename) {
			err = fmt.Errorf("%w: %v", ErrValidation, err)
		}
		s.logFailure(ctx, uuid.Nil, filename, threshold, err)
		return PredictResponse{}, err
	}

	matrix, rows, features, err := s.norm.Normalize(filename, payload)
	if err != nil {
		err = validationError(err)
		s.logFailure(ctx, uuid.Nil, filename, threshold, err)
		return PredictResponse{}, err
	}

	upload := domain.NewUpload(filename, path, rows, features)
	created, err := s.uploads.Create(ctx, upload)
	if err != nil {
		err = fmt.Errorf("persist upload: %w", err)
		s.logFailure(ctx, uuid.Nil, filename, threshold, err)
		return PredictResponse{}, err
	}

	return s.score(ctx, created, matrix, threshold)
}

// PredictByID re-scores a previously stored upload from its saved file.
func (s *Service) PredictByID(ctx context.Context, uploadID uuid.UUID, threshold float64) (PredictResponse, error) {
	if err := validateThreshold(threshold); err != nil {
		return PredictResponse{}, err
	}

	upload, err := s.uploads.GetByID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = fmt.Errorf("%w: upload %s", ErrNotFound, uploadID)
		}
		// The upload row may not exist, so the audit entry carries no FK.
		s.logFailure(ctx, uuid.Nil, uploadID.String(), threshold, err)
		return PredictResponse{}, err
	}

	payload, err := s.files.ReadUpload(upload.FilePath)
	if err != nil {
		s.logFailure(ctx, upload.ID, upload.Filename, threshold, err)
		return PredictResponse{}, err
	}

	matrix, _, _, err := s.norm.Normalize(upload.Filename, payload)
	if err != nil {
		err = validationError(err)
		s.logFailure(ctx, upload.ID, upload.Filename, threshold, err)
		return PredictResponse{}, err
	}

	return s.score(ctx, upload, matrix, threshold)
}

// score is the shared back half of both predict paths: an upload row exists,
// so every failure from here is logged against it.
func (s *Service) score(ctx context.Context, upload domain.Upload, matrix *mat.Dense, threshold float64) (PredictResponse, error) {
	fail := func(cause error) (PredictResponse, error) {
		s.logFailure(ctx, upload.ID, upload.Filename, threshold, cause)
		if statusErr := s.uploads.UpdateStatus(ctx, upload.ID, domain.UploadStatusFailed); statusErr != nil {
			log.Printf("[inference] failed to mark upload %s failed: %v", upload.ID, statusErr)
		}
		return PredictResponse{}, cause
	}

	if !s.engine.Loaded() {
		if err := s.engine.Load(); err != nil {
			return fail(fmt.Errorf("load model: %w", err))
		}
	}

	result, err := s.engine.PredictBatch(matrix, threshold)
	if err != nil {
		return fail(fmt.Errorf("score batch: %w", err))
	}

	predictions := domain.NewPredictions(upload.ID, result.Scores, result.Verdicts, nil)
	summary := domain.NewInferenceSummary(
		upload.ID,
		result.TotalSamples,
		result.NormalCount,
		result.AnomalyCount,
		result.AnomalyPercentage,
		result.InferenceTimeMS,
	)
	if _, err := s.resultStore.StoreResults(ctx, predictions, summary); err != nil {
		if errors.Is(err, repository.ErrSummaryExists) {
			err = fmt.Errorf("%w: upload %s already has results", ErrValidation, upload.ID)
		}
		return fail(err)
	}

	downloadName, err := s.files.WriteAnnotated(upload.FilePath, result.Verdicts)
	if err != nil {
		return fail(fmt.Errorf("write annotated artifact: %w", err))
	}

	entry := domain.NewInferenceLogEntry(upload.ID, upload.Filename, domain.InferenceStatusSuccess)
	entry.TotalSamples = result.TotalSamples
	entry.NormalCount = result.NormalCount
	entry.AnomalyCount = result.AnomalyCount
	entry.AnomalyPercentage = result.AnomalyPercentage
	entry.Threshold = threshold
	entry.InferenceTimeMS = result.InferenceTimeMS
	if _, err := s.logs.Append(ctx, entry); err != nil {
		log.Printf("[inference] failed to append success log for upload %s: %v", upload.ID, err)
	}

	recordSuccess(result)
	log.Printf("[inference] scored upload %s: %d samples, %d anomalies (%.2f%%) at threshold %.3f",
		upload.ID, result.TotalSamples, result.AnomalyCount, result.AnomalyPercentage, threshold)

	return PredictResponse{
		UploadID:          upload.ID,
		Filename:          upload.Filename,
		TotalSamples:      result.TotalSamples,
		NormalCount:       result.NormalCount,
		AttackCount:       result.AnomalyCount,
		AnomalyPercentage: result.AnomalyPercentage,
		Predictions:       result.Verdicts,
		AnomalyScores:     result.Scores,
		DownloadFilename:  downloadName,
		LogID:             entry.ID,
	}, nil
}

// Result returns the stored upload, its ordered predictions, and the summary.
func (s *Service) Result(ctx context.Context, uploadID uuid.UUID) (ResultResponse, error) {
	upload, err := s.uploads.GetByID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ResultResponse{}, fmt.Errorf("%w: upload %s", ErrNotFound, uploadID)
		}
		return ResultResponse{}, err
	}

	predictions, err := s.predictions.ListByUpload(ctx, uploadID)
	if err != nil {
		return ResultResponse{}, err
	}

	response := ResultResponse{Upload: upload, Predictions: predictions}
	summary, err := s.summaries.GetByUpload(ctx, uploadID)
	switch {
	case err == nil:
		response.Summary = &summary
	case errors.Is(err, repository.ErrNotFound):
		// Upload stored but never scored; summary stays nil.
	default:
		return ResultResponse{}, err
	}
	return response, nil
}

// ListUploads returns every upload newest-first with summaries attached.
func (s *Service) ListUploads(ctx context.Context) ([]UploadWithSummary, error) {
	uploads, err := s.uploads.List(ctx)
	if err != nil {
		return nil, err
	}

	listed := make([]UploadWithSummary, 0, len(uploads))
	for _, upload := range uploads {
		item := UploadWithSummary{Upload: upload}
		summary, err := s.summaries.GetByUpload(ctx, upload.ID)
		switch {
		case err == nil:
			item.Summary = &summary
		case errors.Is(err, repository.ErrNotFound):
		default:
			return nil, err
		}
		listed = append(listed, item)
	}
	return listed, nil
}

// OpenDownload serves an annotated artifact by bare file name.
func (s *Service) OpenDownload(filename string) (*os.File, error) {
	file, err := s.files.Open(filename)
	if err != nil {
		if errors.Is(err, results.ErrInvalidFilename) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return file, nil
}

// Logs lists audit entries newest-first.
func (s *Service) Logs(ctx context.Context, limit, offset int) ([]domain.InferenceLogEntry, error) {
	return s.logs.List(ctx, nil, limit, offset)
}

// LogsForUpload lists the audit entries of one upload.
func (s *Service) LogsForUpload(ctx context.Context, uploadID uuid.UUID, limit, offset int) ([]domain.InferenceLogEntry, error) {
	return s.logs.List(ctx, &uploadID, limit, offset)
}

// Statistics aggregates the audit log.
func (s *Service) Statistics(ctx context.Context) (domain.LogStatistics, error) {
	return s.logs.Statistics(ctx)
}

// UpdateLogNotes attaches a free-text note to one audit entry.
func (s *Service) UpdateLogNotes(ctx context.Context, logID uuid.UUID, notes string) (domain.InferenceLogEntry, error) {
	if err := s.logs.UpdateNotes(ctx, logID, notes); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.InferenceLogEntry{}, fmt.Errorf("%w: log %s", ErrNotFound, logID)
		}
		return domain.InferenceLogEntry{}, err
	}
	return s.logs.GetByID(ctx, logID)
}

// DeleteOldLogs removes audit entries older than the retention window.
func (s *Service) DeleteOldLogs(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: retention days must be positive", ErrValidation)
	}
	deleted, err := s.logs.DeleteOlderThan(ctx, days)
	if err != nil {
		return 0, err
	}
	log.Printf("[inference] pruned %d audit entries older than %d days", deleted, days)
	return deleted, nil
}

// Healthy reports whether the model weights are resident.
func (s *Service) Healthy() bool {
	return s.engine.Loaded()
}

// logFailure writes the mandatory error audit entry for one failed attempt.
// A uuid.Nil upload id marks failures that happened before an upload row
// existed. Log-write failures are reported, never raised.
func (s *Service) logFailure(ctx context.Context, uploadID uuid.UUID, filename string, threshold float64, cause error) {
	entry := domain.NewInferenceLogEntry(uploadID, filename, domain.InferenceStatusError)
	message := cause.Error()
	entry.ErrorMessage = &message
	entry.Threshold = threshold
	if _, err := s.logs.Append(ctx, entry); err != nil {
		log.Printf("[inference] failed to record error log: %v (original error: %v)", err, cause)
	}
	recordFailure()
}

func validateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: threshold %v outside [0,1]", ErrValidation, threshold)
	}
	return nil
}

// validationError tags normalization failures as client errors; anything else
// passes through unchanged.
func validationError(err error) error {
	switch {
	case errors.Is(err, normalizer.ErrUnsupportedFormat),
		errors.Is(err, normalizer.ErrNotTabular),
		errors.Is(err, normalizer.ErrNoNumericColumns):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return err
	}
}
