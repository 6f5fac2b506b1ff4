package repository

import (
	"context"

	"anomaly-detection-api/internal/db"
	"anomaly-detection-api/internal/domain"

	"github.com/jackc/pgx/v5"
)

// ResultStore persists the full outcome of one inference run.
type ResultStore interface {
	StoreResults(ctx context.Context, predictions []domain.Prediction, summary domain.InferenceSummary) (domain.InferenceSummary, error)
}

type txResultStore struct {
	conn *db.Connection
}

// NewResultStore wires a result store over the shared connection pool.
func NewResultStore(conn *db.Connection) ResultStore {
	return &txResultStore{conn: conn}
}

// StoreResults writes per-row predictions and the run summary inside one
// transaction. Either both land or neither does, so a partially stored run
// can never be observed.
func (s *txResultStore) StoreResults(ctx context.Context, predictions []domain.Prediction, summary domain.InferenceSummary) (domain.InferenceSummary, error) {
	var stored domain.InferenceSummary
	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := NewPredictionRepository(tx).CreateBatch(ctx, predictions); err != nil {
			return err
		}
		created, err := NewSummaryRepository(tx).Create(ctx, summary)
		if err != nil {
			return err
		}
		stored = created
		return nil
	})
	if err != nil {
		return domain.InferenceSummary{}, err
	}
	return stored, nil
}
