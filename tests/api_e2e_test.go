package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"anomaly-detection-api/internal/db"
	"anomaly-detection-api/internal/inference"
	"anomaly-detection-api/internal/normalizer"
	"anomaly-detection-api/internal/repository"
	"anomaly-detection-api/internal/results"
	"anomaly-detection-api/internal/scoring"

	"github.com/google/uuid"
)

// testEnv wires the full stack against a real Postgres instance. The suite
// is skipped unless ADAPI_TEST_DB_HOST is set.
type testEnv struct {
	conn    *db.Connection
	handler http.Handler
	logs    repository.InferenceLogRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	host := os.Getenv("ADAPI_TEST_DB_HOST")
	if host == "" {
		t.Skip("ADAPI_TEST_DB_HOST not set; skipping end-to-end suite")
	}

	cfg := db.DefaultConfig()
	cfg.Host = host
	if port := os.Getenv("ADAPI_TEST_DB_PORT"); port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			t.Fatalf("invalid ADAPI_TEST_DB_PORT: %v", err)
		}
		cfg.Port = parsed
	}
	if user := os.Getenv("ADAPI_TEST_DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("ADAPI_TEST_DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("ADAPI_TEST_DB_NAME"); name != "" {
		cfg.DBName = name
	}

	ctx := context.Background()
	conn, err := db.NewConnection(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(conn.Close)

	if err := db.RunMigrations(cfg); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	dir := t.TempDir()
	modelCfg := scoring.Config{
		GeneratorPath:     filepath.Join(dir, "netG.json"),
		DiscriminatorPath: filepath.Join(dir, "netD.json"),
		InputSize:         116,
		ISize:             32,
		NZ:                100,
		NGF:               64,
		ExtraLayers:       0,
	}
	writeZeroWeights(t, modelCfg, 2) // sigmoid(2) ~ 0.88: everything normal at 0.5

	logRepo := repository.NewInferenceLogRepository(conn.Pool)
	service := inference.NewService(
		repository.NewUploadRepository(conn.Pool),
		repository.NewPredictionRepository(conn.Pool),
		repository.NewSummaryRepository(conn.Pool),
		logRepo,
		repository.NewResultStore(conn),
		results.NewStore(
			results.WithUploadDirectory(filepath.Join(dir, "uploads")),
			results.WithResultsDirectory(filepath.Join(dir, "results")),
		),
		normalizer.New(),
		scoring.NewEngine(modelCfg),
	)

	return &testEnv{
		conn:    conn,
		handler: inference.NewHTTPHandler(service),
		logs:    logRepo,
	}
}

// writeZeroWeights exports zero-weight artifacts whose discriminator head
// carries a fixed bias, making every score sigmoid(bias).
func writeZeroWeights(t *testing.T, cfg scoring.Config, finalBias float64) {
	t.Helper()

	type layer struct {
		Rows    int       `json:"rows"`
		Cols    int       `json:"cols"`
		Weights []float64 `json:"weights"`
		Bias    []float64 `json:"bias"`
	}
	zero := func(rows, cols int) layer {
		return layer{Rows: rows, Cols: cols, Weights: make([]float64, rows*cols), Bias: make([]float64, rows)}
	}

	head := zero(1, cfg.NZ)
	head.Bias[0] = finalBias
	disc := map[string][]layer{"layers": {
		zero(cfg.ISize, cfg.InputSize),
		zero(cfg.NZ, cfg.ISize),
		head,
	}}
	gen := map[string][]layer{"layers": {
		zero(cfg.ISize, cfg.InputSize),
		zero(cfg.NZ, cfg.ISize),
		zero(cfg.ISize, cfg.NZ),
		zero(cfg.InputSize, cfg.ISize),
	}}

	for path, artifact := range map[string]map[string][]layer{
		cfg.DiscriminatorPath: disc,
		cfg.GeneratorPath:     gen,
	} {
		payload, err := json.Marshal(artifact)
		if err != nil {
			t.Fatalf("failed to marshal weights: %v", err)
		}
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			t.Fatalf("failed to write weights: %v", err)
		}
	}
}

func (e *testEnv) postFile(t *testing.T, url, filename, contents string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(contents)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

const e2eCSV = "duration,src_bytes,dst_bytes\n1,100,200\n2,150,50\n3,120,80\n"

func TestPredictPersistsAcrossTables(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postFile(t, "/api/inference/predict", "e2e.csv", e2eCSV, map[string]string{"threshold": "0.5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("predict: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var predicted inference.PredictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &predicted); err != nil {
		t.Fatalf("failed to decode predict response: %v", err)
	}
	if predicted.TotalSamples != 3 || predicted.NormalCount != 3 {
		t.Fatalf("unexpected prediction counts: %+v", predicted)
	}

	// Stored predictions are ordered and gap-free.
	predictions, err := repository.NewPredictionRepository(env.conn.Pool).ListByUpload(context.Background(), predicted.UploadID)
	if err != nil {
		t.Fatalf("failed to list predictions: %v", err)
	}
	if len(predictions) != 3 {
		t.Fatalf("expected 3 stored predictions, got %d", len(predictions))
	}
	for i, p := range predictions {
		if p.RowIndex != i {
			t.Fatalf("expected gap-free row indexes, got %d at position %d", p.RowIndex, i)
		}
	}

	// Exactly one summary; a second run against the same upload is rejected.
	summaryRepo := repository.NewSummaryRepository(env.conn.Pool)
	summary, err := summaryRepo.GetByUpload(context.Background(), predicted.UploadID)
	if err != nil {
		t.Fatalf("failed to load summary: %v", err)
	}
	if summary.NormalCount+summary.AnomalyCount != summary.TotalSamples {
		t.Fatalf("summary counts inconsistent: %+v", summary)
	}
	if _, err := summaryRepo.Create(context.Background(), summary); !errors.Is(err, repository.ErrSummaryExists) {
		t.Fatalf("expected ErrSummaryExists, got %v", err)
	}

	// The audit entry for the run is retrievable.
	entry, err := env.logs.GetByID(context.Background(), predicted.LogID)
	if err != nil {
		t.Fatalf("failed to load audit entry: %v", err)
	}
	if entry.UploadID != predicted.UploadID || entry.Threshold != 0.5 {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
}

func TestFailedAttemptIsAudited(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postFile(t, "/api/inference/predict", "broken.csv", "name,label\nalice,normal\n", map[string]string{"threshold": "0.5"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric input, got %d: %s", rec.Code, rec.Body.String())
	}

	logs, err := env.logs.List(context.Background(), nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list logs: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Filename == "broken.csv" && entry.UploadID == uuid.Nil && entry.ErrorMessage != nil {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an error audit entry for the failed attempt")
	}
}

func TestStatisticsCoverSuccessRowsOnly(t *testing.T) {
	env := newTestEnv(t)

	before, err := env.logs.Statistics(context.Background())
	if err != nil {
		t.Fatalf("failed to load statistics: %v", err)
	}

	rec := env.postFile(t, "/api/inference/predict", "stats.csv", e2eCSV, map[string]string{"threshold": "0.5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("predict: expected 200, got %d", rec.Code)
	}
	rec = env.postFile(t, "/api/inference/predict", "stats-broken.csv", "x\n", map[string]string{"threshold": "0.5"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for broken input, got %d", rec.Code)
	}

	after, err := env.logs.Statistics(context.Background())
	if err != nil {
		t.Fatalf("failed to load statistics: %v", err)
	}
	if after.SuccessfulInferences != before.SuccessfulInferences+1 {
		t.Fatalf("expected one new success, before=%+v after=%+v", before, after)
	}
	if after.FailedInferences != before.FailedInferences+1 {
		t.Fatalf("expected one new failure, before=%+v after=%+v", before, after)
	}
	if after.TotalSamplesProcessed != before.TotalSamplesProcessed+3 {
		t.Fatalf("failed attempts must not count samples, before=%+v after=%+v", before, after)
	}
}
