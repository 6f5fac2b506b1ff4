// Package results manages uploaded capture files and the annotated result
// artifacts produced by an inference run.
package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"anomaly-detection-api/internal/normalizer"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidFilename is returned before any filesystem access when a download
// name could escape the results directory.
var ErrInvalidFilename = errors.New("invalid filename")

// Status labels prepended to each row of an annotated artifact.
const (
	statusAttack = "ATTACK"
	statusNormal = "NORMAL"
)

// Store owns the upload and results directories.
type Store struct {
	uploadDir  string
	resultsDir string
}

type Option func(*Store)

func WithUploadDirectory(dir string) Option {
	return func(s *Store) {
		if strings.TrimSpace(dir) != "" {
			s.uploadDir = filepath.Clean(dir)
		}
	}
}

func WithResultsDirectory(dir string) Option {
	return func(s *Store) {
		if strings.TrimSpace(dir) != "" {
			s.resultsDir = filepath.Clean(dir)
		}
	}
}

func NewStore(opts ...Option) *Store {
	store := &Store{
		uploadDir:  filepath.Join(os.TempDir(), "anomaly-api-uploads"),
		resultsDir: filepath.Join(os.TempDir(), "anomaly-api-results"),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// SaveUpload writes the uploaded payload under its sanitized base name and
// returns the stored path. A re-upload of the same name overwrites the
// previous file; the upload record keeps the authoritative path.
func (s *Store) SaveUpload(filename string, payload []byte) (string, error) {
	base, err := sanitizeName(filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure upload directory: %w", err)
	}

	path := filepath.Join(s.uploadDir, base)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

// ReadUpload loads a stored upload back for re-scoring.
func (s *Store) ReadUpload(path string) ([]byte, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stored upload: %w", err)
	}
	return payload, nil
}

// WriteAnnotated re-reads the original upload, prepends a prediction_status
// column (ATTACK or NORMAL per verdict), and writes <stem>_results<ext> into
// the results directory. It returns the artifact's file name.
func (s *Store) WriteAnnotated(originalPath string, verdicts []int) (string, error) {
	payload, err := os.ReadFile(originalPath)
	if err != nil {
		return "", fmt.Errorf("read original upload: %w", err)
	}

	base := filepath.Base(originalPath)
	table, err := normalizer.ReadTable(base, payload)
	if err != nil {
		return "", fmt.Errorf("parse original upload: %w", err)
	}
	if len(table.Rows) != len(verdicts) {
		return "", fmt.Errorf("verdict count %d does not match %d data rows", len(verdicts), len(table.Rows))
	}

	header := append([]string{"prediction_status"}, table.Headers...)
	rows := make([][]string, len(table.Rows))
	for i, row := range table.Rows {
		status := statusNormal
		if verdicts[i] == 1 {
			status = statusAttack
		}
		rows[i] = append([]string{status}, row...)
	}

	if err := os.MkdirAll(s.resultsDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure results directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("%s_results%s", stem, ext)
	path := filepath.Join(s.resultsDir, name)

	switch ext {
	case ".xlsx":
		err = writeXLSX(path, header, rows)
	default:
		err = writeCSV(path, header, rows)
	}
	if err != nil {
		return "", err
	}

	log.Printf("[results] wrote annotated artifact %s (%d rows)", name, len(rows))
	return name, nil
}

// Open serves a previously written artifact. The name must be a bare file
// name; anything that could traverse outside the results directory is
// rejected before the filesystem is touched.
func (s *Store) Open(filename string) (*os.File, error) {
	if _, err := sanitizeName(filename); err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.resultsDir, filename))
	if err != nil {
		return nil, fmt.Errorf("open result artifact: %w", err)
	}
	return file, nil
}

// sanitizeName accepts only a bare file name with no traversal components.
func sanitizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidFilename)
	}
	if strings.ContainsAny(trimmed, "/\\") || strings.Contains(trimmed, "..") {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, name)
	}
	if trimmed != filepath.Base(trimmed) || trimmed == "." {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, name)
	}
	return trimmed, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result artifact: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write result header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write result row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush result artifact: %w", err)
	}
	return file.Close()
}

func writeXLSX(path string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	writeRow := func(rowIdx int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx)
		if err != nil {
			return err
		}
		cells := make([]any, len(values))
		for i, v := range values {
			cells[i] = v
		}
		return f.SetSheetRow(sheet, cell, &cells)
	}

	if err := writeRow(1, header); err != nil {
		return fmt.Errorf("write result header: %w", err)
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return fmt.Errorf("write result row: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save result artifact: %w", err)
	}
	return nil
}
