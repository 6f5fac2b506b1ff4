// Package normalizer converts uploaded tabular traffic captures into the
// fixed-width numeric matrix the scoring engine expects.
package normalizer

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrNoNumericColumns is returned when no column of the input can be scored.
var ErrNoNumericColumns = errors.New("no numeric columns found")

// DefaultWidth is the feature width the pretrained discriminator was built for.
const DefaultWidth = 116

// Symbolic columns of the raw labeled capture format, one-hot encoded with
// categories sorted alphabetically within each block.
var symbolicColumns = []string{"protocol_type", "service", "flag"}

const rawFormatMinColumns = 40
const preprocessedMinColumns = 120

// droppedColumns are metadata and label columns excluded from every format.
var droppedColumns = map[string]struct{}{
	"num":    {},
	"number": {},
	"label":  {},
}

// FeatureNormalizer parses uploads and emits matrices of exactly Width columns.
type FeatureNormalizer struct {
	width  int
	scaler Scaler
}

// Option configures a FeatureNormalizer.
type Option func(*FeatureNormalizer)

// WithWidth overrides the output feature width.
func WithWidth(width int) Option {
	return func(n *FeatureNormalizer) {
		if width > 0 {
			n.width = width
		}
	}
}

// WithScaler overrides the scaling strategy used for the raw labeled format.
func WithScaler(scaler Scaler) Option {
	return func(n *FeatureNormalizer) {
		if scaler != nil {
			n.scaler = scaler
		}
	}
}

// New builds a normalizer with the pretrained model's defaults: 116 output
// columns and per-batch min/max scaling.
func New(opts ...Option) *FeatureNormalizer {
	n := &FeatureNormalizer{
		width:  DefaultWidth,
		scaler: BatchMinMaxScaler{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Width returns the output feature width.
func (n *FeatureNormalizer) Width() int {
	return n.width
}

// Normalize parses the payload and returns the scoring matrix, the row count,
// and the native feature count before padding or truncation. The matrix always
// has exactly Width columns when the error is nil.
func (n *FeatureNormalizer) Normalize(filename string, payload []byte) (*mat.Dense, int, int, error) {
	table, err := ReadTable(filename, payload)
	if err != nil {
		return nil, 0, 0, err
	}

	var (
		matrix   *mat.Dense
		replaced int
	)
	switch {
	case isRawLabeled(table):
		matrix, replaced, err = encodeRawLabeled(table)
		if err == nil {
			err = n.scaler.Scale(matrix)
		}
	case isPreprocessed(table):
		matrix, replaced = encodePreprocessed(table)
	default:
		matrix, replaced, err = encodeGeneric(table)
	}
	if err != nil {
		return nil, 0, 0, err
	}

	if replaced > 0 {
		log.Printf("[normalizer] %s: replaced %d missing or unparsable values with zero", filename, replaced)
	}

	rows, features := matrix.Dims()
	return fitWidth(matrix, n.width), rows, features, nil
}

func isRawLabeled(table Table) bool {
	if len(table.Headers) < rawFormatMinColumns {
		return false
	}
	present := make(map[string]bool, len(table.Headers))
	for _, header := range table.Headers {
		present[strings.ToLower(header)] = true
	}
	for _, name := range symbolicColumns {
		if !present[name] {
			return false
		}
	}
	return true
}

// isPreprocessed reports whether the table is already the training pipeline's
// encoded form: at least 120 columns whose values all parse as numbers or
// booleans. Wide tables with text columns fall through to the generic branch.
func isPreprocessed(table Table) bool {
	if len(table.Headers) < preprocessedMinColumns {
		return false
	}
	count := 0
	for idx := range table.Headers {
		if columnIsNumeric(idx, table.Rows) {
			count++
		}
	}
	return count >= preprocessedMinColumns
}

// encodeRawLabeled one-hot encodes the symbolic columns and parses the rest
// numerically. Categories are emitted in alphabetical order within each
// block, matching how the model's training pipeline encoded them.
func encodeRawLabeled(table Table) (*mat.Dense, int, error) {
	symbolic := make(map[int]bool)
	var numericCols []int
	for idx, header := range table.Headers {
		name := strings.ToLower(header)
		if _, drop := droppedColumns[name]; drop {
			continue
		}
		if isSymbolic(name) {
			symbolic[idx] = true
			continue
		}
		numericCols = append(numericCols, idx)
	}

	// First pass collects the distinct categories per symbolic column,
	// sorted alphabetically within each block.
	categories := make(map[int][]string)
	categoryIndex := make(map[int]map[string]int)
	for idx := range symbolic {
		categoryIndex[idx] = make(map[string]int)
	}
	for _, row := range table.Rows {
		for idx := range symbolic {
			value := strings.TrimSpace(row[idx])
			if _, seen := categoryIndex[idx][value]; !seen {
				categoryIndex[idx][value] = 0
				categories[idx] = append(categories[idx], value)
			}
		}
	}
	for idx, values := range categories {
		sort.Strings(values)
		for i, value := range values {
			categoryIndex[idx][value] = i
		}
	}

	width := len(numericCols)
	offsets := make(map[int]int)
	for _, idx := range symbolicColumnIndexes(table.Headers, symbolic) {
		offsets[idx] = width
		width += len(categories[idx])
	}
	if width == 0 {
		return nil, 0, ErrNoNumericColumns
	}

	matrix := mat.NewDense(len(table.Rows), width, nil)
	replaced := 0
	for r, row := range table.Rows {
		for c, idx := range numericCols {
			value, ok := parseCell(row[idx])
			if !ok {
				replaced++
			}
			matrix.Set(r, c, value)
		}
		for idx, offset := range offsets {
			value := strings.TrimSpace(row[idx])
			matrix.Set(r, offset+categoryIndex[idx][value], 1)
		}
	}
	return matrix, replaced, nil
}

// encodePreprocessed keeps every non-label column as-is; the input is already
// the training pipeline's encoded form, so no scaling is applied.
func encodePreprocessed(table Table) (*mat.Dense, int) {
	var keep []int
	for idx, header := range table.Headers {
		if _, drop := droppedColumns[strings.ToLower(header)]; drop {
			continue
		}
		keep = append(keep, idx)
	}

	matrix := mat.NewDense(len(table.Rows), len(keep), nil)
	replaced := 0
	for r, row := range table.Rows {
		for c, idx := range keep {
			value, ok := parseCell(row[idx])
			if !ok {
				replaced++
			}
			matrix.Set(r, c, value)
		}
	}
	return matrix, replaced
}

// encodeGeneric keeps only columns whose every non-empty value is numeric.
func encodeGeneric(table Table) (*mat.Dense, int, error) {
	var keep []int
	for idx, header := range table.Headers {
		if _, drop := droppedColumns[strings.ToLower(header)]; drop {
			continue
		}
		if columnIsNumeric(idx, table.Rows) {
			keep = append(keep, idx)
		}
	}
	if len(keep) == 0 {
		return nil, 0, ErrNoNumericColumns
	}

	matrix := mat.NewDense(len(table.Rows), len(keep), nil)
	replaced := 0
	for r, row := range table.Rows {
		for c, idx := range keep {
			value, ok := parseCell(row[idx])
			if !ok {
				replaced++
			}
			matrix.Set(r, c, value)
		}
	}
	return matrix, replaced, nil
}

func isSymbolic(name string) bool {
	for _, symbolic := range symbolicColumns {
		if name == symbolic {
			return true
		}
	}
	return false
}

// symbolicColumnIndexes returns the symbolic column indexes in header order so
// the one-hot block layout is deterministic.
func symbolicColumnIndexes(headers []string, symbolic map[int]bool) []int {
	var indexes []int
	for idx := range headers {
		if symbolic[idx] {
			indexes = append(indexes, idx)
		}
	}
	return indexes
}

func columnIsNumeric(col int, rows [][]string) bool {
	hasValue := false
	for _, row := range rows {
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		hasValue = true
		if _, ok := parseStrict(value); !ok {
			return false
		}
	}
	return hasValue
}

// parseCell interprets one cell as a float. Booleans map to 0/1; empty, NaN,
// and unparsable cells map to 0 and report ok=false so callers can count them.
func parseCell(raw string) (float64, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, false
	}
	parsed, ok := parseStrict(value)
	if !ok || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

func parseStrict(value string) (float64, bool) {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f, true
	}
	switch strings.ToLower(value) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	}
	return 0, false
}

// fitWidth pads the matrix with zero columns on the right, or truncates
// keeping the leftmost columns, so it has exactly width columns.
func fitWidth(m *mat.Dense, width int) *mat.Dense {
	rows, cols := m.Dims()
	if cols == width {
		return m
	}
	fitted := mat.NewDense(rows, width, nil)
	copyCols := cols
	if copyCols > width {
		copyCols = width
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < copyCols; c++ {
			fitted.Set(r, c, m.At(r, c))
		}
	}
	return fitted
}

// Describe reports which encoding branch a table would take, for logging.
func Describe(table Table) string {
	switch {
	case isRawLabeled(table):
		return "raw-labeled"
	case isPreprocessed(table):
		return "preprocessed"
	default:
		return fmt.Sprintf("generic (%d columns)", len(table.Headers))
	}
}
