// Package scoring runs a pretrained discriminator over normalized feature
// matrices to score network traffic for anomalies.
package scoring

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ErrNotLoaded is returned when scoring is attempted before Load succeeds.
var ErrNotLoaded = errors.New("model weights not loaded")

// Result carries the scores and summary statistics of one batch.
type Result struct {
	// Scores are the raw discriminator outputs in [0,1]. Higher means the
	// sample looks more like normal traffic.
	Scores []float64
	// Verdicts are 1 for anomaly, 0 for normal, per row.
	Verdicts []int

	TotalSamples      int
	NormalCount       int
	AnomalyCount      int
	AnomalyPercentage float64
	InferenceTimeMS   float64
}

// Engine holds the loaded networks for the process lifetime. Load is
// idempotent; forward passes are serialized under the engine mutex.
type Engine struct {
	cfg Config

	mu            sync.Mutex
	loaded        bool
	discriminator *network
	generator     *network
}

// NewEngine builds an engine. Weights are not touched until Load.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Load deserializes both weight artifacts and validates their dimensions
// against the configured architecture. Calling it again is a no-op.
func (e *Engine) Load() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return nil
	}

	started := time.Now()

	discArtifact, err := loadArtifact(e.cfg.DiscriminatorPath)
	if err != nil {
		return err
	}
	shapes, activations := discriminatorShapes(e.cfg)
	discriminator, err := buildNetwork("discriminator", discArtifact, shapes, activations)
	if err != nil {
		return err
	}

	genArtifact, err := loadArtifact(e.cfg.GeneratorPath)
	if err != nil {
		return err
	}
	shapes, activations = generatorShapes(e.cfg)
	generator, err := buildNetwork("generator", genArtifact, shapes, activations)
	if err != nil {
		return err
	}

	e.discriminator = discriminator
	e.generator = generator
	e.loaded = true
	log.Printf("[scoring] model loaded in %s (input=%d isize=%d nz=%d extra=%d)",
		time.Since(started).Round(time.Millisecond), e.cfg.InputSize, e.cfg.ISize, e.cfg.NZ, e.cfg.ExtraLayers)
	return nil
}

// Loaded reports whether weights are resident.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// PredictBatch scores every row of the matrix and classifies it against the
// threshold: a row is an anomaly unless its score clears the threshold.
func (e *Engine) PredictBatch(m *mat.Dense, threshold float64) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return Result{}, ErrNotLoaded
	}

	rows, cols := m.Dims()
	if cols != e.cfg.InputSize {
		return Result{}, fmt.Errorf("matrix has %d features, model expects %d", cols, e.cfg.InputSize)
	}

	started := time.Now()
	output := e.discriminator.forward(m)

	scores := make([]float64, rows)
	for r := 0; r < rows; r++ {
		scores[r] = output.At(r, 0)
	}
	verdicts := classify(scores, threshold)

	result := summarize(scores, verdicts)
	result.InferenceTimeMS = float64(time.Since(started)) / float64(time.Millisecond)
	return result, nil
}

// classify marks each score as normal (0) only when it is strictly above the
// threshold. Higher output means more normal, so a score at or below the
// threshold is an anomaly (1).
func classify(scores []float64, threshold float64) []int {
	verdicts := make([]int, len(scores))
	for i, score := range scores {
		if score <= threshold {
			verdicts[i] = 1
		}
	}
	return verdicts
}

func summarize(scores []float64, verdicts []int) Result {
	anomalies := 0
	for _, v := range verdicts {
		anomalies += v
	}
	total := len(verdicts)

	pct := 0.0
	if total > 0 {
		pct = float64(anomalies) / float64(total) * 100
	}
	return Result{
		Scores:            scores,
		Verdicts:          verdicts,
		TotalSamples:      total,
		NormalCount:       total - anomalies,
		AnomalyCount:      anomalies,
		AnomalyPercentage: roundTo(pct, 2),
	}
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
