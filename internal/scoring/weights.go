package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrMissingWeights is returned when a weight artifact does not exist on disk.
var ErrMissingWeights = errors.New("weight artifact not found")

// layerSpec is one linear layer of an exported network: a rows x cols weight
// matrix in row-major order plus a bias of length rows.
type layerSpec struct {
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

type weightArtifact struct {
	Layers []layerSpec `json:"layers"`
}

func loadArtifact(path string) (weightArtifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return weightArtifact{}, fmt.Errorf("%w: %s", ErrMissingWeights, path)
		}
		return weightArtifact{}, fmt.Errorf("failed to read weight artifact %s: %w", path, err)
	}

	var artifact weightArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return weightArtifact{}, fmt.Errorf("failed to parse weight artifact %s: %w", path, err)
	}
	if len(artifact.Layers) == 0 {
		return weightArtifact{}, fmt.Errorf("weight artifact %s has no layers", path)
	}

	for i, layer := range artifact.Layers {
		if layer.Rows <= 0 || layer.Cols <= 0 {
			return weightArtifact{}, fmt.Errorf("weight artifact %s layer %d has invalid shape %dx%d", path, i, layer.Rows, layer.Cols)
		}
		if len(layer.Weights) != layer.Rows*layer.Cols {
			return weightArtifact{}, fmt.Errorf("weight artifact %s layer %d expects %d weights, has %d", path, i, layer.Rows*layer.Cols, len(layer.Weights))
		}
		if len(layer.Bias) != layer.Rows {
			return weightArtifact{}, fmt.Errorf("weight artifact %s layer %d expects %d biases, has %d", path, i, layer.Rows, len(layer.Bias))
		}
	}
	return artifact, nil
}
