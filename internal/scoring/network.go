package scoring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type activation func(float64) float64

func leakyReLU(x float64) float64 {
	if x < 0 {
		return 0.2 * x
	}
	return x
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func identity(x float64) float64 { return x }

// layer is one linear transform plus elementwise activation. The weight
// matrix is rows x cols; an input batch of shape n x cols maps to n x rows
// via Y = X * Wᵀ + b.
type layer struct {
	weights  *mat.Dense
	bias     []float64
	activate activation
}

type network struct {
	layers []layer
}

// shape pairs the expected output and input width of one layer.
type shape struct {
	rows int
	cols int
}

// buildNetwork validates the artifact layers against the expected shapes and
// assembles the forward pass. Activations apply per layer; the last entry of
// activations pairs with the last layer.
func buildNetwork(name string, artifact weightArtifact, shapes []shape, activations []activation) (*network, error) {
	if len(artifact.Layers) != len(shapes) {
		return nil, fmt.Errorf("%s: expected %d layers, artifact has %d", name, len(shapes), len(artifact.Layers))
	}

	net := &network{layers: make([]layer, len(shapes))}
	for i, spec := range artifact.Layers {
		want := shapes[i]
		if spec.Rows != want.rows || spec.Cols != want.cols {
			return nil, fmt.Errorf("%s: layer %d shape %dx%d does not match architecture %dx%d", name, i, spec.Rows, spec.Cols, want.rows, want.cols)
		}
		weights := mat.NewDense(spec.Rows, spec.Cols, spec.Weights)
		bias := make([]float64, len(spec.Bias))
		copy(bias, spec.Bias)
		net.layers[i] = layer{weights: weights, bias: bias, activate: activations[i]}
	}
	return net, nil
}

// forward runs a batch through every layer. The input is n x inputWidth; the
// output is n x (rows of the final layer).
func (n *network) forward(x *mat.Dense) *mat.Dense {
	current := x
	for _, l := range n.layers {
		rows, _ := current.Dims()
		outCols, _ := l.weights.Dims()

		next := mat.NewDense(rows, outCols, nil)
		next.Mul(current, l.weights.T())
		for r := 0; r < rows; r++ {
			for c := 0; c < outCols; c++ {
				next.Set(r, c, l.activate(next.At(r, c)+l.bias[c]))
			}
		}
		current = next
	}
	return current
}

// discriminatorShapes is the classifier: encoder down to the latent width,
// then a single sigmoid unit.
func discriminatorShapes(cfg Config) ([]shape, []activation) {
	shapes := []shape{{rows: cfg.ISize, cols: cfg.InputSize}}
	activations := []activation{leakyReLU}
	for i := 0; i < cfg.ExtraLayers; i++ {
		shapes = append(shapes, shape{rows: cfg.ISize, cols: cfg.ISize})
		activations = append(activations, leakyReLU)
	}
	shapes = append(shapes,
		shape{rows: cfg.NZ, cols: cfg.ISize},
		shape{rows: 1, cols: cfg.NZ},
	)
	activations = append(activations, leakyReLU, sigmoid)
	return shapes, activations
}

// generatorShapes is the mirrored autoencoder: the encoder matches the
// discriminator's feature path, the decoder inverts it back to the input
// width. The generator is validated at load time but not used for scoring.
func generatorShapes(cfg Config) ([]shape, []activation) {
	shapes := []shape{{rows: cfg.ISize, cols: cfg.InputSize}}
	activations := []activation{leakyReLU}
	for i := 0; i < cfg.ExtraLayers; i++ {
		shapes = append(shapes, shape{rows: cfg.ISize, cols: cfg.ISize})
		activations = append(activations, leakyReLU)
	}
	shapes = append(shapes, shape{rows: cfg.NZ, cols: cfg.ISize})
	activations = append(activations, leakyReLU)

	shapes = append(shapes, shape{rows: cfg.ISize, cols: cfg.NZ})
	activations = append(activations, leakyReLU)
	for i := 0; i < cfg.ExtraLayers; i++ {
		shapes = append(shapes, shape{rows: cfg.ISize, cols: cfg.ISize})
		activations = append(activations, leakyReLU)
	}
	shapes = append(shapes, shape{rows: cfg.InputSize, cols: cfg.ISize})
	activations = append(activations, identity)
	return shapes, activations
}
