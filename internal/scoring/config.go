package scoring

// Config describes the pretrained model artifacts and the architecture the
// weights were exported from. Dimension fields must match the artifacts or
// loading fails.
type Config struct {
	GeneratorPath     string
	DiscriminatorPath string

	// InputSize is the feature width of one sample.
	InputSize int
	// ISize is the hidden width of the encoder layers.
	ISize int
	// NZ is the latent feature width feeding the classifier head.
	NZ int
	// NGF is the base filter count of the original architecture; kept for
	// artifact validation parity even though the MLP export flattens it.
	NGF int
	// ExtraLayers is the number of additional hidden blocks.
	ExtraLayers int
}

// DefaultConfig returns the architecture the shipped weights were trained with.
func DefaultConfig() Config {
	return Config{
		GeneratorPath:     "weights/netG.json",
		DiscriminatorPath: "weights/netD.json",
		InputSize:         116,
		ISize:             32,
		NZ:                100,
		NGF:               64,
		ExtraLayers:       0,
	}
}
