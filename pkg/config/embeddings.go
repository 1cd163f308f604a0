package config

// EmbeddingsConfig configures finding embedding generation.
type EmbeddingsConfig struct {
	// Provider is "openai" or "mock"; the mock provider derives
	// deterministic vectors from the input text.
	Provider string

	// Dim is the embedding vector dimension.
	Dim int
}

func loadEmbeddingsConfig() (EmbeddingsConfig, error) {
	dim, err := getEnvInt("REVIEW_EMBEDDING_DIM", 1536)
	if err != nil {
		return EmbeddingsConfig{}, err
	}
	return EmbeddingsConfig{
		Provider: getEnvOrDefault("REVIEW_EMBEDDING_PROVIDER", "mock"),
		Dim:      dim,
	}, nil
}
