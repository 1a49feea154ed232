package cmd

import (
	"fmt"
	"os"

	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/embeddings"
	"github.com/dbdiag/dbdiag/internal/llm"
)

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
// Shared by every command that touches the vector index.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		preset := config.GetPreset(provider, cfg.Quality)
		model = preset.EmbeddingModel
	}

	var embedder embeddings.Embedder
	switch provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		embedder = embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model))
	case config.ProviderGoogle:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderGoogle))
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY environment variable is required for Google embeddings")
		}
		embedder = embeddings.NewGoogleEmbedder(apiKey, embeddings.GoogleModel(model))
	case config.ProviderOllama:
		embedder = embeddings.NewOllamaEmbedder(model, 768, "")
	default:
		// For providers without native embeddings, fall back to OpenAI.
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required (used for embeddings when provider is %s)", provider)
		}
		embedder = embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model))
	}
	return embeddings.NewRetryingEmbedder(embedder, cfg.RetryCeiling), nil
}

// createLLMProviderFromConfig creates an LLM provider based on config settings.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, err
	}
	return llm.NewRetryingProvider(provider, cfg.RetryCeiling), nil
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, &exitError{code: 1, err: fmt.Errorf("loading config: %w\nRun `dbdiag init` to create a config file", err)}
	}
	return cfg, nil
}

// exitError pairs an error with the process exit code it should produce,
// per spec §6.2's exit code table (0 success, 1 config error, 2 data
// error, 3 upstream service error).
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// dataError wraps err as a data-error exit (code 2): malformed input, not
// config or an upstream service.
func dataError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: 2, err: err}
}

// upstreamError wraps err as an upstream-service-error exit (code 3): the
// LLM or embedding provider failed.
func upstreamError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: 3, err: err}
}

// ExitCode extracts the process exit code from an error returned by a
// cobra RunE func, defaulting to 1 for anything not wrapped as an
// exitError.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	for e := err; e != nil; {
		if asErr, ok := e.(*exitError); ok {
			ee = asErr
			break
		}
		unwrapper, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = unwrapper.Unwrap()
	}
	if ee != nil {
		return ee.code
	}
	return 1
}
