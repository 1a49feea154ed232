package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .dbdiag.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Let's configure the diagnosis engine.")
	fmt.Println()

	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"anthropic", "openai", "google", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)

	qualityPrompt := promptui.Select{
		Label: "Select quality tier",
		Items: []string{
			"lite   — fast & cheap (haiku / gpt-4o-mini)",
			"normal — balanced (sonnet / gpt-4o)",
			"max    — highest quality (opus / gpt-4)",
		},
	}
	qualityIdx, _, err := qualityPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("quality selection: %w", err)
	}
	tiers := []QualityTier{QualityLite, QualityNormal, QualityMax}
	quality := tiers[qualityIdx]

	preset := GetPreset(provider, quality)

	thresholdPrompt := promptui.Prompt{
		Label:   "Clustering similarity threshold (τ_cluster)",
		Default: "0.85",
		Validate: func(s string) error {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || v <= 0 || v > 1 {
				return fmt.Errorf("must be a number in (0, 1]")
			}
			return nil
		},
	}
	thresholdStr, err := thresholdPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("threshold selection: %w", err)
	}
	threshold, _ := strconv.ParseFloat(thresholdStr, 64)

	dataDirPrompt := promptui.Prompt{
		Label:   "Data directory (knowledge store, vector index)",
		Default: "data",
	}
	dataDir, err := dataDirPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("data directory selection: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Provider = provider
	cfg.Model = preset.Model
	cfg.EmbeddingProvider = provider
	cfg.EmbeddingModel = preset.EmbeddingModel
	cfg.Quality = quality
	cfg.ClusterThreshold = threshold
	cfg.DataDir = dataDir

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	const path = ".dbdiag.yml"
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	fmt.Printf("  Provider:  %s (%s)\n", cfg.Provider, cfg.Model)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingProvider, cfg.EmbeddingModel)
	fmt.Printf("  Data dir:  %s\n", cfg.DataDir)

	return cfg, nil
}
