package config

import "time"

const (
	callTimeoutDefault = 30 * time.Second
	turnBudgetDefault  = 120 * time.Second
)

// QualityPreset describes the models to use for a given quality tier.
type QualityPreset struct {
	Model          string
	EmbeddingModel string
}

// qualityPresets maps each provider+quality combination to its model choices.
var qualityPresets = map[ProviderType]map[QualityTier]QualityPreset{
	ProviderAnthropic: {
		QualityLite:   {Model: "claude-haiku-4-5-20251001", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "claude-sonnet-4-5-20250929", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "claude-opus-4-6", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderOpenAI: {
		QualityLite:   {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "gpt-4o", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "gpt-4", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderGoogle: {
		QualityLite:   {Model: "gemini-3-flash-preview", EmbeddingModel: "text-embedding-004"},
		QualityNormal: {Model: "gemini-3-pro-preview", EmbeddingModel: "text-embedding-004"},
		QualityMax:    {Model: "gemini-3-pro-preview", EmbeddingModel: "text-embedding-004"},
	},
	ProviderOllama: {
		QualityLite:   {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
		QualityNormal: {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
		QualityMax:    {Model: "llama3:70b", EmbeddingModel: "nomic-embed-text"},
	},
}

// DefaultConfig returns a Config with sensible defaults matching spec-fixed
// constants: cluster threshold 0.85, diagnosis threshold 0.80, moderate
// threshold 0.50, top-3 hypotheses, top-3 recommendations.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderAnthropic,
		Model:             "claude-sonnet-4-5-20250929",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		Quality:           QualityNormal,

		DataDir:     "data",
		KnowledgeDB: "dbdiag.db",

		ClusterThreshold: 0.85,
		TopKHypotheses:   3,
		TopNRecommend:    3,

		DiagnosisThreshold: 0.80,
		ModerateThreshold:  0.50,

		MaxConcurrency: 5,
		RetryCeiling:   3,

		CallTimeout: callTimeoutDefault,
		TurnBudget:  turnBudgetDefault,
	}
}

// GetPreset returns the quality preset for the given provider and tier.
// Returns the Normal Anthropic preset if the combination is not found.
func GetPreset(provider ProviderType, tier QualityTier) QualityPreset {
	if tiers, ok := qualityPresets[provider]; ok {
		if preset, ok := tiers[tier]; ok {
			return preset
		}
	}
	return qualityPresets[ProviderAnthropic][QualityNormal]
}
