package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderGoogle    ProviderType = "google"
	ProviderOllama    ProviderType = "ollama"
)

// QualityTier controls the model selection trade-off between speed/cost and quality.
type QualityTier string

const (
	QualityLite   QualityTier = "lite"
	QualityNormal QualityTier = "normal"
	QualityMax    QualityTier = "max"
)

// Variant selects which dialogue-manager strategy drives a session.
type Variant string

const (
	VariantGAR Variant = "gar"
	VariantHyb Variant = "hyb"
	VariantRAR Variant = "rar"
)

// Config is the top-level dbdiag configuration, corresponding to .dbdiag.yml.
type Config struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
	Quality           QualityTier  `yaml:"quality" koanf:"quality"`

	DataDir     string `yaml:"data_dir" koanf:"data_dir"`
	KnowledgeDB string `yaml:"knowledge_db" koanf:"knowledge_db"`

	ClusterThreshold float64 `yaml:"cluster_threshold" koanf:"cluster_threshold"`
	TopKHypotheses   int     `yaml:"top_k_hypotheses" koanf:"top_k_hypotheses"`
	TopNRecommend    int     `yaml:"top_n_recommend" koanf:"top_n_recommend"`

	DiagnosisThreshold float64 `yaml:"diagnosis_threshold" koanf:"diagnosis_threshold"`
	ModerateThreshold  float64 `yaml:"moderate_threshold" koanf:"moderate_threshold"`

	MaxConcurrency int `yaml:"max_concurrency" koanf:"max_concurrency"`
	RetryCeiling   int `yaml:"retry_ceiling" koanf:"retry_ceiling"`

	CallTimeout time.Duration `yaml:"call_timeout" koanf:"call_timeout"`
	TurnBudget  time.Duration `yaml:"turn_budget" koanf:"turn_budget"`
}
