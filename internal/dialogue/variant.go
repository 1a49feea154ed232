package dialogue

import "github.com/dbdiag/dbdiag/internal/config"

// variantBehavior captures the one axis spec §9 calls out as the real
// difference between GAR and Hyb: initial-turn candidate expansion via
// ticket-description search. Slow-path feedback parsing falls through to
// the LLM in both variants. RAR is a distinct turn loop entirely and is
// not modeled by this type (spec §9, GLOSSARY).
type variantBehavior struct {
	variant config.Variant
	// useHybridRetrieval enables ticket-description search to seed and
	// grow hybrid_candidate_phenomenon_ids.
	useHybridRetrieval bool
	// useLLMFeedbackExtraction enables the schema-constrained slow path
	// when the fast-path grammar doesn't match.
	useLLMFeedbackExtraction bool
}

func behaviorFor(variant config.Variant) variantBehavior {
	switch variant {
	case config.VariantHyb:
		return variantBehavior{variant: variant, useHybridRetrieval: true, useLLMFeedbackExtraction: true}
	default:
		return variantBehavior{variant: config.VariantGAR, useHybridRetrieval: false, useLLMFeedbackExtraction: true}
	}
}
