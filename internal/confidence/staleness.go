package confidence

import "time"

// mergedSources are the sources checked against a time-based
// re-verification threshold: LLM-merged descriptions and user-confirmed
// values.
var mergedSources = map[Source]bool{
	SourceLLMMerge:      true,
	SourceUserConfirmed: true,
}

// stalenessThreshold is the maximum age for merged-description metadata before
// it is considered potentially stale.
const stalenessThreshold = 6 * 30 * 24 * time.Hour // ~6 months

// CheckStaleness determines whether the given metadata should be considered
// stale, based on when the underlying raw data last changed and the source
// type. It returns true if stale and a human-readable reason.
func CheckStaleness(meta Metadata, rawDataLastChanged time.Time) (bool, string) {
	// If the raw tickets/anomalies changed after the last verification, the
	// clustered description may no longer reflect the current knowledge graph.
	if !rawDataLastChanged.IsZero() && rawDataLastChanged.After(meta.LastVerified) {
		return true, "raw data changed after last verification"
	}

	if mergedSources[meta.Source] && time.Since(meta.LastVerified) > stalenessThreshold {
		return true, "merged description not re-verified for over 6 months"
	}

	return false, ""
}
