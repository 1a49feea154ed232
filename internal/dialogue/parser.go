package dialogue

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// batchPattern matches the bilingual fast-path grammar "1确认 2否定" /
// "1 confirm 2 deny" (spec §4.5.2).
var batchPattern = regexp.MustCompile(`(\d+)\s*(确认|否定|是|否|正常|异常|没有|不是|confirm|deny|yes|no)`)

var denyWords = []string{"否定", "否", "异常", "没有", "不是", "deny", "no"}
var confirmWords = []string{"确认", "是", "正常", "是的", "看到了", "观察到", "confirm", "yes"}

// blanketDenyKeywords trigger a deny-all when no numeric index is present.
var blanketDenyKeywords = []string{"全否定", "都否定", "都不是", "全部否定", "都没有", "都没看到", "none", "all no", "deny all"}

// blanketConfirmKeywords trigger a confirm-all when no numeric index is
// present.
var blanketConfirmKeywords = []string{"都确认", "全部确认", "都是", "confirm all", "yes all"}

// ParsedFeedback is the outcome of fast-path parsing one user message.
type ParsedFeedback struct {
	// Handled is true when the fast path resolved the message; the slow
	// path (LLM extraction) should only run when Handled is false.
	Handled bool
}

// ApplyFastPathFeedback mutates session per spec §4.5.2's fast-path
// grammar hierarchy: batch numeric form, then blanket deny, then blanket
// confirm (so a message with a blanket negation never confirms). Returns Handled=false when none matched, signaling the
// caller to fall back to the slow LLM path.
func ApplyFastPathFeedback(session *SessionState, message string, now time.Time) ParsedFeedback {
	pending := session.lastRecommendedPhenomenonIDs()

	if matches := batchPattern.FindAllStringSubmatch(message, -1); len(matches) > 0 {
		applied := false
		for _, m := range matches {
			idx, err := strconv.Atoi(m[1])
			if err != nil || idx < 1 || idx > len(pending) {
				continue // out-of-range indices are ignored, spec §8 boundary behavior
			}
			phenomenonID := pending[idx-1]
			if containsAny(denyWords, m[2]) {
				session.deny(phenomenonID, now)
			} else if containsAny(confirmWords, m[2]) {
				session.confirm(phenomenonID, message, now)
			}
			applied = true
		}
		if applied {
			return ParsedFeedback{Handled: true}
		}
	}

	lower := strings.ToLower(message)
	if containsAnyKeyword(lower, blanketDenyKeywords) {
		for _, id := range session.pendingFromLastRecommendation() {
			session.deny(id, now)
		}
		return ParsedFeedback{Handled: true}
	}
	if containsAnyKeyword(lower, blanketConfirmKeywords) {
		for _, id := range session.pendingFromLastRecommendation() {
			session.confirm(id, message, now)
		}
		return ParsedFeedback{Handled: true}
	}

	return ParsedFeedback{Handled: false}
}

func containsAny(words []string, token string) bool {
	for _, w := range words {
		if w == token {
			return true
		}
	}
	return false
}

func containsAnyKeyword(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
