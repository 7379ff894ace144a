// Package detect scores message text for scam intent. A fast heuristic
// scorer is always on; optional semantic (embedding similarity) and ONNX
// (local text classification) layers can raise the score when available.
// Every optional layer degrades gracefully - detection never fails a request.
package detect

import (
	"strings"

	"github.com/lurewire/decoy/pkg/intel"
)

// highSignalPhrases carry a much larger score weight than ordinary keywords.
// These are the phrases scammers lead with when applying pressure.
var highSignalPhrases = []string{
	"otp", "cvv", "pin", "verify immediately", "blocked today",
	"account will be blocked", "share your upi", "click the link",
	"refund", "cashback", "kyc update", "suspended",
}

// Score weights. Tuned against real scam corpora; the cap keeps the final
// score in [0, 1].
const (
	weightHighSignal    = 0.18
	weightKeyword       = 0.05
	weightLink          = 0.25
	weightPaymentHandle = 0.25
	weightPhone         = 0.10
)

// Scorer computes a heuristic scam-intent score from message text and the
// artifacts discovered in it. Stateless and safe for concurrent use.
type Scorer struct {
	highs []string // pre-folded
}

// NewScorer creates a scorer with the default high-signal phrase list.
func NewScorer() *Scorer {
	s := &Scorer{highs: make([]string, 0, len(highSignalPhrases))}
	for _, p := range highSignalPhrases {
		s.highs = append(s.highs, intel.Fold(p))
	}
	return s
}

// Evaluate returns a scam-intent score in [0, 1] for a single message.
// Artifacts found in the same text act as positive signals: a link or a
// payment handle is worth far more than any keyword.
func (s *Scorer) Evaluate(text string, artifacts []intel.Artifact) float64 {
	folded := intel.Fold(text)
	score := 0.0

	for _, p := range s.highs {
		if strings.Contains(folded, p) {
			score += weightHighSignal
		}
	}

	var hasLink, hasHandle, hasPhone bool
	for _, a := range artifacts {
		switch a.Kind {
		case intel.KindSuspiciousPhrase:
			score += weightKeyword
		case intel.KindLink:
			hasLink = true
		case intel.KindPaymentHandle:
			hasHandle = true
		case intel.KindPhoneNumber:
			hasPhone = true
		}
	}
	if hasLink {
		score += weightLink
	}
	if hasHandle {
		score += weightPaymentHandle
	}
	if hasPhone {
		score += weightPhone
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
