package detect

import (
	"context"
	"fmt"

	"github.com/lurewire/decoy/pkg/intel"
)

// DefaultScamThreshold is the score at which a message counts as scam intent.
const DefaultScamThreshold = 0.35

// Result is the combined detection verdict for one message.
type Result struct {
	Score   float64  `json:"score"`
	Scam    bool     `json:"scam"`
	Signals []string `json:"signals,omitempty"`
}

// Stack layers the detection components. The heuristic scorer always runs;
// semantic and ONNX layers only contribute when ready, and any layer failure
// leaves the heuristic verdict standing.
type Stack struct {
	scorer    *Scorer
	semantic  *SemanticDetector
	onnx      *ONNXDetector
	threshold float64
}

// StackOption configures a Stack.
type StackOption func(*Stack)

// WithSemantic adds the embedding-similarity layer.
func WithSemantic(sd *SemanticDetector) StackOption {
	return func(s *Stack) { s.semantic = sd }
}

// WithONNX adds the local classification layer.
func WithONNX(d *ONNXDetector) StackOption {
	return func(s *Stack) { s.onnx = d }
}

// WithThreshold overrides the scam-intent threshold.
func WithThreshold(t float64) StackOption {
	return func(s *Stack) {
		if t > 0 {
			s.threshold = t
		}
	}
}

// NewStack creates a detection stack with the heuristic scorer always on.
func NewStack(opts ...StackOption) *Stack {
	s := &Stack{
		scorer:    NewScorer(),
		threshold: DefaultScamThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assess scores one message. The score is the maximum over all layers that
// produced a verdict, so extra layers can only raise suspicion, never lower
// it.
func (s *Stack) Assess(ctx context.Context, text string, artifacts []intel.Artifact) Result {
	score := s.scorer.Evaluate(text, artifacts)
	result := Result{
		Score:   score,
		Signals: []string{fmt.Sprintf("heuristic:%.2f", score)},
	}

	if s.onnx != nil && s.onnx.IsReady() {
		if r, err := s.onnx.Classify(ctx, text); err == nil && r.IsScam {
			result.Signals = append(result.Signals, fmt.Sprintf("onnx:%s:%.2f", r.Label, r.Confidence))
			if r.Confidence > result.Score {
				result.Score = r.Confidence
			}
		}
	}

	if s.semantic != nil && s.semantic.IsReady() {
		if m, err := s.semantic.Detect(ctx, text); err == nil && m.IsScam {
			result.Signals = append(result.Signals, fmt.Sprintf("semantic:%s:%.2f", m.Category, m.Score))
			if float64(m.Score) > result.Score {
				result.Score = float64(m.Score)
			}
		}
	}

	result.Scam = result.Score >= s.threshold
	return result
}
