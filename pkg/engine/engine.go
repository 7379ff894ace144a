// Package engine orchestrates the per-message workflow: append, detect,
// extract, decide, respond. Every invocation runs under the session's
// exclusive lock, so a session's state transitions are strictly serialized
// while different sessions proceed in parallel.
package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/lurewire/decoy/pkg/detect"
	"github.com/lurewire/decoy/pkg/escalate"
	"github.com/lurewire/decoy/pkg/intel"
	"github.com/lurewire/decoy/pkg/session"
	"github.com/lurewire/decoy/pkg/telemetry"
)

// DefaultFallbackReply keeps the conversation alive when reply generation
// fails or times out.
const DefaultFallbackReply = "I'm confused - can you resend the link and tell me the exact steps? My app isn't opening properly."

// defaultAgentNotes annotates escalation reports.
const defaultAgentNotes = "Detected scam intent; extracted artifacts from conversation."

// ReplyRequest is the context handed to a ReplyGenerator.
type ReplyRequest struct {
	SessionID    string
	History      []session.Message // includes the latest message, arrival order
	Latest       session.Message
	ScamDetected bool
	Intelligence intel.Intelligence
}

// ReplyGenerator produces the next conversational reply. Implementations
// should honor ctx cancellation; the engine enforces its own deadline either
// way and substitutes the fallback reply on error or timeout.
type ReplyGenerator interface {
	Generate(ctx context.Context, req *ReplyRequest) (string, error)
}

// EscalationSink receives the evidence report exactly once per session, at
// the moment the session finalizes.
type EscalationSink interface {
	Notify(ctx context.Context, report *escalate.Report) error
}

// FinalizePolicy decides whether a session has accumulated enough evidence
// to escalate. Evaluated under the session lock after artifact merge.
type FinalizePolicy func(s *session.Session) bool

// MinStrongKinds finalizes once at least n distinct strong artifact kinds
// (payment handle, link, phone, bank account) are present.
func MinStrongKinds(n int) FinalizePolicy {
	if n < 1 {
		n = 1
	}
	return func(s *session.Session) bool {
		return s.Artifacts.StrongKinds() >= n
	}
}

// Result is the complete observable output of one workflow invocation.
type Result struct {
	Reply                  string             `json:"reply"`
	ScamDetected           bool               `json:"scamDetected"`
	Confidence             float64            `json:"confidence"`
	Artifacts              []intel.Artifact   `json:"artifacts"`
	ExtractedIntelligence  intel.Intelligence `json:"extractedIntelligence"`
	Finalized              bool               `json:"finalized"`
	TotalMessagesExchanged int                `json:"totalMessagesExchanged"`
}

// Engine wires the pipeline components together.
type Engine struct {
	store     session.Store
	extractor *intel.Extractor
	detector  *detect.Stack
	replier   ReplyGenerator
	sink      EscalationSink
	policy    FinalizePolicy
	telemetry *telemetry.Client

	replyTimeout  time.Duration
	notifyTimeout time.Duration
	fallbackReply string
	agentNotes    string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithExtractor overrides the artifact extractor.
func WithExtractor(e *intel.Extractor) EngineOption {
	return func(en *Engine) { en.extractor = e }
}

// WithDetector overrides the detection stack.
func WithDetector(d *detect.Stack) EngineOption {
	return func(en *Engine) { en.detector = d }
}

// WithReplyGenerator sets the reply backend.
func WithReplyGenerator(r ReplyGenerator) EngineOption {
	return func(en *Engine) { en.replier = r }
}

// WithEscalationSink sets the escalation delivery target.
func WithEscalationSink(s EscalationSink) EngineOption {
	return func(en *Engine) { en.sink = s }
}

// WithFinalizePolicy overrides the evidence threshold policy.
func WithFinalizePolicy(p FinalizePolicy) EngineOption {
	return func(en *Engine) { en.policy = p }
}

// WithReplyTimeout bounds each reply-generation attempt.
func WithReplyTimeout(d time.Duration) EngineOption {
	return func(en *Engine) {
		if d > 0 {
			en.replyTimeout = d
		}
	}
}

// WithNotifyTimeout bounds the escalation delivery attempt.
func WithNotifyTimeout(d time.Duration) EngineOption {
	return func(en *Engine) {
		if d > 0 {
			en.notifyTimeout = d
		}
	}
}

// WithFallbackReply overrides the deterministic fallback text.
func WithFallbackReply(text string) EngineOption {
	return func(en *Engine) {
		if text != "" {
			en.fallbackReply = text
		}
	}
}

// WithTelemetry sets the degraded-path event recorder.
func WithTelemetry(c *telemetry.Client) EngineOption {
	return func(en *Engine) { en.telemetry = c }
}

// New creates an engine on the given session store.
func New(store session.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:         store,
		extractor:     intel.NewExtractor(),
		detector:      detect.NewStack(),
		policy:        MinStrongKinds(1),
		telemetry:     telemetry.Default(),
		replyTimeout:  4 * time.Second,
		notifyTimeout: 5 * time.Second,
		fallbackReply: DefaultFallbackReply,
		agentNotes:    defaultAgentNotes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs the five-stage pipeline for one incoming message. The only
// errors returned are infrastructure failures (lock or store unavailable);
// generation and escalation failures are recovered internally.
func (e *Engine) Process(ctx context.Context, sessionID string, msg session.Message) (*Result, error) {
	var result *Result

	err := e.store.WithLock(ctx, sessionID, func(s *session.Session) error {
		// Stage 1: append
		idx := s.Append(msg)

		// Extraction is pure and idempotent, so it runs once and feeds both
		// the detect stage (artifacts as positive signals) and the merge.
		found := e.extractor.Extract(msg.Text, idx)

		// Stage 2: detect (monotonic)
		assessment := e.detector.Assess(ctx, msg.Text, found)
		s.MarkScam(assessment.Scam, assessment.Score)

		// Stage 3: extract/merge (set union, dedup by kind+value)
		s.Artifacts.Merge(found)

		// Stage 4: decide. No-op once the session is finalized.
		if !s.Finalized && e.policy(s) {
			if s.Finalize() {
				e.notify(ctx, s)
			}
		}

		// Stage 5: respond
		replyText := e.respond(ctx, s, msg)

		result = &Result{
			Reply:                  replyText,
			ScamDetected:           s.ScamDetected,
			Confidence:             s.Confidence,
			Artifacts:              s.Artifacts.Items(),
			ExtractedIntelligence:  s.Artifacts.Grouped(),
			Finalized:              s.Finalized,
			TotalMessagesExchanged: s.MessageCount(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// notify delivers the escalation report with one bounded attempt. Delivery
// failure is recorded, never propagated: the finalize decision is already
// made and is not reversible.
func (e *Engine) notify(ctx context.Context, s *session.Session) {
	report := escalate.NewReport(s, e.agentNotes)

	if e.sink == nil {
		log.Printf("[ESCALATE] session %s finalized but no sink configured (report %s dropped)", s.ID, report.ReportID)
		e.telemetry.Track(telemetry.EventEscalationFailed)
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
	defer cancel()

	if err := e.sink.Notify(notifyCtx, report); err != nil {
		log.Printf("[ESCALATE] delivery failed for session %s (report %s): %v", s.ID, report.ReportID, err)
		e.telemetry.Track(telemetry.EventEscalationFailed)
		return
	}
	log.Printf("[ESCALATE] session %s escalated (report %s, %d artifacts)", s.ID, report.ReportID, s.Artifacts.Len())
	e.telemetry.Track(telemetry.EventEscalationOK)
}

// respond generates the reply within the timeout budget. The generator runs
// in its own goroutine so a backend that ignores cancellation still cannot
// block the workflow past the deadline.
func (e *Engine) respond(ctx context.Context, s *session.Session, msg session.Message) string {
	if e.replier == nil {
		return e.fallbackReply
	}

	history := make([]session.Message, len(s.History))
	copy(history, s.History)

	req := &ReplyRequest{
		SessionID:    s.ID,
		History:      history,
		Latest:       msg,
		ScamDetected: s.ScamDetected,
		Intelligence: s.Artifacts.Grouped(),
	}

	genCtx, cancel := context.WithTimeout(ctx, e.replyTimeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	ch := make(chan outcome, 1) // buffered: a late generator must not leak

	go func() {
		text, err := e.replier.Generate(genCtx, req)
		ch <- outcome{text, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			log.Printf("[WARN] reply generation failed for session %s, using fallback: %v", s.ID, o.err)
			e.telemetry.Track(telemetry.EventReplyFallback)
			return e.fallbackReply
		}
		if strings.TrimSpace(o.text) == "" {
			e.telemetry.Track(telemetry.EventReplyFallback)
			return e.fallbackReply
		}
		return o.text
	case <-genCtx.Done():
		log.Printf("[WARN] reply generation timed out for session %s, using fallback", s.ID)
		e.telemetry.Track(telemetry.EventReplyFallback)
		return e.fallbackReply
	}
}
