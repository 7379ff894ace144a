// Package escalate delivers finalized evidence reports to external systems.
// The engine guarantees at-most-once Notify per session; sinks own their
// delivery semantics beyond that single bounded attempt.
package escalate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lurewire/decoy/pkg/intel"
	"github.com/lurewire/decoy/pkg/session"
)

// Report is the escalation payload: everything a downstream fraud team needs
// to act on one finalized session.
type Report struct {
	ReportID               string             `json:"reportId"`
	SessionID              string             `json:"sessionId"`
	ScamDetected           bool               `json:"scamDetected"`
	Confidence             float64            `json:"confidence"`
	TotalMessagesExchanged int                `json:"totalMessagesExchanged"`
	ExtractedIntelligence  intel.Intelligence `json:"extractedIntelligence"`
	AgentNotes             string             `json:"agentNotes"`
	History                []session.Message  `json:"history"`
	CreatedAt              time.Time          `json:"createdAt"`
}

// NewReport snapshots a session into a report. Must be called while the
// session lock is held; the returned report owns its own copies.
func NewReport(s *session.Session, notes string) *Report {
	history := make([]session.Message, len(s.History))
	copy(history, s.History)

	return &Report{
		ReportID:               uuid.NewString(),
		SessionID:              s.ID,
		ScamDetected:           s.ScamDetected,
		Confidence:             s.Confidence,
		TotalMessagesExchanged: len(s.History),
		ExtractedIntelligence:  s.Artifacts.Grouped(),
		AgentNotes:             notes,
		History:                history,
		CreatedAt:              time.Now(),
	}
}

// Sink delivers a report out-of-band. Both success and failure are terminal
// for the attempt: the engine never retries, and a failed delivery never
// rolls back the finalize decision.
type Sink interface {
	Notify(ctx context.Context, report *Report) error
}
