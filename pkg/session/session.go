// Package session holds per-conversation state and the stores that guard it.
// A session is only ever mutated while its exclusive lock is held; the two
// boolean flags (scam detected, finalized) are one-way transitions enforced
// here rather than by caller convention.
package session

import (
	"time"

	"github.com/lurewire/decoy/pkg/intel"
)

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderUser        Sender = "user"        // the honeypot's persona
	SenderCounterpart Sender = "counterpart" // the suspected scammer
)

// Message is a single conversation turn. Immutable once recorded.
type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the mutable state for one conversation. History is append-only,
// the artifact set only grows, and both flags latch once set.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	History   []Message  `json:"history"`
	Artifacts *intel.Set `json:"artifacts"`

	ScamDetected bool    `json:"scam_detected"`
	Confidence   float64 `json:"confidence"` // running max across turns
	Finalized    bool    `json:"finalized"`
}

// New creates an empty session.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Artifacts: intel.NewSet(),
	}
}

// Append records a message and returns its index in the history.
func (s *Session) Append(msg Message) int {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.History = append(s.History, msg)
	s.UpdatedAt = time.Now()
	return len(s.History) - 1
}

// MarkScam latches the scam flag and ratchets the confidence. Passing
// detected=false never un-detects.
func (s *Session) MarkScam(detected bool, confidence float64) {
	if detected {
		s.ScamDetected = true
	}
	if confidence > s.Confidence {
		s.Confidence = confidence
	}
}

// Finalize transitions the session to its absorbing state. Returns true only
// on the first call; every later call is a no-op returning false. This is
// what guarantees at-most-once escalation.
func (s *Session) Finalize() bool {
	if s.Finalized {
		return false
	}
	s.Finalized = true
	return true
}

// MessageCount returns the number of recorded messages.
func (s *Session) MessageCount() int {
	return len(s.History)
}
