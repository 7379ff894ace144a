// Package intel provides artifact extraction for scam conversations.
// An artifact is a typed piece of intelligence pulled out of message text:
// payment handles, links, phone numbers, bank accounts, suspicious phrases.
// Extraction is pure pattern matching - no state, no failure mode.
package intel

import (
	"encoding/json"
	"sort"
)

// Kind classifies an extracted artifact.
type Kind string

const (
	KindPaymentHandle    Kind = "payment_handle"
	KindLink             Kind = "link"
	KindPhoneNumber      Kind = "phone_number"
	KindBankAccount      Kind = "bank_account"
	KindSuspiciousPhrase Kind = "suspicious_phrase"
)

// Priority returns the classification priority for overlapping matches.
// Lower value wins. A span already claimed by a higher-priority kind is
// never re-emitted under a lower-priority kind.
func (k Kind) Priority() int {
	switch k {
	case KindPaymentHandle:
		return 0
	case KindLink:
		return 1
	case KindPhoneNumber:
		return 2
	case KindBankAccount:
		return 3
	case KindSuspiciousPhrase:
		return 4
	default:
		return 5
	}
}

// Strong reports whether this kind alone is sufficient evidence for
// escalation. Phrase matches only raise suspicion; they never finalize.
func (k Kind) Strong() bool {
	switch k {
	case KindPaymentHandle, KindLink, KindPhoneNumber, KindBankAccount:
		return true
	default:
		return false
	}
}

// Artifact is a single extracted intelligence item. Immutable once created;
// deduplicated by (Kind, Value) within a session.
type Artifact struct {
	Kind               Kind   `json:"kind"`
	Value              string `json:"value"`
	SourceMessageIndex int    `json:"source_message_index"`
}

type artifactKey struct {
	kind  Kind
	value string
}

// Set is an insertion-ordered artifact set, unique by (Kind, Value).
// It only grows - there is no removal operation.
type Set struct {
	items []Artifact
	index map[artifactKey]struct{}
}

// NewSet creates an empty artifact set.
func NewSet() *Set {
	return &Set{index: make(map[artifactKey]struct{})}
}

// Add inserts an artifact. Returns false if (Kind, Value) is already present.
func (s *Set) Add(a Artifact) bool {
	if s.index == nil {
		s.index = make(map[artifactKey]struct{})
	}
	k := artifactKey{a.Kind, a.Value}
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = struct{}{}
	s.items = append(s.items, a)
	return true
}

// Merge adds every artifact from the list, returning how many were new.
func (s *Set) Merge(list []Artifact) int {
	added := 0
	for _, a := range list {
		if s.Add(a) {
			added++
		}
	}
	return added
}

// Contains reports whether the (kind, value) pair is already in the set.
func (s *Set) Contains(kind Kind, value string) bool {
	_, ok := s.index[artifactKey{kind, value}]
	return ok
}

// Len returns the number of artifacts in the set.
func (s *Set) Len() int {
	return len(s.items)
}

// Items returns a copy of the artifacts in insertion order.
func (s *Set) Items() []Artifact {
	out := make([]Artifact, len(s.items))
	copy(out, s.items)
	return out
}

// StrongKinds returns the number of distinct strong artifact kinds present.
func (s *Set) StrongKinds() int {
	kinds := make(map[Kind]struct{})
	for _, a := range s.items {
		if a.Kind.Strong() {
			kinds[a.Kind] = struct{}{}
		}
	}
	return len(kinds)
}

// MarshalJSON serializes the set as a plain artifact list.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.items)
}

// UnmarshalJSON rebuilds the set (and its dedup index) from an artifact list.
func (s *Set) UnmarshalJSON(data []byte) error {
	var items []Artifact
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	s.items = nil
	s.index = make(map[artifactKey]struct{}, len(items))
	for _, a := range items {
		s.Add(a)
	}
	return nil
}

// Intelligence is the grouped, sorted view of an artifact set used in
// escalation payloads and API responses.
type Intelligence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UpiIDs             []string `json:"upiIds"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// Grouped buckets the set by kind with values sorted for stable output.
func (s *Set) Grouped() Intelligence {
	g := Intelligence{
		BankAccounts:       []string{},
		UpiIDs:             []string{},
		PhishingLinks:      []string{},
		PhoneNumbers:       []string{},
		SuspiciousKeywords: []string{},
	}
	for _, a := range s.items {
		switch a.Kind {
		case KindBankAccount:
			g.BankAccounts = append(g.BankAccounts, a.Value)
		case KindPaymentHandle:
			g.UpiIDs = append(g.UpiIDs, a.Value)
		case KindLink:
			g.PhishingLinks = append(g.PhishingLinks, a.Value)
		case KindPhoneNumber:
			g.PhoneNumbers = append(g.PhoneNumbers, a.Value)
		case KindSuspiciousPhrase:
			g.SuspiciousKeywords = append(g.SuspiciousKeywords, a.Value)
		}
	}
	sort.Strings(g.BankAccounts)
	sort.Strings(g.UpiIDs)
	sort.Strings(g.PhishingLinks)
	sort.Strings(g.PhoneNumbers)
	sort.Strings(g.SuspiciousKeywords)
	return g
}
