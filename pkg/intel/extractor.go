package intel

import (
	"regexp"
	"strings"
)

// Pre-compiled extraction patterns. Compiled once at package load instead of
// per message.
var (
	reURL = regexp.MustCompile(`(?i)https?://[^\s<>"]+`)

	// Shortened-URL services commonly used in phishing campaigns.
	reShortLink = regexp.MustCompile(`(?i)\b(?:bit\.ly|tinyurl\.com|t\.co|goo\.gl|cutt\.ly|rb\.gy|is\.gd|ow\.ly)/[A-Za-z0-9_-]+`)

	// Bare domain tokens without a scheme ("secure-kyc-update.xyz").
	reBareDomain = regexp.MustCompile(`(?i)\b(?:[a-z0-9][a-z0-9-]*\.)+(?:com|net|org|in|io|co|me|info|biz|xyz|top|online|site|live|club|app)\b(?:/[A-Za-z0-9._~%/-]*)?`)

	// Instant-payment handle shape: localpart@handle. Boundary characters are
	// validated separately since RE2 has no lookarounds; the check rejects
	// email addresses ("x@gmail.com" fails on the trailing dot).
	rePaymentHandle = regexp.MustCompile(`[A-Za-z0-9._-]{2,}@[A-Za-z0-9]{2,}`)

	// Phone candidates: optional +country prefix, separators allowed.
	// Digit count is validated after stripping separators (10-13 digits).
	rePhone = regexp.MustCompile(`\+?\d[\d\- ()]{8,17}\d`)

	// Bank-account shaped digit runs. Runs that qualify as phone numbers are
	// claimed by the higher-priority phone rule first.
	reDigitRun = regexp.MustCompile(`\b\d{9,18}\b`)
)

// isHandleBoundary reports whether the byte can legally touch a payment
// handle match. Mirrors the lookaround class [A-Za-z0-9._-].
func isHandleBoundary(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '.', b == '_', b == '-':
		return true
	}
	return false
}

// Extractor turns raw message text into typed artifacts. It is stateless and
// safe for concurrent use; Extract is total over any input and idempotent.
type Extractor struct {
	keywords []string // pre-folded for accent/case-insensitive matching
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithKeywords replaces the suspicious phrase list.
func WithKeywords(words []string) Option {
	return func(e *Extractor) {
		e.keywords = e.keywords[:0]
		for _, w := range words {
			if folded := strings.TrimSpace(Fold(w)); folded != "" {
				e.keywords = append(e.keywords, folded)
			}
		}
	}
}

// NewExtractor creates an extractor with the default keyword list.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	WithKeywords(DefaultKeywords)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// span is a half-open [start, end) byte range claimed by an accepted match.
type span struct{ start, end int }

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// Extract returns all artifacts found in text, deduplicated by (kind, value).
// Kinds are matched in priority order; a span claimed by a higher-priority
// kind is never re-emitted under a lower-priority one, so a 10-digit run is a
// phone number, not also a bank account.
func (e *Extractor) Extract(text string, messageIndex int) []Artifact {
	set := NewSet()
	var claimed []span

	add := func(kind Kind, value string, start, end int) {
		if overlaps(claimed, start, end) {
			return
		}
		claimed = append(claimed, span{start, end})
		set.Add(Artifact{Kind: kind, Value: value, SourceMessageIndex: messageIndex})
	}

	// PaymentHandle (highest priority)
	for _, loc := range rePaymentHandle.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && isHandleBoundary(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && isHandleBoundary(text[loc[1]]) {
			continue
		}
		add(KindPaymentHandle, text[loc[0]:loc[1]], loc[0], loc[1])
	}

	// Link: full URLs, shortener paths, bare domains
	for _, re := range []*regexp.Regexp{reURL, reShortLink, reBareDomain} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			value := strings.TrimRight(text[loc[0]:loc[1]], ").,;")
			if value == "" {
				continue
			}
			add(KindLink, value, loc[0], loc[0]+len(value))
		}
	}

	// PhoneNumber: candidates validated by digit count after separator strip
	for _, loc := range rePhone.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		digits := keepDigits(raw)
		if len(digits) < 10 || len(digits) > 13 {
			continue
		}
		value := digits
		if strings.HasPrefix(raw, "+") {
			value = "+" + digits
		}
		add(KindPhoneNumber, value, loc[0], loc[1])
	}

	// BankAccount: remaining long digit runs
	for _, loc := range reDigitRun.FindAllStringIndex(text, -1) {
		add(KindBankAccount, text[loc[0]:loc[1]], loc[0], loc[1])
	}

	// SuspiciousPhrase: substring membership over folded text. Spans are not
	// tracked here - phrase hits are orthogonal to token-shaped artifacts.
	folded := Fold(text)
	for _, kw := range e.keywords {
		if strings.Contains(folded, kw) {
			set.Add(Artifact{Kind: KindSuspiciousPhrase, Value: kw, SourceMessageIndex: messageIndex})
		}
	}

	return set.Items()
}

func keepDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
