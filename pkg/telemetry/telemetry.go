// Package telemetry records degraded-path events: reply fallbacks,
// escalation delivery failures, detector layer errors. In-process counters
// only; surfacing them (health endpoint, logs) is the caller's choice.
package telemetry

import (
	"sync"
)

// Event names tracked by the engine.
const (
	EventReplyFallback    = "reply_fallback"
	EventEscalationFailed = "escalation_failed"
	EventEscalationOK     = "escalation_delivered"
)

// Client counts events by name. Safe for concurrent use.
type Client struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewClient creates an empty counter set.
func NewClient() *Client {
	return &Client{counts: make(map[string]int64)}
}

var (
	defaultClient *Client
	defaultOnce   sync.Once
)

// Default returns the process-wide client.
func Default() *Client {
	defaultOnce.Do(func() {
		defaultClient = NewClient()
	})
	return defaultClient
}

// Track increments the counter for event.
func (c *Client) Track(event string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[event]++
}

// Counts returns a snapshot of all counters.
func (c *Client) Counts() map[string]int64 {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Count returns a single counter value.
func (c *Client) Count(event string) int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[event]
}
