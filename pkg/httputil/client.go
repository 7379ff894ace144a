// Package httputil provides shared HTTP plumbing for the decoy engine's
// outbound calls: reply generation, escalation webhooks, and embedding
// backends. All callers share one pooled transport instead of creating
// throwaway clients per request.
package httputil

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize caps response body reads from external services.
const MaxResponseSize = 2 * 1024 * 1024 // 2MB

var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier groups outbound operations by latency budget.
type TimeoutTier int

const (
	// TierFast for webhook delivery and health probes (5s)
	TierFast TimeoutTier = iota
	// TierMedium for standard API calls (15s)
	TierMedium
	// TierSlow for LLM and embedding calls (60s)
	TierSlow
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierFast:   5 * time.Second,
	TierMedium: 15 * time.Second,
	TierSlow:   60 * time.Second,
}

var (
	clientFast   *http.Client
	clientMedium *http.Client
	clientSlow   *http.Client
	clientOnce   sync.Once
)

func initClients() {
	clientFast = &http.Client{Timeout: timeoutDurations[TierFast], Transport: sharedTransport}
	clientMedium = &http.Client{Timeout: timeoutDurations[TierMedium], Transport: sharedTransport}
	clientSlow = &http.Client{Timeout: timeoutDurations[TierSlow], Transport: sharedTransport}
}

// Client returns the shared HTTP client for the given timeout tier.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	switch tier {
	case TierFast:
		return clientFast
	case TierSlow:
		return clientSlow
	default:
		return clientMedium
	}
}

// NewClient creates a client on the shared transport with a custom timeout.
// Use this when the timeout comes from configuration rather than a tier.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: sharedTransport}
}

// ReadBody reads a response body with the size cap applied. External
// services are untrusted; an oversized body must not exhaust memory.
func ReadBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
