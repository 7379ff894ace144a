// Package reply generates human-like victim-persona replies that keep a
// suspected scammer talking while evidence accumulates. The LLM backend is
// provider-agnostic over the OpenAI-compatible chat completions surface.
package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lurewire/decoy/pkg/engine"
	"github.com/lurewire/decoy/pkg/httputil"
)

// Provider identifies the LLM backend service.
type Provider string

const (
	ProviderOllama     Provider = "ollama"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGroq       Provider = "groq"
	ProviderCustom     Provider = "custom" // any OpenAI-compatible endpoint
)

// NonScamReply probes an unidentified contact without burning the persona.
// Returned without an LLM call while no scam intent has been detected.
const NonScamReply = "Sorry, who is this and which bank or service is this about? I didn't request anything."

// maxReplyLen caps generated replies; scam targets text in short bursts.
const maxReplyLen = 500

// personaPrompt sets up the decoy character. Replies must stay short,
// anxious, and artifact-hungry without ever surrendering real credentials.
const personaPrompt = "You are a normal person replying over SMS/WhatsApp. " +
	"You are anxious and slightly confused, willing to cooperate. " +
	"Goal: ask questions that make the other person reveal details (UPI ID, phone number, link, bank account, steps). " +
	"Never share OTP, PIN, CVV, passwords or any real personal info. " +
	"Keep replies short (1-2 sentences), natural, non-robotic."

// Config holds the LLM backend settings.
type Config struct {
	Provider    Provider
	APIKey      string // optional for Ollama
	Model       string
	BaseURL     string // optional override
	Temperature float64
	Timeout     time.Duration
}

// maxInFlight bounds concurrent completion calls so a flood of sessions
// cannot stack unbounded requests on the backend.
const maxInFlight = 32

// LLMReplier implements engine.ReplyGenerator on a chat-completions API.
type LLMReplier struct {
	client      *http.Client
	sem         *httputil.Semaphore
	provider    Provider
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewLLMReplier creates a replier for the configured provider.
func NewLLMReplier(cfg Config) *LLMReplier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var baseURL string
	switch cfg.Provider {
	case ProviderOllama:
		baseURL = "http://localhost:11434/v1"
	case ProviderGroq:
		baseURL = "https://api.groq.com/openai/v1"
	case ProviderOpenRouter:
		baseURL = "https://openrouter.ai/api/v1"
	default:
		baseURL = cfg.BaseURL
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		if cfg.Provider == ProviderOllama {
			model = "qwen2.5:7b"
		} else {
			model = "meta-llama/llama-3.1-8b-instruct"
		}
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	return &LLMReplier{
		client:      httputil.NewClient(timeout),
		sem:         httputil.NewSemaphore(maxInFlight),
		provider:    cfg.Provider,
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: temperature,
	}
}

// Generate produces the next persona reply. Before scam intent is detected
// it returns the probe reply without touching the LLM; afterwards it asks
// the model for a short engaging reply steered by what is still missing.
func (r *LLMReplier) Generate(ctx context.Context, req *engine.ReplyRequest) (string, error) {
	if !req.ScamDetected {
		return NonScamReply, nil
	}

	guidance := buildGuidance(req)
	userContent := fmt.Sprintf("Latest scammer message: %s\n\nGuidance: %s", req.Latest.Text, guidance)

	text, err := r.complete(ctx, []chatMessage{
		{Role: "system", Content: personaPrompt},
		{Role: "user", Content: userContent},
	})
	if err != nil {
		return "", err
	}

	// First line only; models love to pad.
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	if len(line) > maxReplyLen {
		line = line[:maxReplyLen]
	}
	return line, nil
}

// buildGuidance steers the model toward whichever artifacts are missing.
func buildGuidance(req *engine.ReplyRequest) string {
	var hints []string
	lower := strings.ToLower(req.Latest.Text)

	if len(req.Intelligence.PhishingLinks) > 0 {
		hints = append(hints, "They already sent a link; ask to resend / domain name.")
	}
	if len(req.Intelligence.UpiIDs) > 0 || strings.Contains(lower, "upi") {
		hints = append(hints, "Try to get their UPI ID / receiver name shown on screen.")
	}
	if strings.Contains(lower, "otp") {
		hints = append(hints, "Say OTP not received; ask steps/link instead.")
	}
	if len(hints) == 0 {
		return "Ask which bank, exact steps, and link/UPI shown."
	}
	return strings.Join(hints, " ")
}

func (r *LLMReplier) complete(ctx context.Context, msgs []chatMessage) (string, error) {
	if r.provider == ProviderOpenRouter && r.apiKey == "" {
		return "", fmt.Errorf("API key not configured for OpenRouter")
	}

	if err := r.sem.Acquire(ctx); err != nil {
		return "", fmt.Errorf("acquire completion slot: %w", err)
	}
	defer r.sem.Release()

	body, err := json.Marshal(chatRequest{
		Model:       r.model,
		Messages:    msgs,
		Temperature: r.temperature,
		MaxTokens:   200,
	})
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(r.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httputil.ReadBody(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal error: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}
