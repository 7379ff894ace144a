package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/lurewire/decoy/pkg/httputil"
	"github.com/lurewire/decoy/pkg/intel"
)

// ScamPattern is a known scam opener used to seed the vector store.
type ScamPattern struct {
	Text     string
	Category string
	Severity float32 // 0.0-1.0
}

// defaultScamPatterns seed the semantic index. Paraphrases of these openers
// score high on cosine similarity even when no keyword matches literally.
var defaultScamPatterns = []ScamPattern{
	{"your bank account will be blocked today, verify immediately", "account_block", 0.9},
	{"your kyc is expiring, update it now or your account gets suspended", "kyc_fraud", 0.9},
	{"share the otp you just received to complete verification", "otp_phishing", 1.0},
	{"pay a small fee to this upi id to claim your refund", "refund_scam", 0.9},
	{"congratulations, you won a lottery prize, pay processing charges", "lottery_scam", 0.85},
	{"your electricity connection will be disconnected tonight, call this number", "utility_threat", 0.85},
	{"your parcel is held at customs, pay the clearance charge on this link", "courier_scam", 0.85},
	{"i am calling from your bank, confirm your card number and cvv", "bank_impersonation", 1.0},
	{"click this link to receive your cashback before it expires", "cashback_bait", 0.8},
	{"your sim card will be deactivated, complete re-verification immediately", "sim_swap", 0.85},
}

// SemanticDetector finds scam intent by embedding similarity against known
// scam patterns. Optional layer: requires an embedding backend (Ollama).
type SemanticDetector struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32

	mu    sync.RWMutex
	ready bool
}

// SemanticMatch is the result of a similarity query.
type SemanticMatch struct {
	Score    float32 `json:"score"`
	Category string  `json:"category"`
	Matched  string  `json:"matched"`
	IsScam   bool    `json:"is_scam"`
}

// newOllamaEmbeddingFunc builds a chromem embedding function backed by the
// Ollama /api/embeddings endpoint.
func newOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := httputil.Client(httputil.TierSlow)

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody := map[string]string{"model": model, "prompt": text}
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(baseURL, "/")+"/api/embeddings", bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embedding backend returned %d", resp.StatusCode)
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode embedding response: %w", err)
		}
		return result.Embedding, nil
	}
}

// NewSemanticDetector creates a detector using Ollama embeddings. The
// detector is not ready until LoadPatterns succeeds.
func NewSemanticDetector(ollamaURL, model string) (*SemanticDetector, error) {
	if model == "" {
		model = "embeddinggemma"
	}
	db := chromem.NewDB()

	collection, err := db.CreateCollection("scam_patterns", nil, newOllamaEmbeddingFunc(model, ollamaURL))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &SemanticDetector{
		db:         db,
		collection: collection,
		threshold:  0.70,
	}, nil
}

// LoadPatterns embeds the seed patterns into the vector store. Requires the
// embedding backend to be reachable.
func (sd *SemanticDetector) LoadPatterns(ctx context.Context) error {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	docs := make([]chromem.Document, len(defaultScamPatterns))
	for i, p := range defaultScamPatterns {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("pattern_%d", i),
			Content: p.Text,
			Metadata: map[string]string{
				"category": p.Category,
				"severity": fmt.Sprintf("%.2f", p.Severity),
			},
		}
	}

	// Sequential embedding (1 worker) to avoid overwhelming the backend.
	if err := sd.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add patterns: %w", err)
	}

	sd.ready = true
	return nil
}

// IsReady returns true once patterns are loaded.
func (sd *SemanticDetector) IsReady() bool {
	sd.mu.RLock()
	defer sd.mu.RUnlock()
	return sd.ready
}

// SetThreshold overrides the similarity threshold (default 0.70).
func (sd *SemanticDetector) SetThreshold(t float32) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	sd.threshold = t
}

// Detect queries the index for the closest scam pattern.
func (sd *SemanticDetector) Detect(ctx context.Context, text string) (*SemanticMatch, error) {
	sd.mu.RLock()
	defer sd.mu.RUnlock()

	if !sd.ready {
		return nil, fmt.Errorf("semantic detector not initialized - call LoadPatterns first")
	}

	results, err := sd.collection.Query(ctx, intel.Fold(text), 1, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if len(results) == 0 {
		return &SemanticMatch{}, nil
	}

	best := results[0]
	return &SemanticMatch{
		Score:    best.Similarity,
		Category: best.Metadata["category"],
		Matched:  best.Content,
		IsScam:   best.Similarity >= sd.threshold,
	}, nil
}
