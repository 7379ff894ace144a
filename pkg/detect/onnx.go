package detect

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

// ONNXConfig configures the local text-classification layer.
type ONNXConfig struct {
	ModelPath       string // Local model directory (required)
	OnnxLibraryPath string // Optional: path to onnxruntime shared library
}

// ONNXDetector classifies message text with a local ONNX model. Optional
// layer: when no model is available the detector reports not-ready and the
// stack runs without it.
type ONNXDetector struct {
	config   ONNXConfig
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline

	mu    sync.RWMutex
	ready bool
}

// ONNXResult is a single classification outcome.
type ONNXResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	IsScam     bool    `json:"is_scam"`
	LatencyMs  float64 `json:"latency_ms"`
}

// NewONNXDetector initializes the model session. Returns an error when the
// model cannot be loaded; callers that want graceful degradation should use
// NewONNXDetectorWithFallback.
func NewONNXDetector(cfg ONNXConfig) (*ONNXDetector, error) {
	d := &ONNXDetector{config: cfg}
	if err := d.initialize(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewONNXDetectorWithFallback returns a detector even if initialization
// fails; the failed detector simply reports not-ready.
func NewONNXDetectorWithFallback(cfg ONNXConfig) *ONNXDetector {
	d, err := NewONNXDetector(cfg)
	if err != nil {
		log.Printf("[WARN] ONNX detector unavailable (graceful degradation): %v", err)
		return &ONNXDetector{config: cfg}
	}
	return d
}

func (d *ONNXDetector) initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.config.ModelPath == "" {
		return fmt.Errorf("no model path configured")
	}
	if _, err := os.Stat(d.config.ModelPath); err != nil {
		return fmt.Errorf("model path %s: %w", d.config.ModelPath, err)
	}

	session, err := d.createSession()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	d.session = session

	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath: d.config.ModelPath,
		Name:      "scam-intent-classifier",
	})
	if err != nil {
		_ = d.session.Destroy()
		return fmt.Errorf("create pipeline: %w", err)
	}

	d.pipeline = pipeline
	d.ready = true
	log.Printf("ONNX detector initialized (model: %s)", d.config.ModelPath)
	return nil
}

// createSession prefers the ONNX Runtime backend and falls back to the pure
// Go backend when the runtime library is not installed.
func (d *ONNXDetector) createSession() (*hugot.Session, error) {
	if d.config.OnnxLibraryPath != "" {
		session, err := hugot.NewORTSession(options.WithOnnxLibraryPath(d.config.OnnxLibraryPath))
		if err == nil {
			return session, nil
		}
		log.Printf("ONNX Runtime unavailable, falling back to Go backend: %v", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create Go session: %w", err)
	}
	return session, nil
}

// IsReady returns true if the model is loaded and inference is possible.
func (d *ONNXDetector) IsReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ready
}

// isScamLabel maps model label conventions onto a boolean verdict.
func isScamLabel(label string) bool {
	switch label {
	case "scam", "SCAM", "fraud", "LABEL_1":
		return true
	default:
		return false
	}
}

// Classify runs inference on a single message.
func (d *ONNXDetector) Classify(ctx context.Context, text string) (*ONNXResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.ready || d.pipeline == nil {
		return nil, fmt.Errorf("onnx detector not ready")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := d.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	if len(result.ClassificationOutputs) == 0 || len(result.ClassificationOutputs[0]) == 0 {
		return nil, fmt.Errorf("empty classification output")
	}

	out := result.ClassificationOutputs[0][0]
	return &ONNXResult{
		Label:      out.Label,
		Confidence: float64(out.Score),
		IsScam:     isScamLabel(out.Label),
		LatencyMs:  float64(time.Since(start).Milliseconds()),
	}, nil
}

// Close releases the underlying session.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ready = false
	if d.session != nil {
		return d.session.Destroy()
	}
	return nil
}
