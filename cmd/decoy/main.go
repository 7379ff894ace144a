package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/lurewire/decoy/pkg/config"
	"github.com/lurewire/decoy/pkg/detect"
	"github.com/lurewire/decoy/pkg/engine"
	"github.com/lurewire/decoy/pkg/escalate"
	"github.com/lurewire/decoy/pkg/intel"
	"github.com/lurewire/decoy/pkg/reply"
	"github.com/lurewire/decoy/pkg/session"
	"github.com/lurewire/decoy/pkg/telemetry"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := ""
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runHTTPServer(port)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: decoy scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("decoy v%s\n", Version)
		fmt.Println("Scam honeypot engine")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("decoy v%s - scam honeypot engine\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  decoy serve [port]   Start HTTP server (default: 8080)")
	fmt.Println("  decoy scan <text>    Score a single message for scam intent")
	fmt.Println("  decoy version        Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  DECOY_STORE             Session store: memory, redis (default: memory)")
	fmt.Println("  DECOY_SCAM_THRESHOLD    Scam score threshold (default: 0.35)")
	fmt.Println("  DECOY_LLM_PROVIDER      Reply backend: ollama, openrouter, groq, none")
	fmt.Println("  DECOY_LLM_API_KEY       API key for cloud reply backends")
	fmt.Println("  DECOY_WEBHOOK_URL       Escalation callback endpoint")
	fmt.Println("  DECOY_POSTGRES_DSN      Escalation report archive")
}

// ============================================================================
// Component Wiring
// ============================================================================

// buildStore picks the session backend. Redis shares state across replicas;
// memory is fine for a single instance.
func buildStore(cfg *config.Config) session.Store {
	if cfg.StoreBackend == config.StoreRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		log.Printf("[STARTUP] Using redis session store (%s)", cfg.RedisAddr)
		return session.NewRedisStore(client,
			session.WithSessionTTL(cfg.SessionTTL),
			session.WithLockTTL(cfg.LockTTL),
		)
	}
	log.Println("[STARTUP] Using in-memory session store")
	return session.NewInMemoryStore(
		session.WithMaxAge(cfg.SessionTTL),
	)
}

// buildDetector assembles the detection stack. The heuristic layer is always
// available; semantic and ONNX layers degrade gracefully when their backends
// are missing.
func buildDetector(cfg *config.Config) *detect.Stack {
	opts := []detect.StackOption{detect.WithThreshold(cfg.ScamThreshold)}

	if cfg.EnableSemantics {
		ollamaURL := cfg.LLMBaseURL
		if ollamaURL == "" {
			ollamaURL = "http://localhost:11434"
		}
		sd, err := detect.NewSemanticDetector(ollamaURL, "")
		if err != nil {
			log.Printf("○ Semantic detection disabled (init failed: %v)", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			if err := sd.LoadPatterns(ctx); err != nil {
				log.Printf("○ Semantic detection disabled (pattern load failed: %v)", err)
			} else {
				opts = append(opts, detect.WithSemantic(sd))
				log.Println("✓ Semantic detection enabled (chromem-go + Ollama embeddings)")
			}
			cancel()
		}
	}

	if cfg.EnableONNX {
		od := detect.NewONNXDetectorWithFallback(detect.ONNXConfig{
			ModelPath:       cfg.ONNXModelPath,
			OnnxLibraryPath: cfg.ONNXLibraryPath,
		})
		if od != nil && od.IsReady() {
			opts = append(opts, detect.WithONNX(od))
			log.Println("✓ ONNX classification enabled (hugot)")
		} else {
			log.Println("○ ONNX classification disabled (model not loaded)")
		}
	}

	return detect.NewStack(opts...)
}

// buildReplier selects the reply backend, or nil for fallback-only replies.
func buildReplier(cfg *config.Config) engine.ReplyGenerator {
	if cfg.LLMProvider == "none" {
		log.Println("○ LLM replies disabled (fallback only)")
		return nil
	}
	r := reply.NewLLMReplier(reply.Config{
		Provider: reply.Provider(cfg.LLMProvider),
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
		Timeout:  cfg.ReplyTimeout,
	})
	log.Printf("✓ LLM replies enabled (provider: %s)", cfg.LLMProvider)
	return r
}

// buildSink wires escalation delivery. Both targets are optional; with
// neither configured the engine still finalizes, it just has nowhere to
// announce it.
func buildSink(ctx context.Context, cfg *config.Config) engine.EscalationSink {
	var sinks []escalate.Sink

	if cfg.WebhookURL != "" {
		var opts []escalate.WebhookOption
		if cfg.WebhookAPIKey != "" {
			opts = append(opts, escalate.WithAPIKey(cfg.WebhookAPIKey))
		}
		opts = append(opts, escalate.WithTimeout(cfg.NotifyTimeout))
		sinks = append(sinks, escalate.NewWebhookSink(cfg.WebhookURL, opts...))
		log.Println("✓ Webhook escalation enabled")
	}

	if cfg.PostgresDSN != "" {
		pg, err := escalate.NewPostgresSink(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Printf("○ Postgres escalation disabled (connect failed: %v)", err)
		} else {
			sinks = append(sinks, pg)
			log.Println("✓ Postgres escalation enabled")
		}
	}

	switch len(sinks) {
	case 0:
		log.Println("○ Escalation delivery disabled (no sink configured)")
		return nil
	case 1:
		return sinks[0]
	default:
		return escalate.NewMultiSink(sinks...)
	}
}

func buildExtractor(cfg *config.Config) *intel.Extractor {
	if cfg.KeywordsFile == "" {
		return intel.NewExtractor()
	}
	words, err := intel.LoadKeywordsFile(cfg.KeywordsFile)
	if err != nil {
		log.Printf("[WARN] keywords file %s unusable, using defaults: %v", cfg.KeywordsFile, err)
		return intel.NewExtractor()
	}
	log.Printf("[STARTUP] Loaded %d keywords from %s", len(words), cfg.KeywordsFile)
	return intel.NewExtractor(intel.WithKeywords(words))
}

func buildEngine(ctx context.Context, cfg *config.Config) *engine.Engine {
	opts := []engine.EngineOption{
		engine.WithExtractor(buildExtractor(cfg)),
		engine.WithDetector(buildDetector(cfg)),
		engine.WithFinalizePolicy(engine.MinStrongKinds(cfg.FinalizeMinArtifacts)),
		engine.WithReplyTimeout(cfg.ReplyTimeout),
		engine.WithNotifyTimeout(cfg.NotifyTimeout),
		engine.WithTelemetry(telemetry.Default()),
	}
	if r := buildReplier(cfg); r != nil {
		opts = append(opts, engine.WithReplyGenerator(r))
	}
	if s := buildSink(ctx, cfg); s != nil {
		opts = append(opts, engine.WithEscalationSink(s))
	}
	if cfg.FallbackReply != "" {
		opts = append(opts, engine.WithFallbackReply(cfg.FallbackReply))
	}
	return engine.New(buildStore(cfg), opts...)
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

// messageRequest is the inbound conversational turn.
type messageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Sender    string `json:"sender,omitempty"`
}

// agentState summarizes the session for the caller.
type agentState struct {
	Confidence             float64 `json:"confidence"`
	Finalized              bool    `json:"finalized"`
	TotalMessagesExchanged int     `json:"totalMessagesExchanged"`
}

func runHTTPServer(portArg string) {
	cfg := config.NewDefaultConfig()
	cfg.MustValidate()

	ctx := context.Background()
	eng := buildEngine(ctx, cfg)

	app := fiber.New(fiber.Config{
		AppName: "decoy",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": Version,
			"counts":  telemetry.Default().Counts(),
		})
	})

	app.Post("/message", func(c fiber.Ctx) error {
		var req messageRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.SessionID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "sessionId field is required"})
		}
		if strings.TrimSpace(req.Message) == "" {
			return c.Status(400).JSON(fiber.Map{"error": "message field is required"})
		}

		sender := session.SenderCounterpart
		if req.Sender == string(session.SenderUser) {
			sender = session.SenderUser
		}

		result, err := eng.Process(c.Context(), req.SessionID, session.Message{
			Sender:    sender,
			Text:      req.Message,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			log.Printf("[WARN] process failed for session %s: %v", req.SessionID, err)
			return c.Status(500).JSON(fiber.Map{"error": "processing failed"})
		}

		return c.JSON(fiber.Map{
			"status":                "success",
			"reply":                 result.Reply,
			"scamDetected":          result.ScamDetected,
			"extractedIntelligence": result.ExtractedIntelligence,
			"agentState": agentState{
				Confidence:             result.Confidence,
				Finalized:              result.Finalized,
				TotalMessagesExchanged: result.TotalMessagesExchanged,
			},
		})
	})

	port := portArg
	if port == "" {
		port = fmt.Sprintf("%d", cfg.Port)
	}
	log.Printf("[STARTUP] decoy v%s listening on :%s", Version, port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("[STARTUP] FATAL: server failed: %v", err)
	}
}

// ============================================================================
// CLI Scan Mode
// ============================================================================

func runCLIScan(text string) {
	cfg := config.NewDefaultConfig()

	extractor := buildExtractor(cfg)
	stack := buildDetector(cfg)

	artifacts := extractor.Extract(text, 0)
	result := stack.Assess(context.Background(), text, artifacts)

	out := map[string]any{
		"text":         text,
		"score":        result.Score,
		"scamDetected": result.Scam,
		"signals":      result.Signals,
		"artifacts":    artifacts,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode failed: %v", err)
	}
}
