package escalate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/lurewire/decoy/pkg/intel"
	"github.com/lurewire/decoy/pkg/session"
)

func sampleReport() *Report {
	s := session.New("s1")
	s.Append(session.Message{Sender: session.SenderCounterpart, Text: "pay abc@upi"})
	s.Artifacts.Add(intel.Artifact{Kind: intel.KindPaymentHandle, Value: "abc@upi"})
	s.MarkScam(true, 0.65)
	return NewReport(s, "test notes")
}

func TestWebhookDeliversPayload(t *testing.T) {
	var gotBody []byte
	var gotKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, WithAPIKey("secret-key"))
	report := sampleReport()
	if err := sink.Notify(context.Background(), report); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if gotKey != "secret-key" {
		t.Errorf("x-api-key = %q, want secret-key", gotKey)
	}

	var decoded map[string]any
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["sessionId"] != "s1" {
		t.Errorf("sessionId = %v, want s1", decoded["sessionId"])
	}
	if decoded["scamDetected"] != true {
		t.Errorf("scamDetected = %v, want true", decoded["scamDetected"])
	}
	if decoded["reportId"] != report.ReportID {
		t.Errorf("reportId = %v, want %s", decoded["reportId"], report.ReportID)
	}
	ei, ok := decoded["extractedIntelligence"].(map[string]any)
	if !ok {
		t.Fatalf("extractedIntelligence = %v", decoded["extractedIntelligence"])
	}
	upis, _ := ei["upiIds"].([]any)
	if len(upis) != 1 || upis[0] != "abc@upi" {
		t.Errorf("upiIds = %v, want [abc@upi]", upis)
	}
}

func TestWebhookErrorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", 200, false},
		{"accepted", 202, false},
		{"bad request", 400, true},
		{"unauthorized", 401, true},
		{"server error", 500, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			sink := NewWebhookSink(server.URL)
			err := sink.Notify(context.Background(), sampleReport())
			if (err != nil) != tt.wantErr {
				t.Errorf("Notify with status %d: err = %v, wantErr %v", tt.status, err, tt.wantErr)
			}
		})
	}
}

func TestWebhookUnreachable(t *testing.T) {
	sink := NewWebhookSink("http://127.0.0.1:1/nope")
	if err := sink.Notify(context.Background(), sampleReport()); err == nil {
		t.Error("expected delivery error for unreachable endpoint")
	}
}

func TestMultiSinkFanOut(t *testing.T) {
	var okCalls, failCalls atomic.Int32

	ok := sinkFunc(func(context.Context, *Report) error {
		okCalls.Add(1)
		return nil
	})
	fail := sinkFunc(func(context.Context, *Report) error {
		failCalls.Add(1)
		return errors.New("down")
	})

	multi := NewMultiSink(ok, fail, nil, ok)
	err := multi.Notify(context.Background(), sampleReport())
	if err == nil {
		t.Error("one failing sink must surface an error")
	}
	if okCalls.Load() != 2 {
		t.Errorf("ok sink called %d times, want 2", okCalls.Load())
	}
	if failCalls.Load() != 1 {
		t.Errorf("failing sink called %d times, want 1 (no short-circuit skip)", failCalls.Load())
	}
}

// sinkFunc adapts a function to the Sink interface for tests.
type sinkFunc func(ctx context.Context, report *Report) error

func (f sinkFunc) Notify(ctx context.Context, report *Report) error { return f(ctx, report) }
