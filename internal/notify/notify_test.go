package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oszuidwest/zwfm-vumeter/internal/config"
	"github.com/oszuidwest/zwfm-vumeter/internal/meter"
)

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []WebhookPayload
}

func (r *webhookRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var p WebhookPayload
		if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		if ct := req.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		r.mu.Lock()
		r.payloads = append(r.payloads, p)
		r.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (r *webhookRecorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.payloads {
		out = append(out, p.Event)
	}
	return out
}

func TestSendWebhook(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	if err := SendSilenceWebhook(srv.URL, "default", 15, -19); err != nil {
		t.Fatalf("SendSilenceWebhook() = %v", err)
	}
	if got := rec.payloads[0]; got.SourceID != "default" || got.SilenceDuration != 15 || got.Threshold != -19 {
		t.Errorf("payload = %+v", got)
	}

	if err := sendWebhook("", WebhookPayload{}); err != nil {
		t.Errorf("unconfigured webhook returned %v", err)
	}
	if err := SendTestWebhook(""); err == nil {
		t.Error("SendTestWebhook accepted an empty URL")
	}
}

func TestSendWebhookStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := SendTestWebhook(srv.URL); err == nil {
		t.Error("expected error for a 500 response")
	}
}

func TestSilenceLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.jsonl")

	if err := LogSilenceStart(path, "default", -19); err != nil {
		t.Fatal(err)
	}
	if err := LogSilenceEnd(path, "default", 42.5, -19); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := WriteTestLog(path); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadSilenceLog(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Event != EventTest || entries[2].Event != EventSilenceStart {
		t.Errorf("entries not newest first: %+v", entries)
	}
	if entries[1].DurationSec != 42.5 || entries[1].SourceID != "default" {
		t.Errorf("end entry = %+v", entries[1])
	}
}

func TestReadSilenceLogMissing(t *testing.T) {
	entries, err := ReadSilenceLog(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil || len(entries) != 0 {
		t.Errorf("ReadSilenceLog() = %v, %v", entries, err)
	}
	if _, err := ReadSilenceLog(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestSilenceNotifier(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	dir := t.TempDir()
	cfg := config.New(filepath.Join(dir, "config.json"))
	if err := cfg.SetWebhookURL(srv.URL); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(dir, "silence.jsonl")
	if err := cfg.SetLogPath(logPath); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetAudioInput("default:CARD=PCH"); err != nil {
		t.Fatal(err)
	}

	n := NewSilenceNotifier(cfg)
	n.HandleEvent(meter.SilenceEvent{InSilence: true, JustEntered: true, Duration: 15})
	n.HandleEvent(meter.SilenceEvent{InSilence: true, JustEntered: true, Duration: 16})
	n.Wait()

	if got := rec.events(); len(got) != 1 || got[0] != "silence_detected" {
		t.Fatalf("events after entering silence = %v", got)
	}

	n.HandleEvent(meter.SilenceEvent{JustRecovered: true, TotalDuration: 20})
	n.Wait()

	if got := rec.events(); len(got) != 2 || got[1] != "silence_recovered" {
		t.Errorf("events after recovery = %v", got)
	}

	entries, err := ReadSilenceLog(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Event != EventSilenceEnd || entries[0].SourceID != "default:CARD=PCH" {
		t.Errorf("log entries = %+v", entries)
	}

	// Recovery without a reported silence sends nothing.
	n.HandleEvent(meter.SilenceEvent{JustRecovered: true, TotalDuration: 1})
	n.Wait()
	if got := rec.events(); len(got) != 2 {
		t.Errorf("unexpected recovery notification: %v", got)
	}
}

func TestParseRecipients(t *testing.T) {
	got := parseRecipients(" a@example.com, ,b@example.com,")
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Errorf("parseRecipients() = %v", got)
	}
}
