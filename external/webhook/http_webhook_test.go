package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foxseedlab/mixerd/internal/webhook"
)

func TestSendMixerClosed_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	if err := sender.SendMixerClosed(context.Background(), webhook.MixerClosedPayload{MixerID: "m1"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSendMixerClosed_Success(t *testing.T) {
	var got webhook.MixerClosedPayload
	var event, delivery string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		event = r.Header.Get(eventHeader)
		delivery = r.Header.Get(deliveryHeader)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	closedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sender := NewHTTPSender(server.URL)
	payload := webhook.MixerClosedPayload{
		RouterID:          "r1",
		MixerID:           "m1",
		PrimaryProducerID: "p1",
		ProducerIDs:       []string{"p1", "p2"},
		CreatedAt:         closedAt.Add(-time.Minute),
		ClosedAt:          closedAt,
		DurationSeconds:   60,
	}
	if err := sender.SendMixerClosed(context.Background(), payload); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if event != webhook.EventMixerClosed || delivery != "m1" {
		t.Fatalf("unexpected headers: event=%q delivery=%q", event, delivery)
	}
	if got.Event != webhook.EventMixerClosed || got.MixerID != "m1" || got.PrimaryProducerID != "p1" || len(got.ProducerIDs) != 2 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if !got.ClosedAt.Equal(closedAt) {
		t.Fatalf("unexpected closed_at: %v", got.ClosedAt)
	}
}

func TestSendMixerClosed_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, WithRetry(3, 0))
	if err := sender.SendMixerClosed(context.Background(), webhook.MixerClosedPayload{MixerID: "m1"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 attempt, got %d", n)
	}
}

func TestSendMixerClosed_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, WithRetry(3, 0))
	if err := sender.SendMixerClosed(context.Background(), webhook.MixerClosedPayload{MixerID: "m1"}); err != nil {
		t.Fatalf("expected delivery on third attempt, got %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestSendMixerClosed_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, WithRetry(2, 0))
	if err := sender.SendMixerClosed(context.Background(), webhook.MixerClosedPayload{MixerID: "m1"}); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestSendMixerClosed_CanceledWhileBackingOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sender := NewHTTPSender(server.URL, WithRetry(5, time.Minute))
	start := time.Now()
	if err := sender.SendMixerClosed(ctx, webhook.MixerClosedPayload{MixerID: "m1"}); err == nil {
		t.Fatal("expected error when context ends during backoff")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("backoff ignored context: %v", elapsed)
	}
}
