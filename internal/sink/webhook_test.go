package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/statuswatch/internal/model"
)

func newTestWebhookSink(url string) *WebhookSink {
	s := NewWebhookSink(url, nil, 1000)
	s.now = func() time.Time {
		return time.Date(2026, 2, 21, 12, 40, 0, 0, time.UTC)
	}
	s.newID = func() string {
		return "evt-fixed"
	}
	return s
}

func TestWebhookSink_PostsEventJSON(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newTestWebhookSink(server.URL)
	if err := s.Handle(context.Background(), sampleUpdate()); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if payload["event_id"] != "evt-fixed" {
		t.Errorf("event_id = %v, want evt-fixed", payload["event_id"])
	}
	if payload["provider"] != "OpenAI" {
		t.Errorf("provider = %v, want OpenAI", payload["provider"])
	}
	if payload["update_id"] != "u1" {
		t.Errorf("update_id = %v, want u1", payload["update_id"])
	}
	if payload["status"] != "identified" {
		t.Errorf("status = %v, want identified", payload["status"])
	}
	if payload["emitted_at"] != "2026-02-21T12:40:00Z" {
		t.Errorf("emitted_at = %v", payload["emitted_at"])
	}
}

func TestWebhookSink_Non2xxReturnsSinkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := newTestWebhookSink(server.URL)
	err := s.Handle(context.Background(), sampleUpdate())
	if err == nil {
		t.Fatal("2xx以外のレスポンスにはエラーを返すべき")
	}
	var se *model.SinkError
	if !errors.As(err, &se) {
		t.Fatalf("*model.SinkErrorを返すべき, got %T", err)
	}
	if se.Sink != "webhook" {
		t.Errorf("Sink = %q, want webhook", se.Sink)
	}
}

func TestWebhookSink_UnreachableEndpointReturnsSinkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close() // 接続拒否を起こす

	s := newTestWebhookSink(server.URL)
	err := s.Handle(context.Background(), sampleUpdate())
	if err == nil {
		t.Fatal("接続失敗時はエラーを返すべき")
	}
	var se *model.SinkError
	if !errors.As(err, &se) {
		t.Fatalf("*model.SinkErrorを返すべき, got %T", err)
	}
}

func TestWebhookSink_CancelledContextStopsDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// レート0.001/秒・バースト1: 2件目のWaitがブロックし、
	// キャンセルで即座に抜けることを確認する
	s := newTestWebhookSink(server.URL)
	s.limiter.SetLimit(0.001)
	s.limiter.SetBurst(1)

	if err := s.Handle(context.Background(), sampleUpdate()); err != nil {
		t.Fatalf("first Handle error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Handle(ctx, sampleUpdate())
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("キャンセル時はエラーを返すべき")
		}
	case <-time.After(time.Second):
		t.Fatal("Handle should return promptly after cancellation")
	}
}

func TestWebhookSink_Name(t *testing.T) {
	if got := NewWebhookSink("http://example.com", nil, 0).Name(); got != "webhook" {
		t.Errorf("Name() = %q, want webhook", got)
	}
}
