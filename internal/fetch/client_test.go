package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/statuswatch/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestClient(buf *bytes.Buffer) *Client {
	return NewClient(&http.Client{Timeout: 5 * time.Second}, newTestLogger(buf), 5*1024*1024)
}

func TestClient_Fetch_Success200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("If-None-Match"); got != "" {
			t.Errorf("初回フェッチでIf-None-Matchを送ってはならない, got %q", got)
		}
		w.Header().Set("ETag", `"abc123"`)
		fmt.Fprint(w, `{"incidents":[]}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(&buf)

	res, err := c.Fetch(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if res.NotModified {
		t.Error("200はNotModified=falseであるべき")
	}
	if res.ETag != `"abc123"` {
		t.Errorf("ETag = %q, want %q", res.ETag, `"abc123"`)
	}
	if string(res.Body) != `{"incidents":[]}` {
		t.Errorf("Body = %q", res.Body)
	}
	if res.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
}

func TestClient_Fetch_SendsValidatorToken(t *testing.T) {
	var gotETag string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(&buf)

	res, err := c.Fetch(context.Background(), server.URL, `"abc123"`)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if gotETag != `"abc123"` {
		t.Errorf("If-None-Match = %q, want %q", gotETag, `"abc123"`)
	}
	if !res.NotModified {
		t.Error("304はNotModified=trueを返すべき")
	}
	if len(res.Body) != 0 {
		t.Errorf("304にボディがあってはならない, got %q", res.Body)
	}
}

func TestClient_Fetch_ProtocolErrorOn500(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(&buf)

	_, err := c.Fetch(context.Background(), server.URL, "")
	var fe *model.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("*model.FetchErrorを返すべき, got %T: %v", err, err)
	}
	if fe.Kind != model.FetchErrorProtocol {
		t.Errorf("Kind = %q, want protocol", fe.Kind)
	}
	if fe.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", fe.StatusCode)
	}
}

func TestClient_Fetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // 即座に閉じて接続失敗させる

	var buf bytes.Buffer
	c := newTestClient(&buf)

	_, err := c.Fetch(context.Background(), server.URL, "")
	var fe *model.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("*model.FetchErrorを返すべき, got %T: %v", err, err)
	}
	if fe.Kind != model.FetchErrorNetwork {
		t.Errorf("Kind = %q, want network", fe.Kind)
	}
}

func TestClient_Fetch_CancelledContext(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	var buf bytes.Buffer
	c := newTestClient(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Fetch(ctx, server.URL, "")
	if err == nil {
		t.Fatal("キャンセル時はエラーを返すべき")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("キャンセルへの応答が遅すぎる: %v", elapsed)
	}
}

func TestClient_Fetch_BodySizeLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"incidents":[], "padding":"0123456789"}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(&http.Client{Timeout: 5 * time.Second}, newTestLogger(&buf), 10)

	res, err := c.Fetch(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(res.Body) != 10 {
		t.Errorf("ボディは最大サイズで切り詰められるべき, got %d bytes", len(res.Body))
	}
}
