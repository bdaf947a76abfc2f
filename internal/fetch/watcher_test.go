package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/statuswatch/internal/model"
)

// fetchStep はscriptedFetcherが順に返す結果の1件。
type fetchStep struct {
	res *Result
	err error
}

// scriptedFetcher はFetcherServiceのテスト用モック。
// 事前に与えたステップを順に返し、渡されたetagを記録する。
type scriptedFetcher struct {
	steps []fetchStep
	calls int
	etags []string
}

func (f *scriptedFetcher) Fetch(_ context.Context, _, etag string) (*Result, error) {
	f.etags = append(f.etags, etag)
	step := f.steps[len(f.steps)-1]
	if f.calls < len(f.steps) {
		step = f.steps[f.calls]
	}
	f.calls++
	return step.res, step.err
}

// recordSink は受け取った更新を記録するSinkのテスト用モック。
type recordSink struct {
	mu      sync.Mutex
	name    string
	handled []model.IncidentUpdate
	err     error
}

func (s *recordSink) Name() string { return s.name }

func (s *recordSink) Handle(_ context.Context, u model.IncidentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handled = append(s.handled, u)
	return s.err
}

func (s *recordSink) handledIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.handled))
	for _, u := range s.handled {
		out = append(out, u.UpdateID)
	}
	return out
}

// passParser はボディを無視して固定の更新列を返すParseFunc を作る。
func passParser(calls *int, results ...[]model.IncidentUpdate) ParseFunc {
	i := 0
	return func(provider string, _ []byte) ([]model.IncidentUpdate, error) {
		*calls++
		r := results[len(results)-1]
		if i < len(results) {
			r = results[i]
		}
		i++
		return r, nil
	}
}

func failParser(calls *int) ParseFunc {
	return func(provider string, _ []byte) ([]model.IncidentUpdate, error) {
		*calls++
		return nil, model.NewParseError(provider, errors.New("unexpected end of JSON input"))
	}
}

func newTestWatcher(f FetcherService, parse ParseFunc, sinks ...Sink) *Watcher {
	var buf bytes.Buffer
	return NewWatcher(
		"openai",
		"https://status.example.com/api/v2/incidents.json",
		Policy{
			PollInterval: 30 * time.Second,
			FailureDelay: 10 * time.Second,
			MaxDelay:     300 * time.Second,
		},
		f, parse, sinks, nil, newTestLogger(&buf),
	)
}

func fetched(body, etag string) fetchStep {
	return fetchStep{res: &Result{Body: []byte(body), ETag: etag, StatusCode: 200}}
}

func notModified() fetchStep {
	return fetchStep{res: &Result{NotModified: true, StatusCode: 304}}
}

func failed() fetchStep {
	return fetchStep{err: model.NewNetworkError("https://status.example.com", errors.New("connection refused"))}
}

func TestWatcher_FirstCycleEmitsAllUpdatesInOrder(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{fetched(`{}`, `"e1"`)}}
	var parseCalls int
	s := &recordSink{name: "record"}
	w := newTestWatcher(f, passParser(&parseCalls, updates("u1", "u2")), s)

	delay := w.cycle(context.Background())

	got := s.handledIDs()
	if len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
		t.Errorf("emitted = %v, want [u1 u2]", got)
	}
	if w.ConsecutiveFailures() != 0 {
		t.Errorf("consecutiveFailures = %d, want 0", w.ConsecutiveFailures())
	}
	if delay != 30*time.Second {
		t.Errorf("delay = %v, want 30s（基本ポーリング間隔）", delay)
	}
	if w.differ.SeenCount() != 2 {
		t.Errorf("SeenCount = %d, want 2", w.differ.SeenCount())
	}
}

func TestWatcher_NotModifiedSkipsParserAndDiffer(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		fetched(`{}`, `"e1"`),
		notModified(),
	}}
	var parseCalls int
	s := &recordSink{name: "record"}
	w := newTestWatcher(f, passParser(&parseCalls, updates("u1", "u2")), s)

	ctx := context.Background()
	w.cycle(ctx)
	delay := w.cycle(ctx)

	if parseCalls != 1 {
		t.Errorf("304サイクルでパーサーを呼んではならない: parseCalls = %d, want 1", parseCalls)
	}
	if got := s.handledIDs(); len(got) != 2 {
		t.Errorf("304サイクルで新しい発行があってはならない: emitted = %v", got)
	}
	if delay != 30*time.Second {
		t.Errorf("304後のdelay = %v, want 30s（基本間隔にリセット）", delay)
	}
	if w.ConsecutiveFailures() != 0 {
		t.Errorf("consecutiveFailures = %d, want 0", w.ConsecutiveFailures())
	}
}

func TestWatcher_ValidatorTokenRoundTrip(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		fetched(`{}`, `"e1"`),
		notModified(),
	}}
	var parseCalls int
	w := newTestWatcher(f, passParser(&parseCalls, nil))

	ctx := context.Background()
	w.cycle(ctx)
	w.cycle(ctx)

	if f.etags[0] != "" {
		t.Errorf("初回はトークンなしでフェッチすべき, got %q", f.etags[0])
	}
	if f.etags[1] != `"e1"` {
		t.Errorf("2回目は保存済みトークンを送るべき, got %q", f.etags[1])
	}
}

func TestWatcher_ConsecutiveFailuresBackoffSequence(t *testing.T) {
	// base_failure_delay=10s, max=300s で3連続失敗 → 10s, 20s, 40s
	f := &scriptedFetcher{steps: []fetchStep{failed(), failed(), failed()}}
	var parseCalls int
	w := newTestWatcher(f, passParser(&parseCalls, nil))

	ctx := context.Background()
	want := []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second}
	for i, d := range want {
		got := w.cycle(ctx)
		if got != d {
			t.Errorf("cycle %d: delay = %v, want %v", i+1, got, d)
		}
		if w.ConsecutiveFailures() != i+1 {
			t.Errorf("cycle %d: consecutiveFailures = %d, want %d", i+1, w.ConsecutiveFailures(), i+1)
		}
	}
	if parseCalls != 0 {
		t.Errorf("フェッチ失敗時にパーサーを呼んではならない: parseCalls = %d", parseCalls)
	}
}

func TestWatcher_SuccessResetsFailureCount(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{failed(), failed(), notModified()}}
	var parseCalls int
	w := newTestWatcher(f, passParser(&parseCalls, nil))

	ctx := context.Background()
	w.cycle(ctx)
	w.cycle(ctx)
	delay := w.cycle(ctx)

	if w.ConsecutiveFailures() != 0 {
		t.Errorf("成功サイクル後のconsecutiveFailures = %d, want 0", w.ConsecutiveFailures())
	}
	if delay != 30*time.Second {
		t.Errorf("delay = %v, want 30s", delay)
	}
}

func TestWatcher_ParseFailureBacksOffButKeepsToken(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		fetched(`not json`, `"e1"`),
		failed(),
	}}
	var parseCalls int
	w := newTestWatcher(f, failParser(&parseCalls))

	ctx := context.Background()
	delay := w.cycle(ctx)

	if parseCalls != 1 {
		t.Fatalf("parseCalls = %d, want 1", parseCalls)
	}
	if w.ConsecutiveFailures() != 1 {
		t.Errorf("パース失敗はフェッチ失敗と同様に数えるべき: consecutiveFailures = %d", w.ConsecutiveFailures())
	}
	if delay != 10*time.Second {
		t.Errorf("delay = %v, want 10s", delay)
	}
	// 不正なボディでもリソースが変わった事実は確定しているため、
	// トークンは破棄されず次のフェッチで送られる
	w.cycle(ctx)
	if f.etags[1] != `"e1"` {
		t.Errorf("パース失敗後もトークンを保持すべき, got %q", f.etags[1])
	}
}

func TestWatcher_SinkFailureDoesNotAffectOtherSinksOrCycle(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{fetched(`{}`, "")}}
	var parseCalls int
	bad := &recordSink{name: "bad", err: errors.New("delivery refused")}
	good := &recordSink{name: "good"}
	w := newTestWatcher(f, passParser(&parseCalls, updates("u1", "u2")), bad, good)

	delay := w.cycle(context.Background())

	if got := good.handledIDs(); len(got) != 2 || got[1] != "u2" {
		t.Errorf("片方のSinkの失敗は他のSinkへの配信を妨げてはならない: good = %v", got)
	}
	if w.ConsecutiveFailures() != 0 {
		t.Errorf("Sink失敗はサイクルの失敗として数えてはならない: consecutiveFailures = %d", w.ConsecutiveFailures())
	}
	if delay != 30*time.Second {
		t.Errorf("delay = %v, want 30s", delay)
	}
	// Sinkが失敗しても発行済みとして記録される（高々1回の配信）
	again := w.differ.Diff(updates("u1", "u2"))
	if len(again) != 0 {
		t.Errorf("Sink失敗したレコードも発行済み扱いであるべき, got %v", ids(again))
	}
}

func TestWatcher_RunStopsPromptlyOnCancel(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{notModified()}}
	var parseCalls int
	w := newTestWatcher(f, passParser(&parseCalls, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// 最初のサイクル完了後、30秒の待機中にキャンセルする
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("キャンセル後1秒以内にRunが戻るべき")
	}
}

func TestWatcher_RunDoesNotCycleAfterCancel(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{notModified()}}
	var parseCalls int
	w := newTestWatcher(f, passParser(&parseCalls, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("キャンセル済みコンテキストではRunが即座に戻るべき")
	}
	if f.calls > 1 {
		t.Errorf("キャンセル後に追加のサイクルを実行してはならない: calls = %d", f.calls)
	}
}

func TestWatcher_UnchangedScenarioEndToEnd(t *testing.T) {
	// シナリオ: 初回 [u1,u2] → 発行。2回目 304 → パーサー・差分検出とも呼ばれない。
	f := &scriptedFetcher{steps: []fetchStep{
		fetched(`{}`, `"e1"`),
		notModified(),
	}}
	var parseCalls int
	s := &recordSink{name: "record"}
	w := newTestWatcher(f, passParser(&parseCalls, updates("u1", "u2")), s)

	ctx := context.Background()
	w.cycle(ctx)
	w.cycle(ctx)

	if got := s.handledIDs(); fmt.Sprint(got) != "[u1 u2]" {
		t.Errorf("emitted = %v, want [u1 u2]", got)
	}
	if parseCalls != 1 {
		t.Errorf("parseCalls = %d, want 1", parseCalls)
	}
	if w.differ.SeenCount() != 2 {
		t.Errorf("SeenCount = %d, want 2", w.differ.SeenCount())
	}
}
