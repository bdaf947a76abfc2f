package fetch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/statuswatch/internal/model"
)

// FetcherService は条件付きフェッチの実行インターフェース。
type FetcherService interface {
	// Fetch は条件付きGETを1回実行する。etagが空の場合は無条件GETになる。
	Fetch(ctx context.Context, url, etag string) (*Result, error)
}

// ParseFunc は生のレスポンスボディをペイロード内の出現順を保った
// 更新レコード列に変換する純粋関数。I/Oを行ってはならない。
type ParseFunc func(provider string, body []byte) ([]model.IncidentUpdate, error)

// Sink は1件の更新イベントを受け取る出力先のインターフェース。
// 複数のSinkを登録でき、新規レコードごとにそれぞれ独立に呼び出される。
type Sink interface {
	// Name はログとメトリクスで使うSinkの識別名を返す。
	Name() string
	// Handle は1件の更新イベントを配信する。
	Handle(ctx context.Context, update model.IncidentUpdate) error
}

// Recorder はウォッチャーの動作を記録するメトリクスのインターフェース。
type Recorder interface {
	RecordFetchSuccess(provider string)
	RecordFetchNotModified(provider string)
	RecordFetchFailure(provider string, reason string)
	RecordParseFailure(provider string)
	RecordSinkFailure(sink string)
	RecordUpdatesEmitted(provider string, count int)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
}

// nopRecorder は何も記録しないRecorder。
type nopRecorder struct{}

func (nopRecorder) RecordFetchSuccess(string)            {}
func (nopRecorder) RecordFetchNotModified(string)        {}
func (nopRecorder) RecordFetchFailure(string, string)    {}
func (nopRecorder) RecordParseFailure(string)            {}
func (nopRecorder) RecordSinkFailure(string)             {}
func (nopRecorder) RecordUpdatesEmitted(string, int)     {}
func (nopRecorder) RecordHTTPStatus(int)                 {}
func (nopRecorder) RecordFetchLatency(time.Duration)     {}

// Watcher は1つのステータスページのポーリングサイクルを所有する。
// バリデータトークン・連続失敗回数・発行済みセットからなる
// エンドポイント状態はウォッチャーだけが読み書きするため、
// ウォッチャー間のロックは不要。
//
// 1プロバイダー内ではフェッチ→パース→発行のサイクルが厳密に逐次で、
// 同一プロバイダーへのフェッチが重なることはない。
type Watcher struct {
	provider string
	url      string
	policy   Policy
	fetcher  FetcherService
	parse    ParseFunc
	differ   *Differ
	sinks    []Sink
	rec      Recorder
	logger   *slog.Logger

	// エンドポイント状態。Runを実行するgoroutineのみが触る。
	etag                string
	consecutiveFailures int
}

// NewWatcher はWatcherの新しいインスタンスを生成する。
// recにnilを渡した場合、メトリクスは記録されない。
func NewWatcher(
	provider string,
	url string,
	policy Policy,
	fetcher FetcherService,
	parse ParseFunc,
	sinks []Sink,
	rec Recorder,
	logger *slog.Logger,
) *Watcher {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Watcher{
		provider: provider,
		url:      url,
		policy:   policy.Normalized(),
		fetcher:  fetcher,
		parse:    parse,
		differ:   NewDiffer(),
		sinks:    sinks,
		rec:      rec,
		logger: logger.With(
			slog.String("provider", provider),
		),
	}
}

// Run はctxがキャンセルされるまでポーリングループを実行する。
// 起動直後に1回フェッチし、以後はサイクルの結果に応じた遅延を挟んで繰り返す。
// 遅延中・フェッチ中のどちらでもキャンセルに即座に応答する。
// キャンセル時点で進行中のSink呼び出しは完了まで待つ
// （中断チェックはサイクルの区切りでのみ行う）。
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("ウォッチャーを開始しました",
		slog.String("url", w.url),
		slog.Duration("poll_interval", w.policy.PollInterval),
	)

	for {
		delay := w.cycle(ctx)

		if ctx.Err() != nil {
			w.logger.Info("ウォッチャーを停止しました")
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("ウォッチャーを停止しました")
			return
		case <-timer.C:
		}
	}
}

// ConsecutiveFailures は現在の連続失敗回数を返す。
func (w *Watcher) ConsecutiveFailures() int {
	return w.consecutiveFailures
}

// cycle はフェッチ→パース→差分検出→発行のサイクルを1回実行し、
// 次のサイクルまでの遅延を返す。
// サイクルの成功（304またはパース・発行完了）で連続失敗回数を0に戻し、
// フェッチ失敗・パース失敗で1増やす。
func (w *Watcher) cycle(ctx context.Context) time.Duration {
	start := time.Now()

	res, err := w.fetcher.Fetch(ctx, w.url, w.etag)
	w.rec.RecordFetchLatency(time.Since(start))

	if err != nil {
		// キャンセルによる中断はバックオフの対象にしない
		if ctx.Err() != nil {
			return 0
		}
		return w.backOff(err)
	}

	w.rec.RecordHTTPStatus(res.StatusCode)

	if res.NotModified {
		// 304: パースも差分検出も行わない
		w.consecutiveFailures = 0
		w.rec.RecordFetchNotModified(w.provider)
		w.logger.Debug("304 Not Modified - 新しい更新はありません")
		return w.policy.NextDelay(0)
	}

	// バリデータトークンはパースの前に保存する。
	// この後ボディが不正だったとしても、リソースが変わったこと自体は
	// 確定しているため、トークンを破棄してはならない。
	if res.ETag != "" {
		w.etag = res.ETag
	}

	updates, err := w.parse(w.provider, res.Body)
	if err != nil {
		w.rec.RecordParseFailure(w.provider)
		return w.backOff(err)
	}

	novel := w.differ.Diff(updates)
	if len(novel) > 0 {
		w.logger.Info("新しい更新を検出しました",
			slog.Int("novel_count", len(novel)),
			slog.Int("total_count", len(updates)),
			slog.Int("seen_count", w.differ.SeenCount()),
		)
		for _, u := range novel {
			w.emit(ctx, u)
		}
		w.rec.RecordUpdatesEmitted(w.provider, len(novel))
	} else {
		w.logger.Debug("更新はすべて発行済みです",
			slog.Int("total_count", len(updates)),
		)
	}

	w.consecutiveFailures = 0
	w.rec.RecordFetchSuccess(w.provider)
	return w.policy.NextDelay(0)
}

// backOff は失敗を記録して連続失敗回数を1増やし、バックオフ遅延を返す。
func (w *Watcher) backOff(err error) time.Duration {
	w.consecutiveFailures++

	reason := failureReason(err)
	if reason != "parse" {
		w.rec.RecordFetchFailure(w.provider, reason)
	}

	delay := w.policy.NextDelay(w.consecutiveFailures)
	w.logger.Warn("サイクルに失敗しました。バックオフします",
		slog.String("reason", reason),
		slog.String("error", err.Error()),
		slog.Int("consecutive_failures", w.consecutiveFailures),
		slog.Duration("retry_in", delay),
	)
	return delay
}

// emit は1件の新規レコードを全Sinkへ順に配信する。
// Sinkの失敗はログとメトリクスに記録するのみで、他のSinkへの配信や
// サイクルの成否には影響しない。Sink呼び出しを試みた時点で
// そのレコードは発行済みとして扱われる（高々1回の配信）。
func (w *Watcher) emit(ctx context.Context, u model.IncidentUpdate) {
	for _, s := range w.sinks {
		if err := s.Handle(ctx, u); err != nil {
			w.rec.RecordSinkFailure(s.Name())
			w.logger.Error("Sinkへの配信に失敗しました",
				slog.String("sink", s.Name()),
				slog.String("incident_id", u.IncidentID),
				slog.String("update_id", u.UpdateID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// failureReason はエラーの分類名を返す。メトリクスのラベルに使う。
func failureReason(err error) string {
	var fe *model.FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	var pe *model.ParseError
	if errors.As(err, &pe) {
		return "parse"
	}
	return "unknown"
}
