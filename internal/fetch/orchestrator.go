package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultShutdownTimeout はグレースフルシャットダウンの待機上限のデフォルト値。
const DefaultShutdownTimeout = 10 * time.Second

// Orchestrator は設定されたプロバイダーごとに独立したウォッチャーを起動し、
// 全体のライフサイクルを管理する。
// ウォッチャー同士は可変状態を共有しない。
type Orchestrator struct {
	watchers        []*Watcher
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
// shutdownTimeoutが0以下の場合はDefaultShutdownTimeoutを使用する。
func NewOrchestrator(watchers []*Watcher, logger *slog.Logger, shutdownTimeout time.Duration) *Orchestrator {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Orchestrator{
		watchers:        watchers,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run は全ウォッチャーをgoroutineで起動し、ctxのキャンセルまでブロックする。
// キャンセル後は全ウォッチャーの停止をshutdownTimeoutまで待ち、
// 超過した場合は残りを放棄してエラーを返す。
// 1つのウォッチャーのpanicは回復してログに記録し、
// 他のウォッチャーとオーケストレーター自身には影響させない。
func (o *Orchestrator) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, w := range o.watchers {
		wg.Add(1)
		go func(w *Watcher) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("ウォッチャーがpanicにより終了しました",
						slog.String("provider", w.provider),
						slog.Any("panic", r),
					)
				}
			}()
			w.Run(ctx)
		}(w)
	}

	o.logger.Info("オーケストレーターを開始しました",
		slog.Int("watcher_count", len(o.watchers)),
	)

	<-ctx.Done()
	o.logger.Info("シャットダウンを開始します")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("全ウォッチャーが停止しました")
		return nil
	case <-time.After(o.shutdownTimeout):
		o.logger.Warn("シャットダウンがタイムアウトしました。残りのウォッチャーを放棄します",
			slog.Duration("timeout", o.shutdownTimeout),
		)
		return fmt.Errorf("シャットダウンが%v以内に完了しませんでした", o.shutdownTimeout)
	}
}

// WatcherCount は管理しているウォッチャー数を返す。
func (o *Orchestrator) WatcherCount() int {
	return len(o.watchers)
}
