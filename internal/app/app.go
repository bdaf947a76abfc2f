// Package app はアプリケーションの初期化と起動を行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/statuswatch/internal/config"
	"github.com/hitoshi/statuswatch/internal/fetch"
	"github.com/hitoshi/statuswatch/internal/handler"
	"github.com/hitoshi/statuswatch/internal/logger"
	"github.com/hitoshi/statuswatch/internal/metrics"
	"github.com/hitoshi/statuswatch/internal/security"
	"github.com/hitoshi/statuswatch/internal/sink"
	"github.com/hitoshi/statuswatch/internal/statuspage"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// ログレベルは設定読み込み前に必要なため環境変数を直接参照する
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("providers_file", cfg.ProvidersFile),
		slog.String("port", cfg.ServerPort),
	)

	return runWatch(cfg)
}

// runWatch は監視モードで起動する。
// プロバイダー一覧を読み込み、全依存関係をワイヤリングして
// オーケストレーターを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runWatch(cfg *config.Config) error {
	// 1. プロバイダー一覧の読み込み
	providers, err := config.LoadProviders(cfg.ProvidersFile)
	if err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}

	// 2. セキュリティ・パーサー・メトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewBodySanitizer()
	parser := statuspage.NewParser(sanitizer)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. Sinkの構築（コンソールは常時、他は設定がある場合のみ）
	sinks := buildSinks(cfg)

	// 4. フェッチクライアントの初期化
	// クライアントは状態を持たないため全ウォッチャーで共有する
	client := fetch.NewClient(
		ssrfGuard.NewSafeClient(cfg.FetchTimeout),
		slog.Default(),
		cfg.FetchMaxSize,
	)

	// 5. ウォッチャーの構築
	// 1プロバイダーの設定不備はそのプロバイダーの無効化にとどめ、
	// 他のプロバイダーの監視には影響させない
	watchers := make([]*fetch.Watcher, 0, len(providers))
	for _, p := range providers {
		if err := ssrfGuard.ValidateURL(p.URL); err != nil {
			slog.Error("プロバイダーのURLが不正なため監視をスキップします",
				slog.String("provider", p.ID),
				slog.String("url", p.URL),
				slog.String("error", err.Error()),
			)
			continue
		}

		policy := fetch.Policy{
			PollInterval: orDefault(p.PollInterval, cfg.PollInterval),
			FailureDelay: orDefault(p.FailureDelay, cfg.FailureDelay),
			MaxDelay:     orDefault(p.MaxDelay, cfg.MaxDelay),
		}

		watchers = append(watchers, fetch.NewWatcher(
			p.ID, p.URL, policy,
			client, parser.Parse, sinks, collector, slog.Default(),
		))
	}

	if len(watchers) == 0 {
		return fmt.Errorf("起動可能なウォッチャーがありません")
	}

	orch := fetch.NewOrchestrator(watchers, slog.Default(), cfg.ShutdownTimeout)

	// 6. 運用系HTTPサーバーの起動
	router := handler.NewRouter(&handler.RouterDeps{
		Gatherer: registry,
		Reporter: orch,
	})
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		slog.Info("ops server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-stop
		slog.Info("shutting down...", slog.String("signal", sig.String()))
		cancel()
	}()

	// オーケストレーターをメインgoroutineで実行（ブロッキング）
	runErr := orch.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.String("error", err.Error()))
	}

	closeSinks(sinks)

	if runErr != nil {
		return runErr
	}
	slog.Info("stopped gracefully")
	return nil
}

// buildSinks は設定に応じた出力先の集合を構築する。
func buildSinks(cfg *config.Config) []fetch.Sink {
	sinks := []fetch.Sink{sink.NewConsoleSink(nil)}

	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		sinks = append(sinks, sink.NewSlackSink(cfg.SlackToken, cfg.SlackChannel))
		slog.Info("Slack通知を有効化しました", slog.String("channel", cfg.SlackChannel))
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, sink.NewWebhookSink(cfg.WebhookURL, nil, cfg.WebhookRate))
		slog.Info("Webhook通知を有効化しました")
	}
	if cfg.EventLogFile != "" {
		sinks = append(sinks, sink.NewFileSink(cfg.EventLogFile))
		slog.Info("イベントログ出力を有効化しました", slog.String("path", cfg.EventLogFile))
	}

	return sinks
}

// closeSinks はCloserを実装するSinkを閉じる。
func closeSinks(sinks []fetch.Sink) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Error("Sinkのクローズに失敗しました",
					slog.String("sink", s.Name()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// orDefault はdが0の場合にデフォルト値を返す。
func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// runHealthcheck はヘルスチェックを実行する。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
