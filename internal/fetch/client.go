// Package fetch はステータスページの監視ループを提供する。
// 条件付きフェッチ、バックオフポリシー、新規性検出、
// プロバイダーごとのウォッチャーとオーケストレーターを含む。
package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/statuswatch/internal/model"
)

// Result は1回の条件付きフェッチの成功結果を表す。
type Result struct {
	// NotModified はサーバーが304で未変更を通知した場合にtrue。
	// このときBodyとETagは空で、パースも差分検出も行う必要がない。
	NotModified bool
	// Body はレスポンスボディ。NotModifiedの場合はnil。
	Body []byte
	// ETag はレスポンスのETagヘッダー。空の場合、呼び出し元は
	// 保持しているトークンを維持する。
	ETag string
	// StatusCode はHTTPステータスコード。
	StatusCode int
}

// Client はETagを使った条件付きHTTP GETを行う。
// 自身は状態を持たず、バリデータトークンの保持は呼び出し元の責務。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	maxBodySize int64
	userAgent   string
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはSSRF防止機能付きのクライアントを渡すことを想定している。
func NewClient(httpClient *http.Client, logger *slog.Logger, maxBodySize int64) *Client {
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		maxBodySize: maxBodySize,
		userAgent:   "statuswatch/1.0 status-page monitor",
	}
}

// Fetch は条件付きGETを1回実行する。
// etagが空でない場合はIf-None-Matchヘッダーとして送信し、
// リソースが未変更であればサーバーはボディなしの304を返す。
// 2xx/304以外のステータスは*model.FetchError(Protocol)、
// 接続失敗・タイムアウト・ボディ読み取り失敗は*model.FetchError(Network)を返す。
func (c *Client) Fetch(ctx context.Context, url, etag string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, model.NewNetworkError(url, err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("HTTPリクエストに失敗しました",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{NotModified: true, StatusCode: resp.StatusCode}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("予期しないHTTPステータスコード",
			slog.String("url", url),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewProtocolError(url, resp.StatusCode)
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, model.NewNetworkError(url, err)
	}

	return &Result{
		Body:       body,
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
	}, nil
}
