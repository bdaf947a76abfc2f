// Package handler は運用系HTTPエンドポイントを提供する。
// 死活確認の /health とPrometheusスクレイプ用の /metrics のみを持つ。
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/statuswatch/internal/metrics"
)

// StatusReporter は監視全体の状態を報告するインターフェース。
// fetch.Orchestratorが実装する。
type StatusReporter interface {
	WatcherCount() int
}

// RouterDeps はルーター構築に必要な依存関係を保持する。
type RouterDeps struct {
	Gatherer prometheus.Gatherer
	Reporter StatusReporter
}

// healthResponse は/healthのレスポンス。
type healthResponse struct {
	Status   string `json:"status"`
	Watchers int    `json:"watchers"`
}

// NewRouter は運用系エンドポイントのルーターを構築する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok"}
		if deps.Reporter != nil {
			resp.Watchers = deps.Reporter.WatcherCount()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
