package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/statuswatch/internal/model"
)

// WebhookSink は更新イベント1件につきJSONを任意のエンドポイントへPOSTする。
// 送信レートはトークンバケットで制限され、バーストした新規更新が
// 受信側を圧迫しないようにする。
// 配信のリトライやキューイングは行わない。失敗は呼び出し元がログに残す。
type WebhookSink struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
	newID      func() string
}

// NewWebhookSink はWebhookSinkの新しいインスタンスを生成する。
// ratePerSecが0以下の場合は毎秒5件・バースト10件で制限する。
func NewWebhookSink(url string, httpClient *http.Client, ratePerSec float64) *WebhookSink {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	return &WebhookSink{
		url:        url,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 10),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Name はSinkの識別名を返す。
func (s *WebhookSink) Name() string {
	return "webhook"
}

// Handle は1件の更新イベントをJSONでPOSTする。
// 各イベントには一意のevent_idが付与される。
func (s *WebhookSink) Handle(ctx context.Context, u model.IncidentUpdate) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return model.NewSinkError(s.Name(), err)
	}

	payload := newEventPayload(u, s.newID(), s.now())
	body, err := json.Marshal(payload)
	if err != nil {
		return model.NewSinkError(s.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return model.NewSinkError(s.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.NewSinkError(s.Name(), err)
	}
	defer resp.Body.Close()

	// レスポンスボディは読み捨ててコネクションを再利用可能にする
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.NewSinkError(s.Name(),
			fmt.Errorf("webhookがステータス %d を返しました", resp.StatusCode))
	}
	return nil
}
