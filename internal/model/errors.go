// Package model はドメインモデルを定義する。
package model

import "fmt"

// FetchErrorKind はフェッチ失敗の分類を表す。
type FetchErrorKind string

const (
	// FetchErrorNetwork は接続失敗やタイムアウトなどのネットワークエラー。
	FetchErrorNetwork FetchErrorKind = "network"
	// FetchErrorProtocol は2xx/304以外のHTTPステータスによるエラー。
	FetchErrorProtocol FetchErrorKind = "protocol"
)

// FetchError は1回のフェッチ失敗を表す。
// ウォッチャー内でバックオフ処理により回復され、外部へは伝播しない。
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int // Protocolの場合のみ設定される
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrorProtocol:
		return fmt.Sprintf("予期しないHTTPステータス %d: %s", e.StatusCode, e.URL)
	default:
		return fmt.Sprintf("フェッチに失敗しました: %s: %v", e.URL, e.Err)
	}
}

// Unwrap はラップされたエラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewNetworkError はネットワークエラーを生成する。
func NewNetworkError(url string, err error) *FetchError {
	return &FetchError{Kind: FetchErrorNetwork, URL: url, Err: err}
}

// NewProtocolError は予期しないHTTPステータスによるエラーを生成する。
func NewProtocolError(url string, statusCode int) *FetchError {
	return &FetchError{Kind: FetchErrorProtocol, URL: url, StatusCode: statusCode}
}

// ParseError はレスポンスボディのパース失敗を表す。
// バックオフ処理の対象だが、保存済みのバリデータトークンは破棄しない。
type ParseError struct {
	Provider string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *ParseError) Error() string {
	return fmt.Sprintf("レスポンスのパースに失敗しました (%s): %v", e.Provider, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError はパース失敗エラーを生成する。
func NewParseError(provider string, err error) *ParseError {
	return &ParseError{Provider: provider, Err: err}
}

// SinkError は通知先への配信失敗を表す。
// 配信失敗はログに記録するのみで、監視ループを止めることはない。
type SinkError struct {
	Sink string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *SinkError) Error() string {
	return fmt.Sprintf("Sinkへの配信に失敗しました (%s): %v", e.Sink, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *SinkError) Unwrap() error {
	return e.Err
}

// NewSinkError は配信失敗エラーを生成する。
func NewSinkError(sink string, err error) *SinkError {
	return &SinkError{Sink: sink, Err: err}
}
