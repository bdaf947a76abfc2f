package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// BodySanitizer はステータスページの更新本文をプレーンテキストに無害化する。
//
// Statuspageの更新本文にはHTMLタグが混入することがある。出力先は
// ターミナル・Slack・JSONであってブラウザではないため、許可リストで
// タグを残すのではなく、bluemondayのStrictPolicyで全タグを除去し、
// 残ったエンティティ参照を実体に戻す。
// 同一入力に対して常に同一出力を返す（冪等）。
type BodySanitizer struct {
	policy *bluemonday.Policy
}

// NewBodySanitizer はBodySanitizerの新しいインスタンスを生成する。
// bluemondayのポリシーはスレッドセーフで、全ウォッチャーで共有できる。
func NewBodySanitizer() *BodySanitizer {
	return &BodySanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
// 空文字列の入力には空文字列を返す。
func (s *BodySanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
