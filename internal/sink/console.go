// Package sink は更新イベントの出力先実装を提供する。
// コンソール・Slack・Webhook・ファイルの各Sinkを含む。
//
// 全ての整形ロジックはこのパッケージに閉じる。model.IncidentUpdateは
// 表示ロジックを持たない純粋なデータコンテナに保つ。
// 新しい出力先を追加する場合は Name() と Handle() を実装して
// ウォッチャーに登録するだけでよい。フラットな実装の集合で十分であり、
// 継承階層は不要。
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/statuswatch/internal/model"
)

// maxMessageLen はコンソール出力で本文を切り詰める長さ。
// ターミナルで1行が読める長さに保つ。全文はステータスページ側にある。
const maxMessageLen = 120

const ansiReset = "\033[0m"

// statusColors はステータスごとのANSIカラー。
var statusColors = map[model.Status]string{
	model.StatusInvestigating: "\033[33m", // 黄: 原因不明の異常
	model.StatusIdentified:    "\033[31m", // 赤: 原因確定
	model.StatusMonitoring:    "\033[34m", // 青: 修正適用後の観察中
	model.StatusResolved:      "\033[32m", // 緑: 解消
}

// impactColors は影響度ごとのANSIカラー。
var impactColors = map[model.Impact]string{
	model.ImpactCritical: "\033[91m",
	model.ImpactMajor:    "\033[33m",
	model.ImpactMinor:    "\033[34m",
	model.ImpactNone:     "\033[32m",
}

// ConsoleSink は更新イベント1件につき構造化された1行を書き出す。
//
// 形式:
//
//	[2026-02-21T12:39:08Z] OpenAI | IDENTIFIED | Impact=MINOR | Product=... | Affected=... | Message=...
//
// パイプ区切りの単一行はgrep/cutやログコレクタでそのまま扱える。
// ANSIカラーはステータスと影響度の値のみに付け、パーサーを壊さない。
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time // テスト用に差し替え可能
}

// NewConsoleSink はConsoleSinkの新しいインスタンスを生成する。
// outがnilの場合はos.Stdoutに出力する。
func NewConsoleSink(out io.Writer) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSink{
		out: out,
		now: time.Now,
	}
}

// Name はSinkの識別名を返す。
func (s *ConsoleSink) Name() string {
	return "console"
}

// Handle は1件の更新イベントを1行で書き出す。
func (s *ConsoleSink) Handle(_ context.Context, u model.IncidentUpdate) error {
	line := s.format(u)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.out, line); err != nil {
		return model.NewSinkError(s.Name(), err)
	}
	return nil
}

func (s *ConsoleSink) format(u model.IncidentUpdate) string {
	affected := "N/A"
	if len(u.AffectedComponents) > 0 {
		affected = strings.Join(u.AffectedComponents, ", ")
	}

	return fmt.Sprintf("[%s] %s | %s | Impact=%s | Product=%s | Affected=%s | Message=%s",
		s.now().UTC().Format("2006-01-02T15:04:05Z"),
		u.Provider,
		colorStatus(u.Status),
		colorImpact(u.Impact),
		u.IncidentName,
		affected,
		truncate(u.Message, maxMessageLen),
	)
}

func colorStatus(status model.Status) string {
	upper := strings.ToUpper(string(status))
	if c, ok := statusColors[model.Status(strings.ToLower(string(status)))]; ok {
		return c + upper + ansiReset
	}
	return upper
}

func colorImpact(impact model.Impact) string {
	upper := strings.ToUpper(string(impact))
	if c, ok := impactColors[model.Impact(strings.ToLower(string(impact)))]; ok {
		return c + upper + ansiReset
	}
	return upper
}

// truncate は内部の空白を単一スペースに潰し、maxLenルーンで切り詰める。
func truncate(text string, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return strings.TrimRight(string(runes[:maxLen-1]), " ") + "…"
}
