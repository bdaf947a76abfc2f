// Package model はドメインモデルを定義する。
package model

import "time"

// Status はインシデント更新のライフサイクルステージを表す。
// ソースによってはステージの省略や順序の入れ替えがありうるため、
// 固定の全順序は仮定しない。
type Status string

const (
	// StatusInvestigating は原因調査中の状態。
	StatusInvestigating Status = "investigating"
	// StatusIdentified は原因特定済みの状態。
	StatusIdentified Status = "identified"
	// StatusMonitoring は修正適用後の経過観察中の状態。
	StatusMonitoring Status = "monitoring"
	// StatusResolved は解消済みの状態。
	StatusResolved Status = "resolved"
)

// Impact はインシデントの影響度を表す。
type Impact string

const (
	// ImpactNone は影響なし。
	ImpactNone Impact = "none"
	// ImpactMinor は軽微な影響。
	ImpactMinor Impact = "minor"
	// ImpactMajor は重大な影響。
	ImpactMajor Impact = "major"
	// ImpactCritical は致命的な影響。
	ImpactCritical Impact = "critical"
	// ImpactUnknown は影響度が取得できなかった場合の値。
	ImpactUnknown Impact = "unknown"
)

// IncidentUpdate はインシデント内の1件の更新エントリを表す。
//
// インシデントそのものではなく update_id 単位の1イベントとして扱う。
// ポーリングの間に1つのインシデントが複数回遷移した場合
// （例: investigating → identified → monitoring）でも、
// 遷移ごとに独立したレコードとして検出・通知されるようにするための設計。
// (Provider, UpdateID) の組がレコードを一意に識別する。
// 同じ UpdateID を持つ2つのフェッチ結果は、BodyやUpdatedAtが多少異なっても
// 同一の論理イベントとして扱う。
type IncidentUpdate struct {
	Provider           string
	IncidentID         string
	UpdateID           string
	IncidentName       string
	Status             Status
	Impact             Impact
	AffectedComponents []string
	Message            string
	UpdatedAt          *time.Time
	Shortlink          string
}

// FormatUpdatedAt は表示用のUTCタイムスタンプ文字列を返す。
// UpdatedAtが取得できなかったレコードには "Unknown" を返す。
func (u IncidentUpdate) FormatUpdatedAt() string {
	if u.UpdatedAt == nil {
		return "Unknown"
	}
	return u.UpdatedAt.UTC().Format("2006-01-02 15:04:05 UTC")
}
