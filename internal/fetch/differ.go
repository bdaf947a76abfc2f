package fetch

import "github.com/hitoshi/statuswatch/internal/model"

// Differ は1プロバイダー分の新規性検出を行う。
// 発行済みの update_id を記録し、同じ更新を二度通知しない。
//
// incident_id → updated_at の対応ではなく update_id 単位で追跡するのは、
// 1つのインシデントの全更新エントリが1レコードに潰れてしまうのを避けるため。
// update_id 単位であれば、ポーリングの間に複数のステータス遷移が起きても
// 遷移ごとに1イベントが必ず発行され、中間ステップが失われない。
//
// 発行済みセットはプロセスの生存期間中は増え続ける（エビクションなし）。
// ステータスページの更新頻度では実用上問題にならないが、
// 保持量を抑えたい場合はアクティブインシデント窓に合わせたLRU上限を
// 設ける余地がある。
type Differ struct {
	seen map[string]struct{}
}

// NewDiffer はDifferの新しいインスタンスを生成する。
// プロバイダーごとに独立したインスタンスを持たせること。
func NewDiffer() *Differ {
	return &Differ{
		seen: make(map[string]struct{}),
	}
}

// Diff は入力順を保ったまま、未発行の update_id を持つ更新のみを返す。
// 返した update_id は発行済みとして記録される（副作用）。
// 同一入力を再度渡すと空のスライスを返す（冪等）。
// 同一ペイロード内の重複 update_id も1件のみ返す。
// この操作は失敗しない。不正な入力の排除はパーサーの責務。
func (d *Differ) Diff(updates []model.IncidentUpdate) []model.IncidentUpdate {
	novel := make([]model.IncidentUpdate, 0, len(updates))
	for _, u := range updates {
		if _, ok := d.seen[u.UpdateID]; ok {
			continue
		}
		d.seen[u.UpdateID] = struct{}{}
		novel = append(novel, u)
	}
	return novel
}

// SeenCount は発行済み update_id の件数を返す。
func (d *Differ) SeenCount() int {
	return len(d.seen)
}
