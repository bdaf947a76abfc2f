package fetch

import "time"

const (
	// DefaultPollInterval は成功サイクル後の基本ポーリング間隔のデフォルト値。
	DefaultPollInterval = 30 * time.Second
	// DefaultFailureDelay は初回失敗時の基本遅延のデフォルト値。
	DefaultFailureDelay = 2 * time.Second
	// DefaultMaxDelay はバックオフ遅延の上限のデフォルト値。
	DefaultMaxDelay = 5 * time.Minute
	// maxFailureCount は指数計算前に連続失敗回数を丸める上限。
	// 長期稼働中のプロセスでシフト演算がオーバーフローするのを防ぐ。
	maxFailureCount = 32
)

// Policy は1プロバイダーのポーリング間隔とバックオフ遅延の設定。
// I/Oを伴わない純粋な状態機械としてウォッチャーから参照される。
type Policy struct {
	PollInterval time.Duration // 成功サイクル後の定常ポーリング間隔
	FailureDelay time.Duration // 初回失敗時の基本遅延
	MaxDelay     time.Duration // バックオフ遅延の上限
}

// Normalized は未設定または不正なフィールドをデフォルト値で補完したコピーを返す。
func (p Policy) Normalized() Policy {
	if p.PollInterval <= 0 {
		p.PollInterval = DefaultPollInterval
	}
	if p.FailureDelay <= 0 {
		p.FailureDelay = DefaultFailureDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// NextDelay は連続失敗回数から次のポーリングまでの遅延を計算する純粋関数。
//
//	n == 0 → PollInterval（成功サイクル後の定常状態）
//	n >= 1 → min(FailureDelay * 2^(n-1), MaxDelay)
//
// nに対して単調非減少で、MaxDelayを上限とし、0以下の値は返さない。
// 連続失敗回数のリセットはポリシー自身は行わず、
// フェッチが成功したサイクルでのみウォッチャーが行う。
func (p Policy) NextDelay(consecutiveFailures int) time.Duration {
	p = p.Normalized()

	if consecutiveFailures <= 0 {
		return p.PollInterval
	}

	n := consecutiveFailures
	if n > maxFailureCount {
		n = maxFailureCount
	}

	delay := p.FailureDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
