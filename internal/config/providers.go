package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider は監視対象のステータスページ1件の設定。
// 各フィールドの間隔が0の場合はグローバルデフォルトが適用される。
type Provider struct {
	ID           string
	URL          string
	PollInterval time.Duration
	FailureDelay time.Duration
	MaxDelay     time.Duration
}

// rawProvider はYAML上の表現。間隔はtime.ParseDuration形式の文字列。
type rawProvider struct {
	ID           string `yaml:"id"`
	URL          string `yaml:"url"`
	PollInterval string `yaml:"poll_interval"`
	FailureDelay string `yaml:"failure_delay"`
	MaxDelay     string `yaml:"max_delay"`
}

type providersFile struct {
	Providers []rawProvider `yaml:"providers"`
}

// LoadProviders はYAMLファイルからプロバイダー一覧を読み込む。
// ファイルが読めない・YAMLが不正・一覧が空・idの重複は起動時エラー。
// 個々のエントリのid/url欠落もエラーにする（URL自体の安全性検証は
// 呼び出し元がSSRFガードで行い、そこでの失敗は該当プロバイダーの
// 無効化にとどめる）。
func LoadProviders(path string) ([]Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("プロバイダー設定ファイルを読み込めませんでした: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("プロバイダー設定ファイルのパースに失敗しました: %w", err)
	}

	if len(file.Providers) == 0 {
		return nil, fmt.Errorf("プロバイダーが1件も設定されていません: %s", path)
	}

	seen := make(map[string]struct{}, len(file.Providers))
	providers := make([]Provider, 0, len(file.Providers))

	for i, raw := range file.Providers {
		if raw.ID == "" {
			return nil, fmt.Errorf("providers[%d]: idが設定されていません", i)
		}
		if raw.URL == "" {
			return nil, fmt.Errorf("providers[%d] (%s): urlが設定されていません", i, raw.ID)
		}
		if _, dup := seen[raw.ID]; dup {
			return nil, fmt.Errorf("providers[%d]: idが重複しています: %s", i, raw.ID)
		}
		seen[raw.ID] = struct{}{}

		p := Provider{ID: raw.ID, URL: raw.URL}
		if p.PollInterval, err = parseOptionalDuration(raw.PollInterval); err != nil {
			return nil, fmt.Errorf("providers[%d] (%s): poll_intervalが不正です: %w", i, raw.ID, err)
		}
		if p.FailureDelay, err = parseOptionalDuration(raw.FailureDelay); err != nil {
			return nil, fmt.Errorf("providers[%d] (%s): failure_delayが不正です: %w", i, raw.ID, err)
		}
		if p.MaxDelay, err = parseOptionalDuration(raw.MaxDelay); err != nil {
			return nil, fmt.Errorf("providers[%d] (%s): max_delayが不正です: %w", i, raw.ID, err)
		}

		providers = append(providers, p)
	}

	return providers, nil
}

// parseOptionalDuration は空文字を0として扱うtime.ParseDuration。
func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("負の値は指定できません: %s", s)
	}
	return d, nil
}
