// Package statuspage はStatuspage.io形式のincidents.jsonレスポンスを
// 更新レコード列に変換するパーサーを提供する。
package statuspage

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/hitoshi/statuswatch/internal/model"
)

// Sanitizer は更新本文からHTMLタグを除去するインターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// incidentsPayload はincidents.jsonレスポンスの構造。
type incidentsPayload struct {
	Incidents []incidentEntry `json:"incidents"`
}

type incidentEntry struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Status     string           `json:"status"`
	Impact     string           `json:"impact"`
	Shortlink  string           `json:"shortlink"`
	Components []componentEntry `json:"components"`
	Updates    []updateEntry    `json:"incident_updates"`
}

type componentEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type updateEntry struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Body      string `json:"body"`
	UpdatedAt string `json:"updated_at"`
}

// Parser はincidents.jsonペイロードをIncidentUpdate列に変換する。
// 更新エントリ1件につきIncidentUpdateを1件生成する（インシデント単位ではない）。
// これにより差分検出側が update_id 単位でライフサイクル遷移を個別に追跡できる。
// I/Oを行わない純粋な変換で、同一入力には常に同一出力を返す。
type Parser struct {
	sanitizer Sanitizer
}

// NewParser はParserの新しいインスタンスを生成する。
// sanitizerがnilの場合、本文はそのまま通過する。
func NewParser(sanitizer Sanitizer) *Parser {
	return &Parser{sanitizer: sanitizer}
}

// Parse はincidents.jsonペイロードをパースし、全インシデント横断で
// 時系列にソートした更新レコードのフラットな列を返す。
// ペイロードがJSONとして不正な場合は*model.ParseErrorを返す。
// 個々のフィールドの欠落・不正はエラーにせず、デフォルト値で補完する。
func (p *Parser) Parse(provider string, body []byte) ([]model.IncidentUpdate, error) {
	var payload incidentsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, model.NewParseError(provider, err)
	}

	result := make([]model.IncidentUpdate, 0)

	for _, inc := range payload.Incidents {
		if len(inc.Updates) == 0 {
			continue
		}

		name := inc.Name
		if name == "" {
			name = "Unknown Incident"
		}
		impact := inc.Impact
		if impact == "" {
			impact = string(model.ImpactUnknown)
		}

		affected := affectedComponents(inc.Components)

		// APIのエントリ順は契約上保証されないため、時系列で並べ直す。
		// updated_atが欠落・不正なエントリは先頭に寄せる。
		entries := make([]updateEntry, len(inc.Updates))
		copy(entries, inc.Updates)
		sort.SliceStable(entries, func(i, j int) bool {
			return entryTime(entries[i]).Before(entryTime(entries[j]))
		})

		for _, entry := range entries {
			status := entry.Status
			if status == "" {
				status = inc.Status
			}
			message := entry.Body
			if message == "" {
				message = "No message provided."
			}

			result = append(result, model.IncidentUpdate{
				Provider:           provider,
				IncidentID:         inc.ID,
				UpdateID:           entry.ID,
				IncidentName:       p.sanitize(name),
				Status:             model.Status(status),
				Impact:             model.Impact(impact),
				AffectedComponents: affected,
				Message:            p.sanitize(message),
				UpdatedAt:          parseTime(entry.UpdatedAt),
				Shortlink:          inc.Shortlink,
			})
		}
	}

	// インシデント横断でも時系列順にし、イベントが発生順に発行されるようにする
	sort.SliceStable(result, func(i, j int) bool {
		return recordTime(result[i]).Before(recordTime(result[j]))
	})

	return result, nil
}

func (p *Parser) sanitize(s string) string {
	if p.sanitizer == nil {
		return s
	}
	return p.sanitizer.Sanitize(s)
}

// affectedComponents は劣化中のコンポーネント名を収集する。
// statusの空文字チェックにより、キー欠落が「operationalでない」条件に
// 誤って一致するのを防ぐ。劣化中のものが1つもなければ、
// 列挙されている全コンポーネントにフォールバックする。
func affectedComponents(components []componentEntry) []string {
	affected := make([]string, 0, len(components))
	for _, c := range components {
		if c.Status != "operational" && c.Status != "" {
			affected = append(affected, componentName(c))
		}
	}
	if len(affected) == 0 {
		for _, c := range components {
			affected = append(affected, componentName(c))
		}
	}
	return affected
}

func componentName(c componentEntry) string {
	if c.Name == "" {
		return "Unknown"
	}
	return c.Name
}

// parseTime はISO 8601のタイムスタンプ文字列をUTCのtime.Timeに変換する。
// Statuspageは '2024-11-03T14:32:00.000Z' の形式を返す。
// 空文字またはパース不能な値にはnilを返す。
func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// entryTime はソートキーを返す。時刻のないエントリは最古扱いで先頭に寄せる。
func entryTime(e updateEntry) time.Time {
	if t := parseTime(e.UpdatedAt); t != nil {
		return *t
	}
	return time.Time{}
}

func recordTime(u model.IncidentUpdate) time.Time {
	if u.UpdatedAt != nil {
		return *u.UpdatedAt
	}
	return time.Time{}
}
