package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/hitoshi/statuswatch/internal/model"
)

// slackAttachmentColors は影響度に応じたメッセージアタッチメントの色。
var slackAttachmentColors = map[model.Impact]string{
	model.ImpactCritical: "#e01e5a",
	model.ImpactMajor:    "#ecb22e",
	model.ImpactMinor:    "#36c5f0",
	model.ImpactNone:     "#2eb67d",
}

// SlackPoster はSlackへのメッセージ投稿のインターフェース。
// *slack.Clientが実装する。テストではモックに差し替える。
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackSink は更新イベント1件につき1メッセージをSlackチャンネルへ投稿する。
type SlackSink struct {
	client  SlackPoster
	channel string
}

// NewSlackSink はBotトークンと投稿先チャンネルからSlackSinkを生成する。
func NewSlackSink(token, channel string) *SlackSink {
	return &SlackSink{
		client:  slack.New(token),
		channel: channel,
	}
}

// Name はSinkの識別名を返す。
func (s *SlackSink) Name() string {
	return "slack"
}

// Handle は1件の更新イベントをSlackへ投稿する。
func (s *SlackSink) Handle(ctx context.Context, u model.IncidentUpdate) error {
	title := fmt.Sprintf("%s: %s は %s です",
		u.Provider, u.IncidentName, strings.ToUpper(string(u.Status)))

	var lines []string
	lines = append(lines, fmt.Sprintf("影響度: %s", strings.ToUpper(string(u.Impact))))
	if len(u.AffectedComponents) > 0 {
		lines = append(lines, fmt.Sprintf("対象: %s", strings.Join(u.AffectedComponents, ", ")))
	}
	if u.Message != "" {
		lines = append(lines, u.Message)
	}
	if u.Shortlink != "" {
		lines = append(lines, u.Shortlink)
	}

	attachment := slack.Attachment{
		Color:     slackAttachmentColors[u.Impact],
		Title:     title,
		Text:      strings.Join(lines, "\n"),
		Footer:    u.Provider,
		TitleLink: u.Shortlink,
	}

	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slack.MsgOptionAttachments(attachment),
	)
	if err != nil {
		return model.NewSinkError(s.Name(), err)
	}
	return nil
}
