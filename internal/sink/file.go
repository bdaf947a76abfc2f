package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hitoshi/statuswatch/internal/model"
)

// FileSink は更新イベントをJSON Lines形式でファイルに追記する。
// lumberjackによりサイズベースのローテーションと圧縮を行うため、
// 長期稼働でもファイルが無制限に成長しない。
type FileSink struct {
	mu  sync.Mutex
	w   io.WriteCloser
	now func() time.Time
}

// NewFileSink は出力先パスからFileSinkを生成する。
func NewFileSink(path string) *FileSink {
	return &FileSink{
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		},
		now: time.Now,
	}
}

// Name はSinkの識別名を返す。
func (s *FileSink) Name() string {
	return "file"
}

// Handle は1件の更新イベントを1行のJSONとして追記する。
func (s *FileSink) Handle(_ context.Context, u model.IncidentUpdate) error {
	payload := newEventPayload(u, "", s.now())
	line, err := json.Marshal(payload)
	if err != nil {
		return model.NewSinkError(s.Name(), err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return model.NewSinkError(s.Name(), err)
	}
	return nil
}

// Close は出力先ファイルを閉じる。
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}
