package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Notifier доставляет уведомление пользователю. Доставка best-effort:
// вызывающий код логирует ошибку и продолжает работу.
type Notifier interface {
	Send(ctx context.Context, userID int64, tpl Template, data map[string]string) error
}

// Multi рассылает уведомление во все каналы, ошибки объединяются
type Multi []Notifier

func (m Multi) Send(ctx context.Context, userID int64, tpl Template, data map[string]string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, userID, tpl, data); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify user %d: %w", userID, errors.Join(errs...))
	}
	return nil
}

// LogSender пишет уведомления в лог. Используется когда Telegram не настроен.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, userID int64, tpl Template, data map[string]string) error {
	s.logger.Info("Notification",
		zap.Int64("user_id", userID),
		zap.String("template", string(tpl)),
		zap.String("text", Render(tpl, data)),
	)
	return nil
}
