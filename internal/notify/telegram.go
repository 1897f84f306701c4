package notify

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// UserLookup находит Telegram чат пользователя
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// TelegramSender отправляет уведомления сообщением в Telegram
type TelegramSender struct {
	bot   *bot.Bot
	users UserLookup
}

func NewTelegramSender(b *bot.Bot, users UserLookup) *TelegramSender {
	return &TelegramSender{bot: b, users: users}
}

func (s *TelegramSender) Send(ctx context.Context, userID int64, tpl Template, data map[string]string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.TelegramID == 0 {
		// пользователь не подключал бота
		return nil
	}

	_, err = s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    user.TelegramID,
		Text:      Render(tpl, data),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
