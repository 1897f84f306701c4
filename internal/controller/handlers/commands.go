package handlers

import (
	"context"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// sessionsPageSize сколько ближайших сессий показывать в /sessions
const sessionsPageSize = 10

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	from := update.Message.From

	// Регистрируем пользователя, чтобы до него доходили уведомления
	user, err := h.userService.RegisterUser(
		ctx,
		from.ID,
		from.Username,
		from.FirstName,
		from.LastName,
		from.LanguageCode,
	)
	if err != nil {
		h.logger.Error("Failed to register user", zap.Int64("telegram_id", from.ID), zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Произошла ошибка при регистрации. Попробуйте позже.")
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, welcomeText(user))
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, helpText)
}

// HandleBecomeExpert обрабатывает команду /becomeexpert
func (h *Handlers) HandleBecomeExpert(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}

	if user.IsExpert {
		h.sendMessage(ctx, b, update.Message.Chat.ID,
			"✅ Вы уже эксперт.\n\nВаш ID для настройки расписания: <code>"+formatID(user.ID)+"</code>")
		return
	}

	user, err := h.userService.MakeExpert(ctx, user.TelegramID)
	if err != nil {
		h.logger.Error("Failed to make expert", zap.Int64("telegram_id", update.Message.From.ID), zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Не удалось обновить профиль. Попробуйте позже.")
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID,
		"🎓 Теперь вы эксперт!\n\n"+
			"Клиенты смогут записываться к вам, как только вы опубликуете расписание.\n"+
			"Ваш ID: <code>"+formatID(user.ID)+"</code>")
}

// HandleSessions обрабатывает команду /sessions: ближайшие активные сессии
func (h *Handlers) HandleSessions(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}

	now := h.clock.Now()
	page, err := h.sessionService.ListSessions(ctx, model.SessionFilter{
		UserID: user.ID,
		States: []model.SessionState{
			model.SessionStatePendingPayment,
			model.SessionStatePaid,
			model.SessionStateConfirmed,
			model.SessionStateInProgress,
		},
		From:     &now,
		PageSize: sessionsPageSize,
	})
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Int64("user_id", user.ID), zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Не удалось загрузить ваши сессии.")
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, sessionsText(user, page.Items, page.Total))
}

// HandleCategories обрабатывает команду /categories
func (h *Handlers) HandleCategories(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	categories, err := h.categoryService.ListActive(ctx)
	if err != nil {
		h.logger.Error("Failed to list categories", zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Не удалось загрузить категории.")
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, categoriesText(categories))
}
