package handlers

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/formatting"
	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/weekview"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const weekSessionsLimit = 100

// HandleWeek обрабатывает команду /week: картинка с неделей эксперта
func (h *Handlers) HandleWeek(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	if !user.IsExpert {
		h.sendError(ctx, b, chatID, "❌ Расписание доступно только экспертам. Используйте /becomeexpert.")
		return
	}

	image, caption, err := h.renderWeek(ctx, user)
	if err != nil {
		h.logger.Error("Failed to render week", zap.Int64("user_id", user.ID), zap.Error(err))
		h.sendError(ctx, b, chatID, "❌ Не удалось построить расписание.")
		return
	}

	_, err = b.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: chatID,
		Photo: &models.InputFileUpload{
			Filename: "week.png",
			Data:     bytes.NewReader(image),
		},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		h.logger.Error("Failed to send week image", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handlers) renderWeek(ctx context.Context, user *model.User) ([]byte, string, error) {
	profile, err := h.availability.GetProfile(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("get profile: %w", err)
	}

	now := h.clock.Now()
	loc := profile.Config.Location()
	from, to := weekview.WeekRange(now, loc)

	days, err := h.availability.Calendar(ctx, user.ID, from, 7)
	if err != nil {
		return nil, "", fmt.Errorf("calendar: %w", err)
	}

	page, err := h.sessionService.ListSessions(ctx, model.SessionFilter{
		UserID:   user.ID,
		Role:     model.ActorExpert,
		From:     &from,
		To:       &to,
		PageSize: weekSessionsLimit,
	})
	if err != nil {
		return nil, "", fmt.Errorf("list sessions: %w", err)
	}

	var exceptions []model.ExceptionBlock
	for _, e := range profile.Exceptions {
		if e.Overlaps(from, to) {
			exceptions = append(exceptions, e)
		}
	}

	image, err := weekview.Render(weekview.Week{
		Start:    from,
		Location: loc,
		Blocks:   weekview.Build(days, page.Items, exceptions),
		Now:      now,
	})
	if err != nil {
		return nil, "", err
	}
	return image, weekCaption(from, to, page.Items, days), nil
}

// weekCaption to не включается
func weekCaption(from, to time.Time, sessions []*model.Session, days []model.DaySlots) string {
	active := 0
	for _, s := range sessions {
		if !s.State.IsTerminal() {
			active++
		}
	}
	free := 0
	for _, d := range days {
		free += len(d.Slots)
	}
	return fmt.Sprintf("🗓 <b>Неделя %s - %s</b>\n📅 %d %s\n🟢 %d %s свободно",
		formatting.FormatDate(from), formatting.FormatDate(to.AddDate(0, 0, -1)),
		active, formatting.PluralizeSessions(active),
		free, formatting.PluralizeSlots(free))
}
