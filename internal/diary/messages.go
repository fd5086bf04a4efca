package diary

import (
	"context"
	"errors"
	"fmt"

	"diarybot/internal/refresh"
	"diarybot/internal/schedule"
)

// UserMessage maps an operation error to text safe to show in chat.
func UserMessage(err error) string {
	var ce *refresh.CooldownError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return fmt.Sprintf("⏳ Расписание на эту дату недавно обновлялось. Повторить можно через %d сек.", ce.Seconds())
	case errors.Is(err, ErrInvalidDate):
		return "📅 Неверная дата. Используйте формат ДД-ММ-ГГГГ, например 15-09-2025."
	case errors.Is(err, ErrInvalidTime):
		return "🕒 Неверное время. Используйте формат ЧЧ:ММ, например 19:30."
	case errors.Is(err, ErrInvalidIndex):
		return "🔢 Неверный номер урока."
	case errors.Is(err, schedule.ErrAuthRequired):
		return "🔒 Доступ к дневнику истёк. Администратор уже уведомлён, попробуйте позже."
	case errors.Is(err, schedule.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "⌛ Дневник не ответил вовремя. Попробуйте позже."
	case errors.Is(err, schedule.ErrExtractionFailed):
		return "⚠️ Не удалось получить расписание. Попробуйте позже."
	default:
		return "⚠️ Что-то пошло не так. Попробуйте позже."
	}
}
