package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lettera/api/internal/compare/types"
)

const engineCallbackPrefix = "engine:"

// Кнопки выбора движка
func makeEngineKeyboard(names []string) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(names))
	for _, n := range names {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(n, engineCallbackPrefix+n))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func statusEmoji(status string) string {
	switch status {
	case types.StatusGood:
		return "✅"
	case types.StatusAverage:
		return "🟡"
	default:
		return "❌"
	}
}

// formatVerdict: текст ответа на попытку.
func formatVerdict(res types.CompareResult) string {
	v := res.Result
	var b strings.Builder
	fmt.Fprintf(&b, "%s Сходство: %.0f%% (%s)\n", statusEmoji(v.Status), v.Percents, v.Status)
	if s := strings.TrimSpace(v.Letter); s != "" {
		fmt.Fprintf(&b, "Буква: %s\n", s)
	}
	if s := strings.TrimSpace(v.Advice); s != "" {
		fmt.Fprintf(&b, "\n💡 %s\n", s)
	}
	if s := strings.TrimSpace(v.Difference); s != "" {
		fmt.Fprintf(&b, "\nОтличия: %s\n", s)
	}
	if res.Cached {
		b.WriteString("\n(из кэша)")
	}
	return strings.TrimRight(b.String(), "\n")
}
