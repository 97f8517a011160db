package telegram

import (
	"strings"
	"time"

	"lettera/api/internal/compare/types"
)

// reference: эталон чата: картинка (data:URI) и контекст буквы.
type reference struct {
	Image    string
	Letter   string
	Language string
	SetAt    time.Time
}

func (r *Router) reference(chatID int64) (*reference, bool) {
	if v, ok := r.refs.Load(chatID); ok {
		return v.(*reference), true
	}
	return nil, false
}

func (r *Router) setReference(chatID int64, ref *reference) { r.refs.Store(chatID, ref) }

// parseRefCaption разбирает подпись «ref [язык] [буква]».
// Без параметров: none/none, то есть чисто визуальное сравнение.
func parseRefCaption(caption string) (lang, letter string, ok bool) {
	fields := strings.Fields(caption)
	if len(fields) == 0 {
		return "", "", false
	}
	switch strings.ToLower(strings.TrimPrefix(fields[0], "/")) {
	case "ref", "эталон":
	default:
		return "", "", false
	}
	lang, letter = types.LetterNone, types.LetterNone
	if len(fields) > 1 {
		lang = strings.ToLower(fields[1])
	}
	if len(fields) > 2 {
		letter = strings.Join(fields[2:], " ")
	}
	return lang, letter, true
}
