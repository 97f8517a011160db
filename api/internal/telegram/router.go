package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"lettera/api/internal/compare"
	"lettera/api/internal/compare/types"
)

// Bot: подмножество *tgbotapi.BotAPI, которым пользуется роутер.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Comparer: *compare.Service.
type Comparer interface {
	Compare(ctx context.Context, llmName string, in types.CompareRequest) (types.CompareResult, error)
}

type Router struct {
	Bot        Bot
	Svc        Comparer
	Engines    *compare.Engines
	EngManager *compare.Manager
	Log        *zap.Logger

	// дедлайн на одно сравнение
	Timeout    time.Duration
	HTTPClient *http.Client

	refs sync.Map // chatID -> *reference
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	// callback-кнопки
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message

	if msg.IsCommand() {
		r.HandleCommand(msg)
		return
	}

	if len(msg.Photo) > 0 || isImageDocument(msg.Document) {
		r.acceptPhoto(msg)
		return
	}

	if strings.TrimSpace(msg.Text) != "" {
		r.send(msg.Chat.ID, "Пришлите фото буквы. /help: подсказка по командам.")
	}
}

func (r *Router) HandleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "health":
		r.send(cid, "✅ OK")
	case "engine":
		r.handleEngineCommand(cid, msg.CommandArguments())
	case "ref":
		ref, ok := r.reference(cid)
		if !ok {
			r.send(cid, "Эталон не задан. Пришлите фото с подписью ref <язык> <буква>.")
			return
		}
		r.send(cid, fmt.Sprintf("Эталон: буква %s, язык %s (задан %s).", ref.Letter, ref.Language, ref.SetAt.Format("02.01 15:04")))
	case "reset":
		r.refs.Delete(cid)
		r.send(cid, "Эталон удалён.")
	default:
		r.send(cid, "Неизвестная команда")
	}
}

const helpText = `Сравниваю рукописную букву с эталоном.

1. Пришлите фото эталона с подписью: ref <язык> <буква>, например «ref uk Ґ».
   Подпись «ref» без параметров: просто визуальное сравнение.
2. Присылайте фото своих попыток: отвечу процентом сходства и советом.

Команды:
/engine [gpt|gemini]: выбрать модель
/ref: текущий эталон
/reset: удалить эталон
/health: проверка`

// handleEngineCommand: /engine: показать текущий, /engine <name>: переключить.
func (r *Router) handleEngineCommand(chatID int64, args string) {
	name := strings.ToLower(strings.TrimSpace(args))
	if name == "" {
		msg := tgbotapi.NewMessage(chatID, "Текущий движок: "+r.currentEngine(chatID)+"\nИспользование: /engine {"+strings.Join(r.Engines.Names(), "|")+"}")
		if names := r.Engines.Names(); len(names) > 0 {
			msg.ReplyMarkup = makeEngineKeyboard(names)
		}
		r.sendMsg(msg)
		return
	}
	r.switchEngine(chatID, name)
}

func (r *Router) switchEngine(chatID int64, name string) {
	eng, err := r.Engines.GetEngine(name)
	if err != nil {
		r.send(chatID, "❌ "+err.Error())
		return
	}
	r.EngManager.Set(chatID, eng.Name())
	r.send(chatID, "✅ Движок: "+eng.Name()+" ("+eng.GetModel()+").")
}

func (r *Router) currentEngine(chatID int64) string {
	if eng, err := r.Engines.GetEngine(r.EngManager.Get(chatID)); err == nil {
		return eng.Name()
	}
	return "?"
}

func (r *Router) send(chatID int64, text string) {
	r.sendMsg(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) sendMsg(msg tgbotapi.MessageConfig) {
	if len(msg.Text) > 3900 {
		msg.Text = truncateUTF8(msg.Text, 3900) + "…"
	}
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("telegram send failed", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, fmt.Sprintf("Ошибка сравнения: %v", err))
}

func (r *Router) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
