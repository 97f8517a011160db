package telegram

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Dispatcher раздаёт апдейты по чатам: внутри одного чата строго по очереди,
// разные чаты обрабатываются параллельно. Паника обработчика не роняет процесс.
type Dispatcher struct {
	handle func(tgbotapi.Update)
	log    *zap.Logger

	mu     sync.Mutex
	queues map[int64][]tgbotapi.Update
	wg     sync.WaitGroup
}

func NewDispatcher(handle func(tgbotapi.Update), log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{handle: handle, log: log, queues: make(map[int64][]tgbotapi.Update)}
}

// Dispatch ставит апдейт в очередь его чата и не блокируется.
func (d *Dispatcher) Dispatch(upd tgbotapi.Update) {
	id := chatIDOf(upd)

	d.mu.Lock()
	q, busy := d.queues[id]
	d.queues[id] = append(q, upd)
	if !busy {
		d.wg.Add(1)
		go d.drain(id)
	}
	d.mu.Unlock()
}

// Wait ждёт, пока все поставленные апдейты будут обработаны.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) drain(id int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[id]
		if len(q) == 0 {
			// пустая очередь снимает чат с учёта, следующий Dispatch запустит drain заново
			delete(d.queues, id)
			d.mu.Unlock()
			return
		}
		upd := q[0]
		d.queues[id] = q[1:]
		d.mu.Unlock()

		d.safeHandle(id, upd)
	}
}

func (d *Dispatcher) safeHandle(id int64, upd tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("telegram handler panic",
				zap.Int64("chat_id", id),
				zap.Int("update_id", upd.UpdateID),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		}
	}()
	d.handle(upd)
}

func chatIDOf(upd tgbotapi.Update) int64 {
	switch {
	case upd.Message != nil && upd.Message.Chat != nil:
		return upd.Message.Chat.ID
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil && upd.CallbackQuery.Message.Chat != nil:
		return upd.CallbackQuery.Message.Chat.ID
	}
	return 0
}
