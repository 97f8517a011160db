package compare

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"lettera/api/internal/compare/types"
)

var ErrUnknownEngine = errors.New("unknown llm_name")

// Engine: провайдер vision-LLM, сравнивающий попытку с эталоном.
type Engine interface {
	Name() string
	GetModel() string
	Compare(ctx context.Context, in types.CompareRequest) (types.Verdict, error)
}

// Engines: набор сконфигурированных движков. Nil-поле означает «не настроен».
type Engines struct {
	OpenAI  Engine
	Gemini  Engine
	Default string
}

func (e *Engines) GetEngine(llmName string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(llmName))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(e.Default))
	}
	var eng Engine
	switch name {
	case "gpt", "openai", "":
		eng = e.OpenAI
	case "gemini":
		eng = e.Gemini
	default:
		return nil, fmt.Errorf("%w %q; use one of %s", ErrUnknownEngine, llmName, strings.Join(e.Names(), ", "))
	}
	if eng == nil {
		return nil, fmt.Errorf("%w %q: engine is not configured", ErrUnknownEngine, name)
	}
	return eng, nil
}

// Names возвращает имена настроенных движков.
func (e *Engines) Names() []string {
	var out []string
	if e.OpenAI != nil {
		out = append(out, "gpt")
	}
	if e.Gemini != nil {
		out = append(out, "gemini")
	}
	return out
}

// Manager хранит выбранный движок по чату; по умолчанию: пустое имя (Engines.Default).
type Manager struct {
	def string
	m   sync.Map // chatID -> engine name
}

func NewManager(defaultEngine string) *Manager {
	return &Manager{def: defaultEngine}
}

func (m *Manager) Get(chatID int64) string {
	if v, ok := m.m.Load(chatID); ok {
		return v.(string)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, engine string) {
	m.m.Store(chatID, engine)
}
