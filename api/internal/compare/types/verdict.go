package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"lettera/api/internal/util"
)

var ErrMissingPercents = errors.New("verdict: percents is missing or not a number")

const (
	StatusGood    = "good"
	StatusAverage = "average"
	StatusBad     = "bad"
)

// Verdict: оценка сходства двух изображений от модели.
type Verdict struct {
	Percents    float64 `json:"percents"`
	Advice      string  `json:"advice,omitempty"`
	Letter      string  `json:"letter,omitempty"`
	Difference  string  `json:"difference,omitempty"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status,omitempty"`
}

// VerdictSchema: JSON Schema ответа модели (для structured output).
const VerdictSchema = `{
  "type": "object",
  "properties": {
    "percents":    {"type": "number"},
    "advice":      {"type": "string"},
    "letter":      {"type": "string"},
    "difference":  {"type": "string"},
    "description": {"type": "string"}
  },
  "required": ["percents"]
}`

// StatusFor переводит процент в статус прогресса клиента.
func StatusFor(percents float64) string {
	switch {
	case percents >= 80:
		return StatusGood
	case percents >= 50:
		return StatusAverage
	default:
		return StatusBad
	}
}

// ParseVerdict извлекает Verdict из сырого текста модели.
// percents обязателен и должен быть числом; текстовые поля: best-effort.
// Ключи сравниваются точно: encoding/json для структур игнорирует регистр.
func ParseVerdict(text string) (Verdict, error) {
	var w map[string]json.RawMessage
	if err := util.DecodeTolerantJSON(text, &w); err != nil {
		return Verdict{}, err
	}
	var pct float64
	if isNullRaw(w["percents"]) || json.Unmarshal(w["percents"], &pct) != nil {
		return Verdict{}, fmt.Errorf("%w (got %s)", ErrMissingPercents, rawOrNull(w["percents"]))
	}
	pct = clampPercents(pct)
	return Verdict{
		Percents:    pct,
		Advice:      looseString(w["advice"]),
		Letter:      looseString(w["letter"]),
		Difference:  looseString(w["difference"]),
		Description: looseString(w["description"]),
		Status:      StatusFor(pct),
	}, nil
}

func clampPercents(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// looseString: строку отдаём как есть, null: пусто, остальное: сырым JSON.
func looseString(raw json.RawMessage) string {
	if isNullRaw(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func isNullRaw(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func rawOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
