package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

const parseSnippetLimit = 200

var (
	// "lettersBack:dev: ", "service:level: " в начале строки
	reLogPrefix = regexp.MustCompile(`(?m)^[a-zA-Z0-9_-]+:[a-zA-Z0-9_-]+:\s*`)
	// "[service] level: "
	reTagPrefix     = regexp.MustCompile(`(?m)^\[[^\]]+\]\s*[a-zA-Z]+:\s*`)
	reFencedObject  = regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*\\})\\s*```")
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	reGreedyObject  = regexp.MustCompile(`\{[\s\S]*\}`)
)

// ParseError is returned when no recovery step produced parseable JSON.
// Err is the error of the very first (direct) parse attempt.
type ParseError struct {
	Err     error
	Snippet string
	// Extracted is false when the cleaned text had no {...} span at all.
	Extracted bool
}

func (e *ParseError) Error() string {
	if !e.Extracted {
		return fmt.Sprintf("could not extract valid JSON: original error: %v, cleaned text: %s", e.Err, e.Snippet)
	}
	return fmt.Sprintf("failed to parse JSON after cleaning: original error: %v, cleaned text: %s", e.Err, e.Snippet)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DecodeTolerantJSON декодирует JSON из ответа модели в target.
// Шаги: прямой парсинг, снятие лог-префиксов, ```json блок, обрезка по {…},
// удаление висячих запятых, повтор, затем жадный поиск {…}.
func DecodeTolerantJSON(text string, target any) error {
	if target == nil {
		return errors.New("decode target is nil")
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", target)
	}
	directErr := json.Unmarshal([]byte(text), target)
	if directErr == nil {
		return nil
	}

	cleaned := CleanModelJSON(text)
	if tryUnmarshal(cleaned, rv) {
		return nil
	}

	if m := reGreedyObject.FindString(cleaned); m != "" {
		if tryUnmarshal(m, rv) {
			return nil
		}
		return &ParseError{Err: directErr, Snippet: truncateRunes(cleaned, parseSnippetLimit), Extracted: true}
	}
	return &ParseError{Err: directErr, Snippet: truncateRunes(cleaned, parseSnippetLimit)}
}

// tryUnmarshal сбрасывает target перед попыткой: неудачный Unmarshal мог заполнить часть полей.
func tryUnmarshal(s string, rv reflect.Value) bool {
	rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
	return json.Unmarshal([]byte(s), rv.Interface()) == nil
}

// CleanModelJSON применяет все текстовые чистки по порядку и возвращает рабочий текст.
func CleanModelJSON(text string) string {
	s := strings.TrimSpace(text)
	s = reLogPrefix.ReplaceAllString(s, "")
	s = reTagPrefix.ReplaceAllString(s, "")
	if m := reFencedObject.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first != -1 && last > first {
		s = s[first : last+1]
	}
	return reTrailingComma.ReplaceAllString(s, "${1}")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Приводим схему к «строгому» виду для OpenAI: если есть properties, добавляем type=object и required со всеми полями.
func FixJSONSchemaStrict(node any) {
	switch n := node.(type) {
	case map[string]any:
		if props, ok := n["properties"].(map[string]any); ok {
			if _, hasType := n["type"]; !hasType {
				n["type"] = "object"
			}
			req := make([]any, 0, len(props))
			for k := range props {
				req = append(req, k)
			}
			n["required"] = req
			if _, ok := n["additionalProperties"]; !ok {
				n["additionalProperties"] = false
			}
			for _, v := range props {
				FixJSONSchemaStrict(v)
			}
		}
		if items, ok := n["items"]; ok {
			FixJSONSchemaStrict(items)
		}
	case []any:
		for _, v := range n {
			FixJSONSchemaStrict(v)
		}
	}
}
