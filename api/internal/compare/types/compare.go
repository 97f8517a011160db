package types

import (
	"errors"
	"strings"
)

// LetterNone в поле letter/language включает режим чисто визуального сравнения.
const LetterNone = "none"

const DefaultSystemLanguage = "en"

var ErrImageRequired = errors.New("userImage and ethalonImage are required")

// CompareRequest: две картинки (попытка пользователя и эталон) плюс контекст буквы.
// Картинки: ImageReference: http(s) URL, data:URI или голый base64.
type CompareRequest struct {
	UserImage      string `json:"userImage"`
	ReferenceImage string `json:"ethalonImage"`
	Letter         string `json:"letter"`
	Language       string `json:"language"`
	SystemLanguage string `json:"systemLanguage"`
}

// WithDefaults заполняет пустые letter/language/systemLanguage.
func (r CompareRequest) WithDefaults() CompareRequest {
	r.Letter = strings.TrimSpace(r.Letter)
	r.Language = strings.TrimSpace(r.Language)
	r.SystemLanguage = strings.TrimSpace(r.SystemLanguage)
	if r.Letter == "" {
		r.Letter = LetterNone
	}
	if r.Language == "" {
		r.Language = LetterNone
	}
	if r.SystemLanguage == "" {
		r.SystemLanguage = DefaultSystemLanguage
	}
	return r
}

func (r CompareRequest) Validate() error {
	if strings.TrimSpace(r.UserImage) == "" || strings.TrimSpace(r.ReferenceImage) == "" {
		return ErrImageRequired
	}
	return nil
}

// VisualOnly: сравнение без привязки к букве и языку.
func (r CompareRequest) VisualOnly() bool {
	return strings.EqualFold(r.Letter, LetterNone) && strings.EqualFold(r.Language, LetterNone)
}

// CompareResult: ответ сервиса: percents продублирован на верхнем уровне для клиента.
type CompareResult struct {
	Percents float64 `json:"percents"`
	Result   Verdict `json:"result"`
	Engine   string  `json:"engine"`
	Model    string  `json:"model"`
	Cached   bool    `json:"cached"`
}
