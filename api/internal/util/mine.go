package util

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// base64 signatures of image magic bytes, checked in order.
var mimeSignatures = []struct {
	prefix string
	mime   string
}{
	{"iVBORw0KG", "image/png"},  // \x89PNG
	{"/9j/", "image/jpeg"},      // FF D8 FF
	{"R0lGOD", "image/gif"},     // GIF8
	{"UklGR", "image/webp"},     // RIFF
	{"PHN2Zy", "image/svg+xml"}, // <svg
}

const defaultImageMIME = "image/png"

// GuessMimeFromBase64 угадывает MIME по первым символам base64. Это эвристика, а не проверка содержимого.
func GuessMimeFromBase64(b64 string) string {
	prefix := b64
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	for _, sig := range mimeSignatures {
		if strings.HasPrefix(prefix, sig.prefix) {
			return sig.mime
		}
	}
	return defaultImageMIME
}

// NormalizeImageRef приводит ссылку на изображение к URL или data:URI.
// Пустая строка возвращается как есть, ошибок не бывает.
func NormalizeImageRef(ref string) string {
	if ref == "" {
		return ref
	}
	s := strings.TrimSpace(ref)
	if IsRemoteURL(s) || strings.HasPrefix(s, "data:") {
		return s
	}
	return MakeDataURL(GuessMimeFromBase64(s), s)
}

func IsRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func MakeDataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

// DecodeBase64MaybeDataURL декодирует base64. Если это data:URI, вернёт MIME из префикса.
func DecodeBase64MaybeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hintMIME string
	if strings.HasPrefix(s, "data:") {
		// data:<mime>;base64,<payload>
		if idx := strings.IndexByte(s, ','); idx > 0 {
			meta := s[len("data:"):idx]
			if semi := strings.IndexByte(meta, ';'); semi >= 0 {
				hintMIME = meta[:semi]
			} else {
				hintMIME = meta
			}
			s = s[idx+1:]
		}
	}
	// Стандартная база64, затем URL-safe
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, hintMIME, nil
	} else if b2, err2 := base64.URLEncoding.DecodeString(s); err2 == nil {
		return b2, hintMIME, nil
	} else {
		return nil, "", err
	}
}

// PickMIME берём явный MIME, затем из data:URI, иначе детектим по байтам.
func PickMIME(explicit, hint string, data []byte) string {
	if exp := strings.TrimSpace(explicit); exp != "" {
		return exp
	}
	if h := strings.TrimSpace(hint); h != "" {
		return h
	}
	if len(data) > 0 {
		if m := http.DetectContentType(data); m != "application/octet-stream" {
			// text/xml; charset=utf-8 и т.п., берём только тип
			if semi := strings.IndexByte(m, ';'); semi >= 0 {
				m = strings.TrimSpace(m[:semi])
			}
			if m == "text/xml" || m == "text/plain" {
				if strings.Contains(string(data[:min(len(data), 512)]), "<svg") {
					return "image/svg+xml"
				}
			}
			return m
		}
	}
	return defaultImageMIME
}
