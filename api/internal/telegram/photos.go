package telegram

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"lettera/api/internal/compare/types"
	"lettera/api/internal/util"
)

// Telegram отдаёт файлы до 20 МБ
const maxPhotoBytes = 20 << 20

func isImageDocument(doc *tgbotapi.Document) bool {
	return doc != nil && strings.HasPrefix(doc.MimeType, "image/")
}

// acceptPhoto: подпись ref: сохраняем эталон, иначе сравниваем с эталоном.
func (r *Router) acceptPhoto(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	lang, letter, isRef := parseRefCaption(msg.Caption)

	// без эталона не качаем зря
	ref, hasRef := r.reference(cid)
	if !isRef && !hasRef {
		r.send(cid, "Сначала пришлите эталон: фото с подписью ref <язык> <буква>.")
		return
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	img, err := r.fetchImage(ctx, msg)
	if err != nil {
		r.logger().Warn("telegram photo download failed", zap.Int64("chat_id", cid), zap.Error(err))
		r.SendError(cid, err)
		return
	}

	if isRef {
		r.setReference(cid, &reference{Image: img, Letter: letter, Language: lang, SetAt: time.Now()})
		r.send(cid, fmt.Sprintf("Эталон сохранён (буква %s, язык %s). Теперь присылайте свои попытки.", letter, lang))
		return
	}

	_, _ = r.Bot.Request(tgbotapi.NewChatAction(cid, tgbotapi.ChatTyping))

	in := types.CompareRequest{
		UserImage:      img,
		ReferenceImage: ref.Image,
		Letter:         ref.Letter,
		Language:       ref.Language,
	}
	if msg.From != nil {
		in.SystemLanguage = msg.From.LanguageCode
	}
	res, err := r.Svc.Compare(ctx, r.EngManager.Get(cid), in)
	if err != nil {
		r.logger().Error("telegram compare failed", zap.Int64("chat_id", cid), zap.Error(err))
		r.SendError(cid, err)
		return
	}
	r.send(cid, formatVerdict(res))
}

// fetchImage скачивает самое большое фото (или документ) и возвращает data:URI.
func (r *Router) fetchImage(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	var fileID, mime string
	if len(msg.Photo) > 0 {
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	} else if msg.Document != nil {
		fileID, mime = msg.Document.FileID, msg.Document.MimeType
	}
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", err
	}
	data, err := r.download(ctx, url)
	if err != nil {
		return "", err
	}
	return util.MakeDataURL(util.PickMIME(mime, "", data), base64.StdEncoding.EncodeToString(data)), nil
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxPhotoBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxPhotoBytes)
	}
	return data, nil
}

func (r *Router) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}
