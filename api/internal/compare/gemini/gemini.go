package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lettera/api/internal/compare/types"
	"lettera/api/internal/util"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultModel    = "gemini-2.5-flash"
	defaultAttempts = 3
	// лимит на скачивание картинки по URL
	maxImageBytes = 20 << 20
)

type Engine struct {
	APIKey string
	Model  string

	attempts int
	httpc    *http.Client
}

type Option func(*Engine)

func WithAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.attempts = n
		}
	}
}

// WithHTTPClient: клиент для скачивания картинок по http(s)-ссылкам.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		if c != nil {
			e.httpc = c
		}
	}
}

func New(apiKey, model string, opts ...Option) *Engine {
	e := &Engine{
		APIKey:   strings.TrimSpace(apiKey),
		Model:    strings.TrimSpace(model),
		attempts: defaultAttempts,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Model == "" {
		e.Model = defaultModel
	}
	return e
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// Compare: промпт + две картинки Blob'ами, ответ строго JSON.
func (e *Engine) Compare(ctx context.Context, in types.CompareRequest) (types.Verdict, error) {
	if e.APIKey == "" {
		return types.Verdict{}, errors.New("GEMINI_API_KEY is empty")
	}
	in = in.WithDefaults()

	userImg, err := e.loadImage(ctx, in.UserImage)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("gemini compare: user image: %w", err)
	}
	refImg, err := e.loadImage(ctx, in.ReferenceImage)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("gemini compare: reference image: %w", err)
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return types.Verdict{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return types.Verdict{}, fmt.Errorf("gemini: model is nil")
	}
	// Возвращаем строго JSON
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}

	parts := []genai.Part{userImg, refImg, genai.Text(types.BuildPrompt(in))}

	// Ретраи на случай 5xx/транзиентных сбоёв
	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			if attempt == e.attempts {
				break
			}
			if err := sleepCtx(ctx, time.Duration(attempt)*300*time.Millisecond); err != nil {
				return types.Verdict{}, fmt.Errorf("gemini compare: %w", err)
			}
			continue
		}
		txt := firstText(resp)
		if strings.TrimSpace(txt) == "" {
			return types.Verdict{}, fmt.Errorf("gemini compare: empty response")
		}
		v, err := types.ParseVerdict(txt)
		if err != nil {
			return types.Verdict{}, fmt.Errorf("gemini compare: bad JSON: %w", err)
		}
		return v, nil
	}
	return types.Verdict{}, fmt.Errorf("gemini compare: %w", lastErr)
}

// loadImage превращает URL, data:URI или голый base64 в Blob.
func (e *Engine) loadImage(ctx context.Context, ref string) (*genai.Blob, error) {
	ref = util.NormalizeImageRef(ref)
	if util.IsRemoteURL(ref) {
		return e.download(ctx, ref)
	}
	data, mimeFromDataURL, err := util.DecodeBase64MaybeDataURL(ref)
	if err != nil {
		return nil, fmt.Errorf("bad base64: %w", err)
	}
	return &genai.Blob{MIMEType: util.PickMIME("", mimeFromDataURL, data), Data: data}, nil
}

func (e *Engine) download(ctx context.Context, url string) (*genai.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: http %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("download %s: image exceeds %d bytes", url, maxImageBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if semi := strings.IndexByte(ct, ';'); semi >= 0 {
		ct = ct[:semi]
	}
	ct = strings.TrimSpace(ct)
	if !strings.HasPrefix(ct, "image/") {
		ct = ""
	}
	return &genai.Blob{MIMEType: util.PickMIME(ct, "", data), Data: data}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(f float32) *float32 { return &f }
