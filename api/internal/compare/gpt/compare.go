package gpt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lettera/api/internal/compare/types"
	"lettera/api/internal/util"
)

const COMPARE = "handwriting_verdict"

// Compare отправляет обе картинки (уже нормализованные) и промпт в Responses API.
func (e *Engine) Compare(ctx context.Context, in types.CompareRequest) (types.Verdict, error) {
	if e.APIKey == "" {
		return types.Verdict{}, fmt.Errorf("OPENAI_API_KEY is empty")
	}
	in = in.WithDefaults()

	body := map[string]any{
		"model": e.Model,
		"input": []any{
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "input_image", "image_url": util.NormalizeImageRef(in.UserImage)},
					map[string]any{"type": "input_image", "image_url": util.NormalizeImageRef(in.ReferenceImage)},
					map[string]any{"type": "input_text", "text": types.BuildPrompt(in)},
				},
			},
		},
	}
	if strings.Contains(e.Model, "gpt-5") {
		body["temperature"] = 1
	} else {
		body["temperature"] = 0.2
	}
	if e.structured {
		var schema map[string]any
		if err := json.Unmarshal([]byte(types.VerdictSchema), &schema); err != nil {
			return types.Verdict{}, fmt.Errorf("openai compare: bad verdict schema: %w", err)
		}
		util.FixJSONSchemaStrict(schema)
		body["text"] = map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   COMPARE,
				"strict": true,
				"schema": schema,
			},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("openai compare: encode body: %w", err)
	}

	raw, err := e.doWithRetry(ctx, payload)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("openai compare: %w", err)
	}

	out := extractResponsesText(raw)
	if strings.TrimSpace(out) == "" {
		return types.Verdict{}, fmt.Errorf("openai compare: empty output; body=%s", truncateBytes(raw, 1024))
	}
	v, err := types.ParseVerdict(out)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("openai compare: bad JSON: %w", err)
	}
	return v, nil
}

func (e *Engine) sendOnce(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncateBytes(raw, 1024),
			RetryAfter: retryAfter,
		}
	}
	return raw, nil
}
