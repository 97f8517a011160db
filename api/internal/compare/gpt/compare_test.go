package gpt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"lettera/api/internal/compare/types"
)

const pngB64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

func newTestEngine(t *testing.T, h http.HandlerFunc, opts ...Option) (*Engine, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	var sleeps []time.Duration
	base := []Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }),
	}
	return New("test-key", "gpt-4.1", append(base, opts...)...), &sleeps
}

func okEnvelope(text string) string {
	b, _ := json.Marshal(map[string]any{"object": "response", "output_text": text})
	return string(b)
}

func TestCompareSendsBothImagesAndPrompt(t *testing.T) {
	var got map[string]any
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		_, _ = io.WriteString(w, okEnvelope(`{"percents": 87, "advice": "ok"}`))
	})

	v, err := e.Compare(context.Background(), types.CompareRequest{
		UserImage:      pngB64,
		ReferenceImage: "https://example.com/a.svg",
		Letter:         "a",
		Language:       "es",
	})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if v.Percents != 87 || v.Status != types.StatusGood {
		t.Fatalf("verdict = %+v", v)
	}

	if got["model"] != "gpt-4.1" {
		t.Errorf("model = %v", got["model"])
	}
	if _, ok := got["text"]; ok {
		t.Errorf("text.format must be absent without structured output")
	}
	input := got["input"].([]any)
	content := input[0].(map[string]any)["content"].([]any)
	if len(content) != 3 {
		t.Fatalf("content parts = %d, want 3", len(content))
	}
	first := content[0].(map[string]any)
	if first["type"] != "input_image" || first["image_url"] != "data:image/png;base64,"+pngB64 {
		t.Errorf("user image part = %v", first)
	}
	second := content[1].(map[string]any)
	if second["type"] != "input_image" || second["image_url"] != "https://example.com/a.svg" {
		t.Errorf("reference image part = %v", second)
	}
	third := content[2].(map[string]any)
	if third["type"] != "input_text" || !strings.Contains(third["text"].(string), "letter: a.") {
		t.Errorf("prompt part = %v", third)
	}
}

func TestCompareStructuredOutput(t *testing.T) {
	var got map[string]any
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, okEnvelope(`{"percents": 40}`))
	}, WithStructuredOutput(true))

	if _, err := e.Compare(context.Background(), types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64}); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	format := got["text"].(map[string]any)["format"].(map[string]any)
	if format["type"] != "json_schema" || format["strict"] != true || format["name"] != COMPARE {
		t.Fatalf("format = %v", format)
	}
	schema := format["schema"].(map[string]any)
	if schema["additionalProperties"] != false {
		t.Errorf("schema not strict: %v", schema)
	}
	if req := schema["required"].([]any); len(req) != 5 {
		t.Errorf("required = %v, want all 5 properties", req)
	}
}

func TestCompareFallsBackToOutputContent(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"output":[{"role":"assistant","content":[{"type":"output_text","text":"lettersBack:dev: {\"percents\": 55,}"}]}]}`)
	})
	v, err := e.Compare(context.Background(), types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if v.Percents != 55 || v.Status != types.StatusAverage {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestCompareRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	e, sleeps := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, okEnvelope(`{"percents": 90}`))
	})

	v, err := e.Compare(context.Background(), types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if v.Percents != 90 {
		t.Fatalf("percents = %v", v.Percents)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(*sleeps) != len(want) || (*sleeps)[0] != want[0] || (*sleeps)[1] != want[1] {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
}

func TestCompareHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	e, sleeps := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, okEnvelope(`{"percents": 10}`))
	})
	if _, err := e.Compare(context.Background(), types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64}); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 2*time.Second {
		t.Fatalf("sleeps = %v, want [2s]", *sleeps)
	}
}

func TestCompareDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"bad image"}}`, http.StatusBadRequest)
	})
	_, err := e.Compare(context.Background(), types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want StatusError 400", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestCompareGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}, WithRetry(2, 10*time.Millisecond, 20*time.Millisecond))

	_, err := e.Compare(context.Background(), types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64})
	if err == nil || !strings.Contains(err.Error(), "after 2 attempts") {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestCompareUnparseableOutput(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, okEnvelope("I cannot see any letter here"))
	})
	_, err := e.Compare(context.Background(), types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64})
	if err == nil || !strings.Contains(err.Error(), "bad JSON") {
		t.Fatalf("err = %v", err)
	}
}

func TestCompareRequiresAPIKey(t *testing.T) {
	e := New("  ", "")
	if e.GetModel() != defaultModel {
		t.Fatalf("model = %q", e.GetModel())
	}
	if _, err := e.Compare(context.Background(), types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestExtractResponsesText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"output_text", `{"output_text":" {\"a\":1} "}`, `{"a":1}`},
		{"content", `{"output":[{"content":[{"type":"output_text","text":"x"},{"type":"text","text":"y"}]}]}`, "x\ny"},
		{"skip non-text", `{"output":[{"content":[{"type":"refusal","text":"no"},{"type":"output_text","text":"ok"}]}]}`, "ok"},
		{"not json", `<html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractResponsesText([]byte(tt.raw)); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryDelay(t *testing.T) {
	e := New("k", "m")
	for attempt, want := range map[int]time.Duration{
		1: 500 * time.Millisecond,
		2: time.Second,
		3: 2 * time.Second,
		6: 8 * time.Second,
	} {
		if got := e.retryDelay(attempt, errors.New("x")); got != want {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, want)
		}
	}
	if got := e.retryDelay(1, &StatusError{StatusCode: 429, RetryAfter: time.Minute}); got != 8*time.Second {
		t.Errorf("retry-after must be capped, got %v", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("3"); !ok || d != 3*time.Second {
		t.Fatalf("seconds: %v %v", d, ok)
	}
	if _, ok := parseRetryAfter("0"); ok {
		t.Fatal("zero must be ignored")
	}
	if _, ok := parseRetryAfter(""); ok {
		t.Fatal("empty must be ignored")
	}
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	if d, ok := parseRetryAfter(future); !ok || d <= 0 {
		t.Fatalf("http-date: %v %v", d, ok)
	}
}

func TestShouldRetry(t *testing.T) {
	if shouldRetry(context.DeadlineExceeded) {
		t.Error("deadline must not be retried")
	}
	if !shouldRetry(&StatusError{StatusCode: http.StatusRequestTimeout}) {
		t.Error("408 must be retried")
	}
	if shouldRetry(&StatusError{StatusCode: http.StatusUnauthorized}) {
		t.Error("401 must not be retried")
	}
}
