package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func TestPollBackoff(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		err    error
		want   time.Duration
		reason string
	}{
		{"retry hint", &tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 7",
			ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}}, 7 * time.Second, "retry_after"},
		{"429 no hint", &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}, 3 * time.Second, "rate_limited"},
		{"api error", &tgbotapi.Error{Code: 409, Message: "Conflict"}, time.Second, "api_error"},
		{"wrapped", errors.Join(errors.New("poll"), &tgbotapi.Error{Code: 429}), 3 * time.Second, "rate_limited"},
		{"plain text mentioning 429", errors.New("too many requests: retry after 40"), time.Second, "transport"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, reason := pollBackoff(tc.err)
			if d != tc.want || reason != tc.reason {
				t.Fatalf("got %v/%s, want %v/%s", d, reason, tc.want, tc.reason)
			}
		})
	}
}

func TestWebhookPath(t *testing.T) {
	t.Parallel()
	p := WebhookPath("123:abc")
	if !strings.HasPrefix(p, "/webhook/") || len(p) != len("/webhook/")+16 {
		t.Fatalf("path = %q", p)
	}
	if p != WebhookPath("123:abc") || p == WebhookPath("123:abd") {
		t.Fatal("path must be stable per token")
	}
	if strings.Contains(p, "abc") {
		t.Fatal("path leaks the token")
	}
}

// telegramStub отдаёт два апдейта одного чата за один getUpdates, дальше пусто.
func telegramStub(t *testing.T) *httptest.Server {
	t.Helper()
	var served atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"t","username":"t_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/deleteWebhook"):
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if served.CompareAndSwap(false, true) {
				_, _ = w.Write([]byte(`{"ok":true,"result":[` +
					`{"update_id":1,"message":{"message_id":1,"date":0,"chat":{"id":7,"type":"private"},"text":"slow"}},` +
					`{"update_id":2,"message":{"message_id":2,"date":0,"chat":{"id":7,"type":"private"},"text":"fast"}}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunPollingKeepsChatOrder(t *testing.T) {
	t.Parallel()
	srv := telegramStub(t)
	bot, err := tgbotapi.NewBotAPIWithClient("123:abc", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("bot: %v", err)
	}

	var got orderLog
	d := NewDispatcher(func(u tgbotapi.Update) {
		if u.Message.Text == "slow" {
			time.Sleep(100 * time.Millisecond)
		}
		got.add(u.UpdateID)
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		RunPolling(ctx, bot, d, zap.NewNop())
		close(stopped)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for len(got.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("polling did not stop")
	}

	if ids := got.snapshot(); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", ids)
	}
}

func TestWebhookHandlerDispatches(t *testing.T) {
	t.Parallel()
	srv := telegramStub(t)
	bot, err := tgbotapi.NewBotAPIWithClient("123:abc", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("bot: %v", err)
	}
	var got orderLog
	d := NewDispatcher(func(u tgbotapi.Update) { got.add(u.UpdateID) }, zap.NewNop())
	h := WebhookHandler(bot, d, zap.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/x",
		strings.NewReader(`{"update_id":5,"message":{"message_id":5,"date":0,"chat":{"id":7,"type":"private"},"text":"hi"}}`))
	h.ServeHTTP(rec, req)
	d.Wait()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ids := got.snapshot(); len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("handled = %v", ids)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/x", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", rec.Code)
	}
}
