package compare

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lettera/api/internal/compare/types"
)

type engineStub struct {
	name    string
	model   string
	mu      sync.Mutex
	calls   []types.CompareRequest
	compare func(types.CompareRequest) (types.Verdict, error)
}

func (s *engineStub) Name() string     { return s.name }
func (s *engineStub) GetModel() string { return s.model }

func (s *engineStub) Compare(_ context.Context, in types.CompareRequest) (types.Verdict, error) {
	s.mu.Lock()
	s.calls = append(s.calls, in)
	s.mu.Unlock()
	return s.compare(in)
}

type cacheStub struct {
	mu      sync.Mutex
	entries map[string]types.Verdict
	findErr error
	maxAges []time.Duration
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: map[string]types.Verdict{}}
}

func (c *cacheStub) Find(_ context.Context, key string, maxAge time.Duration) (types.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxAges = append(c.maxAges, maxAge)
	if c.findErr != nil {
		return types.Verdict{}, c.findErr
	}
	v, ok := c.entries[key]
	if !ok {
		return types.Verdict{}, sql.ErrNoRows
	}
	return v, nil
}

func (c *cacheStub) Upsert(_ context.Context, key, _, _ string, v types.Verdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
	return nil
}

const pngB64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk"

func TestServiceCompareNormalizesImages(t *testing.T) {
	eng := &engineStub{name: "gpt", model: "gpt-4.1", compare: func(types.CompareRequest) (types.Verdict, error) {
		return types.Verdict{Percents: 72, Advice: "round the bowl"}, nil
	}}
	svc := NewService(&Engines{OpenAI: eng}, nil)

	res, err := svc.Compare(context.Background(), "", types.CompareRequest{
		UserImage:      pngB64,
		ReferenceImage: " https://example.com/ref.svg ",
		Letter:         "B",
		Language:       "en",
	})
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if len(eng.calls) != 1 {
		t.Fatalf("expected one engine call, got %d", len(eng.calls))
	}
	got := eng.calls[0]
	if got.UserImage != "data:image/png;base64,"+pngB64 {
		t.Fatalf("user image not normalized: %q", got.UserImage)
	}
	if got.ReferenceImage != "https://example.com/ref.svg" {
		t.Fatalf("reference image not trimmed: %q", got.ReferenceImage)
	}
	if got.SystemLanguage != "en" {
		t.Fatalf("expected default system language, got %q", got.SystemLanguage)
	}
	if res.Percents != 72 || res.Result.Status != types.StatusAverage || res.Engine != "gpt" || res.Model != "gpt-4.1" || res.Cached {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestServiceCompareValidation(t *testing.T) {
	eng := &engineStub{name: "gpt", compare: func(types.CompareRequest) (types.Verdict, error) {
		t.Fatal("engine must not be called")
		return types.Verdict{}, nil
	}}
	svc := NewService(&Engines{OpenAI: eng}, nil)

	_, err := svc.Compare(context.Background(), "", types.CompareRequest{UserImage: pngB64})
	if !errors.Is(err, types.ErrImageRequired) {
		t.Fatalf("expected ErrImageRequired, got %v", err)
	}

	_, err = svc.Compare(context.Background(), "claude", types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64})
	if !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestServiceComparePropagatesEngineError(t *testing.T) {
	boom := errors.New("upstream exploded")
	eng := &engineStub{name: "gpt", compare: func(types.CompareRequest) (types.Verdict, error) {
		return types.Verdict{}, boom
	}}
	cache := newCacheStub()
	svc := NewService(&Engines{OpenAI: eng}, nil, WithCache(cache, time.Hour))

	_, err := svc.Compare(context.Background(), "gpt", types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64})
	if !errors.Is(err, boom) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if len(cache.entries) != 0 {
		t.Fatal("failed verdicts must not be cached")
	}
}

func TestServiceCompareUsesCache(t *testing.T) {
	eng := &engineStub{name: "gpt", model: "m", compare: func(types.CompareRequest) (types.Verdict, error) {
		return types.Verdict{Percents: 91}, nil
	}}
	cache := newCacheStub()
	svc := NewService(&Engines{OpenAI: eng}, nil, WithCache(cache, 2*time.Hour))
	req := types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64, Letter: "A", Language: "en"}

	first, err := svc.Compare(context.Background(), "gpt", req)
	if err != nil {
		t.Fatalf("first compare: %v", err)
	}
	second, err := svc.Compare(context.Background(), "gpt", req)
	if err != nil {
		t.Fatalf("second compare: %v", err)
	}
	if len(eng.calls) != 1 {
		t.Fatalf("expected engine to be called once, got %d", len(eng.calls))
	}
	if first.Cached || !second.Cached {
		t.Fatalf("unexpected cached flags: first=%v second=%v", first.Cached, second.Cached)
	}
	if second.Percents != 91 || second.Result.Status != types.StatusGood {
		t.Fatalf("unexpected cached result: %+v", second)
	}
	if cache.maxAges[0] != 2*time.Hour {
		t.Fatalf("expected ttl to be forwarded, got %v", cache.maxAges[0])
	}
}

func TestServiceCompareCacheErrorFallsThrough(t *testing.T) {
	eng := &engineStub{name: "gpt", compare: func(types.CompareRequest) (types.Verdict, error) {
		return types.Verdict{Percents: 10}, nil
	}}
	cache := newCacheStub()
	cache.findErr = errors.New("connection refused")
	svc := NewService(&Engines{OpenAI: eng}, nil, WithCache(cache, 0))

	res, err := svc.Compare(context.Background(), "gpt", types.CompareRequest{UserImage: pngB64, ReferenceImage: pngB64})
	if err != nil {
		t.Fatalf("cache failure must not fail the request: %v", err)
	}
	if res.Percents != 10 || res.Cached {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	base := types.CompareRequest{UserImage: "u", ReferenceImage: "r", Letter: "A", Language: "en", SystemLanguage: "en"}
	k1 := CacheKey("gpt", "m", base)
	if len(k1) != 64 || strings.Trim(k1, "0123456789abcdef") != "" {
		t.Fatalf("expected hex sha256, got %q", k1)
	}
	if k1 != CacheKey("gpt", "m", base) {
		t.Fatal("cache key must be deterministic")
	}
	other := base
	other.Letter = "B"
	if k1 == CacheKey("gpt", "m", other) {
		t.Fatal("letter must affect the key")
	}
	if k1 == CacheKey("gemini", "m", base) {
		t.Fatal("engine must affect the key")
	}
	swapped := base
	swapped.UserImage, swapped.ReferenceImage = base.ReferenceImage, base.UserImage
	if k1 == CacheKey("gpt", "m", swapped) {
		t.Fatal("image order must affect the key")
	}
}
