package llm

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMockDeterminism(t *testing.T) {
	a := NewMockProvider()
	b := NewMockProvider()

	first, err := a.Complete(context.Background(), "describe column age")
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Complete(context.Background(), "describe column age")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("mock responses must be deterministic in the prompt")
	}

	other, _ := a.Complete(context.Background(), "describe column weight")
	if other == first {
		t.Error("different prompts should differ")
	}
}

func TestMockCannedResponse(t *testing.T) {
	p := NewMockProvider().Respond("column age", `{"insight": "years", "confidence": 0.9}`)

	var out struct {
		Insight    string  `json:"insight"`
		Confidence float64 `json:"confidence"`
	}
	if err := p.CompleteJSON(context.Background(), "analyze column age", &out); err != nil {
		t.Fatal(err)
	}
	if out.Insight != "years" || out.Confidence != 0.9 {
		t.Errorf("unexpected decode: %+v", out)
	}
}

func TestCleanJSONContent(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n[1, 2]\n```", `[1, 2]`},
		{"Here is the JSON:\n{\"a\": 1}", `{"a": 1}`},
		{`{"a": 1}`, `{"a": 1}`},
	}
	for _, c := range cases {
		if got := cleanJSONContent(c.in); got != c.want {
			t.Errorf("cleanJSONContent(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	if _, ok := c.Get("h1", "m1"); ok {
		t.Error("empty cache should miss")
	}
	if err := c.Put("h1", "m1", "resp"); err != nil {
		t.Fatal(err)
	}
	if v, ok := c.Get("h1", "m1"); !ok || v != "resp" {
		t.Errorf("expected hit with resp, got %q/%v", v, ok)
	}
	if _, ok := c.Get("h1", "m2"); ok {
		t.Error("model is part of the cache key")
	}
}

func TestSQLiteCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := OpenSQLiteCache(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer c.Close()

	if err := c.Put("hash", "model", "cached response"); err != nil {
		t.Fatal(err)
	}
	if v, ok := c.Get("hash", "model"); !ok || v != "cached response" {
		t.Errorf("expected cached response, got %q/%v", v, ok)
	}

	// Upsert replaces.
	if err := c.Put("hash", "model", "updated"); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Get("hash", "model"); v != "updated" {
		t.Errorf("expected updated, got %q", v)
	}
}

func TestNewProviderRegistry(t *testing.T) {
	if p, err := New("", Config{}); err != nil || p != nil {
		t.Error("empty provider name disables augmentation")
	}
	if _, err := New("anthropic", Config{}); err == nil {
		t.Error("anthropic without a key should fail")
	}
	if _, err := New("nope", Config{}); err == nil {
		t.Error("unknown provider should fail")
	}
	if p, err := New("mock", Config{}); err != nil || p == nil {
		t.Error("mock provider should always construct")
	}
	if p, err := New("ollama", Config{}); err != nil || p.Name() != "ollama" {
		t.Error("ollama should construct without a key")
	}
}
