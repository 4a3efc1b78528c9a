package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

var testLogger = log.New(io.Discard)

func organicPayload(n int) string {
	var items []map[string]any
	for i := 1; i <= n; i++ {
		items = append(items, map[string]any{
			"title":   fmt.Sprintf("Result %d", i),
			"link":    fmt.Sprintf("https://example.com/%d", i),
			"snippet": fmt.Sprintf("Snippet %d", i),
			"source":  "Example",
		})
	}
	b, _ := json.Marshal(map[string]any{
		"search_parameters":  map[string]any{"q": "weather in paris"},
		"search_information": map[string]any{"total_results": 1234},
		"organic_results":    items,
	})
	return string(b)
}

func TestShouldSearch(t *testing.T) {
	c := New(Config{APIKey: "k"}, nil, testLogger)

	for _, q := range []string{"What's the WEATHER like?", "bitcoin price", "Latest NEWS please", "Who won the Match"} {
		if !c.ShouldSearch(q) {
			t.Errorf("ShouldSearch(%q) = false, want true", q)
		}
	}
	for _, q := range []string{"Write a haiku", "Explain recursion"} {
		if c.ShouldSearch(q) {
			t.Errorf("ShouldSearch(%q) = true, want false", q)
		}
	}

	disabled := New(Config{}, nil, testLogger)
	if disabled.ShouldSearch("weather forecast today") {
		t.Error("ShouldSearch without an API key = true, want false")
	}
}

func TestMatchCategoryOrder(t *testing.T) {
	tests := map[string]string{
		"rain tomorrow":       "weather",
		"eth price":           "crypto",
		"nasdaq today":        "stock",
		"how much is a latte": "price",
		"breaking headlines":  "news",
		"playoff bracket":     "sports",
		"live stream":         "realtime",
	}
	for q, want := range tests {
		got, ok := MatchCategory(q)
		if !ok || got != want {
			t.Errorf("MatchCategory(%q) = %q, want %q", q, got, want)
		}
	}
}

func TestSearchFormatsTopFive(t *testing.T) {
	var gotQuery, gotKey, gotEngine string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("api_key")
		gotEngine = r.URL.Query().Get("engine")
		io.WriteString(w, organicPayload(8))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "serp-key", BaseURL: srv.URL}, nil, testLogger)
	res := c.Search(context.Background(), "weather in paris", KindGoogle)
	if res == nil {
		t.Fatal("Search returned nil")
	}
	if gotQuery != "weather in paris" || gotKey != "serp-key" || gotEngine != "google" {
		t.Errorf("Unexpected params q=%q api_key=%q engine=%q", gotQuery, gotKey, gotEngine)
	}
	if res.Type != "google_search" || res.TotalResults != 1234 {
		t.Errorf("Unexpected header %+v", res)
	}
	if len(res.Items) != 5 {
		t.Errorf("Expected 5 items, got %d", len(res.Items))
	}

	text := FormatForPrompt(res)
	if !strings.Contains(text, "1. **Result 1**") || !strings.Contains(text, "[Link](https://example.com/5)") {
		t.Errorf("Unexpected formatted text:\n%s", text)
	}
	if strings.Contains(text, "Result 6") {
		t.Error("Formatted text includes more than 5 items")
	}
}

func TestSearchNewsAndShopping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("engine") {
		case "google_news":
			io.WriteString(w, `{"news_results":[{"title":"Headline","source":{"name":"Wire"},"date":"1 hour ago","snippet":"Body"}]}`)
		case "google_shopping":
			io.WriteString(w, `{"shopping_results":[{"title":"Espresso machine","price":"$199.00","source":"Store","thumbnail":"https://img"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL}, nil, testLogger)

	news := c.Search(context.Background(), "news", KindNews)
	if news == nil || news.Type != "news" || news.Items[0].Source != "Wire" {
		t.Fatalf("Unexpected news results %+v", news)
	}
	if !strings.Contains(FormatForPrompt(news), "**Headline** - Wire") {
		t.Errorf("Unexpected news text %q", FormatForPrompt(news))
	}

	shop := c.Search(context.Background(), "price", KindShopping)
	if shop == nil || shop.Items[0].Price != "$199.00" || shop.Items[0].Image != "https://img" {
		t.Fatalf("Unexpected shopping results %+v", shop)
	}
	if !strings.Contains(FormatForPrompt(shop), "Price: $199.00") {
		t.Errorf("Unexpected shopping text %q", FormatForPrompt(shop))
	}
}

func TestSearchFailureReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL}, nil, testLogger)
	if res := c.Search(context.Background(), "weather", KindGoogle); res != nil {
		t.Errorf("Expected nil on failure, got %+v", res)
	}
	if text, ok := c.Augment(context.Background(), "weather"); ok || text != "" {
		t.Errorf("Expected no augmentation on failure, got %q", text)
	}
	if FormatForPrompt(nil) != "No search results found." {
		t.Error("Unexpected text for nil results")
	}
}

type memoryCache struct {
	entries map[string]*models.SearchResultCache
}

func (m *memoryCache) GetCachedSearch(query, source string, now time.Time) (*models.SearchResultCache, error) {
	e, ok := m.entries[query+"|"+source]
	if !ok || e.Expired(now) {
		return nil, store.ErrNotFound
	}
	return e, nil
}

func (m *memoryCache) PutCachedSearch(e *models.SearchResultCache) error {
	m.entries[e.Query+"|"+e.Source] = e
	return nil
}

func TestSearchUsesCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		io.WriteString(w, organicPayload(2))
	}))
	defer srv.Close()

	cache := &memoryCache{entries: map[string]*models.SearchResultCache{}}
	c := New(Config{APIKey: "k", BaseURL: srv.URL, CacheTTL: time.Hour}, cache, testLogger)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	first := c.Search(context.Background(), "weather", KindGoogle)
	second := c.Search(context.Background(), "weather", KindGoogle)
	if first == nil || second == nil || len(second.Items) != 2 {
		t.Fatalf("Unexpected results %+v %+v", first, second)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("Expected one upstream call, got %d", hits)
	}

	now = now.Add(2 * time.Hour)
	c.Search(context.Background(), "weather", KindGoogle)
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("Expected expired entry to trigger a refetch, got %d calls", hits)
	}
}

func TestAugment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, organicPayload(1))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL}, nil, testLogger)

	text, ok := c.Augment(context.Background(), "weather in paris")
	if !ok || !strings.Contains(text, "Result 1") {
		t.Errorf("Augment = %q, %v", text, ok)
	}
	if _, ok := c.Augment(context.Background(), "tell me a joke"); ok {
		t.Error("Expected no augmentation for a query without live-data keywords")
	}
}

func TestAugmentAlwaysUsesGeneralEngine(t *testing.T) {
	var engines []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		engines = append(engines, r.URL.Query().Get("engine"))
		io.WriteString(w, organicPayload(1))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL}, nil, testLogger)

	for _, q := range []string{"latest news headlines", "how much is a ps5", "weather in paris"} {
		if _, ok := c.Augment(context.Background(), q); !ok {
			t.Errorf("Augment(%q) found nothing", q)
		}
	}
	if len(engines) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(engines))
	}
	for i, e := range engines {
		if e != "google" {
			t.Errorf("request %d used engine %q, want google", i, e)
		}
	}
}
