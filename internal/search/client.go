// Package search adds live web results to prompts that ask about current
// data.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

const DefaultBaseURL = "https://serpapi.com/search"

// Cache stores raw provider payloads between calls.
type Cache interface {
	GetCachedSearch(query, source string, now time.Time) (*models.SearchResultCache, error)
	PutCachedSearch(entry *models.SearchResultCache) error
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// CacheTTL is how long a payload is served from the cache. Zero
	// disables caching.
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

type Client struct {
	cfg    Config
	client *http.Client
	cache  Cache
	logger *log.Logger
	now    func() time.Time
}

// New returns a search client. cache may be nil.
func New(cfg Config, cache Cache, logger *log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if cfg.APIKey == "" {
		logger.Warn("search: API key not configured, search disabled")
	}
	return &Client{cfg: cfg, client: client, cache: cache, logger: logger, now: time.Now}
}

func (c *Client) Enabled() bool {
	return c != nil && c.cfg.APIKey != ""
}

// ShouldSearch reports whether query asks for live data and search is
// configured.
func (c *Client) ShouldSearch(query string) bool {
	_, ok := c.category(query)
	return ok
}

// category returns the live-data category of query when search is enabled.
func (c *Client) category(query string) (string, bool) {
	if !c.Enabled() {
		return "", false
	}
	category, ok := MatchCategory(query)
	if ok {
		c.logger.Info("search: live data query detected", "category", category)
	}
	return category, ok
}

// Search fetches and formats results for query, or returns nil on any
// failure.
func (c *Client) Search(ctx context.Context, query string, kind Kind) *Results {
	if !c.Enabled() {
		return nil
	}

	if payload, ok := c.cached(query, kind); ok {
		res, err := parseResults(payload, kind)
		if err == nil {
			c.logger.Debug("search: cache hit", "query", query, "kind", kind)
			return res
		}
		c.logger.Warn("search: discarding unreadable cache entry", "query", query, "err", err)
	}

	payload, err := c.fetch(ctx, query, kind)
	if err != nil {
		c.logger.Error("search: request failed", "query", query, "err", err)
		return nil
	}
	res, err := parseResults(payload, kind)
	if err != nil {
		c.logger.Error("search: bad response", "query", query, "err", err)
		return nil
	}
	c.store(query, kind, payload)

	c.logger.Info("search: completed", "query", query, "kind", kind, "items", len(res.Items))
	return res
}

// Augment searches the web for queries that ask for live data and formats
// the results. The category only decides whether to search; the query
// always goes to the general engine. ok is false when nothing should be
// added to the prompt.
func (c *Client) Augment(ctx context.Context, query string) (string, bool) {
	if _, ok := c.category(query); !ok {
		return "", false
	}
	res := c.Search(ctx, query, KindGoogle)
	if res == nil {
		return "", false
	}
	return FormatForPrompt(res), true
}

func (c *Client) fetch(ctx context.Context, query string, kind Kind) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", c.cfg.APIKey)
	params.Set("engine", kind.engine())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API error (status %d)", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func (c *Client) cached(query string, kind Kind) ([]byte, bool) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return nil, false
	}
	entry, err := c.cache.GetCachedSearch(query, string(kind), c.now())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("search: cache lookup failed", "err", err)
		}
		return nil, false
	}
	return entry.ResultData, true
}

func (c *Client) store(query string, kind Kind, payload []byte) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return
	}
	now := c.now()
	expires := now.Add(c.cfg.CacheTTL)
	err := c.cache.PutCachedSearch(&models.SearchResultCache{
		Query:      query,
		ResultData: payload,
		Source:     string(kind),
		CachedAt:   now,
		ExpiresAt:  &expires,
	})
	if err != nil {
		c.logger.Warn("search: failed to cache result", "err", err)
	}
}
