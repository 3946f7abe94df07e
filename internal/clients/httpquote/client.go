// Package httpquote reads listed security quotes from a configurable JSON endpoint.
//
// The endpoint is a URL template where "{code}" is replaced by the asset code.
// Price, change and name are extracted from the response with JSONPath
// expressions, so any quote API that returns one JSON document per security
// can be plugged in without code changes.
package httpquote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/clientdata"
	"github.com/aristath/permanent/internal/domain"
)

const userAgent = "Mozilla/5.0 (compatible; permanent-portfolio/1.0)"

// Config describes the endpoint and where the fields live in its response
type Config struct {
	URLTemplate string
	PricePath   string
	ChangePath  string // optional
	NamePath    string // optional
}

// Client is a domain.QuoteSource for listed assets
type Client struct {
	cfg       Config
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a listed quote client.
// cacheRepo is optional - if nil, every Fetch hits the endpoint.
func NewClient(cfg Config, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if cfg.PricePath == "" {
		cfg.PricePath = "$.price"
	}
	return &Client{
		cfg:       cfg,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "httpquote").Logger(),
		cacheRepo: cacheRepo,
	}
}

// Name implements domain.QuoteSource
func (c *Client) Name() string { return "httpquote" }

// Configured reports whether an endpoint template is set
func (c *Client) Configured() bool {
	return strings.Contains(c.cfg.URLTemplate, "{code}")
}

// cachedQuote is the structure stored in the cache
type cachedQuote struct {
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	ChangePct *float64  `json:"change_pct"`
	AsOf      time.Time `json:"as_of"`
}

// Fetch returns the quote for asset.Code
func (c *Client) Fetch(ctx context.Context, asset domain.Asset) (*domain.MarketQuote, error) {
	code := strings.TrimSpace(asset.Code)
	if code == "" {
		return nil, fmt.Errorf("asset %s has no code", asset.ID)
	}
	if !c.Configured() {
		return nil, fmt.Errorf("listed quote endpoint is not configured")
	}

	if c.cacheRepo != nil {
		var cached cachedQuote
		found, _, err := c.cacheRepo.Lookup(clientdata.TableListedQuotes, code, false, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("code", code).Msg("Failed to read quote cache")
		} else if found {
			c.log.Debug().Str("code", code).Float64("price", cached.Price).Msg("Cache hit")
			return &domain.MarketQuote{Name: cached.Name, Price: cached.Price, ChangePct: cached.ChangePct, AsOf: cached.AsOf}, nil
		}
	}

	endpoint := strings.ReplaceAll(c.cfg.URLTemplate, "{code}", url.PathEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.log.Debug().Str("code", code).Msg("Fetching quote")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var doc interface{}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	price, err := extractFloat(doc, c.cfg.PricePath)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", code, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("price for %s is not positive: %v", code, price)
	}

	quote := &domain.MarketQuote{Price: price, AsOf: time.Now().UTC()}
	if c.cfg.ChangePath != "" {
		if change, err := extractFloat(doc, c.cfg.ChangePath); err == nil {
			quote.ChangePct = &change
		}
	}
	if c.cfg.NamePath != "" {
		if v, err := jsonpath.Get(c.cfg.NamePath, doc); err == nil {
			if s, ok := v.(string); ok {
				quote.Name = strings.TrimSpace(s)
			}
		}
	}

	if c.cacheRepo != nil {
		cached := cachedQuote{Name: quote.Name, Price: quote.Price, ChangePct: quote.ChangePct, AsOf: quote.AsOf}
		if err := c.cacheRepo.Store(clientdata.TableListedQuotes, code, cached, clientdata.TTLListedQuote); err != nil {
			c.log.Warn().Err(err).Str("code", code).Msg("Failed to cache quote")
		}
	}

	c.log.Debug().Str("code", code).Float64("price", price).Msg("Fetched quote")
	return quote, nil
}

// extractFloat evaluates path against doc and accepts a JSON number or a
// numeric string. A path matching a list takes its first element.
func extractFloat(doc interface{}, path string) (float64, error) {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate %s: %w", path, err)
	}
	if list, ok := v.([]interface{}); ok {
		if len(list) == 0 {
			return 0, fmt.Errorf("%s matched nothing", path)
		}
		v = list[0]
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(n, "%")), 64)
		if err != nil {
			return 0, fmt.Errorf("%s is not a number: %q", path, n)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%s is null", path)
	default:
		return 0, fmt.Errorf("%s has unexpected type %T", path, v)
	}
}
