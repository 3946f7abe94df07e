// Package coingecko fetches crypto market prices from the CoinGecko API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/clientdata"
	"github.com/aristath/permanent/internal/domain"
)

// DefaultBaseURL is the public v3 API
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

const userAgent = "Mozilla/5.0 (compatible; permanent-portfolio/1.0)"

// Client is a domain.QuoteSource keyed by the asset's CoinID
type Client struct {
	baseURL    string
	apiKey     string
	vsCurrency string
	client     *http.Client
	log        zerolog.Logger
	cacheRepo  *clientdata.Repository
}

// NewClient creates a CoinGecko client.
// cacheRepo is optional - if nil, every Fetch hits the API.
func NewClient(baseURL, apiKey, vsCurrency string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if vsCurrency == "" {
		vsCurrency = "cny"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		vsCurrency: strings.ToLower(vsCurrency),
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("client", "coingecko").Logger(),
		cacheRepo:  cacheRepo,
	}
}

// Name implements domain.QuoteSource
func (c *Client) Name() string { return "coingecko" }

// cachedPrice is the structure stored in the cache
type cachedPrice struct {
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	ChangePct *float64  `json:"change_pct"`
	AsOf      time.Time `json:"as_of"`
}

type marketRow struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	CurrentPrice *float64 `json:"current_price"`
	Change24h    *float64 `json:"price_change_percentage_24h"`
	LastUpdated  string   `json:"last_updated"`
}

// Fetch returns the current price of asset.CoinID in the configured currency
func (c *Client) Fetch(ctx context.Context, asset domain.Asset) (*domain.MarketQuote, error) {
	coinID := strings.ToLower(strings.TrimSpace(asset.CoinID))
	if coinID == "" {
		return nil, fmt.Errorf("asset %s has no coin id", asset.ID)
	}
	cacheKey := c.vsCurrency + ":" + coinID

	if c.cacheRepo != nil {
		var cached cachedPrice
		found, _, err := c.cacheRepo.Lookup(clientdata.TableCoinPrices, cacheKey, false, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("coin", coinID).Msg("Failed to read price cache")
		} else if found {
			c.log.Debug().Str("coin", coinID).Float64("price", cached.Price).Msg("Cache hit")
			return &domain.MarketQuote{Name: cached.Name, Price: cached.Price, ChangePct: cached.ChangePct, AsOf: cached.AsOf}, nil
		}
	}

	q := url.Values{}
	q.Set("vs_currency", c.vsCurrency)
	q.Set("ids", coinID)
	q.Set("price_change_percentage", "24h")
	endpoint := c.baseURL + "/coins/markets?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	c.log.Debug().Str("coin", coinID).Msg("Fetching market price")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var rows []marketRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var row *marketRow
	for i := range rows {
		if strings.EqualFold(rows[i].ID, coinID) {
			row = &rows[i]
			break
		}
	}
	if row == nil {
		return nil, fmt.Errorf("coin %q not found", coinID)
	}
	if row.CurrentPrice == nil || *row.CurrentPrice <= 0 {
		return nil, fmt.Errorf("no price for coin %q", coinID)
	}

	asOf := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, row.LastUpdated); err == nil {
		asOf = t.UTC()
	}
	quote := &domain.MarketQuote{
		Name:      row.Name,
		Price:     *row.CurrentPrice,
		ChangePct: row.Change24h,
		AsOf:      asOf,
	}

	if c.cacheRepo != nil {
		cached := cachedPrice{Name: quote.Name, Price: quote.Price, ChangePct: quote.ChangePct, AsOf: quote.AsOf}
		if err := c.cacheRepo.Store(clientdata.TableCoinPrices, cacheKey, cached, clientdata.TTLCoinPrice); err != nil {
			c.log.Warn().Err(err).Str("coin", coinID).Msg("Failed to cache price")
		}
	}

	c.log.Debug().Str("coin", coinID).Float64("price", quote.Price).Msg("Fetched price")
	return quote, nil
}
