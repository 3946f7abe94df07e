// Package evm reads wallet balances from EVM chains over JSON-RPC.
package evm

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/permanent/internal/clientdata"
	"github.com/aristath/permanent/internal/domain"
)

// ERC-20 function selectors
const (
	selectorBalanceOf = "0x70a08231"
	selectorDecimals  = "0x313ce567"
	selectorSymbol    = "0x95d89b41"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var nativeSymbols = map[string]string{
	"eth":       "ETH",
	"ethereum":  "ETH",
	"arbitrum":  "ETH",
	"optimism":  "ETH",
	"base":      "ETH",
	"bsc":       "BNB",
	"polygon":   "POL",
	"avalanche": "AVAX",
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address
func IsAddress(s string) bool {
	return addressPattern.MatchString(strings.TrimSpace(s))
}

// Client implements domain.ChainReader against one JSON-RPC endpoint per chain
type Client struct {
	rpcURLs   map[string]string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
	nextID    atomic.Int64
}

// NewClient creates a chain reader. rpcURLs maps a lower-case chain id to its
// endpoint. cacheRepo is optional and only holds token metadata.
func NewClient(rpcURLs map[string]string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	urls := make(map[string]string, len(rpcURLs))
	for chain, u := range rpcURLs {
		urls[strings.ToLower(strings.TrimSpace(chain))] = strings.TrimSpace(u)
	}
	return &Client{
		rpcURLs:   urls,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "evm").Logger(),
		cacheRepo: cacheRepo,
	}
}

// TokenMeta is the cached ERC-20 metadata
type TokenMeta struct {
	Decimals int32  `json:"decimals"`
	Symbol   string `json:"symbol"`
}

// Balance implements domain.ChainReader
func (c *Client) Balance(ctx context.Context, chain, wallet, tokenAddress string) (*domain.Balance, error) {
	chain = strings.ToLower(strings.TrimSpace(chain))
	wallet = strings.TrimSpace(wallet)
	tokenAddress = strings.TrimSpace(tokenAddress)

	if chain == "" {
		return nil, fmt.Errorf("missing chain")
	}
	rpcURL, ok := c.rpcURLs[chain]
	if !ok || rpcURL == "" {
		return nil, fmt.Errorf("no RPC endpoint configured for chain %q", chain)
	}
	if !IsAddress(wallet) {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}

	if tokenAddress == "" {
		raw, err := c.call(ctx, rpcURL, "eth_getBalance", wallet, "latest")
		if err != nil {
			return nil, err
		}
		wei, err := parseQuantity(raw)
		if err != nil {
			return nil, fmt.Errorf("bad eth_getBalance result: %w", err)
		}
		symbol := nativeSymbols[chain]
		if symbol == "" {
			symbol = strings.ToUpper(chain)
		}
		return &domain.Balance{Quantity: toUnits(wei, 18), Symbol: symbol, AsOf: time.Now().UTC()}, nil
	}

	if !IsAddress(tokenAddress) {
		return nil, fmt.Errorf("invalid token address %q", tokenAddress)
	}

	var (
		meta *TokenMeta
		raw  string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		meta, err = c.tokenMeta(gctx, rpcURL, chain, tokenAddress)
		return err
	})
	g.Go(func() error {
		var err error
		raw, err = c.ethCall(gctx, rpcURL, tokenAddress, selectorBalanceOf+padAddress(wallet))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	units, err := parseQuantity(raw)
	if err != nil {
		return nil, fmt.Errorf("bad balanceOf result: %w", err)
	}
	return &domain.Balance{Quantity: toUnits(units, meta.Decimals), Symbol: meta.Symbol, AsOf: time.Now().UTC()}, nil
}

// tokenMeta returns decimals and symbol for a token. Expired metadata is used
// when the node cannot be reached.
func (c *Client) tokenMeta(ctx context.Context, rpcURL, chain, token string) (*TokenMeta, error) {
	key := chain + ":" + strings.ToLower(token)

	var stale *TokenMeta
	if c.cacheRepo != nil {
		var cached TokenMeta
		found, fresh, err := c.cacheRepo.Lookup(clientdata.TableTokenMeta, key, true, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("token", key).Msg("Failed to read token metadata cache")
		} else if found && fresh {
			return &cached, nil
		} else if found {
			stale = &cached
		}
	}

	meta, err := c.fetchTokenMeta(ctx, rpcURL, token)
	if err != nil {
		if stale != nil {
			c.log.Warn().Err(err).Str("token", key).Msg("RPC failed, using stale cached token metadata")
			return stale, nil
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(clientdata.TableTokenMeta, key, meta, clientdata.TTLTokenMeta); err != nil {
			c.log.Warn().Err(err).Str("token", key).Msg("Failed to cache token metadata")
		}
	}
	return meta, nil
}

func (c *Client) fetchTokenMeta(ctx context.Context, rpcURL, token string) (*TokenMeta, error) {
	rawDecimals, err := c.ethCall(ctx, rpcURL, token, selectorDecimals)
	if err != nil {
		return nil, fmt.Errorf("failed to read token decimals: %w", err)
	}
	dec, err := parseQuantity(rawDecimals)
	if err != nil || !dec.IsInt64() || dec.Int64() > 77 {
		return nil, fmt.Errorf("bad decimals result %q", rawDecimals)
	}

	meta := &TokenMeta{Decimals: int32(dec.Int64())}
	// symbol() is optional in ERC-20
	if rawSymbol, err := c.ethCall(ctx, rpcURL, token, selectorSymbol); err == nil {
		meta.Symbol = decodeABIString(rawSymbol)
	} else {
		c.log.Debug().Err(err).Str("token", token).Msg("Token has no symbol")
	}
	return meta, nil
}

func (c *Client) ethCall(ctx context.Context, rpcURL, to, data string) (string, error) {
	return c.call(ctx, rpcURL, "eth_call", map[string]string{"to": to, "data": data}, "latest")
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one JSON-RPC request and returns its string result
func (c *Client) call(ctx context.Context, rpcURL, method string, params ...interface{}) (string, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rpcURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%s failed: %s (code %d)", method, out.Error.Message, out.Error.Code)
	}
	var result string
	if err := json.Unmarshal(out.Result, &result); err != nil {
		return "", fmt.Errorf("unexpected %s result: %s", method, string(out.Result))
	}
	return result, nil
}

func padAddress(addr string) string {
	a := strings.TrimPrefix(strings.ToLower(addr), "0x")
	return strings.Repeat("0", 64-len(a)) + a
}

// parseQuantity decodes a hex quantity or a 32-byte ABI word
func parseQuantity(s string) (*big.Int, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if h == "" {
		return nil, fmt.Errorf("empty result")
	}
	n, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return nil, fmt.Errorf("not a hex number: %q", s)
	}
	return n, nil
}

func toUnits(raw *big.Int, decimals int32) float64 {
	return decimal.NewFromBigInt(raw, -decimals).InexactFloat64()
}

// decodeABIString decodes a dynamic ABI string, falling back to a
// right-padded bytes32 value
func decodeABIString(s string) string {
	data, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x"))
	if err != nil || len(data) < 32 {
		return ""
	}

	offset := new(big.Int).SetBytes(data[:32])
	if offset.IsInt64() {
		off := offset.Int64()
		if off+32 <= int64(len(data)) {
			length := new(big.Int).SetBytes(data[off : off+32])
			start := off + 32
			if length.IsInt64() && start+length.Int64() <= int64(len(data)) {
				if str := cleanSymbol(data[start : start+length.Int64()]); str != "" {
					return str
				}
			}
		}
	}
	return cleanSymbol(data[:32])
}

func cleanSymbol(b []byte) string {
	return strings.TrimSpace(strings.Trim(string(b), "\x00"))
}
