// Package solana reads SOL and SPL token balances over Solana JSON-RPC.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/permanent/internal/domain"
)

// DefaultRPCURL is the public mainnet endpoint used when none is configured
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

const lamportDecimals = 9

// Chains are the chain ids served by this client
var Chains = []string{"solana", "sol"}

// IsChain reports whether chain names Solana
func IsChain(chain string) bool {
	c := strings.ToLower(strings.TrimSpace(chain))
	for _, id := range Chains {
		if c == id {
			return true
		}
	}
	return false
}

// IsPubkey reports whether s is a base58 encoded 32-byte public key
func IsPubkey(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}

// Client implements domain.ChainReader for Solana wallets
type Client struct {
	rpcURL string
	client *http.Client
	log    zerolog.Logger
	nextID atomic.Int64
}

// NewClient creates a Solana reader. An empty rpcURL uses DefaultRPCURL.
func NewClient(rpcURL string, log zerolog.Logger) *Client {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		rpcURL = DefaultRPCURL
	}
	return &Client{
		rpcURL: rpcURL,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("client", "solana").Logger(),
	}
}

// Balance implements domain.ChainReader. wallet is the owner pubkey and
// tokenAddress an SPL mint; an empty mint reads native SOL.
func (c *Client) Balance(ctx context.Context, chain, wallet, tokenAddress string) (*domain.Balance, error) {
	wallet = strings.TrimSpace(wallet)
	mint := strings.TrimSpace(tokenAddress)

	if !IsChain(chain) {
		return nil, fmt.Errorf("chain %q is not solana", chain)
	}
	if !IsPubkey(wallet) {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}
	if mint == "" {
		return c.nativeBalance(ctx, wallet)
	}
	if !IsPubkey(mint) {
		return nil, fmt.Errorf("invalid token mint address %q", mint)
	}
	return c.tokenBalance(ctx, wallet, mint)
}

func (c *Client) nativeBalance(ctx context.Context, wallet string) (*domain.Balance, error) {
	var res struct {
		Value json.Number `json:"value"`
	}
	if err := c.call(ctx, "getBalance", &res, wallet); err != nil {
		return nil, err
	}
	lamports, ok := new(big.Int).SetString(res.Value.String(), 10)
	if !ok {
		return nil, fmt.Errorf("bad getBalance result %q", res.Value)
	}
	return &domain.Balance{
		Quantity: toUnits(lamports, lamportDecimals),
		Symbol:   "SOL",
		AsOf:     time.Now().UTC(),
	}, nil
}

type tokenAccounts struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						TokenAmount struct {
							Amount   string `json:"amount"`
							Decimals *int32 `json:"decimals"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// tokenBalance sums every token account the wallet holds for mint. A wallet
// with no account for the mint holds zero.
func (c *Client) tokenBalance(ctx context.Context, wallet, mint string) (*domain.Balance, error) {
	var res tokenAccounts
	err := c.call(ctx, "getTokenAccountsByOwner", &res,
		wallet,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	)
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	var decimals *int32
	for _, acct := range res.Value {
		amt := acct.Account.Data.Parsed.Info.TokenAmount
		n, ok := new(big.Int).SetString(strings.TrimSpace(amt.Amount), 10)
		if !ok {
			c.log.Debug().Str("mint", mint).Str("amount", amt.Amount).Msg("Skipping token account with bad amount")
			continue
		}
		if decimals == nil && amt.Decimals != nil {
			decimals = amt.Decimals
		}
		total.Add(total, n)
	}

	b := &domain.Balance{AsOf: time.Now().UTC()}
	if decimals != nil {
		b.Quantity = toUnits(total, *decimals)
	}
	return b, nil
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

// call performs one JSON-RPC request and decodes its result into out
func (c *Client) call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	var envelope rpcResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s failed: %s (code %d)", method, envelope.Error.Message, envelope.Error.Code)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return fmt.Errorf("%s returned no result", method)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("unexpected %s result: %w", method, err)
	}
	return nil
}

func toUnits(raw *big.Int, decimals int32) float64 {
	return decimal.NewFromBigInt(raw, -decimals).InexactFloat64()
}
