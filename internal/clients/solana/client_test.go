package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wallet = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	mint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type fakeNode struct {
	mu      sync.Mutex
	methods []string
	params  [][]json.RawMessage
	results map[string]string
	fail    bool
}

func newFakeNode() *fakeNode {
	return &fakeNode{results: map[string]string{}}
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64             `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.methods = append(n.methods, req.Method)
	n.params = append(n.params, req.Params)
	result, ok := n.results[req.Method]
	fail := n.fail
	n.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail || !ok {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"Invalid param"}}`))
		return
	}
	_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
}

func (n *fakeNode) setFail(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = fail
}

func (n *fakeNode) calls() ([]string, [][]json.RawMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.methods...), append([][]json.RawMessage(nil), n.params...)
}

func newTestClient(t *testing.T, node *fakeNode) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, zerolog.Nop())
}

func TestIsPubkey(t *testing.T) {
	assert.True(t, IsPubkey(wallet))
	assert.True(t, IsPubkey(" "+mint+" "))
	assert.True(t, IsPubkey("11111111111111111111111111111111"))

	assert.False(t, IsPubkey(""))
	assert.False(t, IsPubkey("0x1111111111111111111111111111111111111111"))
	assert.False(t, IsPubkey("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4"), "31 bytes")
	assert.False(t, IsPubkey("0Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"), "0 is not in the alphabet")
}

func TestIsChain(t *testing.T) {
	assert.True(t, IsChain("sol"))
	assert.True(t, IsChain(" Solana "))
	assert.False(t, IsChain("eth"))
}

func TestBalance_Native(t *testing.T) {
	node := newFakeNode()
	node.results["getBalance"] = `{"context":{"slot":1},"value":2500000000}`
	c := newTestClient(t, node)

	b, err := c.Balance(context.Background(), "solana", wallet, "")
	require.NoError(t, err)
	assert.Equal(t, 2.5, b.Quantity)
	assert.Equal(t, "SOL", b.Symbol)
	assert.False(t, b.AsOf.IsZero())

	methods, params := node.calls()
	require.Equal(t, []string{"getBalance"}, methods)
	var owner string
	require.NoError(t, json.Unmarshal(params[0][0], &owner))
	assert.Equal(t, wallet, owner)
}

func TestBalance_SPLSumsAccounts(t *testing.T) {
	node := newFakeNode()
	node.results["getTokenAccountsByOwner"] = `{"context":{"slot":1},"value":[
		{"account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"1500000","decimals":6}}}}}},
		{"account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"250000","decimals":6}}}}}},
		{"account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"oops","decimals":6}}}}}}
	]}`
	c := newTestClient(t, node)

	b, err := c.Balance(context.Background(), "sol", wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, 1.75, b.Quantity)

	_, params := node.calls()
	require.Len(t, params, 1)
	var filter map[string]string
	require.NoError(t, json.Unmarshal(params[0][1], &filter))
	assert.Equal(t, mint, filter["mint"])
	var opts map[string]string
	require.NoError(t, json.Unmarshal(params[0][2], &opts))
	assert.Equal(t, "jsonParsed", opts["encoding"])
}

func TestBalance_SPLWithoutAccountsIsZero(t *testing.T) {
	node := newFakeNode()
	node.results["getTokenAccountsByOwner"] = `{"context":{"slot":1},"value":[]}`
	c := newTestClient(t, node)

	b, err := c.Balance(context.Background(), "sol", wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, 0.0, b.Quantity)
}

func TestBalance_Errors(t *testing.T) {
	node := newFakeNode()
	c := newTestClient(t, node)
	ctx := context.Background()

	_, err := c.Balance(ctx, "eth", wallet, "")
	assert.Error(t, err)

	_, err = c.Balance(ctx, "sol", "0x1111111111111111111111111111111111111111", "")
	assert.ErrorContains(t, err, "invalid wallet address")

	_, err = c.Balance(ctx, "sol", wallet, "not-a-mint")
	assert.ErrorContains(t, err, "invalid token mint address")

	methods, _ := node.calls()
	assert.Empty(t, methods, "invalid input never reaches the node")

	node.setFail(true)
	_, err = c.Balance(ctx, "sol", wallet, "")
	assert.ErrorContains(t, err, "Invalid param")
}

func TestBalance_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, zerolog.Nop())

	_, err := c.Balance(context.Background(), "sol", wallet, "")
	assert.ErrorContains(t, err, "status 429")
}

func TestNewClientDefaultURL(t *testing.T) {
	assert.Equal(t, DefaultRPCURL, NewClient(" ", zerolog.Nop()).rpcURL)
}
