// Package chains routes wallet balance reads to the reader for each chain.
package chains

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/permanent/internal/domain"
)

// Router implements domain.ChainReader by chain id. Chains without a
// dedicated reader go to the fallback.
type Router struct {
	readers  map[string]domain.ChainReader
	fallback domain.ChainReader
}

// NewRouter creates a router. fallback may be nil.
func NewRouter(fallback domain.ChainReader) *Router {
	return &Router{readers: make(map[string]domain.ChainReader), fallback: fallback}
}

// Route sends the given chain ids to reader
func (r *Router) Route(reader domain.ChainReader, chainIDs ...string) *Router {
	for _, id := range chainIDs {
		r.readers[strings.ToLower(strings.TrimSpace(id))] = reader
	}
	return r
}

// Balance implements domain.ChainReader
func (r *Router) Balance(ctx context.Context, chain, wallet, tokenAddress string) (*domain.Balance, error) {
	if reader, ok := r.readers[strings.ToLower(strings.TrimSpace(chain))]; ok {
		return reader.Balance(ctx, chain, wallet, tokenAddress)
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("no reader for chain %q", chain)
	}
	return r.fallback.Balance(ctx, chain, wallet, tokenAddress)
}
