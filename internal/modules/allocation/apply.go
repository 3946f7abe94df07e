package allocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/portfolio"
)

// CashBucketID is the bucket a cash asset is created in when cash is
// allocated and no cash asset exists there yet
const CashBucketID = "cash"

const (
	noteApply         = "auto: apply allocation"
	noteApplyNoPrice  = "auto: apply allocation (crypto planned; missing price)"
	noteApplyManual   = "auto: apply allocation (crypto manual_quantity)"
	noteApplyWallet   = "auto: apply allocation (crypto wallet-tracked)"
	noteApplyToManual = "auto: apply allocation (crypto -> manual_quantity)"
)

// ApplyCounts tallies what happened to each suggestion line
type ApplyCounts struct {
	Listed       int `json:"listed"`
	Cash         int `json:"cash"`
	CryptoManual int `json:"crypto_manual"`
	CryptoLedger int `json:"crypto_ledger"`
	Skipped      int `json:"skipped"`
}

// ApplyPlan is a suggestion turned into holdings changes. Config is the
// updated configuration and Entries the deposits to record; nothing has
// been persisted yet.
type ApplyPlan struct {
	Config  *domain.PortfolioConfig
	Entries []domain.LedgerEntry
	Applied ApplyCounts
}

// PlanApply records suggestion as bought. Listed quantities and cash amounts
// grow by the suggested lines. Crypto with a manual quantity grows that
// quantity; a wallet that was read successfully only gets a ledger entry,
// and an unreadable wallet is switched to a manual quantity seeded from the
// last known balance. Every applied line with a positive amount becomes a
// deposit dated date. cfg is not modified.
func PlanApply(cfg *domain.PortfolioConfig, view *portfolio.PortfolioView, s *ContributionSuggestion, date time.Time) *ApplyPlan {
	plan := &ApplyPlan{Config: cfg.Clone(), Entries: []domain.LedgerEntry{}}
	next := plan.Config

	index := make(map[string]int, len(next.Assets))
	for i, a := range next.Assets {
		index[a.ID] = i
	}

	deposit := func(assetID string, amount float64, note string) {
		if amount <= 0 {
			return
		}
		id := assetID
		plan.Entries = append(plan.Entries, domain.LedgerEntry{
			Date:      date,
			Direction: domain.LedgerDeposit,
			Amount:    amount,
			AssetID:   &id,
			Note:      note,
		})
	}

	for _, b := range s.Buckets {
		for _, line := range b.Assets {
			if line.Amount <= 0 {
				plan.Applied.Skipped++
				continue
			}
			if line.AssetID == nil {
				if b.BucketID != CashBucketID {
					plan.Applied.Skipped++
					continue
				}
				i := plan.cashAsset(index)
				next.Assets[i].Amount = addAmount(next.Assets[i].Amount, line.Amount)
				plan.Applied.Cash++
				deposit(next.Assets[i].ID, line.Amount, noteApply)
				continue
			}

			i, ok := index[*line.AssetID]
			if !ok {
				plan.Applied.Skipped++
				continue
			}
			a := &next.Assets[i]

			switch a.Kind {
			case domain.AssetKindListed:
				if line.EstQuantity == nil {
					plan.Applied.Skipped++
					continue
				}
				a.Quantity = addAmount(a.Quantity, *line.EstQuantity)
				plan.Applied.Listed++
				deposit(a.ID, line.Amount, noteApply)

			case domain.AssetKindCash:
				a.Amount = addAmount(a.Amount, line.Amount)
				plan.Applied.Cash++
				deposit(a.ID, line.Amount, noteApply)

			case domain.AssetKindCrypto:
				plan.applyCrypto(a, line, view, deposit)

			default:
				plan.Applied.Skipped++
			}
		}
	}
	return plan
}

func (p *ApplyPlan) applyCrypto(a *domain.Asset, line AssetLine, view *portfolio.PortfolioView, deposit func(string, float64, string)) {
	if line.EstQuantity == nil {
		p.Applied.CryptoLedger++
		deposit(a.ID, line.Amount, noteApplyNoPrice)
		return
	}

	if a.ManualQuantity != nil {
		q := addAmount(*a.ManualQuantity, *line.EstQuantity)
		a.ManualQuantity = &q
		p.Applied.CryptoManual++
		deposit(a.ID, line.Amount, noteApplyManual)
		return
	}

	var base *float64
	var readable bool
	if av := view.Asset(a.ID); av != nil {
		base = av.Quantity
		readable = av.Status == domain.QuoteStatusOK && av.Quantity != nil
	}
	if readable {
		p.Applied.CryptoLedger++
		deposit(a.ID, line.Amount, noteApplyWallet)
		return
	}

	start := 0.0
	if base != nil && *base > 0 {
		start = *base
	}
	q := addAmount(start, *line.EstQuantity)
	a.ManualQuantity = &q
	p.Applied.CryptoManual++
	deposit(a.ID, line.Amount, noteApplyToManual)
}

// cashAsset returns the index of the cash asset in CashBucketID, creating one
func (p *ApplyPlan) cashAsset(index map[string]int) int {
	for i, a := range p.Config.Assets {
		if a.Kind == domain.AssetKindCash && a.InBucket(CashBucketID) {
			return i
		}
	}
	bucket := CashBucketID
	p.Config.Assets = append(p.Config.Assets, domain.Asset{
		ID:         uuid.NewString(),
		Kind:       domain.AssetKindCash,
		Name:       "Cash",
		CategoryID: &bucket,
	})
	i := len(p.Config.Assets) - 1
	index[p.Config.Assets[i].ID] = i
	return i
}

func addAmount(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}
