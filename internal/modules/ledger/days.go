package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/portfolio"
)

// portfolioLevel names entries that are not tied to an asset
const portfolioLevel = "(portfolio)"

// DayFlow is deposits, withdrawals and their net over some set of entries
type DayFlow struct {
	Deposit  float64 `json:"deposit"`
	Withdraw float64 `json:"withdraw"`
	Net      float64 `json:"net"`
}

// BucketFlow is the flow of entries whose asset sits in one bucket
type BucketFlow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	DayFlow
}

// DayEntry is one ledger entry in a day listing, with its asset's name
type DayEntry struct {
	ID        string                 `json:"id"`
	Date      string                 `json:"date"`
	Direction domain.LedgerDirection `json:"direction"`
	Amount    float64                `json:"amount"`
	AssetID   *string                `json:"asset_id"`
	AssetName string                 `json:"asset_name"`
	Note      string                 `json:"note"`
}

// Day aggregates one calendar day of the ledger. RunningPrincipal is the
// net principal after the day's last entry. Other holds entries without an
// asset or whose asset is unassigned or gone.
type Day struct {
	Date             string       `json:"date"`
	EntryCount       int          `json:"entry_count"`
	DepositTotal     float64      `json:"deposit_total"`
	WithdrawTotal    float64      `json:"withdraw_total"`
	NetTotal         float64      `json:"net_total"`
	RunningPrincipal float64      `json:"running_principal_end"`
	Buckets          []BucketFlow `json:"buckets"`
	Other            DayFlow      `json:"other"`
	Entries          []DayEntry   `json:"entries,omitempty"`
}

type flowSum struct {
	deposit, withdraw decimal.Decimal
}

func (f *flowSum) add(e domain.LedgerEntry) {
	amt := decimal.NewFromFloat(e.Amount)
	if e.Direction == domain.LedgerWithdraw {
		f.withdraw = f.withdraw.Add(amt)
	} else {
		f.deposit = f.deposit.Add(amt)
	}
}

func (f flowSum) flow() DayFlow {
	return DayFlow{
		Deposit:  f.deposit.InexactFloat64(),
		Withdraw: f.withdraw.InexactFloat64(),
		Net:      f.deposit.Sub(f.withdraw).InexactFloat64(),
	}
}

type dayAcc struct {
	day     Day
	total   flowSum
	other   flowSum
	buckets []flowSum
}

// GroupByDay aggregates entries per calendar day, newest day first. Entries
// must be in ledger order (oldest first) for the running principal to be
// right. Bucket membership and asset names come from view; withEntries adds
// the individual entries to each day.
func GroupByDay(entries []domain.LedgerEntry, view *portfolio.PortfolioView, withEntries bool) []Day {
	bucketIndex := make(map[string]int, len(view.Buckets))
	for i, b := range view.Buckets {
		bucketIndex[b.ID] = i
	}
	assetBucket := make(map[string]string)
	assetName := make(map[string]string)
	for _, a := range view.AllAssets() {
		if a.CategoryID != nil {
			assetBucket[a.ID] = *a.CategoryID
		}
		name := a.Name
		if name == "" {
			name = a.Code
		}
		if name == "" {
			name = a.ID
		}
		assetName[a.ID] = name
	}

	running := decimal.Zero
	byDate := make(map[string]*dayAcc)
	for _, e := range entries {
		date := e.Date.Format(dateLayout)
		acc, ok := byDate[date]
		if !ok {
			acc = &dayAcc{day: Day{Date: date}, buckets: make([]flowSum, len(view.Buckets))}
			byDate[date] = acc
		}

		running = running.Add(decimal.NewFromFloat(e.SignedAmount()))
		acc.day.EntryCount++
		acc.day.RunningPrincipal = running.InexactFloat64()
		acc.total.add(e)

		i, inBucket := -1, false
		if e.AssetID != nil {
			i, inBucket = bucketIndex[assetBucket[*e.AssetID]]
		}
		if inBucket {
			acc.buckets[i].add(e)
		} else {
			acc.other.add(e)
		}

		if withEntries {
			name := portfolioLevel
			if e.AssetID != nil {
				name = assetName[*e.AssetID]
				if name == "" {
					name = *e.AssetID
				}
			}
			acc.day.Entries = append(acc.day.Entries, DayEntry{
				ID:        e.ID,
				Date:      date,
				Direction: e.Direction,
				Amount:    e.Amount,
				AssetID:   e.AssetID,
				AssetName: name,
				Note:      e.Note,
			})
		}
	}

	days := make([]Day, 0, len(byDate))
	for _, acc := range byDate {
		d := acc.day
		total := acc.total.flow()
		d.DepositTotal, d.WithdrawTotal, d.NetTotal = total.Deposit, total.Withdraw, total.Net
		d.Other = acc.other.flow()
		d.Buckets = make([]BucketFlow, len(view.Buckets))
		for i, b := range view.Buckets {
			d.Buckets[i] = BucketFlow{ID: b.ID, Name: b.Name, DayFlow: acc.buckets[i].flow()}
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date > days[j].Date })
	return days
}

// Days groups the whole ledger by day against view
func (s *Service) Days(view *portfolio.PortfolioView, withEntries bool) ([]Day, error) {
	if view == nil {
		return nil, domain.InsufficientData("no portfolio view")
	}
	entries, err := s.store.List(nil)
	if err != nil {
		return nil, err
	}
	return GroupByDay(entries, view, withEntries), nil
}
