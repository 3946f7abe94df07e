package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/portfolio"
)

// AssetMetrics are the metrics of one configured asset's entries
type AssetMetrics struct {
	AssetID string `json:"asset_id"`
	Name    string `json:"name"`
	Metrics
}

// Report is the ledger summary for the whole portfolio and per asset.
// Entries of assets that no longer exist count toward Total only.
type Report struct {
	AsOf     time.Time      `json:"as_of"`
	Total    Metrics        `json:"total"`
	PerAsset []AssetMetrics `json:"per_asset"`
}

// Service manages ledger entries and computes their metrics
type Service struct {
	store domain.LedgerStore
	loc   *time.Location
	log   zerolog.Logger
}

// NewService creates a ledger service. loc is the calendar entries are dated in.
func NewService(store domain.LedgerStore, loc *time.Location, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store: store,
		loc:   loc,
		log:   log.With().Str("service", "ledger").Logger(),
	}
}

// ParseDate parses a YYYY-MM-DD date in the service's calendar
func (s *Service) ParseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), s.loc)
	if err != nil {
		return time.Time{}, domain.InvalidInput("date %q must be YYYY-MM-DD", value)
	}
	return d, nil
}

// List returns entries, optionally filtered to one asset
func (s *Service) List(assetID *string) ([]domain.LedgerEntry, error) {
	return s.store.List(assetID)
}

// Add appends an entry. An empty asset id is treated as none.
func (s *Service) Add(entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	entry.Note = strings.TrimSpace(entry.Note)
	if entry.AssetID != nil && strings.TrimSpace(*entry.AssetID) == "" {
		entry.AssetID = nil
	}
	entry.ID = ""
	entry.CreatedAt = time.Time{}

	saved, err := s.store.Append(entry)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("id", saved.ID).
		Str("direction", string(saved.Direction)).
		Float64("amount", saved.Amount).
		Msg("Ledger entry recorded")
	return saved, nil
}

// Delete removes an entry by id
func (s *Service) Delete(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.log.Info().Str("id", id).Msg("Ledger entry deleted")
	return nil
}

// Metrics computes the ledger report against view. The portfolio total is
// the current value for the overall figures; each configured asset with
// entries is measured against its own value. An asset whose value is
// unknown gets no XIRR.
func (s *Service) Metrics(view *portfolio.PortfolioView, asOf time.Time) (*Report, error) {
	if view == nil {
		return nil, domain.InsufficientData("no portfolio view")
	}
	entries, err := s.store.List(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	report := &Report{
		AsOf:     asOf,
		Total:    ComputeMetrics(entries, view.TotalValue, asOf),
		PerAsset: []AssetMetrics{},
	}

	byAsset := make(map[string][]domain.LedgerEntry)
	for _, e := range entries {
		if e.AssetID != nil {
			byAsset[*e.AssetID] = append(byAsset[*e.AssetID], e)
		}
	}

	for _, a := range view.AllAssets() {
		assetEntries, ok := byAsset[a.ID]
		if !ok {
			continue
		}
		m := ComputeMetrics(assetEntries, a.Value, asOf)
		if !a.ValueKnown {
			m.XIRRAnnual = nil
			m.XIRRStatus = ReasonValueUnknown
		}
		report.PerAsset = append(report.PerAsset, AssetMetrics{AssetID: a.ID, Name: a.Name, Metrics: m})
	}
	return report, nil
}
