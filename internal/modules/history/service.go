package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/modules/portfolio"
)

// MinSnapshotInterval is the floor for the snapshot interval
const MinSnapshotInterval = 10 * time.Second

// Service records snapshots no more often than its interval and serves the
// total-value series
type Service struct {
	repo     *Repository
	interval time.Duration
	currency string
	now      func() time.Time
	log      zerolog.Logger

	mu     sync.Mutex
	last   time.Time
	loaded bool
}

// NewService creates a history service
func NewService(repo *Repository, interval time.Duration, currency string, log zerolog.Logger) *Service {
	if interval < MinSnapshotInterval {
		interval = MinSnapshotInterval
	}
	return &Service{
		repo:     repo,
		interval: interval,
		currency: currency,
		now:      time.Now,
		log:      log.With().Str("service", "history").Logger(),
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Record stores a snapshot of view unless one was stored within the
// interval. Views with no value yet are skipped. It reports whether a
// snapshot was written.
func (s *Service) Record(view *portfolio.PortfolioView) (bool, error) {
	if view == nil || view.TotalValue <= 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		latest, err := s.repo.Latest()
		if err != nil {
			return false, err
		}
		if latest != nil {
			s.last = latest.TS
		}
		s.loaded = true
	}

	now := s.now().UTC()
	if !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return false, nil
	}

	snap := Snapshot{
		TS:         now,
		AsOf:       view.AsOf,
		TotalValue: view.TotalValue,
		Categories: make([]CategoryPoint, 0, len(view.Buckets)),
		Warnings:   append([]string(nil), view.Warnings...),
	}
	for _, b := range view.Buckets {
		snap.Categories = append(snap.Categories, CategoryPoint{
			ID:           b.ID,
			Name:         b.Name,
			Value:        b.Value,
			Weight:       b.Weight,
			TargetWeight: b.TargetWeight,
			MinWeight:    b.MinWeight,
			MaxWeight:    b.MaxWeight,
		})
	}
	if err := s.repo.Insert(snap); err != nil {
		return false, err
	}
	s.last = now

	s.log.Debug().Float64("total_value", snap.TotalValue).Msg("Valuation snapshot recorded")
	return true, nil
}

// Series returns the total-value history for window. current, when set,
// is appended as the latest point. smooth > 1 adds a moving average.
func (s *Service) Series(window string, maxPoints, smooth int, current *float64) (*Series, error) {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	now := s.now().UTC()
	points, err := s.repo.Points(now.Add(-ParseWindow(window)))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	series := Summarize(Downsample(points, maxPoints), current, now, window, s.currency)
	series.Points = Smooth(series.Points, smooth)
	return &series, nil
}

// Latest returns the most recent snapshot or nil
func (s *Service) Latest() (*Snapshot, error) {
	return s.repo.Latest()
}

// Prune deletes snapshots older than retention
func (s *Service) Prune(retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.repo.DeleteBefore(s.now().Add(-retention))
}
