// Package cleanup provides data retention jobs.
package cleanup

import (
	"time"

	"github.com/rs/zerolog"
)

// SnapshotPruner deletes valuation snapshots older than a retention period
type SnapshotPruner interface {
	Prune(retention time.Duration) (int64, error)
}

// HistoryCleanupJob removes valuation snapshots past the retention period.
// Runs daily.
type HistoryCleanupJob struct {
	history   SnapshotPruner
	retention time.Duration
	log       zerolog.Logger
}

// NewHistoryCleanupJob creates a new history cleanup job
func NewHistoryCleanupJob(history SnapshotPruner, retention time.Duration, log zerolog.Logger) *HistoryCleanupJob {
	return &HistoryCleanupJob{
		history:   history,
		retention: retention,
		log:       log.With().Str("job", "history_cleanup").Logger(),
	}
}

// Run executes the cleanup job
func (j *HistoryCleanupJob) Run() error {
	if j.retention <= 0 {
		j.log.Debug().Msg("History retention disabled")
		return nil
	}

	deleted, err := j.history.Prune(j.retention)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to prune valuation history")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Dur("retention", j.retention).
			Msg("History cleanup job completed")
	}
	return nil
}

// Name returns the job name for scheduler
func (j *HistoryCleanupJob) Name() string {
	return "history_cleanup"
}
