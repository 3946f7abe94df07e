package clientdata

import (
	"fmt"

	"github.com/rs/zerolog"
)

// CleanupJob prunes expired adapter responses from client_data.db.
// Token metadata is kept past expiry for StaleGrace so the chain reader can
// still value wallets while its RPC node is down.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates the client data cleanup job
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run deletes expired entries from every table
func (j *CleanupJob) Run() error {
	results, err := j.repo.DeleteAllExpired()
	if err != nil {
		return fmt.Errorf("failed to prune client data: %w", err)
	}

	var total int64
	perTable := zerolog.Dict()
	for _, table := range AllTables {
		total += results[table]
		perTable.Int64(table, results[table])
	}
	if total == 0 {
		return nil
	}

	j.log.Info().
		Int64("deleted", total).
		Dict("tables", perTable).
		Msg("Pruned expired client data")
	return nil
}

// Name returns the job name for scheduler
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
