package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/clientdata"
	"github.com/aristath/permanent/internal/database"
	"github.com/aristath/permanent/internal/modules/cleanup"
	"github.com/aristath/permanent/internal/modules/notifications"
	"github.com/aristath/permanent/internal/reliability"
	"github.com/aristath/permanent/internal/scheduler"
)

// Job schedules (cron with seconds)
const (
	scheduleClientDataCleanup = "0 15 * * * *" // hourly
	scheduleHistoryCleanup    = "0 10 4 * * *" // 04:10 daily
	scheduleIntegrityCheck    = "0 0 5 * * 0"  // Sundays 05:00
	scheduleWALCheckpoint     = "0 */30 * * * *"
	scheduleMaintenance       = "0 40 4 * * *"
)

// RegisterJobs creates the scheduler and registers every background job
func RegisterJobs(ctx context.Context, container *Container, log zerolog.Logger) (*JobInstances, error) {
	cfg := container.Config
	loc := cfg.Location()

	sched := scheduler.New(loc, log)
	sched.SetRecorder(container.Metrics)
	container.Scheduler = sched

	dbs := container.Databases()
	instances := &JobInstances{
		ClientDataCleanup: clientdata.NewCleanupJob(container.ClientDataRepo, log),
		HistoryCleanup:    cleanup.NewHistoryCleanupJob(container.HistoryService, cfg.History.Retention, log),
		DailyReport:       notifications.NewDailyJob(container.Notifier, container.Engine, log),
		IntegrityCheck:    scheduler.NewIntegrityCheckJob(dbs, log),
		WALCheckpoint:     scheduler.NewWALCheckpointJob(dbs, log),
		// Only history and client_data see bulk deletes
		Maintenance: reliability.NewMaintenanceJob(map[string]*database.DB{
			database.NameHistory:    container.HistoryDB,
			database.NameClientData: container.ClientDataDB,
		}, cfg.DataDir, log),
	}

	if cfg.Backup.Enabled {
		store, err := reliability.NewS3Store(ctx, reliability.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Region:          cfg.Backup.Region,
			Endpoint:        cfg.Backup.Endpoint,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			dbs, store, filepath.Join(cfg.DataDir, "backups"), cfg.Backup.Prefix, log,
		)
		instances.Backup = reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log)
	}

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{scheduleClientDataCleanup, instances.ClientDataCleanup},
		{scheduleHistoryCleanup, instances.HistoryCleanup},
		{cfg.Notifications.DailyJobSchedule, instances.DailyReport},
		{scheduleIntegrityCheck, instances.IntegrityCheck},
		{scheduleWALCheckpoint, instances.WALCheckpoint},
		{scheduleMaintenance, instances.Maintenance},
	}
	if instances.Backup != nil {
		jobs = append(jobs, struct {
			schedule string
			job      scheduler.Job
		}{cfg.Backup.Schedule, instances.Backup})
	}

	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", j.job.Name(), err)
		}
	}

	log.Info().Int("jobs", len(jobs)).Msg("Jobs registered")
	return instances, nil
}
