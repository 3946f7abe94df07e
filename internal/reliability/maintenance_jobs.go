package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/permanent/internal/database"
)

// Disk space thresholds in GB
const (
	diskCriticalGB = 0.5
	diskWarnGB     = 2.0
)

const backupTimeout = 10 * time.Minute

// BackupJob uploads a fresh backup and rotates old ones
type BackupJob struct {
	service       *BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates the scheduled backup job
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "backup"
}

// Run creates and uploads a backup. Rotation failures are logged only.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if _, err := j.service.CreateAndUpload(ctx); err != nil {
		return err
	}
	if _, err := j.service.Rotate(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// DiskUsageFunc reports usage of the filesystem holding path
type DiskUsageFunc func(path string) (*disk.UsageStat, error)

// MaintenanceJob compacts databases that see deletes and watches free disk space
type MaintenanceJob struct {
	vacuum    map[string]*database.DB
	dataDir   string
	diskUsage DiskUsageFunc
	log       zerolog.Logger
}

// NewMaintenanceJob creates the maintenance job. vacuum lists the databases to
// compact; the append-only ledger should not be among them.
func NewMaintenanceJob(vacuum map[string]*database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		vacuum:    vacuum,
		dataDir:   dataDir,
		diskUsage: disk.Usage,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run checks disk space, then vacuums. Critically low space fails the job
// before any VACUUM, which needs room for a full copy of the database.
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	for _, name := range sortedDBNames(j.vacuum) {
		if err := j.vacuumDatabase(name, j.vacuum[name]); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("VACUUM failed")
		}
	}

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("Maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := j.diskUsage(j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Str("path", j.dataDir).Msg("Failed to read disk usage")
		return nil
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Float64("used_percent", usage.UsedPercent).Msg("Disk space check")

	if availableGB < diskCriticalGB {
		j.log.Error().Float64("available_gb", availableGB).Msg("Insufficient disk space")
		return fmt.Errorf("only %.2f GB free on %s", availableGB, j.dataDir)
	}
	if availableGB < diskWarnGB {
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}
	return nil
}

func (j *MaintenanceJob) vacuumDatabase(name string, db *database.DB) error {
	if db == nil {
		return nil
	}
	sizeBefore := dbSizeMB(db)
	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}
	sizeAfter := dbSizeMB(db)

	j.log.Info().
		Str("database", name).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")
	return nil
}

func dbSizeMB(db *database.DB) float64 {
	var pageCount, pageSize int64
	_ = db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	_ = db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	return float64(pageCount*pageSize) / 1024 / 1024
}
