package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/permanent/internal/database"
	"github.com/aristath/permanent/internal/di"
	"github.com/aristath/permanent/internal/httpapi"
	"github.com/aristath/permanent/internal/modules/quotes"
	"github.com/aristath/permanent/internal/scheduler"
)

const (
	healthCheckTimeout = 5 * time.Second
	manualRefreshLimit = 30 * time.Second
)

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status        string                    `json:"status"` // "healthy" or "degraded"
	UptimeSeconds int64                     `json:"uptime_seconds"`
	GoVersion     string                    `json:"go_version"`
	Goroutines    int                       `json:"goroutines"`
	CPUPercent    float64                   `json:"cpu_percent"`
	MemoryPercent float64                   `json:"memory_percent"`
	DiskFreeGB    float64                   `json:"disk_free_gb"`
	Cache         CacheStatus               `json:"cache"`
	Databases     map[string]DatabaseStatus `json:"databases"`
	Jobs          []scheduler.JobStatus     `json:"jobs"`
}

// CacheStatus summarizes the quote cache
type CacheStatus struct {
	RefreshedAt   *time.Time `json:"refreshed_at"`
	Assets        int        `json:"assets"`
	AssetsInError int        `json:"assets_in_error"`
}

// DatabaseStatus reports one database file
type DatabaseStatus struct {
	Healthy bool            `json:"healthy"`
	Error   string          `json:"error,omitempty"`
	Stats   *database.Stats `json:"stats,omitempty"`
}

// SystemHandlers serves operational endpoints
type SystemHandlers struct {
	container *di.Container
	log       zerolog.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(container *di.Container, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		container: container,
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleStatus handles GET /api/system/status
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	cpuPercent, memPercent := h.getSystemStats()
	resp := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.container.StartedAt).Seconds()),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Cache:         cacheStatus(h.container.QuoteCache),
		Databases:     make(map[string]DatabaseStatus),
	}

	if usage, err := disk.Usage(h.container.Config.DataDir); err == nil {
		resp.DiskFreeGB = float64(usage.Free) / 1024 / 1024 / 1024
	} else {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	}

	for name, db := range h.container.Databases() {
		st := DatabaseStatus{Healthy: true}
		if err := db.HealthCheck(ctx); err != nil {
			st.Healthy = false
			st.Error = err.Error()
			resp.Status = "degraded"
		}
		if stats, err := db.GetStats(); err == nil {
			st.Stats = stats
		}
		resp.Databases[name] = st
	}

	if h.container.Scheduler != nil {
		resp.Jobs = h.container.Scheduler.Jobs()
	}

	httpapi.WriteJSON(w, h.log, http.StatusOK, resp)
}

// HandleJobs handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.container.Scheduler != nil {
		jobs = h.container.Scheduler.Jobs()
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// HandleRunJob handles POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	start := time.Now()

	if err := h.container.Scheduler.RunByName(name); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"job":         name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// HandleRefresh handles POST /api/system/refresh, a forced quote refresh
func (h *SystemHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), manualRefreshLimit)
	defer cancel()

	stats, err := h.container.QuoteCache.Refresh(ctx, true)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"ok": true, "refresh": stats})
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// Sample over 100ms to keep the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func cacheStatus(cache *quotes.Cache) CacheStatus {
	if cache == nil {
		return CacheStatus{}
	}
	snap := cache.Snapshot()
	st := CacheStatus{
		Assets:        snap.Len(),
		AssetsInError: snap.ErrorCount(),
	}
	if at := snap.RefreshedAt(); !at.IsZero() {
		st.RefreshedAt = &at
	}
	return st
}
