package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/reliability"
	"github.com/bensonidabosa/stonecrestcapital/internal/scheduler"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles system monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	ledgerDB    *database.DB
	backups     *reliability.BackupService
	jobs        map[string]scheduler.Job
}

// NewSystemHandlers creates system handlers. jobs may be nil.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	ledgerDB *database.DB,
	backups *reliability.BackupService,
	jobs map[string]scheduler.Job,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		ledgerDB:    ledgerDB,
		backups:     backups,
		jobs:        jobs,
	}
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	GoVersion     string          `json:"go_version"`
	Goroutines    int             `json:"goroutines"`
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	Disk          *DiskStatus     `json:"disk,omitempty"`
	Database      *DatabaseStatus `json:"database"`
}

// DiskStatus describes the volume holding the data directory
type DiskStatus struct {
	Path        string  `json:"path"`
	TotalGB     float64 `json:"total_gb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// DatabaseStatus describes the ledger database
type DatabaseStatus struct {
	Healthy   bool    `json:"healthy"`
	Error     string  `json:"error,omitempty"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
	PageSize  int64   `json:"page_size"`
}

// HandleSystemStatus returns process, host and database health
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Disk:          h.diskStatus(),
		Database:      h.databaseStatus(r.Context()),
	}
	if !response.Database.Healthy {
		response.Status = "degraded"
	}

	utils.WriteJSON(w, h.log, http.StatusOK, response)
}

// HandleDatabaseStats returns ledger database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, h.log, http.StatusOK, h.databaseStatus(r.Context()))
}

// HandleListBackups lists local backups, plus remote ones with ?remote=true
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		utils.WriteError(w, h.log, http.StatusServiceUnavailable, "backups not configured")
		return
	}

	local, err := h.backups.ListLocal()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list local backups")
		utils.WriteError(w, h.log, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if local == nil {
		local = []reliability.BackupInfo{}
	}

	response := map[string]interface{}{
		"local": local,
		"count": len(local),
	}

	if r.URL.Query().Get("remote") == "true" {
		remote, err := h.backups.ListRemote(r.Context())
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to list remote backups")
			utils.WriteError(w, h.log, http.StatusBadGateway, "failed to list remote backups")
			return
		}
		if remote == nil {
			remote = []reliability.BackupInfo{}
		}
		response["remote"] = remote
	}

	utils.WriteJSON(w, h.log, http.StatusOK, response)
}

// HandleTriggerJob runs a scheduled job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		utils.WriteError(w, h.log, http.StatusNotFound, "unknown job "+name)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job triggered")

	start := time.Now()
	if err := job.Run(); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job failed")
		utils.WriteJSON(w, h.log, http.StatusInternalServerError, map[string]interface{}{
			"job":    name,
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}

	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"job":         name,
		"status":      "completed",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (h *SystemHandlers) databaseStatus(ctx context.Context) *DatabaseStatus {
	status := &DatabaseStatus{Healthy: true}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.ledgerDB.HealthCheck(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
	}

	stats, err := h.ledgerDB.GetStats()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get database stats")
		return status
	}
	status.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
	status.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
	status.PageCount = stats.PageCount
	status.PageSize = stats.PageSize
	return status
}

func (h *SystemHandlers) diskStatus() *DiskStatus {
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("path", h.dataDir).Msg("Failed to get disk usage")
		return nil
	}
	return &DiskStatus{
		Path:        h.dataDir,
		TotalGB:     float64(usage.Total) / 1024 / 1024 / 1024,
		FreeGB:      float64(usage.Free) / 1024 / 1024 / 1024,
		UsedPercent: usage.UsedPercent,
	}
}

// getSystemStats calculates CPU and RAM usage percentages.
// A 100ms sample keeps the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
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
