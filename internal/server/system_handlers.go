package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

type systemHealthView struct {
	Status         string  `json:"status"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryPercent  float64 `json:"memory_percent"`
	DatabaseOK     bool    `json:"database_ok"`
	ActiveSessions int     `json:"active_grid_sessions"`
	Monitoring     bool    `json:"monitoring"`
	AutoTrading    bool    `json:"auto_trading"`
	UpstreamHealth map[string]bool `json:"upstream_health,omitempty"`
}

// handleSystemHealth implements GET /api/system/health, grounded on the
// teacher's getSystemStats (100ms CPU sample so the 2s dashboard poll
// never blocks waiting on gopsutil).
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	view := systemHealthView{Status: "healthy"}

	if cpuPct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPct) > 0 {
		view.CPUPercent = cpuPct[0]
	} else {
		s.log.Warn().Err(err).Msg("failed to sample CPU usage")
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		view.MemoryPercent = memStat.UsedPercent
	} else {
		s.log.Warn().Err(err).Msg("failed to sample memory usage")
	}

	if s.deps.DB != nil {
		if err := s.deps.DB.HealthCheck(r.Context()); err != nil {
			view.DatabaseOK = false
			view.Status = "degraded"
			s.log.Warn().Err(err).Msg("database health check failed")
		} else {
			view.DatabaseOK = true
		}
	}

	if s.deps.GridManager != nil {
		view.ActiveSessions = len(s.deps.GridManager.Active())
	}
	if s.deps.Orchestrator != nil {
		view.Monitoring = s.deps.Orchestrator.IsMonitoring()
		view.AutoTrading = s.deps.Orchestrator.IsAutoTrading()
	}
	if s.deps.Hub != nil {
		view.UpstreamHealth = s.deps.Hub.HealthSnapshot()
	}

	writeOK(w, view)
}
