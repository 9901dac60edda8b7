package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/storage"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	store     *storage.Store
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string, store *storage.Store) *HealthHandler {
	return &HealthHandler{version: version, startTime: time.Now(), store: store}
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including system metrics and task counts",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// CPUInfo reports load relative to the core count.
type CPUInfo struct {
	Cores     int     `json:"cores"`
	Load1Min  float64 `json:"load_1min"`
	Load5Min  float64 `json:"load_5min"`
	Load15Min float64 `json:"load_15min"`
}

// MemoryInfo reports system memory in megabytes.
type MemoryInfo struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	AvailableMB float64 `json:"available_mb"`
}

// TaskCounts summarizes the task store by status.
type TaskCounts struct {
	Processing int `json:"processing"`
	Paused     int `json:"paused"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status        string     `json:"status"`
	Timestamp     string     `json:"timestamp"`
	Version       string     `json:"version"`
	Uptime        string     `json:"uptime"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	CPU           CPUInfo    `json:"cpu"`
	Memory        MemoryInfo `json:"memory"`
	Tasks         TaskCounts `json:"tasks"`
}

// HealthOutput wraps the health response.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	cpu := CPUInfo{Cores: runtime.NumCPU()}
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		cpu.Load1Min = avg.Load1
		cpu.Load5Min = avg.Load5
		cpu.Load15Min = avg.Load15
	}

	memory := MemoryInfo{}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		memory.TotalMB = float64(vm.Total) / 1024 / 1024
		memory.UsedMB = float64(vm.Used) / 1024 / 1024
		memory.AvailableMB = float64(vm.Available) / 1024 / 1024
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPU:           cpu,
			Memory:        memory,
			Tasks:         h.taskCounts(),
		},
	}, nil
}

func (h *HealthHandler) taskCounts() TaskCounts {
	counts := TaskCounts{}
	states, err := h.store.List()
	if err != nil {
		return counts
	}
	counts.Total = len(states)
	for _, st := range states {
		switch {
		case st.Status == models.StatusProcessing:
			counts.Processing++
		case st.Status.IsPaused():
			counts.Paused++
		case st.Status == models.StatusCompleted:
			counts.Completed++
		case st.Status == models.StatusFailed:
			counts.Failed++
		}
	}
	return counts
}
