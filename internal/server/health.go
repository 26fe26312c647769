package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/tunegrab/tunegrab/internal/events"
)

var startedAt = time.Now()

// healthHandler reports process and host health. Fields degrade to zero
// values when the host probes fail; the endpoint itself never errors on
// probe failure.
func healthHandler(c *gin.Context) {
	health := gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(startedAt).Seconds()),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		health["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		health["cpu_percent"] = percents[0]
	}
	if uptime, err := host.Uptime(); err == nil {
		health["host_uptime_seconds"] = uptime
	}

	if bus := events.GetGlobalEventBus(); bus != nil {
		if err := bus.Health(); err != nil {
			health["status"] = "degraded"
			health["event_bus"] = err.Error()
		}
	}

	status := http.StatusOK
	if health["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
