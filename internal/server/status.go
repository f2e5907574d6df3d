// Host self-status probe for the dashboard, using gopsutil for
// cross-platform telemetry.
package server

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// handleStatus reports the monitor host's own vitals so the dashboard can
// distinguish "router is quiet" from "the monitor box is struggling".
func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"time":       time.Now().UTC(),
	}

	if h, err := os.Hostname(); err == nil {
		status["hostname"] = h
	}
	if pcts, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pcts) > 0 {
		status["cpu_usage"] = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["mem_usage"] = vm.UsedPercent
	}
	if up, err := host.Uptime(); err == nil {
		status["host_uptime_seconds"] = up
	}

	c.JSON(http.StatusOK, status)
}
