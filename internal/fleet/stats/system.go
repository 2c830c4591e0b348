package stats

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/asimaranov/telestory-backend/pkg/api"
)

// systemCollector reads host resource usage from the proc filesystem and the
// filesystem stats of the configured disk path. Paths are fields so tests can
// point them at fixtures.
type systemCollector struct {
	diskPath    string
	memInfoPath string
	loadAvgPath string
	uptimePath  string
}

func newSystemCollector(diskPath string) *systemCollector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &systemCollector{
		diskPath:    diskPath,
		memInfoPath: "/proc/meminfo",
		loadAvgPath: "/proc/loadavg",
		uptimePath:  "/proc/uptime",
	}
}

// Collect gathers one system stats report.
func (c *systemCollector) Collect() (api.SystemStats, error) {
	var stats api.SystemStats

	memTotal, memAvailable, err := c.readMemInfo()
	if err != nil {
		return stats, fmt.Errorf("failed to read memory info: %w", err)
	}
	stats.MemTotalBytes = memTotal
	stats.MemUsedBytes = memTotal - memAvailable
	if memTotal > 0 {
		stats.MemUsedPercent = float64(stats.MemUsedBytes) / float64(memTotal) * 100
	}

	load1, err := c.readLoadAvg()
	if err != nil {
		return stats, fmt.Errorf("failed to read load average: %w", err)
	}
	stats.Load1 = load1

	uptime, err := c.readUptime()
	if err != nil {
		return stats, fmt.Errorf("failed to read uptime: %w", err)
	}
	stats.UptimeSeconds = uptime

	var fs syscall.Statfs_t
	if err := syscall.Statfs(c.diskPath, &fs); err != nil {
		return stats, fmt.Errorf("failed to stat %s: %w", c.diskPath, err)
	}
	blockSize := uint64(fs.Bsize)
	stats.DiskTotalBytes = fs.Blocks * blockSize
	stats.DiskUsedBytes = (fs.Blocks - fs.Bfree) * blockSize
	if stats.DiskTotalBytes > 0 {
		stats.DiskUsedPercent = float64(stats.DiskUsedBytes) / float64(stats.DiskTotalBytes) * 100
	}

	return stats, nil
}

// readMemInfo returns total and available memory in bytes.
func (c *systemCollector) readMemInfo() (total, available uint64, err error) {
	data, err := os.ReadFile(c.memInfoPath)
	if err != nil {
		return 0, 0, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Values are reported in kB.
		switch fields[0] {
		case "MemTotal:":
			kb, perr := strconv.ParseUint(fields[1], 10, 64)
			if perr != nil {
				return 0, 0, fmt.Errorf("malformed MemTotal line %q", line)
			}
			total = kb * 1024
		case "MemAvailable:":
			kb, perr := strconv.ParseUint(fields[1], 10, 64)
			if perr != nil {
				return 0, 0, fmt.Errorf("malformed MemAvailable line %q", line)
			}
			available = kb * 1024
		}
	}

	if total == 0 {
		return 0, 0, fmt.Errorf("MemTotal not found in %s", c.memInfoPath)
	}
	return total, available, nil
}

func (c *systemCollector) readLoadAvg() (float64, error) {
	data, err := os.ReadFile(c.loadAvgPath)
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty loadavg file %s", c.loadAvgPath)
	}
	return strconv.ParseFloat(fields[0], 64)
}

func (c *systemCollector) readUptime() (uint64, error) {
	data, err := os.ReadFile(c.uptimePath)
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty uptime file %s", c.uptimePath)
	}
	seconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, err
	}
	return uint64(seconds), nil
}
