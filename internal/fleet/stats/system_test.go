package stats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSystemCollect(t *testing.T) {
	dir := t.TempDir()

	collector := &systemCollector{
		diskPath:    dir,
		memInfoPath: writeFixture(t, dir, "meminfo", "MemTotal:       16384000 kB\nMemFree:         1024000 kB\nMemAvailable:    8192000 kB\n"),
		loadAvgPath: writeFixture(t, dir, "loadavg", "0.42 0.36 0.30 2/1024 12345\n"),
		uptimePath:  writeFixture(t, dir, "uptime", "54321.98 108000.00\n"),
	}

	stats, err := collector.Collect()
	require.NoError(t, err)

	assert.Equal(t, uint64(16384000*1024), stats.MemTotalBytes)
	assert.Equal(t, uint64((16384000-8192000)*1024), stats.MemUsedBytes)
	assert.InDelta(t, 50.0, stats.MemUsedPercent, 0.01)
	assert.InDelta(t, 0.42, stats.Load1, 0.001)
	assert.Equal(t, uint64(54321), stats.UptimeSeconds)
	assert.NotZero(t, stats.DiskTotalBytes)
	assert.GreaterOrEqual(t, stats.DiskTotalBytes, stats.DiskUsedBytes)
}

func TestSystemCollectMissingFiles(t *testing.T) {
	dir := t.TempDir()

	collector := &systemCollector{
		diskPath:    dir,
		memInfoPath: filepath.Join(dir, "does-not-exist"),
		loadAvgPath: filepath.Join(dir, "does-not-exist"),
		uptimePath:  filepath.Join(dir, "does-not-exist"),
	}

	_, err := collector.Collect()
	assert.Error(t, err)
}

func TestSystemCollectMalformedMemInfo(t *testing.T) {
	dir := t.TempDir()

	collector := &systemCollector{
		diskPath:    dir,
		memInfoPath: writeFixture(t, dir, "meminfo", "MemFree: 12 kB\n"),
		loadAvgPath: writeFixture(t, dir, "loadavg", "0.1 0.1 0.1 1/1 1\n"),
		uptimePath:  writeFixture(t, dir, "uptime", "1.0 1.0\n"),
	}

	_, err := collector.Collect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MemTotal")
}
