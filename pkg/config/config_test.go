package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfieldbus/goethercat/pkg/dc"
)

func TestLoadAppliesDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.ini")
	require.NoError(t, os.WriteFile(path, []byte("[master]\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, cfg.CycleTime)
	assert.Equal(t, dc.ModeA, cfg.DCMode)
	assert.False(t, cfg.PDOMultiDomain)
	assert.Equal(t, []NetDevice{{Name: "eth0"}}, cfg.NetDevices)
}

func TestLoadParsesExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.ini")
	body := `
[master]
cycle_time_ns = 2000000
shift_time_ns = 500000
dc_mode = b
dc_sync_with_dc_ref_enable = false
pdo_multi_domain = true
nonperiod_interval_ms = 20
scan_interval_ms = 2000

[netdevs]
names = eth0,eth1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Millisecond, cfg.CycleTime)
	assert.Equal(t, 500*time.Microsecond, cfg.ShiftTime)
	assert.Equal(t, dc.ModeB, cfg.DCMode)
	assert.False(t, cfg.DCSyncWithRef)
	assert.True(t, cfg.PDOMultiDomain)
	assert.Equal(t, 20*time.Millisecond, cfg.NonPeriodInterval)
	assert.Equal(t, 2*time.Second, cfg.ScanInterval)
	assert.Equal(t, []NetDevice{{Name: "eth0"}, {Name: "eth1"}}, cfg.NetDevices)
}
