// Package config loads master, net-device and distributed-clock
// settings from an ini file at startup — cycle time, shift time, DC
// mode, the compile-time-equivalent options the original firmware
// fixed at build time (non-periodic/scan intervals, multi-domain PDO
// mode), the sync-info table path and the net-device names. Grounded on the teacher's pkg/od ini-based
// EDS loader (gopkg.in/ini.v1), the same library used for the
// per-vendor sync-info table in pkg/synctable.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"

	"github.com/netfieldbus/goethercat/pkg/dc"
)

// NetDevice is one configured link.
type NetDevice struct {
	Name string
}

// Master is the full set of startup options for a master instance.
type Master struct {
	CycleTime         time.Duration
	ShiftTime         time.Duration
	DCMode            dc.Mode
	DCSyncWithRef     bool
	PDOMultiDomain    bool
	NonPeriodInterval time.Duration
	ScanInterval      time.Duration
	SyncTablePath     string
	NetDevices        []NetDevice
}

// Load parses path into a Master configuration. Missing optional keys
// fall back to the same defaults the original firmware compiled in.
func Load(path string) (*Master, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	sec := f.Section("master")
	m := &Master{
		CycleTime:         time.Duration(sec.Key("cycle_time_ns").MustInt64(1_000_000)),
		ShiftTime:         time.Duration(sec.Key("shift_time_ns").MustInt64(0)),
		DCSyncWithRef:     sec.Key("dc_sync_with_dc_ref_enable").MustBool(true),
		PDOMultiDomain:    sec.Key("pdo_multi_domain").MustBool(false),
		NonPeriodInterval: time.Duration(sec.Key("nonperiod_interval_ms").MustInt64(10)) * time.Millisecond,
		ScanInterval:      time.Duration(sec.Key("scan_interval_ms").MustInt64(1000)) * time.Millisecond,
		SyncTablePath:     sec.Key("sync_table_path").MustString(""),
	}
	switch sec.Key("dc_mode").MustString("a") {
	case "b", "B":
		m.DCMode = dc.ModeB
	default:
		m.DCMode = dc.ModeA
	}

	for _, name := range f.Section("netdevs").Key("names").Strings(",") {
		m.NetDevices = append(m.NetDevices, NetDevice{Name: name})
	}
	if len(m.NetDevices) == 0 {
		m.NetDevices = []NetDevice{{Name: "eth0"}}
	}
	return m, nil
}
