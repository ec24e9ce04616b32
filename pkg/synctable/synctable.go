// Package synctable loads the per-vendor PDO SyncManager assignment
// table the scanner consults when bringing a newly discovered slave
// into PreOp: which SyncManagers carry which PDOs, and their byte
// sizes, keyed by (vendor, product, revision, mode). Grounded on the
// teacher's pkg/od EDS-via-ini parser (gopkg.in/ini.v1), trimmed to
// the fields EtherCAT SyncManager/FMMU setup needs instead of a full
// CANopen object dictionary.
package synctable

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/netfieldbus/goethercat"
)

// SyncManager describes one SyncManager's static configuration:
// start address, size and direction (true = inputs/TxPDO, slave to
// master).
type SyncManager struct {
	Index      int
	StartAddr  uint16
	Size       uint16
	IsInput    bool
	WatchdogEn bool
}

// SyncInfo is the full per-slave-type PDO wiring: the ordered list of
// SyncManagers to configure, plus the total output/input byte sizes
// the master reserves in the PDO arena for one instance.
type SyncInfo struct {
	Vendor       uint32
	Product      uint32
	Revision     uint32
	Mode         string
	SyncManagers []SyncManager
	OutputSize   uint16
	InputSize    uint16
}

// Table is a loaded collection of SyncInfo entries, indexed for
// lookup by FindSlaveSyncInfo.
type Table struct {
	entries map[key]SyncInfo
}

type key struct {
	vendor, product, revision uint32
	mode                      string
}

// Load parses an ini-format sync-info table. Each section is named
// "<vendor>:<product>:<revision>:<mode>" (hex, mode e.g. "default"),
// with keys sm0..smN ("start,size,in|out[,wd]") and out_size/in_size.
func Load(path string) (*Table, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("synctable: %w", err)
	}
	t := &Table{entries: make(map[key]SyncInfo)}
	for _, section := range f.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			continue
		}
		var vendor, product, revision uint32
		var mode string
		n, err := fmt.Sscanf(name, "%x:%x:%x:%s", &vendor, &product, &revision, &mode)
		if err != nil || n != 4 {
			continue
		}
		info := SyncInfo{Vendor: vendor, Product: product, Revision: revision, Mode: mode}
		info.OutputSize = uint16(section.Key("out_size").MustUint(0))
		info.InputSize = uint16(section.Key("in_size").MustUint(0))
		for i := 0; i < 8; i++ {
			k := section.Key(fmt.Sprintf("sm%d", i))
			if k.String() == "" {
				continue
			}
			var start, size uint16
			var rest string
			n, err := fmt.Sscanf(k.String(), "%v,%v,%s", &start, &size, &rest)
			if err != nil || n < 3 {
				continue
			}
			dir, wd, _ := strings.Cut(rest, ",")
			info.SyncManagers = append(info.SyncManagers, SyncManager{
				Index:      i,
				StartAddr:  start,
				Size:       size,
				IsInput:    dir == "in",
				WatchdogEn: wd == "wd",
			})
		}
		t.entries[key{vendor, product, revision, mode}] = info
	}
	return t, nil
}

// FindSlaveSyncInfo returns the SyncInfo for (vendor, product,
// revision) under the given mode ("default" if the slave carries no
// alternate mode selection), or ErrNotFound.
func (t *Table) FindSlaveSyncInfo(vendor, product, revision uint32, mode string) (SyncInfo, error) {
	if mode == "" {
		mode = "default"
	}
	info, ok := t.entries[key{vendor, product, revision, mode}]
	if !ok {
		return SyncInfo{}, ethercat.ErrNotFound
	}
	return info, nil
}
