// Package metrics exposes master and net-device state as Prometheus
// metrics: per-link rates and loss, the hot-path failure counters, the
// DC offset, the average period and the working counters. Queue depth
// is not exported. Grounded on go-tcpinfo's exporter package — a
// Collector over externally updated state; each Collect reads the
// master's and net-devices' lock-guarded snapshot accessors rather
// than taking measurements of its own.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/netfieldbus/goethercat/pkg/master"
	"github.com/netfieldbus/goethercat/pkg/netdev"
)

// Source is the subset of *master.Master the collector reads on each
// scrape; satisfied by the real master and easy to fake in tests.
type Source interface {
	Stats() master.Stats
	Perf() master.PerfCounters
	ActualWorkingCounter() uint16
	ExpectedWorkingCounter() uint16
}

// Collector implements prometheus.Collector over a Source plus the
// net-devices it drives.
type Collector struct {
	src     Source
	devices map[string]netdev.Device

	timeouts  *prometheus.Desc
	corrupted *prometheus.Desc
	unmatched *prometheus.Desc
	dcOffset  *prometheus.Desc
	avgPeriod *prometheus.Desc
	wcActual  *prometheus.Desc
	wcExpect  *prometheus.Desc
	txRate    *prometheus.Desc
	rxRate    *prometheus.Desc
	loss      *prometheus.Desc
}

// New returns a Collector over src and the named net-devices.
func New(src Source, devices map[string]netdev.Device) *Collector {
	return &Collector{
		src:     src,
		devices: devices,
		timeouts:  prometheus.NewDesc("ethercat_datagram_timeouts_total", "Datagrams that exceeded the 50ms deadline.", nil, nil),
		corrupted: prometheus.NewDesc("ethercat_frames_corrupted_total", "Received frames rejected as corrupt.", nil, nil),
		unmatched: prometheus.NewDesc("ethercat_datagrams_unmatched_total", "Received datagrams with no queued match.", nil, nil),
		dcOffset:  prometheus.NewDesc("ethercat_dc_offset_ns", "Most recent distributed-clock PI correction, nanoseconds.", nil, nil),
		avgPeriod: prometheus.NewDesc("ethercat_periodic_task_avg_ns", "Running average periodic-task period, nanoseconds.", nil, nil),
		wcActual:  prometheus.NewDesc("ethercat_working_counter_actual", "Working counter from the most recent completed PDO cycle.", nil, nil),
		wcExpect:  prometheus.NewDesc("ethercat_working_counter_expected", "Expected working counter for the configured slave set.", nil, nil),
		txRate:    prometheus.NewDesc("ethercat_netdev_tx_frames_per_second", "Low-pass filtered TX frame rate.", []string{"netdev", "window"}, nil),
		rxRate:    prometheus.NewDesc("ethercat_netdev_rx_frames_per_second", "Low-pass filtered RX frame rate.", []string{"netdev", "window"}, nil),
		loss:      prometheus.NewDesc("ethercat_netdev_loss", "Low-pass filtered tx_count - rx_count.", []string{"netdev", "window"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.timeouts
	ch <- c.corrupted
	ch <- c.unmatched
	ch <- c.dcOffset
	ch <- c.avgPeriod
	ch <- c.wcActual
	ch <- c.wcExpect
	ch <- c.txRate
	ch <- c.rxRate
	ch <- c.loss
}

var windows = [3]string{"1s", "10s", "60s"}

// Collect implements prometheus.Collector, reading one snapshot of
// the master's stats/perf counters and every net-device's stats.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.Stats()
	perf := c.src.Perf()

	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(stats.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.corrupted, prometheus.CounterValue, float64(stats.Corrupted))
	ch <- prometheus.MustNewConstMetric(c.unmatched, prometheus.CounterValue, float64(stats.Unmatched))
	ch <- prometheus.MustNewConstMetric(c.dcOffset, prometheus.GaugeValue, float64(perf.DCOffsetNS))
	ch <- prometheus.MustNewConstMetric(c.avgPeriod, prometheus.GaugeValue, float64(perf.AvgPeriodNS))
	ch <- prometheus.MustNewConstMetric(c.wcActual, prometheus.GaugeValue, float64(c.src.ActualWorkingCounter()))
	ch <- prometheus.MustNewConstMetric(c.wcExpect, prometheus.GaugeValue, float64(c.src.ExpectedWorkingCounter()))

	for name, dev := range c.devices {
		s := dev.Stats()
		for i, w := range windows {
			ch <- prometheus.MustNewConstMetric(c.txRate, prometheus.GaugeValue, s.TxRate[i], name, w)
			ch <- prometheus.MustNewConstMetric(c.rxRate, prometheus.GaugeValue, s.RxRate[i], name, w)
			ch <- prometheus.MustNewConstMetric(c.loss, prometheus.GaugeValue, s.Loss[i], name, w)
		}
	}
}
