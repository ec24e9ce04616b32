// Command ethercat is the operator CLI: a text dispatcher over
// argc/argv in the style of the original firmware's command table.
// It handles start, stop, master, rescan, slaves, states, wc and
// perf; pdos, coe_read/write, foe_read/write, eoe_start,
// pdo_read/write and sii_read/write are not implemented and are
// reported as unknown commands. Grounded on the teacher's cmd/canopen (logrus-based
// operator-facing output) and the REPL loop shape; unlike the
// teacher's flag-parsed one-shot main, this dispatches one command
// per input line the way ec_cmd.c's argv handler does.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/netfieldbus/goethercat/pkg/config"
	gatewayhttp "github.com/netfieldbus/goethercat/pkg/gateway/http"
	"github.com/netfieldbus/goethercat/pkg/master"
	"github.com/netfieldbus/goethercat/pkg/metrics"
	"github.com/netfieldbus/goethercat/pkg/netdev"
	"github.com/netfieldbus/goethercat/pkg/scanner"
	"github.com/netfieldbus/goethercat/pkg/state"
	"github.com/netfieldbus/goethercat/pkg/synctable"
)

func main() {
	logrus.SetLevel(logrus.InfoLevel)

	configPath := flag.String("c", "/etc/ethercat/master.ini", "master configuration file")
	httpAddr := flag.String("http", "", "address to serve the monitoring HTTP surface on, e.g. :8080 (empty disables it)")
	metricsAddr := flag.String("metrics", ":9110", "address to serve Prometheus metrics on (served only when -http is set)")
	virtualBus := flag.Bool("virtual", false, "use an in-memory virtual net-device instead of a real interface (testing)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	var devices []netdev.Device
	for _, nd := range cfg.NetDevices {
		if *virtualBus {
			devices = append(devices, netdev.NewVirtual(nd.Name))
			continue
		}
		dev, err := netdev.NewRawSock(nd.Name)
		if err != nil {
			logrus.WithError(err).WithField("netdev", nd.Name).Fatal("failed to open net-device")
		}
		devices = append(devices, dev)
	}

	m, err := master.New(devices, master.Config{
		CycleTime:         cfg.CycleTime,
		ShiftTime:         cfg.ShiftTime,
		DCMode:            cfg.DCMode,
		DCSyncWithRef:     cfg.DCSyncWithRef,
		PDOMultiDomain:    cfg.PDOMultiDomain,
		NonPeriodInterval: cfg.NonPeriodInterval,
		ScanInterval:      cfg.ScanInterval,
	}, logrus.StandardLogger())
	if err != nil {
		logrus.WithError(err).Fatal("failed to construct master")
	}

	var syncTable *synctable.Table
	if cfg.SyncTablePath != "" {
		syncTable, err = synctable.Load(cfg.SyncTablePath)
		if err != nil {
			logrus.WithError(err).Warn("failed to load sync-info table")
		}
	}
	m.SetScanner(func(mm *master.Master) error {
		slaves, err := scanner.Scan(mm, scanner.Options{SyncTable: syncTable})
		if err != nil {
			return err
		}
		mm.SetSlaves(slaves)
		return nil
	})

	ctx := context.Background()
	if err := m.Init(ctx); err != nil {
		logrus.WithError(err).Fatal("failed to start background tasks")
	}
	defer m.Close()

	if *httpAddr != "" {
		names := make(map[string]netdev.Device)
		for i, nd := range cfg.NetDevices {
			if i < len(devices) {
				names[nd.Name] = devices[i]
			}
		}
		collector := metrics.New(m, names)
		registry := prometheus.NewRegistry()
		registry.MustRegister(collector)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logrus.WithError(err).Error("metrics server exited")
			}
		}()

		go func() {
			srv := gatewayhttp.NewServer(m, logrus.StandardLogger())
			if err := srv.ListenAndServe(*httpAddr); err != nil {
				logrus.WithError(err).Error("http gateway server exited")
			}
		}()
	}

	repl(m)
}

// repl reads one command per line from stdin and dispatches it,
// mirroring ec_cmd.c's argv-style command handling.
func repl(m *master.Master) {
	in := bufio.NewScanner(os.Stdin)
	fmt.Println("ethercat> ")
	for in.Scan() {
		argv := strings.Fields(in.Text())
		if len(argv) == 0 {
			fmt.Print("ethercat> ")
			continue
		}
		dispatch(m, argv)
		fmt.Print("ethercat> ")
	}
}

func dispatch(m *master.Master, argv []string) {
	argc := len(argv)
	switch argv[0] {
	case "start":
		if err := m.Start(); err != nil {
			fmt.Println("error:", err)
		}
	case "stop":
		if err := m.Stop(); err != nil {
			fmt.Println("error:", err)
		}
	case "master":
		fmt.Printf("phase=%s wc=%d/%d\n", m.Phase(), m.ActualWorkingCounter(), m.ExpectedWorkingCounter())
	case "rescan":
		m.RequestRescan()
	case "slaves":
		cmdSlaves(m, argv)
	case "states":
		cmdStates(m, argv, argc)
	case "wc":
		fmt.Printf("actual=%d expected=%d\n", m.ActualWorkingCounter(), m.ExpectedWorkingCounter())
	case "perf":
		cmdPerf(m, argv)
	default:
		fmt.Println("unknown command:", argv[0])
	}
}

func cmdSlaves(m *master.Master, argv []string) {
	verbose := false
	var only = -1
	for i := 1; i < len(argv); i++ {
		switch argv[i] {
		case "-v":
			verbose = true
		case "-p":
			if i+1 < len(argv) {
				if idx, err := strconv.Atoi(argv[i+1]); err == nil {
					only = idx
				}
				i++
			}
		}
	}
	for i, s := range m.Slaves() {
		if only >= 0 && i != only {
			continue
		}
		if verbose {
			fmt.Printf("%d: station=0x%x vendor=0x%x product=0x%x state=%s\n", i, s.StationAddress, s.Vendor, s.Product, s.States.Current())
		} else {
			fmt.Printf("%d: %s\n", i, s.States.Current())
		}
	}
}

// cmdStates' argument-count contract: a global request is
// `states <state>` (argc == 2, argv[0] is "states" itself — the REPL
// line carries no program-name slot); a per-slave request is
// `states -p <idx> <state>` (argc == 4). Any other argc is a usage
// error, never read past argv.
func cmdStates(m *master.Master, argv []string, argc int) {
	parse := func(s string) (state.State, bool) {
		switch strings.ToUpper(s) {
		case "INIT":
			return state.Init, true
		case "PREOP", "PRE_OP":
			return state.PreOp, true
		case "SAFEOP", "SAFE_OP":
			return state.SafeOp, true
		case "OP":
			return state.Op, true
		default:
			return state.Unknown, false
		}
	}

	switch argc {
	case 2:
		target, ok := parse(argv[1])
		if !ok {
			fmt.Println("usage: states <state>")
			return
		}
		for _, s := range m.Slaves() {
			s.States.Request(target)
		}
	case 4:
		if argv[1] != "-p" {
			fmt.Println("usage: states -p <idx> <state>")
			return
		}
		idx, err := strconv.Atoi(argv[2])
		if err != nil {
			fmt.Println("usage: states -p <idx> <state>")
			return
		}
		target, ok := parse(argv[3])
		if !ok {
			fmt.Println("usage: states -p <idx> <state>")
			return
		}
		slaves := m.Slaves()
		if idx < 0 || idx >= len(slaves) {
			fmt.Println("error: slave index out of range")
			return
		}
		slaves[idx].States.Request(target)
	default:
		fmt.Println("usage: states <state> | states -p <idx> <state>")
	}
}

func cmdPerf(m *master.Master, argv []string) {
	p := m.Perf()
	flag := "-s"
	if len(argv) > 1 {
		flag = argv[1]
	}
	switch flag {
	case "-s":
		fmt.Printf("min=%dns max=%dns avg=%dns\n", p.MinPeriodNS, p.MaxPeriodNS, p.AvgPeriodNS)
	case "-d":
		fmt.Printf("dc_offset=%dns\n", p.DCOffsetNS)
	case "-v":
		stats := m.Stats()
		fmt.Printf("timeouts=%d corrupted=%d unmatched=%d\n", stats.Timeouts, stats.Corrupted, stats.Unmatched)
	default:
		fmt.Println("usage: perf -s|-d|-v")
	}
}
