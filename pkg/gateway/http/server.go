// Package http is a small monitoring/automation REST surface over the
// master: status, slave table, rescan trigger, performance counters.
// This is not a GUI — it carries no rendering, only JSON — so it
// stays in scope despite the core's "no GUI" non-goal. Grounded on the
// teacher's pkg/gateway/http server shape: an http.ServeMux route
// table built at construction time, served with http.ListenAndServe.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/netfieldbus/goethercat/pkg/master"
)

// Server exposes GET /status, GET /slaves, POST /rescan, GET /perf.
type Server struct {
	m        *master.Master
	logger   *logrus.Logger
	serveMux *http.ServeMux
}

// NewServer builds the route table over m.
func NewServer(m *master.Master, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{m: m, logger: logger, serveMux: http.NewServeMux()}
	s.serveMux.HandleFunc("/status", s.handleStatus)
	s.serveMux.HandleFunc("/slaves", s.handleSlaves)
	s.serveMux.HandleFunc("/rescan", s.handleRescan)
	s.serveMux.HandleFunc("/perf", s.handlePerf)
	return s
}

// ListenAndServe starts the HTTP server on addr, blocking until it
// returns an error.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.WithField("service", "[HTTP]").WithField("addr", addr).Info("starting gateway server")
	return http.ListenAndServe(addr, s.serveMux)
}

type statusResponse struct {
	Phase                  string `json:"phase"`
	ExpectedWorkingCounter uint16 `json:"expected_working_counter"`
	ActualWorkingCounter   uint16 `json:"actual_working_counter"`
	Timeouts               uint64 `json:"timeouts"`
	Corrupted              uint64 `json:"corrupted"`
	Unmatched              uint64 `json:"unmatched"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.m.Stats()
	writeJSON(w, statusResponse{
		Phase:                  s.m.Phase().String(),
		ExpectedWorkingCounter: s.m.ExpectedWorkingCounter(),
		ActualWorkingCounter:   s.m.ActualWorkingCounter(),
		Timeouts:               stats.Timeouts,
		Corrupted:              stats.Corrupted,
		Unmatched:              stats.Unmatched,
	})
}

type slaveResponse struct {
	Position       int16  `json:"position"`
	StationAddress uint16 `json:"station_address"`
	State          string `json:"state"`
	Vendor         uint32 `json:"vendor"`
	Product        uint32 `json:"product"`
}

func (s *Server) handleSlaves(w http.ResponseWriter, r *http.Request) {
	slaves := s.m.Slaves()
	out := make([]slaveResponse, 0, len(slaves))
	for _, sl := range slaves {
		out = append(out, slaveResponse{
			Position:       sl.Position,
			StationAddress: sl.StationAddress,
			State:          sl.States.Current().String(),
			Vendor:         sl.Vendor,
			Product:        sl.Product,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.m.RequestRescan()
	w.WriteHeader(http.StatusAccepted)
}

type perfResponse struct {
	MinPeriodNS int64 `json:"min_period_ns"`
	MaxPeriodNS int64 `json:"max_period_ns"`
	AvgPeriodNS int64 `json:"avg_period_ns"`
	DCOffsetNS  int64 `json:"dc_offset_ns"`
}

func (s *Server) handlePerf(w http.ResponseWriter, r *http.Request) {
	p := s.m.Perf()
	writeJSON(w, perfResponse{
		MinPeriodNS: p.MinPeriodNS,
		MaxPeriodNS: p.MaxPeriodNS,
		AvgPeriodNS: p.AvgPeriodNS,
		DCOffsetNS:  p.DCOffsetNS,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
