package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfieldbus/goethercat/pkg/master"
	"github.com/netfieldbus/goethercat/pkg/netdev"
	"github.com/netfieldbus/goethercat/pkg/slave"
)

func newTestServer(t *testing.T) (*httptest.Server, *master.Master) {
	t.Helper()
	dev := netdev.NewVirtual("eth0")
	logger := logrus.New()
	m, err := master.New([]netdev.Device{dev}, master.Config{CycleTime: time.Hour}, logger)
	require.NoError(t, err)
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() { _ = m.Close() })

	srv := NewServer(m, logger)
	ts := httptest.NewServer(srv.serveMux)
	t.Cleanup(ts.Close)
	return ts, m
}

func TestHandleStatusReportsPhaseAndCounters(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "IDLE", got.Phase)
}

func TestHandleSlavesReflectsConfiguredSlaves(t *testing.T) {
	ts, m := newTestServer(t)

	s := slave.New(0)
	s.StationAddress = 0x1001
	s.Vendor = 0xAA
	s.Product = 0xBB
	m.SetSlaves([]*slave.Slave{s})

	resp, err := http.Get(ts.URL + "/slaves")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []slaveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.EqualValues(t, 0x1001, got[0].StationAddress)
	assert.EqualValues(t, 0xAA, got[0].Vendor)
	assert.EqualValues(t, 0xBB, got[0].Product)
}

func TestHandleRescanRejectsGetAndAcceptsPost(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/rescan")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/rescan", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHandlePerfReturnsCounters(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/perf")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got perfResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
}
