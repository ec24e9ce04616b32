package main

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/netfieldbus/goethercat/pkg/master"
	"github.com/netfieldbus/goethercat/pkg/netdev"
	"github.com/netfieldbus/goethercat/pkg/slave"
	"github.com/netfieldbus/goethercat/pkg/state"
)

func newDispatchTestMaster(t *testing.T) *master.Master {
	t.Helper()
	dev := netdev.NewVirtual("eth0")
	logger := logrus.New()
	m, err := master.New([]netdev.Device{dev}, master.Config{CycleTime: time.Hour}, logger)
	require.NoError(t, err)
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestCmdStatesGlobalRequestsEverySlave(t *testing.T) {
	m := newDispatchTestMaster(t)
	s0, s1 := slave.New(0), slave.New(1)
	m.SetSlaves([]*slave.Slave{s0, s1})

	cmdStates(m, []string{"states", "op"}, 2)

	require.Equal(t, state.Op, s0.States.Requested())
	require.Equal(t, state.Op, s1.States.Requested())
}

func TestCmdStatesPerSlaveRequestsOnlyThatSlave(t *testing.T) {
	m := newDispatchTestMaster(t)
	s0, s1 := slave.New(0), slave.New(1)
	m.SetSlaves([]*slave.Slave{s0, s1})

	cmdStates(m, []string{"states", "-p", "1", "preop"}, 4)

	require.Equal(t, state.Init, s0.States.Requested())
	require.Equal(t, state.PreOp, s1.States.Requested())
}

func TestCmdStatesRejectsUnknownArgc(t *testing.T) {
	m := newDispatchTestMaster(t)
	s0 := slave.New(0)
	m.SetSlaves([]*slave.Slave{s0})

	// Neither a global nor a per-slave shape; must not panic or mutate.
	cmdStates(m, []string{"states"}, 1)
	require.Equal(t, state.Init, s0.States.Requested())
}

func TestDispatchRoutesStatesThroughArgc(t *testing.T) {
	m := newDispatchTestMaster(t)
	s0 := slave.New(0)
	m.SetSlaves([]*slave.Slave{s0})

	dispatch(m, []string{"states", "safeop"})

	require.Equal(t, state.SafeOp, s0.States.Requested())
}
