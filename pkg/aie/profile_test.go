//go:build unit

package aie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerobotics/go-aie/pkg/driver"
	"github.com/edgerobotics/go-aie/pkg/hwctl"
	"github.com/edgerobotics/go-aie/pkg/meta"
	"github.com/edgerobotics/go-aie/pkg/resource"
	"github.com/edgerobotics/go-aie/testutil"
)

func TestStartProfilingAcquiresCounterAndEventPort(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	handle, err := a.StartProfiling(ProfileStreamRunningEventCount, "gmio_in", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, handle)

	assert.Equal(t, 1, fake.RouteCount())
	assert.Equal(t, 1, fake.ArmedCount())

	pool, err := a.grid.ShimTile(0)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.CountersInUse())
	assert.Equal(t, 1, pool.EventPortsInUse())
}

func TestStartProfilingHandlesAreMonotonic(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	h0, err := a.StartProfiling(ProfileStreamRunningEventCount, "gmio_in", "", 0)
	require.NoError(t, err)
	h1, err := a.StartProfiling(ProfileStreamRunningEventCount, "gmio_in", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, h0)
	assert.Equal(t, 1, h1)

	// Handles are never reused, even after a stop
	a.StopProfiling(h0)
	h2, err := a.StartProfiling(ProfileStreamRunningEventCount, "gmio_in", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, h2)
}

func TestStartProfilingUnknownPort(t *testing.T) {
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newSimArray(t, topo)

	_, err := a.StartProfiling(ProfileStreamRunningEventCount, "missing", "", 0)
	assert.True(t, driver.IsStatus(err, driver.StatusNotFound))
}

func TestStartProfilingUnknownOption(t *testing.T) {
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newSimArray(t, topo)

	_, err := a.StartProfiling(ProfileOption(7), "gmio_in", "", 0)
	assert.True(t, driver.IsStatus(err, driver.StatusInvalidArgument))
}

func TestStartProfilingAmbiguousName(t *testing.T) {
	topo := &meta.Topology{
		NumColumns: 1,
		NumRows:    driver.DefaultNumRows,
		Gmios: []meta.Gmio{
			{Name: "dual", ShimColumn: 0, Channel: 0, Direction: meta.ToArray, StreamID: 2},
		},
		Plios: []meta.Plio{
			{Name: "dual", ShimColumn: 0, IsMaster: true, StreamID: 4},
		},
	}
	a := newSimArray(t, topo)

	_, err := a.StartProfiling(ProfileStreamRunningEventCount, "dual", "", 0)
	require.Error(t, err)
	assert.True(t, driver.IsStatus(err, driver.StatusInvalidArgument))

	// An ambiguous request must not acquire anything
	pool, err := a.grid.ShimTile(0)
	require.NoError(t, err)
	assert.Equal(t, 0, pool.CountersInUse())
	assert.Equal(t, 0, pool.EventPortsInUse())
}

func TestStartProfilingOnPlioPort(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := &meta.Topology{
		NumColumns: 1,
		NumRows:    driver.DefaultNumRows,
		Plios: []meta.Plio{
			{Name: "plio_a", LogicalName: "graph.out", ShimColumn: 0, IsMaster: true, StreamID: 5},
		},
	}
	a := newFakeArray(t, fake, topo)

	handle, err := a.StartProfiling(ProfileStreamRunningEventCount, "plio_a", "", 0)
	require.NoError(t, err)
	a.StopProfiling(handle)
	assert.Equal(t, 0, fake.RouteCount())
}

func TestStartProfilingExhaustsCounters(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	// A shim column has two performance counters; the third session
	// must fail and give back the event port it grabbed first.
	for i := 0; i < driver.ShimPerfCounters; i++ {
		_, err := a.StartProfiling(ProfileStreamRunningEventCount, "gmio_in", "", 0)
		require.NoError(t, err)
	}

	_, err := a.StartProfiling(ProfileStreamRunningEventCount, "gmio_in", "", 0)
	require.Error(t, err)
	assert.True(t, driver.IsStatus(err, driver.StatusResourceExhausted))

	pool, err := a.grid.ShimTile(0)
	require.NoError(t, err)
	assert.Equal(t, driver.ShimPerfCounters, pool.CountersInUse())
	assert.Equal(t, driver.ShimPerfCounters, pool.EventPortsInUse())
}

func TestReadProfiling(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	handle, err := a.StartProfiling(ProfileStreamRunningEventCount, "gmio_in", "", 0)
	require.NoError(t, err)

	fake.SetCounterValue(hwctl.ShimTile(0), hwctl.ModulePL, 0, 1234)
	v, err := a.ReadProfiling(handle)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), v)
}

func TestReadProfilingUnknownHandle(t *testing.T) {
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newSimArray(t, topo)

	_, err := a.ReadProfiling(0)
	assert.True(t, driver.IsStatus(err, driver.StatusNotFound))

	_, err = a.ReadProfiling(-1)
	assert.True(t, driver.IsStatus(err, driver.StatusNotFound))
}

func TestReadProfilingRejectsDriftedSession(t *testing.T) {
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newSimArray(t, topo)

	// A session whose first resource is not a counter violates the
	// recording protocol and must not be read blindly.
	a.sessions = append(a.sessions, &profileSession{
		option: ProfileStreamRunningEventCount,
		resources: []acquiredResource{
			{loc: hwctl.ShimTile(0), module: hwctl.ModulePL, kind: resource.StreamEventPort, id: 0},
		},
	})

	_, err := a.ReadProfiling(0)
	require.Error(t, err)
	assert.True(t, driver.IsStatus(err, driver.StatusProtocolViolation))
}

func TestStopProfilingReleasesEverything(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	handle, err := a.StartProfiling(ProfileStreamRunningEventCount, "gmio_in", "", 0)
	require.NoError(t, err)

	a.StopProfiling(handle)

	assert.Equal(t, 0, fake.RouteCount())
	assert.Equal(t, 0, fake.ArmedCount())

	pool, err := a.grid.ShimTile(0)
	require.NoError(t, err)
	assert.Equal(t, 0, pool.CountersInUse())
	assert.Equal(t, 0, pool.EventPortsInUse())

	// A stopped session can no longer be read
	_, err = a.ReadProfiling(handle)
	assert.Error(t, err)
}

func TestStopProfilingIsIdempotent(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	handle, err := a.StartProfiling(ProfileStreamRunningEventCount, "gmio_in", "", 0)
	require.NoError(t, err)

	a.StopProfiling(handle)
	a.StopProfiling(handle)

	// Out-of-range handles are a silent no-op
	a.StopProfiling(-1)
	a.StopProfiling(99)
}

func TestProfilingCountsSimulatedTransfers(t *testing.T) {
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newSimArray(t, topo)

	handle, err := a.StartProfiling(ProfileStreamRunningEventCount, "gmio_in", "", 0)
	require.NoError(t, err)

	buf := testutil.NewFakeBuffer(256)
	require.NoError(t, a.SyncBuffer(buf, "gmio_in", meta.ToArray, 256, 0))
	require.NoError(t, a.SyncBuffer(buf, "gmio_in", meta.ToArray, 256, 0))

	v, err := a.ReadProfiling(handle)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	a.StopProfiling(handle)
}
