//go:build unit

package hwctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerobotics/go-aie/pkg/driver"
)

func TestSimPushRequiresEnabledChannel(t *testing.T) {
	s := NewSim(2, 9)
	loc := ShimTile(0)

	err := s.DmaPushToQueue(loc, 0, Mm2s, 0)
	require.Error(t, err)
	assert.True(t, driver.IsStatus(err, driver.StatusInvalidState))

	require.NoError(t, s.DmaChannelEnable(loc, 0, Mm2s))
	require.NoError(t, s.DmaWriteDescriptor(loc, 0, &DescConfig{Addr: 0x1000, Len: 256, Enabled: true}))
	require.NoError(t, s.DmaPushToQueue(loc, 0, Mm2s, 0))
	assert.Equal(t, uint32(1), s.PushCount(loc))
}

func TestSimTransfersCompleteImmediately(t *testing.T) {
	s := NewSim(1, 9)
	loc := ShimTile(0)
	require.NoError(t, s.DmaChannelEnable(loc, 0, S2mm))
	require.NoError(t, s.DmaWriteDescriptor(loc, 4, &DescConfig{Addr: 0x2000, Len: 64, Enabled: true}))
	require.NoError(t, s.DmaPushToQueue(loc, 0, S2mm, 4))

	pending, err := s.DmaPendingCount(loc, 0, S2mm)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	done, err := s.DmaWaitDone(loc, 0, S2mm, 0)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestSimRejectsDisabledDescriptor(t *testing.T) {
	s := NewSim(1, 9)
	err := s.DmaWriteDescriptor(ShimTile(0), 0, &DescConfig{Addr: 0x1000, Len: 64})
	assert.True(t, driver.IsStatus(err, driver.StatusInvalidArgument))
}

func TestSimArmedCountersCountPushes(t *testing.T) {
	s := NewSim(1, 9)
	loc := ShimTile(0)
	require.NoError(t, s.DmaChannelEnable(loc, 0, Mm2s))

	require.NoError(t, s.EventSelectStreamPort(loc, 0, StreamSlave, 2))
	require.NoError(t, s.PerfCounterControlSet(loc, ModulePL, 0, ShimPortRunningEvent(0), ShimPortRunningEvent(0)))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.DmaWriteDescriptor(loc, uint8(i), &DescConfig{Addr: 0x1000, Len: 64, Enabled: true}))
		require.NoError(t, s.DmaPushToQueue(loc, 0, Mm2s, uint8(i)))
	}

	v, err := s.PerfCounterGet(loc, ModulePL, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v)

	require.NoError(t, s.PerfCounterReset(loc, ModulePL, 0))
	v, err = s.PerfCounterGet(loc, ModulePL, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
}

func TestSimDisarmedCountersStopCounting(t *testing.T) {
	s := NewSim(1, 9)
	loc := ShimTile(0)
	require.NoError(t, s.DmaChannelEnable(loc, 0, Mm2s))
	require.NoError(t, s.PerfCounterControlSet(loc, ModulePL, 1, 0x4B, 0x4B))
	require.NoError(t, s.PerfCounterControlReset(loc, ModulePL, 1))

	require.NoError(t, s.DmaWriteDescriptor(loc, 0, &DescConfig{Addr: 0x1000, Len: 64, Enabled: true}))
	require.NoError(t, s.DmaPushToQueue(loc, 0, Mm2s, 0))

	v, err := s.PerfCounterGet(loc, ModulePL, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
}

func TestSimEventRoutes(t *testing.T) {
	s := NewSim(1, 9)
	loc := ShimTile(0)

	require.NoError(t, s.EventSelectStreamPort(loc, 3, StreamMaster, 7))
	assert.Equal(t, 1, s.RouteCount())

	require.NoError(t, s.EventResetStreamPort(loc, 3))
	assert.Equal(t, 0, s.RouteCount())

	err := s.EventSelectStreamPort(loc, driver.ShimStreamEventPorts, StreamMaster, 7)
	assert.True(t, driver.IsStatus(err, driver.StatusInvalidArgument))
}

func TestSimRejectsOutOfRangeTiles(t *testing.T) {
	s := NewSim(2, 9)
	err := s.DmaChannelEnable(TileLoc{Col: 2, Row: 0}, 0, Mm2s)
	assert.True(t, driver.IsStatus(err, driver.StatusInvalidArgument))
}

func TestSimClosedRejectsOperations(t *testing.T) {
	s := NewSim(1, 9)
	require.NoError(t, s.Close())

	err := s.DmaChannelEnable(ShimTile(0), 0, Mm2s)
	assert.True(t, driver.IsStatus(err, driver.StatusInvalidState))
}

func TestTileLocHelpers(t *testing.T) {
	loc := ShimTile(7)
	assert.Equal(t, uint32(7), loc.Col)
	assert.Equal(t, uint32(driver.ShimRow), loc.Row)
	assert.Equal(t, "(7, 0)", loc.String())
}

func TestDmaDirectionString(t *testing.T) {
	assert.Equal(t, "MM2S", Mm2s.String())
	assert.Equal(t, "S2MM", S2mm.String())
}
