//go:build unit

package aie

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerobotics/go-aie/pkg/driver"
	"github.com/edgerobotics/go-aie/pkg/hwctl"
	"github.com/edgerobotics/go-aie/pkg/meta"
	"github.com/edgerobotics/go-aie/testutil"
)

// requireConservation asserts the BD conservation invariant: every slot
// of the channel is in exactly one of the two queues.
func requireConservation(t *testing.T, a *Array, port string) {
	t.Helper()
	idle, pending, err := a.QueueDepths(port)
	require.NoError(t, err)
	gmio := a.topo.FindGmio(port)
	require.NotNil(t, gmio)
	assert.Equal(t, a.dmas[gmio.ShimColumn].maxQueue, idle+pending,
		"idle+pending must equal the channel's slot count")
}

func TestSyncBufferBlockingRoundTrip(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	buf := testutil.NewFakeBuffer(256)
	require.NoError(t, a.SyncBuffer(buf, "gmio_in", meta.ToArray, 256, 0))

	// The channel returns to its pre-submission state after the drain
	idle, pending, err := a.QueueDepths("gmio_in")
	require.NoError(t, err)
	assert.Equal(t, 4, idle)
	assert.Equal(t, 0, pending)

	pushed := fake.PushedBDs(hwctl.ShimTile(0), 0, hwctl.Mm2s)
	require.Len(t, pushed, 1)
	assert.Equal(t, uint8(0), pushed[0])

	desc, ok := fake.WrittenDesc(0)
	require.True(t, ok)
	assert.Equal(t, uint64(256), desc.Len)
	assert.Equal(t, buf.Address(), desc.Addr)
	assert.True(t, desc.Enabled)
}

func TestSyncBufferBlocksUntilHardwareDone(t *testing.T) {
	fake := testutil.NewFakeController()
	fake.SetPollsUntilDone(3)
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	buf := testutil.NewFakeBuffer(256)
	require.NoError(t, a.SyncBuffer(buf, "gmio_in", meta.ToArray, 256, 0))

	assert.Equal(t, 0, fake.PollsRemaining(), "blocking sync must poll until the hardware reports done")
	requireConservation(t, a, "gmio_in")
}

func TestSyncBufferHonorsOffset(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	buf := testutil.NewFakeBuffer(4096)
	require.NoError(t, a.SyncBuffer(buf, "gmio_in", meta.ToArray, 512, 1024))

	desc, ok := fake.WrittenDesc(0)
	require.True(t, ok)
	assert.Equal(t, buf.Address()+1024, desc.Addr)
	assert.Equal(t, uint64(512), desc.Len)
}

func TestSyncBufferUnknownPort(t *testing.T) {
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newSimArray(t, topo)

	err := a.SyncBuffer(testutil.NewFakeBuffer(256), "nope", meta.ToArray, 256, 0)
	assert.True(t, driver.IsStatus(err, driver.StatusNotFound))
}

func TestSyncBufferDirectionMismatch(t *testing.T) {
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newSimArray(t, topo)

	err := a.SyncBuffer(testutil.NewFakeBuffer(256), "gmio_in", meta.FromArray, 256, 0)
	require.Error(t, err)
	assert.True(t, driver.IsStatus(err, driver.StatusInvalidArgument))
	requireConservation(t, a, "gmio_in")
}

func TestSyncBufferUnalignedLength(t *testing.T) {
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newSimArray(t, topo)

	err := a.SyncBuffer(testutil.NewFakeBuffer(256), "gmio_in", meta.ToArray, 255, 0)
	require.Error(t, err)
	assert.True(t, driver.IsStatus(err, driver.StatusInvalidArgument))
	requireConservation(t, a, "gmio_in")
}

func TestSubmissionsBeyondPoolDepthBlockAndComplete(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	// Six submissions against four slots: the fifth and sixth must
	// spin until earlier descriptors retire, and none may be lost.
	buf := testutil.NewFakeBuffer(256)
	for i := 0; i < 6; i++ {
		require.NoError(t, a.SyncBufferNB(buf, "gmio_in", meta.ToArray, 256, 0))
		requireConservation(t, a, "gmio_in")
	}

	require.NoError(t, a.Wait("gmio_in", 0))

	pushed := fake.PushedBDs(hwctl.ShimTile(0), 0, hwctl.Mm2s)
	assert.Equal(t, []uint8{0, 1, 2, 3, 0, 1}, pushed)

	idle, pending, err := a.QueueDepths("gmio_in")
	require.NoError(t, err)
	assert.Equal(t, 4, idle)
	assert.Equal(t, 0, pending)
}

func TestPendingDescriptorsDrainInFifoOrder(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	buf := testutil.NewFakeBuffer(256)
	require.NoError(t, a.SyncBufferNB(buf, "gmio_in", meta.ToArray, 256, 0))
	require.NoError(t, a.SyncBufferNB(buf, "gmio_in", meta.ToArray, 256, 0))

	ch := &a.dmas[0].channels[0]
	require.Equal(t, 2, ch.pendingLen())
	assert.Equal(t, uint8(0), ch.pending[0].num)
	assert.Equal(t, uint8(1), ch.pending[1].num)

	require.NoError(t, a.Wait("gmio_in", 0))

	// The first submission is released back to idle before the second
	require.Equal(t, 4, ch.idleLen())
	assert.Equal(t, uint8(2), ch.idle[0].num)
	assert.Equal(t, uint8(3), ch.idle[1].num)
	assert.Equal(t, uint8(0), ch.idle[2].num)
	assert.Equal(t, uint8(1), ch.idle[3].num)
}

func TestWaitTimeoutLeavesPendingInPlace(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	buf := testutil.NewFakeBuffer(256)
	require.NoError(t, a.SyncBufferNB(buf, "gmio_in", meta.ToArray, 256, 0))

	fake.SetPollsUntilDone(10)
	err := a.Wait("gmio_in", time.Millisecond)
	require.Error(t, err)
	assert.True(t, driver.IsStatus(err, driver.StatusTimeout))

	_, pending, err := a.QueueDepths("gmio_in")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
	requireConservation(t, a, "gmio_in")
}

func TestWaitUnknownPort(t *testing.T) {
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newSimArray(t, topo)

	err := a.Wait("missing", 0)
	assert.True(t, driver.IsStatus(err, driver.StatusNotFound))
}

func TestSubmitFailureReturnsSlotToIdle(t *testing.T) {
	fake := testutil.NewFakeController()
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newFakeArray(t, fake, topo)

	fake.SetFailOnWrite(true)
	err := a.SyncBufferNB(testutil.NewFakeBuffer(256), "gmio_in", meta.ToArray, 256, 0)
	require.Error(t, err)

	idle, pending, qerr := a.QueueDepths("gmio_in")
	require.NoError(t, qerr)
	assert.Equal(t, 4, idle)
	assert.Equal(t, 0, pending)

	fake.SetFailOnWrite(false)
	fake.SetFailOnPush(true)
	err = a.SyncBufferNB(testutil.NewFakeBuffer(256), "gmio_in", meta.ToArray, 256, 0)
	require.Error(t, err)
	requireConservation(t, a, "gmio_in")
}

func TestEndToEndSimTransfer(t *testing.T) {
	topo := testutil.SingleGmioTopology("gmio_in", meta.ToArray)
	a := newSimArray(t, topo)

	buf := testutil.NewFakeBuffer(256)
	require.NoError(t, a.SyncBuffer(buf, "gmio_in", meta.ToArray, 256, 0))

	idle, pending, err := a.QueueDepths("gmio_in")
	require.NoError(t, err)
	assert.Equal(t, 4, idle)
	assert.Equal(t, 0, pending)
}
