package aie

import (
	"github.com/edgerobotics/go-aie/pkg/driver"
	"github.com/edgerobotics/go-aie/pkg/hwctl"
	"github.com/edgerobotics/go-aie/pkg/meta"
)

// boundBD is one hardware buffer descriptor slot. The numeric id is fixed
// at initialization; the binding fields are populated per transfer and
// cleared when the descriptor drains.
type boundBD struct {
	num   uint8
	vaddr []byte
	size  uint64
	bufFd int
}

// dmaChannel holds the two descriptor queues of one logical channel.
// Every BD slot is in exactly one of them; their combined length is the
// channel's fixed slot count.
type dmaChannel struct {
	idle    []boundBD
	pending []boundBD
}

func (c *dmaChannel) idleLen() int {
	return len(c.idle)
}

func (c *dmaChannel) pendingLen() int {
	return len(c.pending)
}

func (c *dmaChannel) popIdle() boundBD {
	bd := c.idle[0]
	c.idle = c.idle[1:]
	return bd
}

func (c *dmaChannel) pushIdle(bd boundBD) {
	c.idle = append(c.idle, bd)
}

func (c *dmaChannel) popPending() boundBD {
	bd := c.pending[0]
	c.pending = c.pending[1:]
	return bd
}

func (c *dmaChannel) pushPending(bd boundBD) {
	c.pending = append(c.pending, bd)
}

// shimDMA is the per-column DMA state: the shared descriptor staging area
// and the per-channel BD queues.
type shimDMA struct {
	col      uint32
	desc     hwctl.DescConfig
	maxQueue int
	channels [driver.ShimDmaChannels]dmaChannel
}

func newShimDMA(col uint32) *shimDMA {
	return &shimDMA{col: col}
}

// physChannel converts a logical channel number to the per-direction
// hardware channel index. Logical channels pair up across directions.
func physChannel(ch uint32) uint8 {
	return uint8(ch % driver.ChannelsPerDir)
}

// dmaDirection maps a port direction to the hardware transfer direction
func dmaDirection(d meta.Direction) hwctl.DmaDirection {
	if d == meta.ToArray {
		return hwctl.Mm2s
	}
	return hwctl.S2mm
}
