// Package hwctl defines the hardware control interface for an AI engine
// array partition: shim DMA descriptor programming, completion queries,
// and the event/performance-counter primitives used for profiling.
//
// Two implementations exist: a hardware backend programming registers
// through the partition device, and a simulated backend modeling the same
// operations in memory. The backend is selected at construction time and
// owned by the array context; there is no process-wide device instance.
package hwctl

import (
	"fmt"
	"time"

	"github.com/edgerobotics/go-aie/pkg/driver"
)

// TileLoc addresses one tile in the array
type TileLoc struct {
	Col uint32
	Row uint32
}

// ShimTile returns the location of the shim tile in a column
func ShimTile(col uint32) TileLoc {
	return TileLoc{Col: col, Row: driver.ShimRow}
}

// String returns the location in (col, row) form
func (l TileLoc) String() string {
	return fmt.Sprintf("(%d, %d)", l.Col, l.Row)
}

// DmaDirection is the hardware transfer direction of a shim DMA channel
type DmaDirection int

const (
	// Mm2s streams host memory into the array
	Mm2s DmaDirection = 0
	// S2mm streams array data back to host memory
	S2mm DmaDirection = 1
)

// String returns the direction mnemonic
func (d DmaDirection) String() string {
	if d == Mm2s {
		return "MM2S"
	}
	return "S2MM"
}

// StreamPortMode selects which side of a stream switch port is monitored
type StreamPortMode int

const (
	StreamSlave  StreamPortMode = 0
	StreamMaster StreamPortMode = 1
)

// Module identifies the tile module owning a profiling resource
type Module int

const (
	// ModulePL is the shim/programmable-logic module
	ModulePL Module = 0
	// ModuleCore is a compute-tile core module
	ModuleCore Module = 1
)

// DescConfig is the staging area for one buffer descriptor. Submission
// fills the transfer fields and hands the whole record to the controller,
// which encodes it into the hardware BD registers.
type DescConfig struct {
	Addr     uint64
	Len      uint64
	LockID   uint8
	BurstLen uint8
	Enabled  bool
}

// Controller is the operation set the runtime needs from the hardware.
// All calls are synchronous; blocking behavior is noted per method.
type Controller interface {
	// DmaChannelEnable enables one shim DMA channel in a direction
	DmaChannelEnable(loc TileLoc, ch uint8, dir DmaDirection) error

	// DmaMaxQueueSize reports the hardware submission queue depth of a
	// shim DMA, which is also the number of BDs backing each channel
	DmaMaxQueueSize(loc TileLoc) (int, error)

	// DmaWriteDescriptor encodes a staged descriptor into BD slot bd
	DmaWriteDescriptor(loc TileLoc, bd uint8, desc *DescConfig) error

	// DmaPushToQueue enqueues BD slot bd on a channel's submission queue
	DmaPushToQueue(loc TileLoc, ch uint8, dir DmaDirection, bd uint8) error

	// DmaPendingCount reports the number of descriptors still in flight
	// on a channel
	DmaPendingCount(loc TileLoc, ch uint8, dir DmaDirection) (int, error)

	// DmaWaitDone polls the channel until all in-flight descriptors
	// complete or the timeout expires. A zero timeout checks once and
	// reports the current state; callers loop for an indefinite wait.
	DmaWaitDone(loc TileLoc, ch uint8, dir DmaDirection, timeout time.Duration) (bool, error)

	// EventSelectStreamPort routes a stream switch port's activity onto
	// an event port for monitoring
	EventSelectStreamPort(loc TileLoc, port uint8, mode StreamPortMode, streamID uint8) error

	// EventResetStreamPort clears an event port's routing
	EventResetStreamPort(loc TileLoc, port uint8) error

	// PerfCounterControlSet arms a performance counter with start and
	// stop events
	PerfCounterControlSet(loc TileLoc, mod Module, counter uint8, startEvent, stopEvent uint16) error

	// PerfCounterControlReset clears a counter's control state
	PerfCounterControlReset(loc TileLoc, mod Module, counter uint8) error

	// PerfCounterGet reads a counter's current value
	PerfCounterGet(loc TileLoc, mod Module, counter uint8) (uint32, error)

	// PerfCounterReset clears a counter's value
	PerfCounterReset(loc TileLoc, mod Module, counter uint8) error

	// Close releases the controller and its hardware claims
	Close() error
}

// Shim stream-switch port-running event ids, indexed by event port
var shimPortRunningEvents = [driver.ShimStreamEventPorts]uint16{
	0x4B, 0x4F, 0x53, 0x57, 0x5B, 0x5F, 0x63, 0x67,
}

// ShimPortRunningEvent returns the port-running event id for an event port
func ShimPortRunningEvent(port uint8) uint16 {
	return shimPortRunningEvents[port]
}
