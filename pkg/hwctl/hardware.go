package hwctl

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/edgerobotics/go-aie/pkg/driver"
	"golang.org/x/sys/unix"
)

// Tile register window layout. Each tile occupies a fixed-size window
// addressed by (col << colShift) | (row << rowShift).
const (
	colShift = 23
	rowShift = 18
)

// Shim DMA register offsets within a shim tile
const (
	shimDmaBdBase   = 0x0001D000
	shimDmaBdStride = 0x14

	bdRegAddrLow = 0x0
	bdRegLen     = 0x4
	bdRegControl = 0x8
	bdRegAxi     = 0xC

	bdControlValid  = 1 << 0
	bdControlLockEn = 1 << 1

	shimDmaChannelBase   = 0x0001D140
	shimDmaChannelStride = 0x8
	chRegControl         = 0x0
	chRegStartQueue      = 0x4

	chControlEnable = 1 << 0

	shimDmaStatusS2mm = 0x0001D160
	shimDmaStatusMm2s = 0x0001D164

	// Start-queue-size fields, 3 bits per channel
	statusQueueSizeShift = 6
	statusQueueSizeBits  = 3
)

// Event and performance counter register offsets
const (
	eventPortSelect0 = 0x0003FF00
	eventPortSelect1 = 0x0003FF04

	plPerfControl = 0x00031000
	plPerfReset   = 0x00031008
	plPerfValue   = 0x00031020

	corePerfControl = 0x00031500
	corePerfReset   = 0x00031508
	corePerfValue   = 0x00031520
)

// hardwarePollInterval paces bounded completion polls. The unbounded idle
// spin in the submission path does not sleep.
const hardwarePollInterval = 10 * time.Microsecond

// Hardware programs the array through the partition's register window.
type Hardware struct {
	part   *driver.Partition
	regs   []byte
	cols   uint32
	rows   uint32
	closed bool
}

// NewHardware maps the register window of a partition and returns a
// controller for it.
func NewHardware(part *driver.Partition, cols, rows uint32) (*Hardware, error) {
	size := int(uint64(cols) << colShift)
	regs, err := unix.Mmap(part.Fd(), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		errno, ok := err.(unix.Errno)
		if ok {
			return nil, driver.StatusFromErrno(errno, "mapping register window")
		}
		return nil, driver.NewErrorWithCause(driver.StatusHardwareFault, "mapping register window", err)
	}
	return &Hardware{part: part, regs: regs, cols: cols, rows: rows}, nil
}

// Close unmaps the register window. The partition fd stays open; it is
// owned by the array context.
func (h *Hardware) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := unix.Munmap(h.regs); err != nil {
		return driver.NewErrorWithCause(driver.StatusHardwareFault, "unmapping register window", err)
	}
	h.regs = nil
	return nil
}

func (h *Hardware) tileOffset(loc TileLoc) (uint64, error) {
	if loc.Col >= h.cols || loc.Row >= h.rows {
		return 0, driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("tile %s out of range", loc))
	}
	return uint64(loc.Col)<<colShift | uint64(loc.Row)<<rowShift, nil
}

func (h *Hardware) writeReg(loc TileLoc, off uint64, val uint32) error {
	base, err := h.tileOffset(loc)
	if err != nil {
		return err
	}
	if h.closed {
		return driver.NewError(driver.StatusInvalidState, "controller is closed")
	}
	binary.LittleEndian.PutUint32(h.regs[base+off:], val)
	return nil
}

func (h *Hardware) readReg(loc TileLoc, off uint64) (uint32, error) {
	base, err := h.tileOffset(loc)
	if err != nil {
		return 0, err
	}
	if h.closed {
		return 0, driver.NewError(driver.StatusInvalidState, "controller is closed")
	}
	return binary.LittleEndian.Uint32(h.regs[base+off:]), nil
}

// channelRegIndex maps a per-direction channel index to the hardware
// channel register slot: the S2MM pair precedes the MM2S pair.
func channelRegIndex(ch uint8, dir DmaDirection) uint64 {
	if dir == S2mm {
		return uint64(ch)
	}
	return uint64(driver.ChannelsPerDir + ch)
}

// DmaChannelEnable enables one shim DMA channel in a direction
func (h *Hardware) DmaChannelEnable(loc TileLoc, ch uint8, dir DmaDirection) error {
	off := shimDmaChannelBase + channelRegIndex(ch, dir)*shimDmaChannelStride + chRegControl
	return h.writeReg(loc, off, chControlEnable)
}

// DmaMaxQueueSize reports the submission queue depth of a shim DMA
func (h *Hardware) DmaMaxQueueSize(loc TileLoc) (int, error) {
	if _, err := h.tileOffset(loc); err != nil {
		return 0, err
	}
	return driver.ShimDmaBdsTotal / driver.ShimDmaChannels, nil
}

// DmaWriteDescriptor encodes a staged descriptor into BD slot bd
func (h *Hardware) DmaWriteDescriptor(loc TileLoc, bd uint8, desc *DescConfig) error {
	if !desc.Enabled {
		return driver.NewError(driver.StatusInvalidArgument, "descriptor is not enabled")
	}
	base := uint64(shimDmaBdBase) + uint64(bd)*shimDmaBdStride
	if err := h.writeReg(loc, base+bdRegAddrLow, uint32(desc.Addr)); err != nil {
		return err
	}
	if err := h.writeReg(loc, base+bdRegLen, uint32(desc.Len)); err != nil {
		return err
	}
	control := uint32(bdControlValid) | uint32(bdControlLockEn) |
		uint32(desc.LockID)<<8 | uint32(desc.Addr>>32)<<16
	if err := h.writeReg(loc, base+bdRegControl, control); err != nil {
		return err
	}
	return h.writeReg(loc, base+bdRegAxi, uint32(desc.BurstLen))
}

// DmaPushToQueue enqueues BD slot bd on a channel's submission queue
func (h *Hardware) DmaPushToQueue(loc TileLoc, ch uint8, dir DmaDirection, bd uint8) error {
	off := shimDmaChannelBase + channelRegIndex(ch, dir)*shimDmaChannelStride + chRegStartQueue
	return h.writeReg(loc, off, uint32(bd))
}

// DmaPendingCount reports the number of in-flight descriptors on a channel
func (h *Hardware) DmaPendingCount(loc TileLoc, ch uint8, dir DmaDirection) (int, error) {
	statusReg := uint64(shimDmaStatusS2mm)
	if dir == Mm2s {
		statusReg = shimDmaStatusMm2s
	}
	status, err := h.readReg(loc, statusReg)
	if err != nil {
		return 0, err
	}
	shift := statusQueueSizeShift + int(ch)*statusQueueSizeBits
	return int(status >> shift & ((1 << statusQueueSizeBits) - 1)), nil
}

// DmaWaitDone polls the channel until all in-flight descriptors complete
// or the timeout expires. A zero timeout checks once.
func (h *Hardware) DmaWaitDone(loc TileLoc, ch uint8, dir DmaDirection, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		pending, err := h.DmaPendingCount(loc, ch, dir)
		if err != nil {
			return false, err
		}
		if pending == 0 {
			return true, nil
		}
		if timeout == 0 || time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(hardwarePollInterval)
	}
}

// EventSelectStreamPort routes a stream switch port onto an event port
func (h *Hardware) EventSelectStreamPort(loc TileLoc, port uint8, mode StreamPortMode, streamID uint8) error {
	if port >= driver.ShimStreamEventPorts {
		return driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("event port %d out of range", port))
	}
	reg := uint64(eventPortSelect0)
	slot := port
	if port >= 4 {
		reg = eventPortSelect1
		slot = port - 4
	}
	val, err := h.readReg(loc, reg)
	if err != nil {
		return err
	}
	field := uint32(streamID) & 0x7F
	if mode == StreamMaster {
		field |= 1 << 7
	}
	shift := uint32(slot) * 8
	val = val&^(0xFF<<shift) | field<<shift
	return h.writeReg(loc, reg, val)
}

// EventResetStreamPort clears an event port's routing
func (h *Hardware) EventResetStreamPort(loc TileLoc, port uint8) error {
	if port >= driver.ShimStreamEventPorts {
		return driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("event port %d out of range", port))
	}
	reg := uint64(eventPortSelect0)
	slot := port
	if port >= 4 {
		reg = eventPortSelect1
		slot = port - 4
	}
	val, err := h.readReg(loc, reg)
	if err != nil {
		return err
	}
	val &^= 0xFF << (uint32(slot) * 8)
	return h.writeReg(loc, reg, val)
}

func perfRegs(mod Module) (control, reset, value uint64) {
	if mod == ModuleCore {
		return corePerfControl, corePerfReset, corePerfValue
	}
	return plPerfControl, plPerfReset, plPerfValue
}

// PerfCounterControlSet arms a counter with start and stop events
func (h *Hardware) PerfCounterControlSet(loc TileLoc, mod Module, counter uint8, startEvent, stopEvent uint16) error {
	control, _, _ := perfRegs(mod)
	val, err := h.readReg(loc, control)
	if err != nil {
		return err
	}
	field := uint32(startEvent)&0x7F | (uint32(stopEvent)&0x7F)<<7
	shift := uint32(counter) * 16
	val = val&^(0xFFFF<<shift) | field<<shift
	return h.writeReg(loc, control, val)
}

// PerfCounterControlReset clears a counter's control state
func (h *Hardware) PerfCounterControlReset(loc TileLoc, mod Module, counter uint8) error {
	control, _, _ := perfRegs(mod)
	val, err := h.readReg(loc, control)
	if err != nil {
		return err
	}
	val &^= 0xFFFF << (uint32(counter) * 16)
	return h.writeReg(loc, control, val)
}

// PerfCounterGet reads a counter's current value
func (h *Hardware) PerfCounterGet(loc TileLoc, mod Module, counter uint8) (uint32, error) {
	_, _, value := perfRegs(mod)
	return h.readReg(loc, value+uint64(counter)*4)
}

// PerfCounterReset clears a counter's value
func (h *Hardware) PerfCounterReset(loc TileLoc, mod Module, counter uint8) error {
	_, reset, _ := perfRegs(mod)
	return h.writeReg(loc, reset, 1<<uint32(counter))
}
