package aie

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/edgerobotics/go-aie/pkg/buffer"
	"github.com/edgerobotics/go-aie/pkg/driver"
	"github.com/edgerobotics/go-aie/pkg/hwctl"
	"github.com/edgerobotics/go-aie/pkg/meta"
)

// SyncBuffer submits one transfer on the channel owned by a named GMIO
// port and blocks until the hardware reports it complete and the channel
// is fully drained. The buffer stays mapped for the duration of the call.
func (a *Array) SyncBuffer(buf buffer.Handle, portName string, dir meta.Direction, size, offset uint64) error {
	if !a.initialized {
		return driver.NewError(driver.StatusInvalidState, "can't sync buffer: array is not initialized")
	}
	gmio := a.topo.FindGmio(portName)
	if gmio == nil {
		return driver.NewError(driver.StatusNotFound,
			fmt.Sprintf("can't sync buffer: GMIO %q not found", portName))
	}
	if err := a.submitSync(buf, gmio, dir, size, offset); err != nil {
		return err
	}
	return a.drainChannel(gmio, 0)
}

// SyncBufferNB is the non-blocking variant of SyncBuffer: it returns as
// soon as the descriptor is enqueued. The buffer must not be freed or
// reused until the transfer drains through a later Wait or a subsequent
// submission on the same channel.
func (a *Array) SyncBufferNB(buf buffer.Handle, portName string, dir meta.Direction, size, offset uint64) error {
	if !a.initialized {
		return driver.NewError(driver.StatusInvalidState, "can't sync buffer: array is not initialized")
	}
	gmio := a.topo.FindGmio(portName)
	if gmio == nil {
		return driver.NewError(driver.StatusNotFound,
			fmt.Sprintf("can't sync buffer: GMIO %q not found", portName))
	}
	return a.submitSync(buf, gmio, dir, size, offset)
}

// Wait blocks until every in-flight transfer on a named GMIO port's
// channel completes, then returns the drained descriptors to the idle
// pool. A zero timeout waits indefinitely; otherwise expiry fails with a
// timeout status and leaves pending descriptors in place.
func (a *Array) Wait(portName string, timeout time.Duration) error {
	if !a.initialized {
		return driver.NewError(driver.StatusInvalidState, "can't wait: array is not initialized")
	}
	gmio := a.topo.FindGmio(portName)
	if gmio == nil {
		return driver.NewError(driver.StatusNotFound,
			fmt.Sprintf("can't wait: GMIO %q not found", portName))
	}
	return a.drainChannel(gmio, timeout)
}

// submitSync binds a buffer into a free BD and enqueues it on the port's
// channel, spinning on hardware completion when no BD is idle.
func (a *Array) submitSync(buf buffer.Handle, gmio *meta.Gmio, dir meta.Direction, size, offset uint64) error {
	if dir != gmio.Direction {
		return driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("can't sync buffer: direction %s does not match GMIO %q (%s)",
				dir, gmio.Name, gmio.Direction))
	}
	if size&driver.TransferLenAlignMask != 0 {
		return driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("can't sync buffer: length %d is not 32-bit aligned", size))
	}

	dma := a.dmas[gmio.ShimColumn]
	ch := &dma.channels[gmio.Channel]
	loc := hwctl.ShimTile(gmio.ShimColumn)
	gmdir := dmaDirection(gmio.Direction)
	pch := physChannel(gmio.Channel)

	// Find a free BD. Busy wait until we get one; pending BDs complete
	// strictly in submission order, so only the head of the pending
	// queue can have drained.
	for ch.idleLen() == 0 {
		npend, err := a.ctl.DmaPendingCount(loc, pch, gmdir)
		if err != nil {
			return fmt.Errorf("querying pending descriptors: %w", err)
		}
		completed := dma.maxQueue - npend
		for i := 0; i < completed && ch.pendingLen() > 0; i++ {
			bd := ch.popPending()
			clearErr := a.clearBD(&bd)
			ch.pushIdle(bd)
			if clearErr != nil {
				return clearErr
			}
		}
	}

	bd := ch.popIdle()
	if err := a.prepareBD(&bd, buf); err != nil {
		ch.pushIdle(bd)
		return err
	}

	if a.sim {
		dma.desc.Addr = buf.Address() + offset
	} else {
		dma.desc.Addr = uint64(uintptr(unsafe.Pointer(&bd.vaddr[0]))) + offset
	}
	dma.desc.Len = size
	dma.desc.LockID = bd.num
	dma.desc.Enabled = true

	if err := a.ctl.DmaWriteDescriptor(loc, bd.num, &dma.desc); err != nil {
		a.unwindBD(&bd, ch)
		return fmt.Errorf("writing descriptor %d: %w", bd.num, err)
	}
	if err := a.ctl.DmaPushToQueue(loc, pch, gmdir, bd.num); err != nil {
		a.unwindBD(&bd, ch)
		return fmt.Errorf("enqueuing descriptor %d: %w", bd.num, err)
	}
	ch.pushPending(bd)

	a.log.WithFields(logrus.Fields{
		"port":    gmio.Name,
		"channel": gmio.Channel,
		"bd":      bd.num,
		"len":     size,
		"offset":  offset,
	}).Debug("submitted transfer")
	return nil
}

// drainChannel waits for the channel's in-flight descriptors and returns
// every pending BD to the idle pool in FIFO order.
func (a *Array) drainChannel(gmio *meta.Gmio, timeout time.Duration) error {
	dma := a.dmas[gmio.ShimColumn]
	ch := &dma.channels[gmio.Channel]
	loc := hwctl.ShimTile(gmio.ShimColumn)
	gmdir := dmaDirection(gmio.Direction)
	pch := physChannel(gmio.Channel)

	for {
		done, err := a.ctl.DmaWaitDone(loc, pch, gmdir, timeout)
		if err != nil {
			return fmt.Errorf("waiting for channel %d: %w", gmio.Channel, err)
		}
		if done {
			break
		}
		if timeout != 0 {
			return driver.NewError(driver.StatusTimeout,
				fmt.Sprintf("channel %d did not drain within %s", gmio.Channel, timeout))
		}
	}

	drained := 0
	for ch.pendingLen() > 0 {
		bd := ch.popPending()
		clearErr := a.clearBD(&bd)
		ch.pushIdle(bd)
		if clearErr != nil {
			return clearErr
		}
		drained++
	}
	if drained > 0 {
		a.log.WithFields(logrus.Fields{
			"port":    gmio.Name,
			"channel": gmio.Channel,
			"drained": drained,
		}).Debug("drained channel")
	}
	return nil
}

// prepareBD binds a buffer's host memory into a BD slot: export to a
// system fd, attach to the partition's DMA address space, map into the
// process. Each step unwinds the previous ones on failure. The simulated
// backend binds by reported address and skips all three.
func (a *Array) prepareBD(bd *boundBD, buf buffer.Handle) error {
	bd.size = buf.Size()
	if a.sim {
		return nil
	}

	fd, err := buf.Export()
	if err != nil {
		return driver.NewErrorWithCause(driver.StatusHardwareFault, "exporting buffer", err)
	}

	if err := a.part.AttachDmaBuf(fd); err != nil {
		return fmt.Errorf("attaching buffer: %w", err)
	}

	data, err := driver.MapBuffer(fd, bd.size)
	if err != nil {
		if detachErr := a.part.DetachDmaBuf(fd); detachErr != nil {
			a.log.WithError(detachErr).Warn("failed to detach buffer after map failure")
		}
		return fmt.Errorf("mapping buffer: %w", err)
	}

	bd.bufFd = fd
	bd.vaddr = data
	return nil
}

// clearBD releases a BD slot's host-memory binding: unmap, then detach
// from the partition's DMA address space.
func (a *Array) clearBD(bd *boundBD) error {
	if a.sim {
		bd.size = 0
		return nil
	}
	if bd.vaddr == nil {
		return nil
	}

	unmapErr := driver.UnmapBuffer(bd.vaddr)
	bd.vaddr = nil

	detachErr := a.part.DetachDmaBuf(bd.bufFd)
	bd.bufFd = -1
	bd.size = 0

	if unmapErr != nil {
		return fmt.Errorf("unmapping buffer: %w", unmapErr)
	}
	if detachErr != nil {
		return fmt.Errorf("detaching buffer: %w", detachErr)
	}
	return nil
}

// unwindBD clears a bound but unsubmitted BD and returns it to idle
func (a *Array) unwindBD(bd *boundBD, ch *dmaChannel) {
	if err := a.clearBD(bd); err != nil {
		a.log.WithError(err).Warn("failed to unbind descriptor during unwind")
	}
	ch.pushIdle(*bd)
}
