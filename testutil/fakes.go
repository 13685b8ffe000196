package testutil

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edgerobotics/go-aie/pkg/hwctl"
)

type fakeChanKey struct {
	Loc hwctl.TileLoc
	Ch  uint8
	Dir hwctl.DmaDirection
}

type fakeCounterKey struct {
	Loc     hwctl.TileLoc
	Mod     hwctl.Module
	Counter uint8
}

// FakeController implements hwctl.Controller with scriptable completion
// behavior for testing the descriptor and profiling protocols without
// hardware.
type FakeController struct {
	mu sync.Mutex

	maxQueue int
	enabled  map[fakeChanKey]bool
	pending  map[fakeChanKey]int
	pushed   map[fakeChanKey][]uint8
	written  map[uint8]hwctl.DescConfig
	routes   map[hwctl.TileLoc]map[uint8]uint8
	counters map[fakeCounterKey]uint32
	armed    map[fakeCounterKey]bool

	// pollsUntilDone makes DmaWaitDone report not-done for that many
	// polls before completing; each poll also retires one pending
	// descriptor so the busy-wait drain path is exercised.
	pollsUntilDone int

	failOnWrite bool
	failOnPush  bool
	closed      bool
}

// NewFakeController creates a fake controller with a queue depth of 4
func NewFakeController() *FakeController {
	return &FakeController{
		maxQueue: 4,
		enabled:  make(map[fakeChanKey]bool),
		pending:  make(map[fakeChanKey]int),
		pushed:   make(map[fakeChanKey][]uint8),
		written:  make(map[uint8]hwctl.DescConfig),
		routes:   make(map[hwctl.TileLoc]map[uint8]uint8),
		counters: make(map[fakeCounterKey]uint32),
		armed:    make(map[fakeCounterKey]bool),
	}
}

// SetPendingCount scripts the in-flight descriptor count of a channel
func (f *FakeController) SetPendingCount(loc hwctl.TileLoc, ch uint8, dir hwctl.DmaDirection, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[fakeChanKey{loc, ch, dir}] = n
}

// SetPollsUntilDone delays wait completion by n polls
func (f *FakeController) SetPollsUntilDone(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollsUntilDone = n
}

// SetFailOnWrite makes DmaWriteDescriptor fail
func (f *FakeController) SetFailOnWrite(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnWrite = fail
}

// SetFailOnPush makes DmaPushToQueue fail
func (f *FakeController) SetFailOnPush(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnPush = fail
}

// SetCounterValue scripts a performance counter reading
func (f *FakeController) SetCounterValue(loc hwctl.TileLoc, mod hwctl.Module, counter uint8, v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[fakeCounterKey{loc, mod, counter}] = v
}

// PollsRemaining reports how many not-done polls are still scripted
func (f *FakeController) PollsRemaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollsUntilDone
}

// PushedBDs returns the BD numbers pushed on a channel, in order
func (f *FakeController) PushedBDs(loc hwctl.TileLoc, ch uint8, dir hwctl.DmaDirection) []uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	pushed := f.pushed[fakeChanKey{loc, ch, dir}]
	out := make([]uint8, len(pushed))
	copy(out, pushed)
	return out
}

// WrittenDesc returns the last descriptor written to a BD slot
func (f *FakeController) WrittenDesc(bd uint8) (hwctl.DescConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	desc, ok := f.written[bd]
	return desc, ok
}

// RouteCount returns the number of active event port routes
func (f *FakeController) RouteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ports := range f.routes {
		n += len(ports)
	}
	return n
}

// ArmedCount returns the number of armed performance counters
func (f *FakeController) ArmedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, on := range f.armed {
		if on {
			n++
		}
	}
	return n
}

// DmaChannelEnable records the channel as enabled
func (f *FakeController) DmaChannelEnable(loc hwctl.TileLoc, ch uint8, dir hwctl.DmaDirection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[fakeChanKey{loc, ch, dir}] = true
	return nil
}

// DmaMaxQueueSize reports the fake queue depth
func (f *FakeController) DmaMaxQueueSize(loc hwctl.TileLoc) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxQueue, nil
}

// DmaWriteDescriptor records the staged descriptor
func (f *FakeController) DmaWriteDescriptor(loc hwctl.TileLoc, bd uint8, desc *hwctl.DescConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnWrite {
		return errors.New("fake write error")
	}
	f.written[bd] = *desc
	return nil
}

// DmaPushToQueue records the push and bumps the pending count
func (f *FakeController) DmaPushToQueue(loc hwctl.TileLoc, ch uint8, dir hwctl.DmaDirection, bd uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnPush {
		return errors.New("fake push error")
	}
	key := fakeChanKey{loc, ch, dir}
	if !f.enabled[key] {
		return fmt.Errorf("channel %s%d not enabled", dir, ch)
	}
	f.pushed[key] = append(f.pushed[key], bd)
	f.pending[key]++
	if f.pending[key] > f.maxQueue {
		f.pending[key] = f.maxQueue
	}
	return nil
}

// DmaPendingCount reports the scripted pending count, retiring one
// descriptor per query so spin loops make progress
func (f *FakeController) DmaPendingCount(loc hwctl.TileLoc, ch uint8, dir hwctl.DmaDirection) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeChanKey{loc, ch, dir}
	n := f.pending[key]
	if n > 0 {
		f.pending[key] = n - 1
	}
	return n, nil
}

// DmaWaitDone reports done after the scripted number of polls, retiring
// pending descriptors as it goes
func (f *FakeController) DmaWaitDone(loc hwctl.TileLoc, ch uint8, dir hwctl.DmaDirection, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeChanKey{loc, ch, dir}
	if f.pollsUntilDone > 0 {
		f.pollsUntilDone--
		if f.pending[key] > 0 {
			f.pending[key]--
		}
		if timeout != 0 {
			// Bounded waits report the state at expiry.
			return f.pending[key] == 0 && f.pollsUntilDone == 0, nil
		}
		return false, nil
	}
	f.pending[key] = 0
	return true, nil
}

// EventSelectStreamPort records an event port route
func (f *FakeController) EventSelectStreamPort(loc hwctl.TileLoc, port uint8, mode hwctl.StreamPortMode, streamID uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routes[loc] == nil {
		f.routes[loc] = make(map[uint8]uint8)
	}
	f.routes[loc][port] = streamID
	return nil
}

// EventResetStreamPort clears an event port route
func (f *FakeController) EventResetStreamPort(loc hwctl.TileLoc, port uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.routes[loc], port)
	return nil
}

// PerfCounterControlSet arms a counter
func (f *FakeController) PerfCounterControlSet(loc hwctl.TileLoc, mod hwctl.Module, counter uint8, startEvent, stopEvent uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[fakeCounterKey{loc, mod, counter}] = true
	return nil
}

// PerfCounterControlReset disarms a counter
func (f *FakeController) PerfCounterControlReset(loc hwctl.TileLoc, mod hwctl.Module, counter uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, fakeCounterKey{loc, mod, counter})
	return nil
}

// PerfCounterGet reads the scripted counter value
func (f *FakeController) PerfCounterGet(loc hwctl.TileLoc, mod hwctl.Module, counter uint8) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[fakeCounterKey{loc, mod, counter}], nil
}

// PerfCounterReset clears the scripted counter value
func (f *FakeController) PerfCounterReset(loc hwctl.TileLoc, mod hwctl.Module, counter uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counters, fakeCounterKey{loc, mod, counter})
	return nil
}

// Close marks the controller closed
func (f *FakeController) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// FakeBuffer implements buffer.Handle without any backing memory
type FakeBuffer struct {
	mu         sync.Mutex
	size       uint64
	addr       uint64
	exports    int
	failExport bool
}

// NewFakeBuffer creates a fake buffer handle
func NewFakeBuffer(size uint64) *FakeBuffer {
	return &FakeBuffer{size: size, addr: 0x10000}
}

// SetFailOnExport makes Export fail
func (b *FakeBuffer) SetFailOnExport(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failExport = fail
}

// Export returns a dummy fd
func (b *FakeBuffer) Export() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failExport {
		return -1, errors.New("fake export error")
	}
	b.exports++
	return 100 + b.exports, nil
}

// Size returns the fake buffer size
func (b *FakeBuffer) Size() uint64 {
	return b.size
}

// Address returns the fake host address
func (b *FakeBuffer) Address() uint64 {
	return b.addr
}
