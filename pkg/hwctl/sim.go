package hwctl

import (
	"fmt"
	"time"

	"github.com/edgerobotics/go-aie/pkg/driver"
)

type simCounterKey struct {
	loc     TileLoc
	mod     Module
	counter uint8
}

type simPortKey struct {
	loc  TileLoc
	port uint8
}

// Sim models the control interface in memory. Transfers complete as soon
// as they are pushed; armed counters count descriptor pushes on their tile
// as a stand-in for stream activity.
type Sim struct {
	cols     uint32
	rows     uint32
	enabled  map[string]bool
	written  map[string]DescConfig
	pushes   map[TileLoc]uint32
	counters map[simCounterKey]uint32
	armed    map[simCounterKey]bool
	routes   map[simPortKey]uint8
	closed   bool
}

// NewSim creates a simulated controller for a cols x rows array
func NewSim(cols, rows uint32) *Sim {
	return &Sim{
		cols:     cols,
		rows:     rows,
		enabled:  make(map[string]bool),
		written:  make(map[string]DescConfig),
		pushes:   make(map[TileLoc]uint32),
		counters: make(map[simCounterKey]uint32),
		armed:    make(map[simCounterKey]bool),
		routes:   make(map[simPortKey]uint8),
	}
}

// Close shuts down the simulation
func (s *Sim) Close() error {
	s.closed = true
	return nil
}

func (s *Sim) check(loc TileLoc) error {
	if s.closed {
		return driver.NewError(driver.StatusInvalidState, "controller is closed")
	}
	if loc.Col >= s.cols || loc.Row >= s.rows {
		return driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("tile %s out of range", loc))
	}
	return nil
}

func chanKey(loc TileLoc, ch uint8, dir DmaDirection) string {
	return fmt.Sprintf("%s/%s%d", loc, dir, ch)
}

// DmaChannelEnable records the channel as enabled
func (s *Sim) DmaChannelEnable(loc TileLoc, ch uint8, dir DmaDirection) error {
	if err := s.check(loc); err != nil {
		return err
	}
	s.enabled[chanKey(loc, ch, dir)] = true
	return nil
}

// DmaMaxQueueSize reports the modeled queue depth
func (s *Sim) DmaMaxQueueSize(loc TileLoc) (int, error) {
	if err := s.check(loc); err != nil {
		return 0, err
	}
	return driver.ShimDmaBdsTotal / driver.ShimDmaChannels, nil
}

// DmaWriteDescriptor records the staged descriptor for BD slot bd
func (s *Sim) DmaWriteDescriptor(loc TileLoc, bd uint8, desc *DescConfig) error {
	if err := s.check(loc); err != nil {
		return err
	}
	if !desc.Enabled {
		return driver.NewError(driver.StatusInvalidArgument, "descriptor is not enabled")
	}
	s.written[fmt.Sprintf("%s/%d", loc, bd)] = *desc
	return nil
}

// DmaPushToQueue completes the transfer immediately and credits armed
// counters on the tile
func (s *Sim) DmaPushToQueue(loc TileLoc, ch uint8, dir DmaDirection, bd uint8) error {
	if err := s.check(loc); err != nil {
		return err
	}
	if !s.enabled[chanKey(loc, ch, dir)] {
		return driver.NewError(driver.StatusInvalidState,
			fmt.Sprintf("channel %s%d on tile %s is not enabled", dir, ch, loc))
	}
	s.pushes[loc]++
	for key, on := range s.armed {
		if on && key.loc == loc {
			s.counters[key]++
		}
	}
	return nil
}

// DmaPendingCount always reports zero; simulated transfers complete on push
func (s *Sim) DmaPendingCount(loc TileLoc, ch uint8, dir DmaDirection) (int, error) {
	if err := s.check(loc); err != nil {
		return 0, err
	}
	return 0, nil
}

// DmaWaitDone reports completion immediately
func (s *Sim) DmaWaitDone(loc TileLoc, ch uint8, dir DmaDirection, timeout time.Duration) (bool, error) {
	if err := s.check(loc); err != nil {
		return false, err
	}
	return true, nil
}

// EventSelectStreamPort records the routing of a stream port
func (s *Sim) EventSelectStreamPort(loc TileLoc, port uint8, mode StreamPortMode, streamID uint8) error {
	if err := s.check(loc); err != nil {
		return err
	}
	if port >= driver.ShimStreamEventPorts {
		return driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("event port %d out of range", port))
	}
	s.routes[simPortKey{loc, port}] = streamID
	return nil
}

// EventResetStreamPort clears an event port routing
func (s *Sim) EventResetStreamPort(loc TileLoc, port uint8) error {
	if err := s.check(loc); err != nil {
		return err
	}
	delete(s.routes, simPortKey{loc, port})
	return nil
}

// PerfCounterControlSet arms a counter
func (s *Sim) PerfCounterControlSet(loc TileLoc, mod Module, counter uint8, startEvent, stopEvent uint16) error {
	if err := s.check(loc); err != nil {
		return err
	}
	s.armed[simCounterKey{loc, mod, counter}] = true
	return nil
}

// PerfCounterControlReset disarms a counter
func (s *Sim) PerfCounterControlReset(loc TileLoc, mod Module, counter uint8) error {
	if err := s.check(loc); err != nil {
		return err
	}
	delete(s.armed, simCounterKey{loc, mod, counter})
	return nil
}

// PerfCounterGet reads the modeled counter value
func (s *Sim) PerfCounterGet(loc TileLoc, mod Module, counter uint8) (uint32, error) {
	if err := s.check(loc); err != nil {
		return 0, err
	}
	return s.counters[simCounterKey{loc, mod, counter}], nil
}

// PerfCounterReset clears the modeled counter value
func (s *Sim) PerfCounterReset(loc TileLoc, mod Module, counter uint8) error {
	if err := s.check(loc); err != nil {
		return err
	}
	delete(s.counters, simCounterKey{loc, mod, counter})
	return nil
}

// RouteCount returns the number of active event port routes (test hook)
func (s *Sim) RouteCount() int {
	return len(s.routes)
}

// PushCount returns the number of descriptor pushes on a tile (test hook)
func (s *Sim) PushCount(loc TileLoc) uint32 {
	return s.pushes[loc]
}
