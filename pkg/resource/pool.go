// Package resource tracks ownership of the finite per-tile hardware
// resources used for profiling: performance counters and stream-switch
// event ports.
package resource

import (
	"fmt"

	"github.com/edgerobotics/go-aie/pkg/driver"
)

// Kind identifies a hardware resource kind
type Kind int

const (
	PerformanceCounter Kind = iota
	StreamEventPort
)

// String returns the resource kind name
func (k Kind) String() string {
	switch k {
	case PerformanceCounter:
		return "performance counter"
	case StreamEventPort:
		return "stream event port"
	default:
		return fmt.Sprintf("unknown kind (%d)", int(k))
	}
}

// Unowned marks a free slot in a pool
const Unowned = -1

// Pool is a fixed set of numbered resources of one kind. Each slot is
// either free or held by an owner handle.
type Pool struct {
	kind   Kind
	owners []int
}

// NewPool creates a pool of n resources, all free
func NewPool(kind Kind, n int) *Pool {
	owners := make([]int, n)
	for i := range owners {
		owners[i] = Unowned
	}
	return &Pool{kind: kind, owners: owners}
}

// Size returns the total number of resources in the pool
func (p *Pool) Size() int {
	return len(p.owners)
}

// InUse returns the number of held resources
func (p *Pool) InUse() int {
	n := 0
	for _, o := range p.owners {
		if o != Unowned {
			n++
		}
	}
	return n
}

// Request grants the lowest-numbered free resource to owner. Fails with
// StatusResourceExhausted when none is free.
func (p *Pool) Request(owner int) (int, error) {
	for i, o := range p.owners {
		if o == Unowned {
			p.owners[i] = owner
			return i, nil
		}
	}
	return -1, driver.NewError(driver.StatusResourceExhausted,
		fmt.Sprintf("no free %s", p.kind))
}

// Release returns resource id to the pool. The owner must match the one
// recorded at request time.
func (p *Pool) Release(owner, id int) error {
	if id < 0 || id >= len(p.owners) {
		return driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("%s id %d out of range", p.kind, id))
	}
	if p.owners[id] == Unowned {
		return driver.NewError(driver.StatusInvalidState,
			fmt.Sprintf("%s %d is not held", p.kind, id))
	}
	if p.owners[id] != owner {
		return driver.NewError(driver.StatusInvalidState,
			fmt.Sprintf("%s %d is held by owner %d, not %d", p.kind, id, p.owners[id], owner))
	}
	p.owners[id] = Unowned
	return nil
}

// ModulePool groups the profiling resources of one tile module
type ModulePool struct {
	counters   *Pool
	eventPorts *Pool
}

// NewModulePool creates a module pool with the given resource counts
func NewModulePool(counters, eventPorts int) *ModulePool {
	return &ModulePool{
		counters:   NewPool(PerformanceCounter, counters),
		eventPorts: NewPool(StreamEventPort, eventPorts),
	}
}

// RequestPerformanceCounter grants a free performance counter to owner
func (m *ModulePool) RequestPerformanceCounter(owner int) (int, error) {
	return m.counters.Request(owner)
}

// ReleasePerformanceCounter returns a performance counter to the pool
func (m *ModulePool) ReleasePerformanceCounter(owner, id int) error {
	return m.counters.Release(owner, id)
}

// RequestStreamEventPort grants a free stream event port to owner
func (m *ModulePool) RequestStreamEventPort(owner int) (int, error) {
	return m.eventPorts.Request(owner)
}

// ReleaseStreamEventPort returns a stream event port to the pool
func (m *ModulePool) ReleaseStreamEventPort(owner, id int) error {
	return m.eventPorts.Release(owner, id)
}

// CountersInUse returns the number of held performance counters
func (m *ModulePool) CountersInUse() int {
	return m.counters.InUse()
}

// EventPortsInUse returns the number of held stream event ports
func (m *ModulePool) EventPortsInUse() int {
	return m.eventPorts.InUse()
}
