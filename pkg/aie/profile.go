package aie

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edgerobotics/go-aie/pkg/driver"
	"github.com/edgerobotics/go-aie/pkg/hwctl"
	"github.com/edgerobotics/go-aie/pkg/meta"
	"github.com/edgerobotics/go-aie/pkg/resource"
)

// ProfileOption selects what a profiling session measures
type ProfileOption int

const (
	// ProfileStreamRunningEventCount counts cycles a stream port spends
	// in the running state. The only option currently supported.
	ProfileStreamRunningEventCount ProfileOption = 0

	// profileStopped marks a released session slot
	profileStopped ProfileOption = -1
)

// acquiredResource records one hardware resource held by a session
type acquiredResource struct {
	loc    hwctl.TileLoc
	module hwctl.Module
	kind   resource.Kind
	id     int
}

// profileSession is one entry in the session list. Stopped sessions stay
// in place as inert history; handles are list indices and never reused.
type profileSession struct {
	option    ProfileOption
	resources []acquiredResource
}

// StartProfiling starts a profiling session on a named port and returns
// its handle. The port name is resolved against both the GMIO and PLIO
// tables; a name present in both is rejected as ambiguous. On any
// failure the session acquires nothing.
func (a *Array) StartProfiling(option ProfileOption, port1, port2 string, value uint32) (int, error) {
	if !a.initialized {
		return -1, driver.NewError(driver.StatusInvalidState, "can't start profiling: array is not initialized")
	}
	if option != ProfileStreamRunningEventCount {
		return -1, driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("can't start profiling: unknown option %d", option))
	}

	gmio := a.topo.FindGmio(port1)
	plio := a.topo.FindPlio(port1)
	if gmio == nil && plio == nil {
		return -1, driver.NewError(driver.StatusNotFound,
			fmt.Sprintf("can't start profiling: port %q not found", port1))
	}
	if gmio != nil && plio != nil {
		return -1, driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("can't start profiling: ambiguous port name %q", port1))
	}

	var loc hwctl.TileLoc
	var mode hwctl.StreamPortMode
	var streamID uint8
	if gmio != nil {
		loc = hwctl.ShimTile(gmio.ShimColumn)
		// Ports feeding the host are monitored on the master side.
		mode = hwctl.StreamSlave
		if gmio.Direction == meta.FromArray {
			mode = hwctl.StreamMaster
		}
		streamID = gmio.StreamID
	} else {
		loc = hwctl.ShimTile(plio.ShimColumn)
		mode = hwctl.StreamSlave
		if plio.IsMaster {
			mode = hwctl.StreamMaster
		}
		streamID = plio.StreamID
	}

	pool, err := a.grid.ShimTile(loc.Col)
	if err != nil {
		return -1, err
	}

	handle := len(a.sessions)
	eventPortID, portErr := pool.RequestStreamEventPort(handle)
	counterID, counterErr := pool.RequestPerformanceCounter(handle)
	if portErr != nil || counterErr != nil {
		// Never record a half-acquired session.
		if counterErr == nil {
			if relErr := pool.ReleasePerformanceCounter(handle, counterID); relErr != nil {
				a.log.WithError(relErr).Warn("failed to release counter during unwind")
			}
		}
		if portErr == nil {
			if relErr := pool.ReleaseStreamEventPort(handle, eventPortID); relErr != nil {
				a.log.WithError(relErr).Warn("failed to release event port during unwind")
			}
		}
		return -1, driver.NewError(driver.StatusResourceExhausted,
			fmt.Sprintf("can't start profiling: no free performance counter or stream event port on column %d", loc.Col))
	}

	event := hwctl.ShimPortRunningEvent(uint8(eventPortID))
	if err := a.ctl.EventSelectStreamPort(loc, uint8(eventPortID), mode, streamID); err != nil {
		a.unwindProfileResources(pool, handle, counterID, eventPortID)
		return -1, fmt.Errorf("routing stream event: %w", err)
	}
	if err := a.ctl.PerfCounterControlSet(loc, hwctl.ModulePL, uint8(counterID), event, event); err != nil {
		a.unwindProfileResources(pool, handle, counterID, eventPortID)
		if resetErr := a.ctl.EventResetStreamPort(loc, uint8(eventPortID)); resetErr != nil {
			a.log.WithError(resetErr).Warn("failed to reset event port during unwind")
		}
		return -1, fmt.Errorf("arming performance counter: %w", err)
	}

	// The counter is recorded first: ReadProfiling relies on it.
	a.sessions = append(a.sessions, &profileSession{
		option: option,
		resources: []acquiredResource{
			{loc: loc, module: hwctl.ModulePL, kind: resource.PerformanceCounter, id: counterID},
			{loc: loc, module: hwctl.ModulePL, kind: resource.StreamEventPort, id: eventPortID},
		},
	})

	a.log.WithFields(logrus.Fields{
		"port":      port1,
		"handle":    handle,
		"counter":   counterID,
		"eventPort": eventPortID,
	}).Info("profiling session started")
	return handle, nil
}

func (a *Array) unwindProfileResources(pool *resource.ModulePool, handle, counterID, eventPortID int) {
	if err := pool.ReleasePerformanceCounter(handle, counterID); err != nil {
		a.log.WithError(err).Warn("failed to release counter during unwind")
	}
	if err := pool.ReleaseStreamEventPort(handle, eventPortID); err != nil {
		a.log.WithError(err).Warn("failed to release event port during unwind")
	}
}

// ReadProfiling returns the current counter value of a session. The first
// recorded resource of a session is always its performance counter; a
// mismatch means the session record drifted from the protocol and fails
// with a protocol-violation status.
func (a *Array) ReadProfiling(handle int) (uint64, error) {
	if !a.initialized {
		return 0, driver.NewError(driver.StatusInvalidState, "can't read profiling: array is not initialized")
	}
	if handle < 0 || handle >= len(a.sessions) {
		return 0, driver.NewError(driver.StatusNotFound,
			fmt.Sprintf("can't read profiling: no session with handle %d", handle))
	}

	session := a.sessions[handle]
	if session.option < 0 {
		return 0, driver.NewError(driver.StatusInvalidState,
			fmt.Sprintf("can't read profiling: session %d is stopped", handle))
	}
	if len(session.resources) == 0 || session.resources[0].kind != resource.PerformanceCounter {
		return 0, driver.NewError(driver.StatusProtocolViolation,
			"can't read profiling: acquired resource order does not match the profiling option")
	}

	counter := session.resources[0]
	value, err := a.ctl.PerfCounterGet(counter.loc, counter.module, uint8(counter.id))
	if err != nil {
		return 0, fmt.Errorf("reading counter: %w", err)
	}
	return uint64(value), nil
}

// StopProfiling releases every resource held by a session in acquisition
// order and marks the slot stopped. Out-of-range and already-stopped
// handles are a silent no-op; stop is idempotent.
func (a *Array) StopProfiling(handle int) {
	if !a.initialized {
		return
	}
	if handle < 0 || handle >= len(a.sessions) {
		return
	}
	session := a.sessions[handle]
	if session.option < 0 {
		return
	}

	for _, res := range session.resources {
		switch res.kind {
		case resource.PerformanceCounter:
			if err := a.ctl.PerfCounterReset(res.loc, res.module, uint8(res.id)); err != nil {
				a.log.WithError(err).Warn("failed to reset counter value")
			}
			if err := a.ctl.PerfCounterControlReset(res.loc, res.module, uint8(res.id)); err != nil {
				a.log.WithError(err).Warn("failed to reset counter control")
			}
			if err := a.releaseCounter(res, handle); err != nil {
				a.log.WithError(err).Warn("failed to release counter")
			}
		case resource.StreamEventPort:
			if err := a.ctl.EventResetStreamPort(res.loc, uint8(res.id)); err != nil {
				a.log.WithError(err).Warn("failed to reset event port routing")
			}
			if res.module == hwctl.ModulePL {
				if pool, err := a.grid.ShimTile(res.loc.Col); err == nil {
					if relErr := pool.ReleaseStreamEventPort(handle, res.id); relErr != nil {
						a.log.WithError(relErr).Warn("failed to release event port")
					}
				}
			}
		}
	}
	session.option = profileStopped

	a.log.WithField("handle", handle).Info("profiling session stopped")
}

// releaseCounter returns a counter to its owning pool, keyed by module:
// PL-module counters live on the shim tile, core-module counters on the
// compute tile above it.
func (a *Array) releaseCounter(res acquiredResource, handle int) error {
	switch res.module {
	case hwctl.ModulePL:
		pool, err := a.grid.ShimTile(res.loc.Col)
		if err != nil {
			return err
		}
		return pool.ReleasePerformanceCounter(handle, res.id)
	case hwctl.ModuleCore:
		pool, err := a.grid.CoreTile(res.loc.Col, res.loc.Row-1)
		if err != nil {
			return err
		}
		return pool.ReleasePerformanceCounter(handle, res.id)
	default:
		return driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("unknown module %d", res.module))
	}
}
