// Package aie implements the host-side runtime context for an AI engine
// array partition: shim DMA buffer transfers and performance-counter
// profiling sessions.
package aie

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edgerobotics/go-aie/pkg/driver"
	"github.com/edgerobotics/go-aie/pkg/hwctl"
	"github.com/edgerobotics/go-aie/pkg/meta"
	"github.com/edgerobotics/go-aie/pkg/resource"
)

// Backend names accepted in Config.Backend
const (
	BackendHardware = "hardware"
	BackendSim      = "sim"
)

// DefaultDevicePath is the zocl render node used when none is configured
const DefaultDevicePath = "/dev/dri/renderD128"

// Config selects how the array context is constructed
type Config struct {
	// Backend is "hardware" or "sim". Defaults to "hardware".
	Backend string
	// DevicePath is the zocl device node. Hardware backend only.
	DevicePath string
	// PartitionID and PartitionUID identify the array partition.
	// Zero values fall back to the defaults from the image metadata.
	PartitionID  uint32
	PartitionUID uint32
	// Logger receives runtime logs. Defaults to a standard logger.
	Logger *logrus.Logger
	// Controller overrides the backend selection with a caller-supplied
	// control interface. Memory binding follows the simulated path.
	Controller hwctl.Controller
}

// Array is the runtime context for one array partition. It exclusively
// owns the controller, the shim DMA descriptor pools, and the profiling
// session list. Operations on a single channel or session handle are not
// safe for concurrent use; callers serialize externally.
type Array struct {
	log         *logrus.Logger
	topo        *meta.Topology
	ctl         hwctl.Controller
	dev         *driver.DeviceFile
	part        *driver.Partition
	sim         bool
	partitionID uint32

	dmas     []*shimDMA // indexed by shim column, nil where unused
	grid     *resource.Grid
	sessions []*profileSession

	initialized bool
}

// New constructs an array context bound to a device partition, wiring up
// the shim DMA pools for every GMIO port in the topology.
func New(cfg Config, topo *meta.Topology) (*Array, error) {
	if topo == nil {
		return nil, driver.NewError(driver.StatusInvalidArgument, "no topology supplied")
	}
	if err := topo.Validate(); err != nil {
		return nil, driver.NewErrorWithCause(driver.StatusInvalidArgument, "validating topology", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}

	rows := topo.NumRows
	if rows == 0 {
		rows = driver.DefaultNumRows
	}
	partitionID := cfg.PartitionID
	if partitionID == 0 {
		partitionID = driver.DefaultPartitionID
	}

	a := &Array{
		log:         log,
		topo:        topo,
		partitionID: partitionID,
		dmas:        make([]*shimDMA, topo.NumColumns),
		grid:        resource.NewGrid(topo.NumColumns, rows),
	}

	switch {
	case cfg.Controller != nil:
		a.sim = true
		a.ctl = cfg.Controller
	case cfg.Backend == BackendSim:
		a.sim = true
		a.ctl = hwctl.NewSim(topo.NumColumns, rows+1)
	case cfg.Backend == BackendHardware || cfg.Backend == "":
		path := cfg.DevicePath
		if path == "" {
			path = DefaultDevicePath
		}
		dev, err := driver.OpenDevice(path)
		if err != nil {
			return nil, fmt.Errorf("opening device: %w", err)
		}
		part, err := dev.GetPartitionFd(partitionID, cfg.PartitionUID)
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("acquiring partition: %w", err)
		}
		ctl, err := hwctl.NewHardware(part, topo.NumColumns, rows+1)
		if err != nil {
			part.Close()
			dev.Close()
			return nil, fmt.Errorf("initializing controller: %w", err)
		}
		a.dev = dev
		a.part = part
		a.ctl = ctl
	default:
		return nil, driver.NewError(driver.StatusInvalidArgument,
			fmt.Sprintf("unknown backend %q", cfg.Backend))
	}

	if err := a.configureShimDMAs(); err != nil {
		a.teardown()
		return nil, err
	}

	a.initialized = true
	log.WithFields(logrus.Fields{
		"backend":   backendName(a.sim),
		"columns":   topo.NumColumns,
		"gmios":     len(topo.Gmios),
		"plios":     len(topo.Plios),
		"partition": partitionID,
	}).Info("array context initialized")
	return a, nil
}

func backendName(sim bool) string {
	if sim {
		return BackendSim
	}
	return BackendHardware
}

// configureShimDMAs sets up the DMA state of every column referenced by a
// GMIO port: channel enable, AXI burst configuration on the staging
// descriptor, and the fixed BD slot pools sized from the hardware queue.
func (a *Array) configureShimDMAs() error {
	for i := range a.topo.Gmios {
		gmio := &a.topo.Gmios[i]
		if gmio.Channel >= driver.ShimDmaChannels {
			return driver.NewError(driver.StatusInvalidArgument,
				fmt.Sprintf("GMIO %q channel %d does not exist", gmio.Name, gmio.Channel))
		}

		col := gmio.ShimColumn
		loc := hwctl.ShimTile(col)
		if a.dmas[col] == nil {
			a.dmas[col] = newShimDMA(col)
		}
		dma := a.dmas[col]

		dir := dmaDirection(gmio.Direction)
		if err := a.ctl.DmaChannelEnable(loc, physChannel(gmio.Channel), dir); err != nil {
			return fmt.Errorf("enabling channel %d on column %d: %w", gmio.Channel, col, err)
		}
		dma.desc.BurstLen = gmio.BurstLen

		maxq, err := a.ctl.DmaMaxQueueSize(loc)
		if err != nil {
			return fmt.Errorf("querying queue size on column %d: %w", col, err)
		}
		dma.maxQueue = maxq

		// BDs are statically partitioned across channels.
		// Channel 0: BD0-BD3, channel 1: BD4-BD7, and so on.
		ch := &dma.channels[gmio.Channel]
		for i := 0; i < maxq; i++ {
			num := int(gmio.Channel)*maxq + i
			ch.pushIdle(boundBD{num: uint8(num), bufFd: -1})
		}
		a.log.WithFields(logrus.Fields{
			"port":    gmio.Name,
			"column":  col,
			"channel": gmio.Channel,
			"bds":     maxq,
		}).Debug("configured shim DMA channel")
	}
	return nil
}

// Controller returns the hardware control interface. Fails once the array
// is torn down.
func (a *Array) Controller() (hwctl.Controller, error) {
	if !a.initialized {
		return nil, driver.NewError(driver.StatusInvalidState, "array is not initialized")
	}
	return a.ctl, nil
}

// Topology returns the immutable port tables the array was built with
func (a *Array) Topology() *meta.Topology {
	return a.topo
}

// QueueDepths reports the idle and pending descriptor counts of the
// channel owned by a named GMIO port.
func (a *Array) QueueDepths(portName string) (idle, pending int, err error) {
	if !a.initialized {
		return 0, 0, driver.NewError(driver.StatusInvalidState, "array is not initialized")
	}
	gmio := a.topo.FindGmio(portName)
	if gmio == nil {
		return 0, 0, driver.NewError(driver.StatusNotFound,
			fmt.Sprintf("GMIO %q not found", portName))
	}
	ch := &a.dmas[gmio.ShimColumn].channels[gmio.Channel]
	return ch.idleLen(), ch.pendingLen(), nil
}

// Reset tears down the controller and requests an array reset for the
// partition. The context is unusable afterwards; callers construct a new
// one to continue.
func (a *Array) Reset() error {
	if !a.initialized {
		return driver.NewError(driver.StatusInvalidState, "can't reset: array is not initialized")
	}
	a.initialized = false

	if err := a.ctl.Close(); err != nil {
		return fmt.Errorf("shutting down controller: %w", err)
	}
	if !a.sim {
		if err := a.dev.ResetArray(a.partitionID); err != nil {
			return fmt.Errorf("resetting array: %w", err)
		}
	}
	a.log.WithField("partition", a.partitionID).Info("array reset")
	return nil
}

// Close releases every resource held by the array context. Safe to call
// more than once.
func (a *Array) Close() error {
	if !a.initialized && a.ctl == nil {
		return nil
	}
	a.initialized = false
	a.teardown()
	return nil
}

func (a *Array) teardown() {
	// Unbind any still-pending descriptors so their mappings are not
	// leaked; hardware completion no longer matters at this point.
	for _, dma := range a.dmas {
		if dma == nil {
			continue
		}
		for c := range dma.channels {
			ch := &dma.channels[c]
			for ch.pendingLen() > 0 {
				bd := ch.popPending()
				if err := a.clearBD(&bd); err != nil {
					a.log.WithError(err).Warn("failed to unbind descriptor during teardown")
				}
				ch.pushIdle(bd)
			}
		}
	}

	if a.ctl != nil {
		if err := a.ctl.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close controller")
		}
		a.ctl = nil
	}
	if a.part != nil {
		if err := a.part.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close partition")
		}
		a.part = nil
	}
	if a.dev != nil {
		if err := a.dev.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close device")
		}
		a.dev = nil
	}
}
