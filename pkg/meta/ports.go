// Package meta holds the immutable port topology of an AI engine array:
// the GMIO and PLIO descriptors loaded once at initialization and looked
// up by name for every runtime operation.
package meta

import (
	"fmt"
)

// Direction is the transfer direction of a port relative to the tile array
type Direction int

const (
	// ToArray moves data from host memory into the array (MM2S)
	ToArray Direction = 0
	// FromArray moves data from the array back to host memory (S2MM)
	FromArray Direction = 1
)

// String returns the direction name used in topology files
func (d Direction) String() string {
	switch d {
	case ToArray:
		return "to-array"
	case FromArray:
		return "from-array"
	default:
		return fmt.Sprintf("unknown direction (%d)", int(d))
	}
}

// ParseDirection parses a topology-file direction string
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "to-array":
		return ToArray, nil
	case "from-array":
		return FromArray, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// MarshalYAML implements yaml.Marshaler
func (d Direction) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Direction) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dir, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = dir
	return nil
}

// Gmio describes one software-managed port into or out of the array.
// GMIO ports own a shim DMA channel and move data through host memory.
type Gmio struct {
	Name        string    `yaml:"name"`
	LogicalName string    `yaml:"logical_name,omitempty"`
	ShimColumn  uint32    `yaml:"shim_column"`
	Channel     uint32    `yaml:"channel"`
	Direction   Direction `yaml:"direction"`
	StreamID    uint8     `yaml:"stream_id"`
	BurstLen    uint8     `yaml:"burst_len,omitempty"`
}

// Plio describes one pure hardware stream interface at the array boundary.
// PLIO ports have no DMA channel; they are only monitorable.
type Plio struct {
	Name        string `yaml:"name"`
	LogicalName string `yaml:"logical_name,omitempty"`
	ShimColumn  uint32 `yaml:"shim_column"`
	IsMaster    bool   `yaml:"is_master"`
	StreamID    uint8  `yaml:"stream_id"`
}

// Topology is the complete port configuration of one array partition.
// It is immutable after load.
type Topology struct {
	NumColumns uint32 `yaml:"num_columns"`
	NumRows    uint32 `yaml:"num_rows"`
	Gmios      []Gmio `yaml:"gmios"`
	Plios      []Plio `yaml:"plios"`
}

// FindGmio looks up a GMIO port by name. Returns nil if absent.
func (t *Topology) FindGmio(name string) *Gmio {
	for i := range t.Gmios {
		if t.Gmios[i].Name == name {
			return &t.Gmios[i]
		}
	}
	return nil
}

// FindPlio looks up a PLIO port by name, falling back to the logical name.
// PLIOs inside a graph may carry only a logical name. Returns nil if absent.
func (t *Topology) FindPlio(name string) *Plio {
	for i := range t.Plios {
		if t.Plios[i].Name == name {
			return &t.Plios[i]
		}
	}
	for i := range t.Plios {
		if t.Plios[i].LogicalName == name {
			return &t.Plios[i]
		}
	}
	return nil
}

// Validate checks internal consistency of the topology
func (t *Topology) Validate() error {
	if t.NumColumns == 0 {
		return fmt.Errorf("topology has zero columns")
	}
	for i := range t.Gmios {
		g := &t.Gmios[i]
		if g.Name == "" {
			return fmt.Errorf("GMIO %d has no name", i)
		}
		if g.ShimColumn >= t.NumColumns {
			return fmt.Errorf("GMIO %q shim column %d does not exist", g.Name, g.ShimColumn)
		}
	}
	for i := range t.Plios {
		p := &t.Plios[i]
		if p.Name == "" && p.LogicalName == "" {
			return fmt.Errorf("PLIO %d has no name", i)
		}
		if p.ShimColumn >= t.NumColumns {
			return fmt.Errorf("PLIO %q shim column %d does not exist", p.Name, p.ShimColumn)
		}
	}
	return nil
}
