package meta

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses a topology table from YAML
func Load(r io.Reader) (*Topology, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading topology: %w", err)
	}

	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}

	if topo.NumColumns == 0 {
		// Older tables omit the geometry; fall back to one column
		// past the highest referenced shim column.
		var max uint32
		for _, g := range topo.Gmios {
			if g.ShimColumn >= max {
				max = g.ShimColumn + 1
			}
		}
		for _, p := range topo.Plios {
			if p.ShimColumn >= max {
				max = p.ShimColumn + 1
			}
		}
		topo.NumColumns = max
	}

	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}
	return &topo, nil
}

// LoadFile parses a topology table from a YAML file
func LoadFile(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening topology file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Dump serializes a topology table back to YAML
func Dump(topo *Topology) ([]byte, error) {
	data, err := yaml.Marshal(topo)
	if err != nil {
		return nil, fmt.Errorf("encoding topology: %w", err)
	}
	return data, nil
}
