package resource

import (
	"fmt"

	"github.com/edgerobotics/go-aie/pkg/driver"
)

// Core-tile module resource counts
const (
	coreTilePerfCounters = 4
	coreTileEventPorts   = 8
)

// Grid holds the resource pools for every tile of one array partition:
// one shim tile per column plus the compute tiles above them.
type Grid struct {
	cols  uint32
	rows  uint32
	shims []*ModulePool
	cores [][]*ModulePool
}

// NewGrid creates resource pools for a cols x rows array
func NewGrid(cols, rows uint32) *Grid {
	g := &Grid{
		cols:  cols,
		rows:  rows,
		shims: make([]*ModulePool, cols),
		cores: make([][]*ModulePool, cols),
	}
	for c := uint32(0); c < cols; c++ {
		g.shims[c] = NewModulePool(driver.ShimPerfCounters, driver.ShimStreamEventPorts)
		g.cores[c] = make([]*ModulePool, rows)
		for r := uint32(0); r < rows; r++ {
			g.cores[c][r] = NewModulePool(coreTilePerfCounters, coreTileEventPorts)
		}
	}
	return g
}

// ShimTile returns the resource pool of the shim tile in a column
func (g *Grid) ShimTile(col uint32) (*ModulePool, error) {
	if col >= g.cols {
		return nil, driver.NewError(driver.StatusNotFound,
			fmt.Sprintf("shim column %d does not exist", col))
	}
	return g.shims[col], nil
}

// CoreTile returns the resource pool of a compute tile. Row 0 is the first
// compute row above the shim.
func (g *Grid) CoreTile(col, row uint32) (*ModulePool, error) {
	if col >= g.cols || row >= g.rows {
		return nil, driver.NewError(driver.StatusNotFound,
			fmt.Sprintf("core tile (%d, %d) does not exist", col, row))
	}
	return g.cores[col][row], nil
}

// Columns returns the number of columns in the grid
func (g *Grid) Columns() uint32 {
	return g.cols
}
