package testutil

import (
	"os"
	"testing"

	"github.com/edgerobotics/go-aie/pkg/meta"
)

// SkipIfNoDevice skips the test if no zocl render node is present
func SkipIfNoDevice(t *testing.T) string {
	t.Helper()

	devices := []string{"/dev/dri/renderD128", "/dev/dri/renderD129"}
	for _, path := range devices {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	t.Skip("No zocl device available")
	return ""
}

// SingleGmioTopology builds a one-column topology with a single GMIO port
func SingleGmioTopology(name string, dir meta.Direction) *meta.Topology {
	return &meta.Topology{
		NumColumns: 1,
		NumRows:    8,
		Gmios: []meta.Gmio{
			{
				Name:       name,
				ShimColumn: 0,
				Channel:    0,
				Direction:  dir,
				StreamID:   2,
				BurstLen:   64,
			},
		},
	}
}

// TempTopologyFile writes a topology YAML file into a test temp dir
func TempTopologyFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/topology.yaml"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing topology file: %v", err)
	}
	return path
}
