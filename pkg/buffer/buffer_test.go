//go:build unit

package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDmaBuffer(t *testing.T) {
	b, err := NewDmaBuffer(1000)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, uint64(1000), b.Size())
	assert.Len(t, b.Data(), 1000)
	assert.NotZero(t, b.Address())

	// The mapping is page-aligned
	assert.Zero(t, b.Address()%PageSize)
}

func TestDmaBufferRejectsZeroSize(t *testing.T) {
	_, err := NewDmaBuffer(0)
	assert.Error(t, err)
}

func TestDmaBufferDataIsWritable(t *testing.T) {
	b, err := NewDmaBuffer(256)
	require.NoError(t, err)
	defer b.Close()

	pattern := bytes.Repeat([]byte{0xA5}, 256)
	copy(b.Data(), pattern)
	assert.Equal(t, pattern, b.Data())
}

func TestDmaBufferExport(t *testing.T) {
	b, err := NewDmaBuffer(64)
	require.NoError(t, err)
	defer b.Close()

	fd, err := b.Export()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fd, 0)
}

func TestDmaBufferCloseIsIdempotent(t *testing.T) {
	b, err := NewDmaBuffer(64)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = b.Export()
	assert.Error(t, err)
}
