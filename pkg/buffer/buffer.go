// Package buffer provides the buffer-handle abstraction the runtime binds
// into shim DMA descriptors, plus a concrete DMA-capable buffer backed by
// a memfd so it can be exported and attached to a partition.
package buffer

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Handle is an external buffer usable as a DMA source or destination.
// Export hands out a system-level file descriptor for attaching the
// buffer to a device address space. Address reports the host virtual
// address; it is only consulted on the simulated backend.
type Handle interface {
	Export() (int, error)
	Size() uint64
	Address() uint64
}

// PageSize is the system page size
const PageSize = 4096

// DmaBuffer is a page-aligned host buffer backed by a memfd
type DmaBuffer struct {
	fd     int
	data   []byte
	size   uint64
	closed bool
}

// NewDmaBuffer allocates a buffer of the given size, rounded up to a
// whole number of pages
func NewDmaBuffer(size uint64) (*DmaBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer size cannot be zero")
	}

	alignedSize := (size + PageSize - 1) / PageSize * PageSize

	fd, err := unix.MemfdCreate("aie-dma-buffer", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create failed: %w", err)
	}

	if err := unix.Ftruncate(fd, int64(alignedSize)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate failed: %w", err)
	}

	data, err := unix.Mmap(fd, 0, int(alignedSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	return &DmaBuffer{
		fd:   fd,
		data: data,
		size: size,
	}, nil
}

// Export returns the buffer's file descriptor
func (b *DmaBuffer) Export() (int, error) {
	if b.closed {
		return -1, fmt.Errorf("buffer is closed")
	}
	return b.fd, nil
}

// Size returns the usable buffer size
func (b *DmaBuffer) Size() uint64 {
	return b.size
}

// Address returns the host virtual address of the buffer
func (b *DmaBuffer) Address() uint64 {
	if len(b.data) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b.data[0])))
}

// Data returns the buffer contents, limited to the usable size
func (b *DmaBuffer) Data() []byte {
	return b.data[:b.size]
}

// Close releases the mapping and the backing fd
func (b *DmaBuffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if err := unix.Munmap(b.data); err != nil {
		unix.Close(b.fd)
		return fmt.Errorf("munmap failed: %w", err)
	}
	b.data = nil

	if err := unix.Close(b.fd); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	b.fd = -1
	return nil
}
