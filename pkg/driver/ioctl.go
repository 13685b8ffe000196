package driver

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// DeviceFile represents an open zocl device file descriptor
type DeviceFile struct {
	fd   int
	path string
}

// OpenDevice opens the zocl device node by path
func OpenDevice(path string) (*DeviceFile, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		errno, ok := err.(unix.Errno)
		if ok {
			return nil, StatusFromErrno(errno, "opening device "+path)
		}
		return nil, NewErrorWithCause(StatusHardwareFault, "opening device "+path, err)
	}
	return &DeviceFile{fd: fd, path: path}, nil
}

// Close closes the device file
func (d *DeviceFile) Close() error {
	if d.fd >= 0 {
		err := unix.Close(d.fd)
		d.fd = -1
		if err != nil {
			return NewErrorWithCause(StatusHardwareFault, "closing device", err)
		}
	}
	return nil
}

// Fd returns the file descriptor
func (d *DeviceFile) Fd() int {
	return d.fd
}

// Path returns the device path
func (d *DeviceFile) Path() string {
	return d.path
}

// ioctl performs an ioctl syscall on an arbitrary fd
func ioctl(fd int, cmd uint32, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(cmd), uintptr(arg))
	if errno != 0 {
		return StatusFromErrno(errno, "ioctl")
	}
	return nil
}

// IOCTL command codes (calculated from type and size)
var (
	ioctlZoclAieFd    = IoWR(DrmIoctlMagic, DrmCommandBase+IoctlZoclAieFd, SizeOfAiePartitionReq)
	ioctlZoclAieReset = IoW(DrmIoctlMagic, DrmCommandBase+IoctlZoclAieReset, SizeOfAieResetReq)
)

// GetPartitionFd requests an AI engine partition file descriptor from the
// kernel. The returned Partition owns the fd.
func (d *DeviceFile) GetPartitionFd(partitionID, uid uint32) (*Partition, error) {
	req := AiePartitionReq{
		PartitionID: partitionID,
		UID:         uid,
	}
	if err := ioctl(d.fd, ioctlZoclAieFd, unsafe.Pointer(&req)); err != nil {
		return nil, NewErrorWithCause(StatusHardwareFault, "requesting partition fd", err)
	}
	return &Partition{fd: int(req.Fd), partitionID: partitionID}, nil
}

// ResetArray requests a reset of the AI engine array for a partition
func (d *DeviceFile) ResetArray(partitionID uint32) error {
	req := AieResetReq{PartitionID: partitionID}
	if err := ioctl(d.fd, ioctlZoclAieReset, unsafe.Pointer(&req)); err != nil {
		return NewErrorWithCause(StatusHardwareFault, "resetting array", err)
	}
	return nil
}

// Partition represents an open AI engine partition file descriptor. It is
// the attach point for DMA-buf exported buffers and the register window.
type Partition struct {
	fd          int
	partitionID uint32
}

// Fd returns the partition file descriptor
func (p *Partition) Fd() int {
	return p.fd
}

// PartitionID returns the partition id this fd was requested for
func (p *Partition) PartitionID() uint32 {
	return p.partitionID
}

// Close closes the partition fd
func (p *Partition) Close() error {
	if p.fd >= 0 {
		err := unix.Close(p.fd)
		p.fd = -1
		if err != nil {
			return NewErrorWithCause(StatusHardwareFault, "closing partition", err)
		}
	}
	return nil
}

// AttachDmaBuf attaches an exported buffer fd to the partition's DMA
// address space
func (p *Partition) AttachDmaBuf(bufFd int) error {
	cmd := Io(AiePartitionIoctlMagic, IoctlAieAttachDmabuf)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(p.fd), uintptr(cmd), uintptr(bufFd))
	if errno != 0 {
		return StatusFromErrno(errno, "attaching DMA buf")
	}
	return nil
}

// DetachDmaBuf detaches a previously attached buffer fd
func (p *Partition) DetachDmaBuf(bufFd int) error {
	cmd := Io(AiePartitionIoctlMagic, IoctlAieDetachDmabuf)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(p.fd), uintptr(cmd), uintptr(bufFd))
	if errno != 0 {
		return StatusFromErrno(errno, "detaching DMA buf")
	}
	return nil
}

// MapBuffer maps an exported buffer fd into process memory
func MapBuffer(bufFd int, size uint64) ([]byte, error) {
	data, err := unix.Mmap(bufFd, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		errno, ok := err.(unix.Errno)
		if ok {
			return nil, StatusFromErrno(errno, "mapping buffer")
		}
		return nil, NewErrorWithCause(StatusHardwareFault, "mapping buffer", err)
	}
	return data, nil
}

// UnmapBuffer releases a mapping created by MapBuffer
func UnmapBuffer(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return NewErrorWithCause(StatusHardwareFault, "unmapping buffer", err)
	}
	return nil
}
