package driver

// IOCTL magic values - must match the zocl kernel driver and the AI engine
// partition character device
const (
	DrmIoctlMagic          = 'd' // DRM core
	AiePartitionIoctlMagic = 'A' // AI engine partition device
)

// DRM command numbers for the zocl AI engine interface. These sit in the
// device-private command range above DRM_COMMAND_BASE.
const (
	DrmCommandBase = 0x40

	IoctlZoclAieFd    = 0x19
	IoctlZoclAieReset = 0x1a
)

// IOCTL command numbers on the partition device
const (
	IoctlAieAttachDmabuf = 1
	IoctlAieDetachDmabuf = 2
)

// Array geometry defaults for the first hardware generation. The shim row
// sits at row 0; compute tiles start above the reserved rows.
const (
	DefaultNumCols = 50
	DefaultNumRows = 8
	ShimRow        = 0
)

// Shim DMA constants
const (
	// Each shim DMA owns 16 BDs split evenly across its 4 logical
	// channels. Channel 0: BD0-BD3, channel 1: BD4-BD7, and so on.
	ShimDmaChannels = 4
	ShimDmaBdsTotal = 16
	ChannelsPerDir  = 2

	// Transfers are expressed in 32-bit words; lengths must be 4-byte
	// aligned.
	TransferLenAlignMask = 0x3
)

// Per-shim-tile profiling resources
const (
	ShimPerfCounters     = 2
	ShimStreamEventPorts = 8
)

// Default partition identity when none is configured. The partition id and
// uid normally come from the loaded image metadata.
const (
	DefaultPartitionID  = 1
	DefaultPartitionUID = 0
)

// AiePartitionReq is the request/response layout for the partition-fd ioctl.
// Must match drm_zocl_aie_fd in the kernel headers.
type AiePartitionReq struct {
	PartitionID uint32
	UID         uint32
	Fd          int32
}

// AieResetReq is the request layout for the array-reset ioctl. Must match
// drm_zocl_aie_reset.
type AieResetReq struct {
	PartitionID uint32
}

// Struct sizes for ioctl encoding
const (
	SizeOfAiePartitionReq = 12
	SizeOfAieResetReq     = 4
)

// IOCTL direction flags for the _IOC macro
const (
	IocNone  = 0
	IocWrite = 1
	IocRead  = 2
)

// IOCTL size/direction encoding constants
const (
	IocNrBits   = 8
	IocTypeBits = 8
	IocSizeBits = 14
	IocDirBits  = 2

	IocNrShift   = 0
	IocTypeShift = IocNrShift + IocNrBits
	IocSizeShift = IocTypeShift + IocTypeBits
	IocDirShift  = IocSizeShift + IocSizeBits
)

// Ioc creates an IOCTL command number
func Ioc(dir, iocType, nr, size int) uint32 {
	return uint32((dir << IocDirShift) |
		(iocType << IocTypeShift) |
		(nr << IocNrShift) |
		(size << IocSizeShift))
}

// IoW creates a write IOCTL (data flows from user to kernel)
func IoW(iocType, nr, size int) uint32 {
	return Ioc(IocWrite, iocType, nr, size)
}

// IoR creates a read IOCTL (data flows from kernel to user)
func IoR(iocType, nr, size int) uint32 {
	return Ioc(IocRead, iocType, nr, size)
}

// IoWR creates a read-write IOCTL
func IoWR(iocType, nr, size int) uint32 {
	return Ioc(IocRead|IocWrite, iocType, nr, size)
}

// Io creates an IOCTL with no data transfer
func Io(iocType, nr int) uint32 {
	return Ioc(IocNone, iocType, nr, 0)
}
