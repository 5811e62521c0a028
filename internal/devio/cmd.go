package devio

import "unsafe"

// Protocol limits shared with the device side.
const (
	// EIDSize is the width of an endpoint identifier in bytes.
	EIDSize = 16

	// MaxLocalNUMANodes bounds the per-node length vector accepted by
	// the Export command.
	MaxLocalNUMANodes = 16

	// MaxVendorLen bounds the vendor extension blob attached to export
	// commands.
	MaxVendorLen = 64
)

// Request numbers follow the kernel's _IOWR('u', nr, size) encoding:
// bits 0-7 command number, 8-15 magic, 16-29 argument size, 30-31
// direction (read|write).
const (
	iocMagic = 0x75 // 'u'
	iocRW    = 3 << 30
)

const (
	CmdAddrQuery          = iocRW | unsafe.Sizeof(AddrQueryCmd{})<<16 | iocMagic<<8 | 0x01
	CmdExport             = iocRW | unsafe.Sizeof(ExportCmd{})<<16 | iocMagic<<8 | 0x02
	CmdExportAddr         = iocRW | unsafe.Sizeof(ExportAddrCmd{})<<16 | iocMagic<<8 | 0x03
	CmdImport             = iocRW | unsafe.Sizeof(ImportCmd{})<<16 | iocMagic<<8 | 0x04
	CmdUnexport           = iocRW | unsafe.Sizeof(UnexportCmd{})<<16 | iocMagic<<8 | 0x05
	CmdUnimport           = iocRW | unsafe.Sizeof(UnimportCmd{})<<16 | iocMagic<<8 | 0x06
	CmdDeclarePreimport   = iocRW | unsafe.Sizeof(PreimportCmd{})<<16 | iocMagic<<8 | 0x07
	CmdUndeclarePreimport = iocRW | unsafe.Sizeof(PreimportCmd{})<<16 | iocMagic<<8 | 0x08
	CmdUpdateRange        = iocRW | unsafe.Sizeof(UpdateRangeCmd{})<<16 | iocMagic<<8 | 0x09
)

// Address query key selectors.
const (
	QueryByPA       = 0
	QueryByIDOffset = 1
)

// Page-state vocabulary for UpdateRangeCmd.MemState.
const (
	MemStateNormal    = 1 << 0
	MemStateNormalNC  = 1 << 1
	MemStateNoAccess  = 1 << 2
	MemStateReadOnly  = 1 << 3
	MemStateReadWrite = 1 << 4
)

// Cache maintenance selector for UpdateRangeCmd.CacheOps.
const CacheOpsInfer = 0

// The command structures below are the authoritative wire contract
// with the device. Field order, widths, and padding must match the
// kernel side exactly; any change is a breaking protocol change. All
// structures are little-endian, laid out for 64-bit hosts, with
// compile-time size assertions.

// AddrQueryCmd resolves a physical address to a memory id and offset,
// or the reverse, depending on KeyType.
type AddrQueryCmd struct {
	KeyType uint32
	_       uint32
	PA      uint64
	MemID   uint64
	Offset  uint64
}

var _ [32]byte = [unsafe.Sizeof(AddrQueryCmd{})]byte{}

// ExportCmd exports freshly allocated memory split across local NUMA
// nodes. UBA, TokenID, and MemID are outputs.
type ExportCmd struct {
	Size      [MaxLocalNUMANodes]uint64
	Flags     uint64
	Priv      uint64 // user pointer to private bytes
	Vendor    uint64 // user pointer to vendor extension blob
	UBA       uint64 // out
	MemID     uint64 // out
	DEID      [EIDSize]byte
	Length    uint32 // number of Size entries
	PxmNUMA   int32
	TokenID   uint32 // out
	VendorLen uint16
	PrivLen   uint16
}

var _ [200]byte = [unsafe.Sizeof(ExportCmd{})]byte{}

// ExportAddrCmd pins and exports a VA range of the given process.
// PID 0 selects the calling process.
type ExportAddrCmd struct {
	VA        uint64
	Length    uint64
	Flags     uint64
	Priv      uint64
	Vendor    uint64
	UBA       uint64 // out
	MemID     uint64 // out
	DEID      [EIDSize]byte
	PID       int32
	PxmNUMA   int32
	TokenID   uint32 // out
	VendorLen uint16
	PrivLen   uint16
}

var _ [88]byte = [unsafe.Sizeof(ExportAddrCmd{})]byte{}

// ImportCmd attaches to a remotely exported region. NUMA carries the
// placement hint in and the assigned node out.
type ImportCmd struct {
	Addr     uint64
	Length   uint64
	Flags    uint64
	Priv     uint64
	MemID    uint64 // out
	SEID     [EIDSize]byte
	DEID     [EIDSize]byte
	TokenID  uint32
	SCNA     uint32
	DCNA     uint32
	BaseDist int32
	NUMA     int32 // in/out
	PrivLen  uint16
	_        uint16
}

var _ [96]byte = [unsafe.Sizeof(ImportCmd{})]byte{}

// UnexportCmd tears down an export transaction.
type UnexportCmd struct {
	MemID uint64
	Flags uint64
}

var _ [16]byte = [unsafe.Sizeof(UnexportCmd{})]byte{}

// UnimportCmd detaches an imported region.
type UnimportCmd struct {
	MemID uint64
	Flags uint64
}

var _ [16]byte = [unsafe.Sizeof(UnimportCmd{})]byte{}

// PreimportCmd declares or undeclares a physical-memory reservation
// for a future import. NUMA carries the hint in and, on declare, the
// assignment out.
type PreimportCmd struct {
	PA       uint64
	Length   uint64
	Flags    uint64
	Priv     uint64
	SEID     [EIDSize]byte
	DEID     [EIDSize]byte
	SCNA     uint32
	DCNA     uint32
	BaseDist int32
	NUMA     int32 // in/out
	PrivLen  uint16
	_        [6]byte
}

var _ [88]byte = [unsafe.Sizeof(PreimportCmd{})]byte{}

// UpdateRangeCmd rewrites the page state of a virtual address range on
// a memory device.
type UpdateRangeCmd struct {
	Start    uint64
	End      uint64
	MemState uint64
	CacheOps uint64
}

var _ [32]byte = [unsafe.Sizeof(UpdateRangeCmd{})]byte{}
