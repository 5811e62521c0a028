package obmm

import (
	"runtime"
	"unsafe"

	"github.com/rocketbitz/obmm-go/internal/devio"
)

// Export allocates and exports memory split across local NUMA nodes.
// lengths holds per-node byte counts, at most MaxLocalNUMANodes
// entries; zero entries are allowed. On success the descriptor's
// address and token are updated and its length becomes the sum of the
// per-node lengths.
func (s *Session) Export(lengths []uint64, flags ExportFlag, desc *MemDesc) (MemID, error) {
	if s == nil {
		return InvalidMemID, ErrNilSession
	}
	if desc == nil {
		return InvalidMemID, ErrNilDescriptor
	}
	if len(lengths) == 0 || len(lengths) > MaxLocalNUMANodes {
		return InvalidMemID, ErrLengthVector
	}

	node, err := s.destinationNode(desc)
	if err != nil {
		return InvalidMemID, err
	}
	payload, release, err := buildVendorPayload(node.MappingIndex)
	if err != nil {
		return InvalidMemID, err
	}
	defer release()

	var cmd devio.ExportCmd
	copy(cmd.Size[:], lengths)
	cmd.Length = devio.MaxLocalNUMANodes
	cmd.Flags = uint64(flags)
	cmd.DEID = desc.DEID
	cmd.PxmNUMA = int32(node.NUMA)
	cmd.Vendor = uint64(uintptr(unsafe.Pointer(&payload.buf[0])))
	cmd.VendorLen = uint16(len(payload.buf))
	if err := attachPriv(&cmd.Priv, &cmd.PrivLen, desc.Priv); err != nil {
		return InvalidMemID, err
	}

	err = s.transact(devio.CmdExport, unsafe.Pointer(&cmd))
	runtime.KeepAlive(payload.buf)
	runtime.KeepAlive(desc.Priv)
	if err != nil {
		return InvalidMemID, err
	}

	desc.Addr = cmd.UBA
	desc.TokenID = cmd.TokenID
	desc.SCNA = 0
	desc.DCNA = 0
	var total uint64
	for _, l := range lengths {
		total += l
	}
	desc.Length = total
	return MemID(cmd.MemID), nil
}

// ExportAddr pins and exports a VA range of the given process. pid 0
// exports the calling process's range. On success the descriptor's
// address, length, and token are updated.
func (s *Session) ExportAddr(pid int, va uintptr, length uint64, flags ExportFlag, desc *MemDesc) (MemID, error) {
	if s == nil {
		return InvalidMemID, ErrNilSession
	}
	if desc == nil {
		return InvalidMemID, ErrNilDescriptor
	}
	if length == 0 {
		return InvalidMemID, ErrZeroLength
	}

	node, err := s.destinationNode(desc)
	if err != nil {
		return InvalidMemID, err
	}
	payload, release, err := buildVendorPayload(node.MappingIndex)
	if err != nil {
		return InvalidMemID, err
	}
	defer release()

	var cmd devio.ExportAddrCmd
	cmd.VA = uint64(va)
	cmd.Length = length
	cmd.PID = int32(pid)
	cmd.Flags = uint64(flags)
	cmd.DEID = desc.DEID
	cmd.PxmNUMA = int32(node.NUMA)
	cmd.Vendor = uint64(uintptr(unsafe.Pointer(&payload.buf[0])))
	cmd.VendorLen = uint16(len(payload.buf))
	if err := attachPriv(&cmd.Priv, &cmd.PrivLen, desc.Priv); err != nil {
		return InvalidMemID, err
	}

	err = s.transact(devio.CmdExportAddr, unsafe.Pointer(&cmd))
	runtime.KeepAlive(payload.buf)
	runtime.KeepAlive(desc.Priv)
	if err != nil {
		return InvalidMemID, err
	}

	desc.Addr = cmd.UBA
	desc.Length = length
	desc.TokenID = cmd.TokenID
	desc.SCNA = 0
	desc.DCNA = 0
	return MemID(cmd.MemID), nil
}

// Unexport tears down an export transaction. The invalid id sentinel
// is rejected without a device round trip.
func (s *Session) Unexport(id MemID, flags UnexportFlag) error {
	if s == nil {
		return ErrNilSession
	}
	if id == InvalidMemID {
		return ErrInvalidMemID
	}
	cmd := devio.UnexportCmd{MemID: uint64(id), Flags: uint64(flags)}
	return s.transact(devio.CmdUnexport, unsafe.Pointer(&cmd))
}
