package obmm

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/rocketbitz/obmm-go/internal/devio"
)

// QueryMemIDByPA resolves a physical address to the export transaction
// covering it and the byte offset within that export.
func (s *Session) QueryMemIDByPA(pa uint64) (MemID, uint64, error) {
	if s == nil {
		return InvalidMemID, 0, ErrNilSession
	}
	cmd := devio.AddrQueryCmd{KeyType: devio.QueryByPA, PA: pa}
	if err := s.transact(devio.CmdAddrQuery, unsafe.Pointer(&cmd)); err != nil {
		return InvalidMemID, 0, err
	}
	return MemID(cmd.MemID), cmd.Offset, nil
}

// QueryPAByMemID resolves an export transaction id and offset back to
// the physical address.
func (s *Session) QueryPAByMemID(id MemID, offset uint64) (uint64, error) {
	if s == nil {
		return 0, ErrNilSession
	}
	cmd := devio.AddrQueryCmd{
		KeyType: devio.QueryByIDOffset,
		MemID:   uint64(id),
		Offset:  offset,
	}
	if err := s.transact(devio.CmdAddrQuery, unsafe.Pointer(&cmd)); err != nil {
		return 0, err
	}
	return cmd.PA, nil
}

// Protection selects the access rights applied by SetOwnership,
// mirroring mmap protection bits.
type Protection int

const (
	ProtNone  Protection = unix.PROT_NONE
	ProtRead  Protection = unix.PROT_READ
	ProtWrite Protection = unix.PROT_WRITE
)

// SetOwnership rewrites the page state of [start, end) on the memory
// device behind fd. ProtNone revokes access, ProtRead grants read-only
// access, and any combination including ProtWrite grants read-write
// access; other bits are rejected. Cache maintenance is left to the
// device.
func (s *Session) SetOwnership(fd int, start, end uint64, prot Protection) error {
	if s == nil {
		return ErrNilSession
	}
	var state uint64
	switch prot {
	case ProtNone:
		state = devio.MemStateNormalNC | devio.MemStateNoAccess
	case ProtRead:
		state = devio.MemStateNormal | devio.MemStateReadOnly
	case ProtWrite, ProtRead | ProtWrite:
		state = devio.MemStateNormal | devio.MemStateReadWrite
	default:
		return ErrInvalidProtection
	}
	cmd := devio.UpdateRangeCmd{
		Start:    start,
		End:      end,
		MemState: state,
		CacheOps: devio.CacheOpsInfer,
	}
	return s.transactFD(fd, devio.CmdUpdateRange, unsafe.Pointer(&cmd))
}
