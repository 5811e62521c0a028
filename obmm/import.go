package obmm

import (
	"runtime"
	"unsafe"

	"github.com/rocketbitz/obmm-go/internal/devio"
)

// Import attaches to a remotely exported region described by desc.
// The descriptor's recorded source channel must agree with live
// topology. NUMA-remote imports without a preimport reservation
// require baseDist in [0, MaxBaseDist]; that check runs before any
// device interaction. numaHint places the attachment; NUMANone means
// no preference and is the only negative value accepted. Returns the
// import transaction id and the NUMA node the device assigned.
func (s *Session) Import(desc *MemDesc, flags ImportFlag, baseDist, numaHint int) (MemID, int, error) {
	if s == nil {
		return InvalidMemID, NUMANone, ErrNilSession
	}
	if desc == nil {
		return InvalidMemID, NUMANone, ErrNilDescriptor
	}
	if flags&ImportNUMARemote != 0 && flags&ImportPreimport == 0 &&
		(baseDist < 0 || baseDist > MaxBaseDist) {
		return InvalidMemID, NUMANone, ErrBaseDistance
	}
	if numaHint != NUMANone && numaHint < 0 {
		return InvalidMemID, NUMANone, ErrNUMAHint
	}
	if err := s.validateSourceChannel(desc.SEID, desc.SCNA); err != nil {
		return InvalidMemID, NUMANone, err
	}

	var cmd devio.ImportCmd
	cmd.Addr = desc.Addr
	cmd.Length = desc.Length
	cmd.TokenID = desc.TokenID
	cmd.SCNA = desc.SCNA
	cmd.DCNA = desc.DCNA
	cmd.SEID = desc.SEID
	cmd.DEID = desc.DEID
	cmd.Flags = uint64(flags)
	cmd.BaseDist = int32(baseDist)
	cmd.NUMA = int32(numaHint)
	if err := attachPriv(&cmd.Priv, &cmd.PrivLen, desc.Priv); err != nil {
		return InvalidMemID, NUMANone, err
	}

	err := s.transact(devio.CmdImport, unsafe.Pointer(&cmd))
	runtime.KeepAlive(desc.Priv)
	if err != nil {
		return InvalidMemID, NUMANone, err
	}
	return MemID(cmd.MemID), int(cmd.NUMA), nil
}

// Unimport detaches an imported region. The invalid id sentinel is
// rejected without a device round trip.
func (s *Session) Unimport(id MemID, flags ImportFlag) error {
	if s == nil {
		return ErrNilSession
	}
	if id == InvalidMemID {
		return ErrInvalidMemID
	}
	cmd := devio.UnimportCmd{MemID: uint64(id), Flags: uint64(flags)}
	return s.transact(devio.CmdUnimport, unsafe.Pointer(&cmd))
}

// DeclarePreimport reserves physical memory for a future import. Base
// distance and source channel are validated the same way as Import;
// on success the descriptor's NUMA id is updated from the device
// reply.
func (s *Session) DeclarePreimport(info *PreimportDesc, flags ImportFlag) error {
	if s == nil {
		return ErrNilSession
	}
	if info == nil {
		return ErrNilDescriptor
	}
	if info.BaseDist < 0 || info.BaseDist > MaxBaseDist {
		return ErrBaseDistance
	}
	if info.NUMA != NUMANone && info.NUMA < 0 {
		return ErrNUMAHint
	}
	if err := s.validateSourceChannel(info.SEID, info.SCNA); err != nil {
		return err
	}

	cmd, err := fillPreimportCmd(info, flags)
	if err != nil {
		return err
	}
	err = s.transact(devio.CmdDeclarePreimport, unsafe.Pointer(cmd))
	runtime.KeepAlive(info.Priv)
	if err != nil {
		return err
	}
	info.NUMA = int(cmd.NUMA)
	return nil
}

// UndeclarePreimport drops a preimport reservation. Teardown skips
// channel validation so reservations stay releasable after topology
// changes.
func (s *Session) UndeclarePreimport(info *PreimportDesc, flags ImportFlag) error {
	if s == nil {
		return ErrNilSession
	}
	if info == nil {
		return ErrNilDescriptor
	}
	cmd, err := fillPreimportCmd(info, flags)
	if err != nil {
		return err
	}
	err = s.transact(devio.CmdUndeclarePreimport, unsafe.Pointer(cmd))
	runtime.KeepAlive(info.Priv)
	return err
}

func fillPreimportCmd(info *PreimportDesc, flags ImportFlag) (*devio.PreimportCmd, error) {
	var cmd devio.PreimportCmd
	cmd.PA = info.PA
	cmd.Length = info.Length
	cmd.BaseDist = int32(info.BaseDist)
	cmd.NUMA = int32(info.NUMA)
	cmd.SCNA = info.SCNA
	cmd.DCNA = info.DCNA
	cmd.SEID = info.SEID
	cmd.DEID = info.DEID
	cmd.Flags = uint64(flags)
	if err := attachPriv(&cmd.Priv, &cmd.PrivLen, info.Priv); err != nil {
		return nil, err
	}
	return &cmd, nil
}
