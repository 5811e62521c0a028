// Package obmm is a userspace client for the OBMM fabric-attached
// memory manager. A Session exports local memory for remote access,
// imports memory exported elsewhere, and pre-reserves physical memory
// for later import, speaking the fixed binary command protocol of the
// control device and augmenting export/import with topology metadata
// resolved from live system state.
package obmm

import (
	"math"
	"unsafe"

	"github.com/rocketbitz/obmm-go/internal/devio"
	"github.com/rocketbitz/obmm-go/topology"
)

// Config controls Session construction. The zero value selects the
// default control device and sysfs root.
type Config struct {
	// DevicePath overrides the control device path.
	DevicePath string
	// SysRoot overrides the sysfs directory scanned for bus
	// controllers. Intended for tests.
	SysRoot string
}

// Session issues transactions against the memory manager. Each
// transaction is one blocking device call; the only synchronized state
// is the first open of the shared device handle, so a Session is safe
// for concurrent use per the device's own contract.
type Session struct {
	dev      *devio.Device
	resolver *topology.Resolver

	// transact submits a command to the control device; transactFD
	// targets an explicit descriptor. Both are replaced in tests.
	transact   func(req uintptr, arg unsafe.Pointer) error
	transactFD func(fd int, req uintptr, arg unsafe.Pointer) error
}

// NewSession returns a Session for the configured control device. The
// device is not opened until the first transaction.
func NewSession(cfg Config) *Session {
	dev := devio.NewDevice(cfg.DevicePath)
	return &Session{
		dev:        dev,
		resolver:   &topology.Resolver{SysRoot: cfg.SysRoot},
		transact:   dev.Ioctl,
		transactFD: devio.Submit,
	}
}

// DevicePath reports the control device this session talks to.
func (s *Session) DevicePath() string {
	return s.dev.Path()
}

// Resolver exposes the session's topology resolver, e.g. for
// enumerating controllers.
func (s *Session) Resolver() *topology.Resolver {
	return s.resolver
}

// attachPriv points the command's private-data fields at buf. The
// caller must keep buf alive across the device call.
func attachPriv(ptr *uint64, length *uint16, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if len(buf) > math.MaxUint16 {
		return ErrPrivTooLarge
	}
	*ptr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	*length = uint16(len(buf))
	return nil
}
