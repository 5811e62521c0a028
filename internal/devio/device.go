// Package devio implements the binary command protocol spoken to the
// OBMM control device. It owns the process-wide device handle, the
// fixed-layout command structures, and ioctl submission.
package devio

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultDevicePath is the control device of the in-kernel memory manager.
const DefaultDevicePath = "/dev/obmm"

// Device is the lazily opened, process-lifetime handle to the control
// device. The descriptor is opened on first use and memoized; there is
// no close primitive. The mutex guards only the open-and-memoize step,
// so concurrent transactions on the shared descriptor do not serialize
// here.
type Device struct {
	path string

	mu sync.Mutex
	fd int
}

// NewDevice returns a handle manager for the control device at path.
// An empty path selects DefaultDevicePath. The device is not opened
// until the first transaction.
func NewDevice(path string) *Device {
	if path == "" {
		path = DefaultDevicePath
	}
	return &Device{path: path, fd: -1}
}

// Path reports the control device path this handle manages.
func (d *Device) Path() string {
	return d.path
}

// FD returns the memoized control-device descriptor, opening it
// read-write on first use. A failed open is not cached: the next call
// retries.
func (d *Device) FD() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd >= 0 {
		return d.fd, nil
	}
	fd, err := unix.Open(d.path, unix.O_RDWR, 0)
	if err != nil {
		return -1, &OpenError{Path: d.path, Err: err}
	}
	d.fd = fd
	return fd, nil
}

// ResetForTesting drops the memoized descriptor so the next call
// reopens the device. It does not close the old descriptor; the handle
// lifetime is the process lifetime.
func (d *Device) ResetForTesting() {
	d.mu.Lock()
	d.fd = -1
	d.mu.Unlock()
}

// Ioctl submits one command to the control device, opening it first if
// needed. Device-level failures come back as Errno with the kernel
// code unchanged.
func (d *Device) Ioctl(req uintptr, arg unsafe.Pointer) error {
	fd, err := d.FD()
	if err != nil {
		return err
	}
	return Submit(fd, req, arg)
}

// Submit issues a single blocking ioctl against an explicit
// descriptor. Used directly for commands that target a memory device
// descriptor rather than the shared control device.
func Submit(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return Errno(errno)
	}
	return nil
}
