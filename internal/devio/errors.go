package devio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Errno represents an error code returned by the control device
// (positive errno value). Codes are passed through from the kernel
// unchanged.
type Errno int32

// Common codes surfaced by the memory manager. Additional codes can be
// matched via errors.Is against unix.Errno values.
const (
	ErrInvalid     Errno = Errno(unix.EINVAL)
	ErrNoMemory    Errno = Errno(unix.ENOMEM)
	ErrNoDevice    Errno = Errno(unix.ENODEV)
	ErrPermission  Errno = Errno(unix.EPERM)
	ErrBusy        Errno = Errno(unix.EBUSY)
	ErrExists      Errno = Errno(unix.EEXIST)
	ErrNoEntry     Errno = Errno(unix.ENOENT)
	ErrNotSupp     Errno = Errno(unix.EOPNOTSUPP)
	ErrOutOfRange  Errno = Errno(unix.ERANGE)
	ErrBadAddress  Errno = Errno(unix.EFAULT)
	ErrInterrupted Errno = Errno(unix.EINTR)
)

// Error returns the human-readable string for the code.
func (e Errno) Error() string {
	return e.String()
}

// String returns the libc message for the Errno.
func (e Errno) String() string {
	if e == 0 {
		return "success"
	}
	return unix.Errno(e).Error()
}

// Is lets errors.Is match an Errno against plain unix.Errno targets.
func (e Errno) Is(target error) bool {
	t, ok := target.(unix.Errno)
	return ok && unix.Errno(e) == t
}

// WithOp adds operation context to the provided Errno.
func (e Errno) WithOp(op string) error {
	if op == "" {
		return e
	}
	return fmt.Errorf("%s: %w", op, e)
}

// OpenError reports a failure to open the control device. The failure
// is not cached: a later call retries the open.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("obmm: open control device %s: %v", e.Path, e.Err)
}

// Unwrap allows errors.Is / errors.As to match the underlying open error.
func (e *OpenError) Unwrap() error {
	return e.Err
}
