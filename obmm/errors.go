package obmm

import "errors"

var (
	// ErrNilSession indicates an operation on a nil Session.
	ErrNilSession = errors.New("obmm: nil session")
	// ErrNilDescriptor indicates a missing memory or preimport descriptor.
	ErrNilDescriptor = errors.New("obmm: nil descriptor")
	// ErrInvalidMemID indicates the reserved invalid memory id sentinel.
	ErrInvalidMemID = errors.New("obmm: invalid memory id")
	// ErrZeroEID indicates an export descriptor carrying the all-zero
	// destination endpoint id.
	ErrZeroEID = errors.New("obmm: all-zero destination eid")
	// ErrZeroLength indicates a zero-length region where the device
	// requires a positive extent.
	ErrZeroLength = errors.New("obmm: zero-length region")
	// ErrLengthVector indicates an empty or oversized per-node length vector.
	ErrLengthVector = errors.New("obmm: per-node length vector must have 1 to 16 entries")
	// ErrBaseDistance indicates a base distance outside [0, 255].
	ErrBaseDistance = errors.New("obmm: base distance outside [0, 255]")
	// ErrNUMAHint indicates a negative NUMA hint other than the
	// NUMANone sentinel.
	ErrNUMAHint = errors.New("obmm: negative numa hint is not the no-preference sentinel")
	// ErrPrivTooLarge indicates private bytes exceeding the 16-bit
	// length field.
	ErrPrivTooLarge = errors.New("obmm: private bytes exceed 64 KiB")
	// ErrVendorTooLarge indicates an encoded vendor payload exceeding
	// MaxVendorLen.
	ErrVendorTooLarge = errors.New("obmm: vendor payload exceeds maximum length")
	// ErrInvalidProtection indicates a protection combination outside
	// {none, read, write}.
	ErrInvalidProtection = errors.New("obmm: unsupported protection combination")
	// ErrChannelMismatch indicates the descriptor's recorded source
	// channel disagrees with live topology. The descriptor is stale or
	// forged; the failure is never retried.
	ErrChannelMismatch = errors.New("obmm: descriptor channel disagrees with live topology")
)
