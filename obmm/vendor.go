package obmm

import (
	"encoding/binary"
	"fmt"

	"github.com/rocketbitz/obmm-go/topology"
)

// Vendor extension blob attached to export commands, version 1:
// a version tag, an IOMMU mapping bitmask with exactly one bit set,
// and an on-chip locality flag. The 24-byte wire shape is fixed.
const (
	vendorInfoV1     = 0
	vendorInfoV1Size = 24
)

// vendorPayload owns one encoded extension blob. The buffer is
// call-local: it is created per export, consumed by exactly one device
// call, and released unconditionally afterward.
type vendorPayload struct {
	buf []byte
}

// buildVendorPayload encodes the v1 blob for the given mapping index.
// The returned release func must run after the device call on every
// exit path; deferring it keeps cleanup from masking the transaction's
// own error.
func buildVendorPayload(mappingIndex int) (*vendorPayload, func(), error) {
	if mappingIndex < 0 || mappingIndex > 63 {
		return nil, nil, fmt.Errorf("obmm: mapping index %d outside vendor mask", mappingIndex)
	}
	buf := make([]byte, vendorInfoV1Size)
	binary.LittleEndian.PutUint32(buf[0:4], vendorInfoV1)
	binary.LittleEndian.PutUint64(buf[8:16], 1<<uint(mappingIndex))
	buf[16] = 1 // tdev memory is on-chip in the current scheme
	if len(buf) > MaxVendorLen {
		return nil, nil, ErrVendorTooLarge
	}
	p := &vendorPayload{buf: buf}
	return p, p.release, nil
}

func (p *vendorPayload) release() {
	p.buf = nil
}

// destinationNode resolves the export descriptor's destination
// endpoint to its local bus controller. The all-zero eid sentinel is
// rejected before any topology lookup.
func (s *Session) destinationNode(desc *MemDesc) (topology.Node, error) {
	if desc.DEID.IsZero() {
		return topology.Node{}, ErrZeroEID
	}
	return s.resolver.ResolveNode(desc.DEID)
}

// validateSourceChannel gates import and preimport-declare: the live
// primary channel of the source controller must agree with the channel
// recorded in the descriptor. Disagreement means the descriptor is
// stale or forged and is never retried.
func (s *Session) validateSourceChannel(seid EID, scna uint32) error {
	live, err := s.resolver.ResolveChannel(seid)
	if err != nil {
		return err
	}
	if live != scna {
		return fmt.Errorf("%w: eid %s has cna %#x, descriptor records %#x",
			ErrChannelMismatch, seid, live, scna)
	}
	return nil
}
