package obmm

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestBuildVendorPayloadEncoding(t *testing.T) {
	p, release, err := buildVendorPayload(3)
	if err != nil {
		t.Fatalf("buildVendorPayload: %v", err)
	}
	defer release()

	if len(p.buf) != vendorInfoV1Size {
		t.Fatalf("unexpected payload size: %d", len(p.buf))
	}
	if ver := binary.LittleEndian.Uint32(p.buf[0:4]); ver != vendorInfoV1 {
		t.Fatalf("unexpected version tag: %d", ver)
	}
	if mask := binary.LittleEndian.Uint64(p.buf[8:16]); mask != 0b1000 {
		t.Fatalf("unexpected mapping mask: %#b", mask)
	}
	if p.buf[16] != 1 {
		t.Fatalf("expected on-chip flag set, got %d", p.buf[16])
	}
}

func TestBuildVendorPayloadMappingRange(t *testing.T) {
	for _, idx := range []int{-1, 64, 100} {
		if _, _, err := buildVendorPayload(idx); err == nil {
			t.Fatalf("expected error for mapping index %d", idx)
		}
	}
	for _, idx := range []int{0, 63} {
		p, release, err := buildVendorPayload(idx)
		if err != nil {
			t.Fatalf("buildVendorPayload(%d): %v", idx, err)
		}
		want := uint64(1) << uint(idx)
		if mask := binary.LittleEndian.Uint64(p.buf[8:16]); mask != want {
			t.Fatalf("mapping %d: mask %#x want %#x", idx, mask, want)
		}
		release()
	}
}

func TestVendorPayloadRelease(t *testing.T) {
	p, release, err := buildVendorPayload(0)
	if err != nil {
		t.Fatalf("buildVendorPayload: %v", err)
	}
	release()
	if p.buf != nil {
		t.Fatal("expected buffer released")
	}

	// A released payload never leaks into the next call.
	q, release2, err := buildVendorPayload(0)
	if err != nil {
		t.Fatalf("buildVendorPayload: %v", err)
	}
	defer release2()
	if q.buf == nil {
		t.Fatal("expected a fresh buffer")
	}
}

func TestDestinationNodeZeroEID(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.destinationNode(&MemDesc{})
	if !errors.Is(err, ErrZeroEID) {
		t.Fatalf("expected ErrZeroEID, got %v", err)
	}
}

func TestValidateSourceChannel(t *testing.T) {
	s, root := newTestSession(t)
	writeController(t, root, 0, map[string]string{
		"eid": "0x30", "ummu_map": "0", "numa": "0", "primary_cna": "0x11",
	})

	if err := s.validateSourceChannel(testEID(0x30), 0x11); err != nil {
		t.Fatalf("matching channel rejected: %v", err)
	}
	err := s.validateSourceChannel(testEID(0x30), 0x12)
	if !errors.Is(err, ErrChannelMismatch) {
		t.Fatalf("expected ErrChannelMismatch, got %v", err)
	}
}
