package obmm

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/rocketbitz/obmm-go/internal/devio"
)

// importDesc returns a descriptor whose source channel agrees with the
// controller written into the fake sysfs tree.
func importDesc(t *testing.T, root string) *MemDesc {
	t.Helper()
	writeController(t, root, 0, map[string]string{
		"eid": "0x30", "ummu_map": "2", "numa": "0", "primary_cna": "0x11",
	})
	return &MemDesc{
		Addr:    0xab000000,
		Length:  4096,
		SEID:    testEID(0x30),
		DEID:    testEID(0x31),
		TokenID: 9,
		SCNA:    0x11,
		DCNA:    0x22,
	}
}

func TestImport(t *testing.T) {
	s, root := newTestSession(t)
	desc := importDesc(t, root)

	var got devio.ImportCmd
	s.transact = func(req uintptr, arg unsafe.Pointer) error {
		if req != devio.CmdImport {
			t.Fatalf("unexpected request %#x", req)
		}
		cmd := (*devio.ImportCmd)(arg)
		got = *cmd
		cmd.MemID = 17
		cmd.NUMA = 2
		return nil
	}

	id, numa, err := s.Import(desc, 0, 0, NUMANone)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if id != 17 {
		t.Fatalf("unexpected id: %d", id)
	}
	if numa != 2 {
		t.Fatalf("unexpected assigned node: %d", numa)
	}
	if got.Addr != desc.Addr || got.Length != desc.Length || got.TokenID != desc.TokenID {
		t.Fatalf("unexpected command: %+v", got)
	}
	if got.SCNA != 0x11 || got.DCNA != 0x22 {
		t.Fatalf("channel numbers not forwarded: %+v", got)
	}
	if got.NUMA != -1 {
		t.Fatalf("expected no-preference hint on the wire, got %d", got.NUMA)
	}
}

func TestImportChannelMismatch(t *testing.T) {
	s, root := newTestSession(t)
	desc := importDesc(t, root)
	desc.SCNA = 0x12

	_, _, err := s.Import(desc, 0, 0, NUMANone)
	if !errors.Is(err, ErrChannelMismatch) {
		t.Fatalf("expected ErrChannelMismatch, got %v", err)
	}
}

func TestImportBaseDistance(t *testing.T) {
	s, root := newTestSession(t)
	desc := importDesc(t, root)

	for _, dist := range []int{-1, MaxBaseDist + 1} {
		_, _, err := s.Import(desc, ImportNUMARemote, dist, NUMANone)
		if !errors.Is(err, ErrBaseDistance) {
			t.Fatalf("dist %d: expected ErrBaseDistance, got %v", dist, err)
		}
	}

	// A preimport-backed import skips the base-distance check.
	called := false
	s.transact = func(req uintptr, arg unsafe.Pointer) error {
		called = true
		return nil
	}
	if _, _, err := s.Import(desc, ImportNUMARemote|ImportPreimport, -1, NUMANone); err != nil {
		t.Fatalf("preimport-backed import: %v", err)
	}
	if !called {
		t.Fatal("expected a device call")
	}
}

func TestImportNUMAHint(t *testing.T) {
	s, root := newTestSession(t)
	desc := importDesc(t, root)

	if _, _, err := s.Import(desc, 0, 0, -2); !errors.Is(err, ErrNUMAHint) {
		t.Fatalf("expected ErrNUMAHint, got %v", err)
	}
}

func TestImportNilArguments(t *testing.T) {
	s, _ := newTestSession(t)
	if _, _, err := s.Import(nil, 0, 0, NUMANone); !errors.Is(err, ErrNilDescriptor) {
		t.Fatalf("expected ErrNilDescriptor, got %v", err)
	}
	var nilSession *Session
	if _, _, err := nilSession.Import(&MemDesc{}, 0, 0, NUMANone); !errors.Is(err, ErrNilSession) {
		t.Fatalf("expected ErrNilSession, got %v", err)
	}
}

func TestUnimport(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.Unimport(InvalidMemID, 0); !errors.Is(err, ErrInvalidMemID) {
		t.Fatalf("expected ErrInvalidMemID, got %v", err)
	}

	var got devio.UnimportCmd
	s.transact = func(req uintptr, arg unsafe.Pointer) error {
		if req != devio.CmdUnimport {
			t.Fatalf("unexpected request %#x", req)
		}
		got = *(*devio.UnimportCmd)(arg)
		return nil
	}
	if err := s.Unimport(17, ImportPreimport); err != nil {
		t.Fatalf("Unimport: %v", err)
	}
	if got.MemID != 17 || got.Flags != uint64(ImportPreimport) {
		t.Fatalf("unexpected command: %+v", got)
	}
}
