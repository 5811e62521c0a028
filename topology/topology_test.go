package topology

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// writeController populates one fake bus-controller slot under root
// with the given attribute values.
func writeController(t *testing.T, root string, slot int, attrs map[string]string) {
	t.Helper()
	dir := filepath.Join(root, "ub_bus_controller"+strconv.Itoa(slot), "dev0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir controller %d: %v", slot, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ubc"), nil, 0o644); err != nil {
		t.Fatalf("write ubc marker: %v", err)
	}
	for name, val := range attrs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(val), 0o644); err != nil {
			t.Fatalf("write attr %s: %v", name, err)
		}
	}
}

func eidFromUint32(v uint32) EID {
	return eidFromAttr(int64(v))
}

func TestResolveNode(t *testing.T) {
	root := t.TempDir()
	writeController(t, root, 0, map[string]string{
		"eid": "0x2a", "ummu_map": "3", "numa": "1", "primary_cna": "7",
	})

	r := &Resolver{SysRoot: root}
	node, err := r.ResolveNode(eidFromUint32(0x2a))
	if err != nil {
		t.Fatalf("ResolveNode: %v", err)
	}
	if node.MappingIndex != 3 || node.NUMA != 1 {
		t.Fatalf("unexpected node: %+v", node)
	}
}

func TestResolveChannel(t *testing.T) {
	root := t.TempDir()
	writeController(t, root, 2, map[string]string{
		"eid": "99", "ummu_map": "0", "numa": "0", "primary_cna": "0x11",
	})

	r := &Resolver{SysRoot: root}
	cna, err := r.ResolveChannel(eidFromUint32(99))
	if err != nil {
		t.Fatalf("ResolveChannel: %v", err)
	}
	if cna != 0x11 {
		t.Fatalf("unexpected cna: got %#x want 0x11", cna)
	}
}

func TestResolveNotFound(t *testing.T) {
	root := t.TempDir()
	writeController(t, root, 0, map[string]string{
		"eid": "1", "ummu_map": "0", "numa": "0", "primary_cna": "0",
	})

	r := &Resolver{SysRoot: root}
	if _, err := r.ResolveNode(eidFromUint32(2)); !errors.Is(err, ErrControllerNotFound) {
		t.Fatalf("expected ErrControllerNotFound, got %v", err)
	}
	if _, err := r.ResolveChannel(eidFromUint32(2)); !errors.Is(err, ErrControllerNotFound) {
		t.Fatalf("expected ErrControllerNotFound, got %v", err)
	}
}

func TestResolveEmptySysRoot(t *testing.T) {
	r := &Resolver{SysRoot: t.TempDir()}
	if _, err := r.ResolveNode(eidFromUint32(1)); !errors.Is(err, ErrControllerNotFound) {
		t.Fatalf("expected ErrControllerNotFound for empty tree, got %v", err)
	}
}

func TestResolveFirstSlotWins(t *testing.T) {
	root := t.TempDir()
	// Two slots carry the same eid; ascending slot order decides.
	writeController(t, root, 3, map[string]string{
		"eid": "5", "ummu_map": "1", "numa": "0", "primary_cna": "0",
	})
	writeController(t, root, 1, map[string]string{
		"eid": "5", "ummu_map": "2", "numa": "1", "primary_cna": "0",
	})

	r := &Resolver{SysRoot: root}
	node, err := r.ResolveNode(eidFromUint32(5))
	if err != nil {
		t.Fatalf("ResolveNode: %v", err)
	}
	if node.MappingIndex != 2 {
		t.Fatalf("expected slot 1 to win, got mapping index %d", node.MappingIndex)
	}
}

func TestResolveSkipsEmptySlots(t *testing.T) {
	root := t.TempDir()
	// Slot 0 and 1 absent, slot 4 populated.
	writeController(t, root, 4, map[string]string{
		"eid": "7", "ummu_map": "6", "numa": "2", "primary_cna": "3",
	})

	r := &Resolver{SysRoot: root}
	node, err := r.ResolveNode(eidFromUint32(7))
	if err != nil {
		t.Fatalf("ResolveNode: %v", err)
	}
	if node.MappingIndex != 6 || node.NUMA != 2 {
		t.Fatalf("unexpected node: %+v", node)
	}
}

func TestResolveBadAttribute(t *testing.T) {
	root := t.TempDir()
	writeController(t, root, 0, map[string]string{
		"eid": "not-a-number", "ummu_map": "0", "numa": "0", "primary_cna": "0",
	})

	r := &Resolver{SysRoot: root}
	if _, err := r.ResolveNode(eidFromUint32(1)); !errors.Is(err, ErrBadAttribute) {
		t.Fatalf("expected ErrBadAttribute, got %v", err)
	}
}

func TestResolveMissingAttribute(t *testing.T) {
	root := t.TempDir()
	writeController(t, root, 0, map[string]string{
		"eid": "12", "numa": "0", "primary_cna": "0",
	})

	r := &Resolver{SysRoot: root}
	if _, err := r.ResolveNode(eidFromUint32(12)); !errors.Is(err, ErrBadAttribute) {
		t.Fatalf("expected ErrBadAttribute for missing ummu_map, got %v", err)
	}
}

func TestAttributeParsing(t *testing.T) {
	root := t.TempDir()
	// Trailing newline and stray token after the value are tolerated.
	writeController(t, root, 0, map[string]string{
		"eid": "0x10\n", "ummu_map": "4 extra", "numa": "1\n", "primary_cna": "2",
	})

	r := &Resolver{SysRoot: root}
	node, err := r.ResolveNode(eidFromUint32(0x10))
	if err != nil {
		t.Fatalf("ResolveNode: %v", err)
	}
	if node.MappingIndex != 4 || node.NUMA != 1 {
		t.Fatalf("unexpected node: %+v", node)
	}
}

func TestAttributeOverflow(t *testing.T) {
	root := t.TempDir()
	writeController(t, root, 0, map[string]string{
		"eid": "0x1ffffffff", "ummu_map": "0", "numa": "0", "primary_cna": "0",
	})

	r := &Resolver{SysRoot: root}
	if _, err := r.ResolveNode(eidFromUint32(1)); !errors.Is(err, ErrBadAttribute) {
		t.Fatalf("expected ErrBadAttribute for overflow, got %v", err)
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	writeController(t, root, 0, map[string]string{
		"eid": "1", "ummu_map": "0", "numa": "0", "primary_cna": "4",
	})
	writeController(t, root, 5, map[string]string{
		"eid": "2", "ummu_map": "3", "numa": "1", "primary_cna": "9",
	})

	r := &Resolver{SysRoot: root}
	ctls, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ctls) != 2 {
		t.Fatalf("expected 2 controllers, got %d", len(ctls))
	}
	if ctls[0].Slot != 0 || ctls[1].Slot != 5 {
		t.Fatalf("unexpected slot order: %+v", ctls)
	}
	if ctls[1].MappingIndex != 3 || ctls[1].NUMA != 1 || ctls[1].PrimaryCNA != 9 {
		t.Fatalf("unexpected controller attributes: %+v", ctls[1])
	}
}

func TestEIDString(t *testing.T) {
	e := eidFromUint32(0x2a)
	if got := e.String(); got != "0x0:0x2a" {
		t.Fatalf("unexpected rendering: %q", got)
	}
}

func TestParseEID(t *testing.T) {
	e, err := ParseEID("0x0:0x2a")
	if err != nil {
		t.Fatalf("ParseEID: %v", err)
	}
	if e != eidFromUint32(0x2a) {
		t.Fatalf("unexpected eid: %v", e)
	}

	bare, err := ParseEID("42")
	if err != nil {
		t.Fatalf("ParseEID bare: %v", err)
	}
	if bare != eidFromUint32(42) {
		t.Fatalf("unexpected bare eid: %v", bare)
	}

	if _, err := ParseEID("nope"); err == nil {
		t.Fatal("expected error for malformed eid")
	}
}

func TestEIDJSON(t *testing.T) {
	e, err := ParseEID("0xbeef:0x1")
	if err != nil {
		t.Fatalf("ParseEID: %v", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"0xbeef:0x1"` {
		t.Fatalf("unexpected JSON: %s", data)
	}
	var back EID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != e {
		t.Fatalf("round trip mismatch: %v vs %v", back, e)
	}
}

func TestParseEIDRoundTrip(t *testing.T) {
	orig, err := ParseEID("0xdeadbeef:0x1234")
	if err != nil {
		t.Fatalf("ParseEID: %v", err)
	}
	back, err := ParseEID(orig.String())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if back != orig {
		t.Fatalf("round trip mismatch: %v vs %v", orig, back)
	}
}
