// Package topology resolves endpoint identifiers to local bus
// controller attributes by enumerating live sysfs state. Nothing is
// cached: topology can change between process runs, and these are
// control-plane lookups where correctness dominates latency.
package topology

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// MaxControllers bounds the candidate bus-controller slots scanned
	// during resolution.
	MaxControllers = 8

	// DefaultSysRoot is the directory the controller glob pattern is
	// anchored at.
	DefaultSysRoot = "/sys/devices"
)

var (
	// ErrControllerNotFound indicates no bus controller slot carries
	// the requested endpoint identifier.
	ErrControllerNotFound = errors.New("topology: no bus controller matches eid")
	// ErrBadAttribute indicates a controller attribute exists but is
	// unreadable or unparsable.
	ErrBadAttribute = errors.New("topology: bad controller attribute")
)

// EID is a 128-bit endpoint identifier, ordered little-endian and
// compared byte-for-byte.
type EID [16]byte

// IsZero reports whether e is the all-zero sentinel.
func (e EID) IsZero() bool {
	return e == EID{}
}

// String renders the identifier as the high and low 64-bit halves.
func (e EID) String() string {
	hi := binary.LittleEndian.Uint64(e[8:])
	lo := binary.LittleEndian.Uint64(e[:8])
	return fmt.Sprintf("%#x:%#x", hi, lo)
}

// MarshalJSON renders the identifier in the "hi:lo" string form.
func (e EID) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON accepts the "hi:lo" string form.
func (e *EID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEID(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ParseEID parses the "hi:lo" form produced by EID.String. Each half
// accepts decimal or 0x-hex. A bare single value is taken as the low
// half.
func ParseEID(s string) (EID, error) {
	var e EID
	hiStr, loStr, found := strings.Cut(s, ":")
	if !found {
		loStr, hiStr = hiStr, "0"
	}
	hi, err := strconv.ParseUint(strings.TrimSpace(hiStr), 0, 64)
	if err != nil {
		return EID{}, fmt.Errorf("topology: parse eid %q: %w", s, err)
	}
	lo, err := strconv.ParseUint(strings.TrimSpace(loStr), 0, 64)
	if err != nil {
		return EID{}, fmt.Errorf("topology: parse eid %q: %w", s, err)
	}
	binary.LittleEndian.PutUint64(e[:8], lo)
	binary.LittleEndian.PutUint64(e[8:], hi)
	return e, nil
}

// Node describes the bus controller a destination endpoint id resolved
// to. It is transient state, recomputed on every call.
type Node struct {
	// MappingIndex selects the IOMMU mapping the controller is wired
	// through.
	MappingIndex int
	// NUMA is the proximity node of the controller.
	NUMA int
}

// Controller is one populated bus-controller slot, as reported by List.
type Controller struct {
	Slot         int    `json:"slot"`
	EID          EID    `json:"eid"`
	MappingIndex int    `json:"ummu_map"`
	NUMA         int    `json:"numa"`
	PrimaryCNA   uint32 `json:"primary_cna"`
}

// Resolver maps endpoint identifiers to bus-controller attributes. The
// zero value scans under DefaultSysRoot. Resolver holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	// SysRoot overrides the sysfs directory scanned for controllers.
	// Intended for tests.
	SysRoot string
}

func (r *Resolver) root() string {
	if r != nil && r.SysRoot != "" {
		return r.SysRoot
	}
	return DefaultSysRoot
}

// ResolveNode locates the controller carrying eid and reads its IOMMU
// mapping index and NUMA node.
func (r *Resolver) ResolveNode(eid EID) (Node, error) {
	dir, _, err := r.findController(eid)
	if err != nil {
		return Node{}, err
	}
	mapping, err := readIntAttr(dir, "ummu_map")
	if err != nil {
		return Node{}, err
	}
	numa, err := readIntAttr(dir, "numa")
	if err != nil {
		return Node{}, err
	}
	return Node{MappingIndex: int(mapping), NUMA: int(numa)}, nil
}

// ResolveChannel reads only the primary channel number of the
// controller carrying eid. Import validation uses this entry point.
func (r *Resolver) ResolveChannel(eid EID) (uint32, error) {
	dir, _, err := r.findController(eid)
	if err != nil {
		return 0, err
	}
	cna, err := readIntAttr(dir, "primary_cna")
	if err != nil {
		return 0, err
	}
	return uint32(cna), nil
}

// List enumerates every populated controller slot in ascending order.
// Slots whose glob pattern matches nothing are skipped silently;
// populated slots with unreadable attributes fail the listing.
func (r *Resolver) List() ([]Controller, error) {
	var out []Controller
	for slot := 0; slot < MaxControllers; slot++ {
		dir, ok := r.controllerDir(slot)
		if !ok {
			continue
		}
		raw, err := readIntAttr(dir, "eid")
		if err != nil {
			return nil, err
		}
		mapping, err := readIntAttr(dir, "ummu_map")
		if err != nil {
			return nil, err
		}
		numa, err := readIntAttr(dir, "numa")
		if err != nil {
			return nil, err
		}
		cna, err := readIntAttr(dir, "primary_cna")
		if err != nil {
			return nil, err
		}
		out = append(out, Controller{
			Slot:         slot,
			EID:          eidFromAttr(raw),
			MappingIndex: int(mapping),
			NUMA:         int(numa),
			PrimaryCNA:   uint32(cna),
		})
	}
	return out, nil
}

// findController scans slots 0..MaxControllers-1 and returns the
// attribute directory of the first controller whose eid attribute
// matches. Empty slots are skipped; a populated slot with an
// unreadable eid fails the scan.
func (r *Resolver) findController(eid EID) (string, int, error) {
	for slot := 0; slot < MaxControllers; slot++ {
		dir, ok := r.controllerDir(slot)
		if !ok {
			continue
		}
		raw, err := readIntAttr(dir, "eid")
		if err != nil {
			return "", 0, err
		}
		sysfsEID := eidFromAttr(raw)
		if !bytes.Equal(sysfsEID[:], eid[:]) {
			continue
		}
		return dir, slot, nil
	}
	return "", 0, fmt.Errorf("%w: %s", ErrControllerNotFound, eid)
}

// controllerDir locates the attribute directory of one controller slot
// via the fixed glob pattern <root>/ub_bus_controller<slot>/*/ubc.
func (r *Resolver) controllerDir(slot int) (string, bool) {
	pattern := filepath.Join(r.root(), fmt.Sprintf("ub_bus_controller%d", slot), "*", "ubc")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return filepath.Dir(matches[0]), true
}

// eidFromAttr zero-extends the integer read from the eid attribute
// into the 16-byte identifier, low bytes first. The attribute is
// currently 32 bits wide; if it ever grows, this fixed-offset match
// would need revisiting.
func eidFromAttr(raw int64) EID {
	var e EID
	binary.LittleEndian.PutUint32(e[:4], uint32(raw))
	return e
}

// readIntAttr reads one plain-text integer attribute. Decimal and
// 0x-hex are both accepted; trailing text after the first token is
// ignored. Values outside the 32-bit range are rejected.
func readIntAttr(dir, name string) (int64, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrBadAttribute, path, err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrBadAttribute, path)
	}
	v, err := strconv.ParseInt(fields[0], 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %q from %s: %v", ErrBadAttribute, fields[0], path, err)
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("%w: value %d from %s overflows", ErrBadAttribute, v, path)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative value %d from %s", ErrBadAttribute, v, path)
	}
	return v, nil
}
