package obmm

import (
	"github.com/rocketbitz/obmm-go/internal/devio"
	"github.com/rocketbitz/obmm-go/topology"
)

// MemID is the opaque 64-bit handle of an export or import
// transaction.
type MemID uint64

// InvalidMemID is the reserved sentinel; the device never assigns it.
const InvalidMemID MemID = 0

// EID re-exports the endpoint identifier type for consumers of the
// obmm package.
type EID = topology.EID

// Protocol limits re-exported from the device layer.
const (
	EIDSize           = devio.EIDSize
	MaxLocalNUMANodes = devio.MaxLocalNUMANodes
	MaxVendorLen      = devio.MaxVendorLen
)

const (
	// NUMANone is the dedicated "no NUMA preference" sentinel. It is
	// the only negative value import and preimport accept.
	NUMANone = -1

	// MaxBaseDist bounds the base-distance hint for NUMA-remote
	// imports.
	MaxBaseDist = 255
)

// ExportFlag controls export behaviour.
type ExportFlag uint64

const (
	// ExportAllowMmap permits mapping the exported region locally.
	ExportAllowMmap ExportFlag = 1 << 0
	// ExportRemoteNUMA exposes the region to remote NUMA nodes.
	ExportRemoteNUMA ExportFlag = 1 << 1
)

// UnexportFlag controls export teardown.
type UnexportFlag uint64

// UnexportForce tears the export down even with importers attached.
const UnexportForce UnexportFlag = 1 << 0

// ImportFlag controls import and preimport behaviour.
type ImportFlag uint64

const (
	// ImportNUMARemote attaches the region on a remote NUMA node;
	// without ImportPreimport it requires a base distance in
	// [0, MaxBaseDist].
	ImportNUMARemote ImportFlag = 1 << 0
	// ImportPreimport satisfies the import from a previously declared
	// preimport reservation.
	ImportPreimport ImportFlag = 1 << 1
)

// PrivFlag is the vocabulary of the 16-bit private data word carried
// in descriptor private bytes.
type PrivFlag uint16

const (
	// PrivOChip marks the owner chip.
	PrivOChip PrivFlag = 1 << 5
	// PrivCacheable marks the region cacheable.
	PrivCacheable PrivFlag = 1 << 6
)

// Bytes encodes the flag word as descriptor private bytes,
// little-endian.
func (f PrivFlag) Bytes() []byte {
	return []byte{byte(f), byte(f >> 8)}
}

// MemDesc describes an exported memory region. Export produces and
// updates it; import consumes it unmodified. Descriptors travel
// between nodes as JSON (see WriteDescFile).
type MemDesc struct {
	// Addr is the exported region's bus address, set by export.
	Addr uint64 `json:"addr"`
	// Length is the region extent in bytes.
	Length uint64 `json:"length"`
	// SEID identifies the source endpoint.
	SEID EID `json:"seid"`
	// DEID identifies the destination endpoint. Export requires it to
	// be non-zero.
	DEID EID `json:"deid"`
	// TokenID is the access token assigned by export.
	TokenID uint32 `json:"tokenid"`
	// SCNA and DCNA record the source and destination channel numbers.
	SCNA uint32 `json:"scna"`
	DCNA uint32 `json:"dcna"`
	// Priv carries opaque private bytes forwarded to the device.
	Priv []byte `json:"priv_data,omitempty"`
}

// PreimportDesc describes a physical-memory reservation for a future
// import.
type PreimportDesc struct {
	// PA is the physical address of the reserved range.
	PA uint64 `json:"pa"`
	// Length is the reservation extent in bytes.
	Length uint64 `json:"length"`
	// BaseDist is the NUMA base-distance hint, bounded to
	// [0, MaxBaseDist].
	BaseDist int `json:"base_dist"`
	// NUMA is the placement hint going in and the assigned node coming
	// out of DeclarePreimport. NUMANone means no preference.
	NUMA int    `json:"numa_id"`
	SEID EID    `json:"seid"`
	DEID EID    `json:"deid"`
	SCNA uint32 `json:"scna"`
	DCNA uint32 `json:"dcna"`
	Priv []byte `json:"priv_data,omitempty"`
}
