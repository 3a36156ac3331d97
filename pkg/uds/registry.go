package uds

import "github.com/albenik/bcd"

// Common data identifiers served by the emulator.
const (
	DIDManufacturingDate uint16 = 0xF18B
	DIDSerialNumber      uint16 = 0xF18C
	DIDVIN               uint16 = 0xF190
	DIDHardwareVersion   uint16 = 0xF191
	DIDSoftwareVersion   uint16 = 0xF195
)

// Registry maps data identifiers to their payloads. It is populated once at
// construction and read-only afterwards, like the fixed data set of a real
// ECU, so lookups need no locking.
type Registry struct {
	entries map[uint16][]byte
}

// NewRegistry copies the given table into an immutable registry.
func NewRegistry(entries map[uint16][]byte) *Registry {
	m := make(map[uint16][]byte, len(entries))
	for id, payload := range entries {
		p := make([]byte, len(payload))
		copy(p, payload)
		m[id] = p
	}
	return &Registry{entries: m}
}

// DefaultRegistry holds the FuzzCAN bench vehicle's identification data.
func DefaultRegistry() *Registry {
	return NewRegistry(map[uint16][]byte{
		DIDVIN:               []byte("FUCYTECH-VIN-0001"),
		DIDSerialNumber:      []byte("FZC-ECU-SN-00042"),
		DIDHardwareVersion:   []byte("FZC-HW-1.2"),
		DIDSoftwareVersion:   []byte("FZC-SW-0.9.3"),
		DIDManufacturingDate: bcd.FromUint32(20241127), // YYYYMMDD
	})
}

// Lookup returns the payload for an identifier. The returned slice must not
// be modified.
func (r *Registry) Lookup(id uint16) ([]byte, bool) {
	payload, ok := r.entries[id]
	return payload, ok
}

// Len returns the number of registered identifiers.
func (r *Registry) Len() int {
	return len(r.entries)
}
