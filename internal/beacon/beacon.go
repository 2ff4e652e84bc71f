// Package beacon defines the wire-level beacon record exchanged by buoys
// and the deterministic size formula used to derive airtime from bit rate.
package beacon

import (
	"github.com/google/uuid"
)

// Wire-format size constants. A beacon carries a fixed header plus one
// neighbor-list entry per known neighbor.
const (
	// BaseSizeBytes is the fixed wire charge for the beacon header (sender
	// id, position, velocity, timestamp and framing). It is a format
	// constant, not the sum of the in-memory sizes of Beacon's Go fields.
	BaseSizeBytes = 37

	// NeighborEntrySizeBytes is the wire charge for each neighbor-list
	// entry (id, last-seen timestamp and position). Like BaseSizeBytes it
	// is a format constant, not the sum of NeighborInfo's Go field sizes.
	NeighborEntrySizeBytes = 28

	bitsPerByte = 8
)

// NeighborInfo is a single entry in a beacon's neighbor-list payload — a
// snapshot of one contact the sender currently tracks.
type NeighborInfo struct {
	ID       uuid.UUID
	LastSeen float64
	X, Y     float64
}

// Beacon is the single wire record this protocol exchanges. There is only
// one beacon shape; it carries no authentication, fragmentation, or
// encapsulation layers.
type Beacon struct {
	SenderID  uuid.UUID
	X, Y      float64
	VX, VY    float64
	Timestamp float64
	Neighbors []NeighborInfo
}

// SizeBits returns the on-wire size of b in bits: a fixed base plus one
// neighbor-entry charge per tracked neighbor.
func (b Beacon) SizeBits() int {
	bytes := BaseSizeBytes + len(b.Neighbors)*NeighborEntrySizeBytes
	return bytes * bitsPerByte
}

// TransmitDuration returns how long, in simulated seconds, putting b on
// the wire takes at the given bit rate (bits per second).
func (b Beacon) TransmitDuration(bitRatePerSecond float64) float64 {
	if bitRatePerSecond <= 0 {
		return 0
	}
	return float64(b.SizeBits()) / bitRatePerSecond
}
