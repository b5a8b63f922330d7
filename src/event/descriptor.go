package event

import (
	"fmt"

	"github.com/mosaicnetworks/murmur/src/roster"
)

// Descriptor references an event from another event, without holding on to
// it. It carries enough to decide whether the referenced event is ancient.
type Descriptor struct {
	Creator    roster.NodeID
	Hash       Hash
	Generation uint64
	BirthRound uint64
}

// Indicator returns the ancient indicator of the described event.
func (d Descriptor) Indicator(mode AncientMode) uint64 {
	if mode == BirthRoundThreshold {
		return d.BirthRound
	}
	return d.Generation
}

// String ...
func (d Descriptor) String() string {
	return fmt.Sprintf("(%d, %s, g=%d, br=%d)", d.Creator, d.Hash, d.Generation, d.BirthRound)
}
