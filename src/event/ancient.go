package event

import (
	"fmt"
	"strings"
)

// AncientMode selects which event field is the ancient indicator. It is fixed
// for the lifetime of a network.
type AncientMode uint8

const (
	// GenerationThreshold uses the generation: one more than the highest
	// parent generation.
	GenerationThreshold AncientMode = iota
	// BirthRoundThreshold uses the round in which the event was created.
	BirthRoundThreshold
)

// GenesisIndicator is the indicator of events without parents, in both modes.
const GenesisIndicator uint64 = 1

var ancientModes = []string{"generation", "birth_round"}

// String ...
func (m AncientMode) String() string {
	if int(m) < len(ancientModes) {
		return ancientModes[m]
	}
	return fmt.Sprintf("AncientMode(%d)", m)
}

// ParseAncientMode is the inverse of String. Hyphens are read as
// underscores.
func ParseAncientMode(s string) (AncientMode, error) {
	norm := strings.ReplaceAll(s, "-", "_")
	for i, name := range ancientModes {
		if strings.EqualFold(norm, name) {
			return AncientMode(i), nil
		}
	}
	return GenerationThreshold, fmt.Errorf("unknown ancient mode %q", s)
}

// IndicatorOf returns the ancient indicator of an event.
func (m AncientMode) IndicatorOf(e *Event) uint64 {
	if m == BirthRoundThreshold {
		return e.Body.BirthRound
	}
	return e.Body.Generation
}

// GenesisIndicator returns the indicator assigned to events with no parents.
func (m AncientMode) GenesisIndicator() uint64 {
	return GenesisIndicator
}

// IsAncient returns true if the event is below the window's ancient
// threshold.
func (m AncientMode) IsAncient(e *Event, w Window) bool {
	return m.IndicatorOf(e) < w.AncientThreshold
}

// NextIndicators computes the generation and birth round of an event with the
// given parents. Parentless events get the genesis indicator. The birth round
// is never lower than floor, which is the window's new event birth round.
func NextIndicators(parents []Descriptor, floor uint64) (generation uint64, birthRound uint64) {
	if len(parents) == 0 {
		return GenesisIndicator, GenesisIndicator
	}

	var maxGen, maxRound uint64
	for _, p := range parents {
		if p.Generation > maxGen {
			maxGen = p.Generation
		}
		if p.BirthRound > maxRound {
			maxRound = p.BirthRound
		}
	}

	birthRound = maxRound + 1
	if floor > birthRound {
		birthRound = floor
	}

	return maxGen + 1, birthRound
}
