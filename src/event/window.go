package event

import (
	"fmt"
)

// Window bounds the set of non-ancient events. Events whose indicator is below
// AncientThreshold are ancient: they no longer matter to consensus. Events
// below ExpiredThreshold are no longer kept or gossiped at all. Only the
// consensus collaborator produces new windows.
type Window struct {
	LatestConsensusRound uint64
	NewEventBirthRound   uint64
	AncientThreshold     uint64
	ExpiredThreshold     uint64
	Mode                 AncientMode
}

// NewWindow ...
func NewWindow(latestConsensusRound, newEventBirthRound, ancientThreshold, expiredThreshold uint64, mode AncientMode) (Window, error) {
	w := Window{
		LatestConsensusRound: latestConsensusRound,
		NewEventBirthRound:   newEventBirthRound,
		AncientThreshold:     ancientThreshold,
		ExpiredThreshold:     expiredThreshold,
		Mode:                 mode,
	}
	if expiredThreshold > ancientThreshold {
		return w, fmt.Errorf("expired threshold %d above ancient threshold %d", expiredThreshold, ancientThreshold)
	}
	return w, nil
}

// GenesisWindow is the window before any round reached consensus. Nothing is
// ancient.
func GenesisWindow(mode AncientMode) Window {
	return Window{
		LatestConsensusRound: 0,
		NewEventBirthRound:   GenesisIndicator,
		AncientThreshold:     GenesisIndicator,
		ExpiredThreshold:     GenesisIndicator,
		Mode:                 mode,
	}
}

// IsAncient ...
func (w Window) IsAncient(e *Event) bool {
	return w.Mode.IsAncient(e, w)
}

// IsAncientDescriptor ...
func (w Window) IsAncientDescriptor(d Descriptor) bool {
	return d.Indicator(w.Mode) < w.AncientThreshold
}

// IsAncientIndicator ...
func (w Window) IsAncientIndicator(indicator uint64) bool {
	return indicator < w.AncientThreshold
}

// IsExpired ...
func (w Window) IsExpired(e *Event) bool {
	return w.Mode.IndicatorOf(e) < w.ExpiredThreshold
}

// IsExpiredIndicator ...
func (w Window) IsExpiredIndicator(indicator uint64) bool {
	return indicator < w.ExpiredThreshold
}

// String ...
func (w Window) String() string {
	return fmt.Sprintf("Window{round=%d, newBirthRound=%d, ancient=%d, expired=%d, mode=%s}",
		w.LatestConsensusRound, w.NewEventBirthRound, w.AncientThreshold, w.ExpiredThreshold, w.Mode)
}
