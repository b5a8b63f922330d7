package state

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/roster"
)

// Provider gives access to the latest complete signed state, and installs
// states received from peers.
type Provider interface {
	LatestCompleteState() (*SignedState, bool)
	InstallState(*SignedState) error
}

// InmemProvider keeps the latest complete state in memory.
type InmemProvider struct {
	sync.RWMutex

	roster *roster.Roster
	latest *SignedState

	logger *logrus.Entry
}

// NewInmemProvider ...
func NewInmemProvider(r *roster.Roster, logger *logrus.Entry) *InmemProvider {
	return &InmemProvider{
		roster: r,
		logger: logger,
	}
}

// LatestCompleteState implements Provider.
func (p *InmemProvider) LatestCompleteState() (*SignedState, bool) {
	p.RLock()
	defer p.RUnlock()
	return p.latest, p.latest != nil
}

// LatestRound returns the round of the latest complete state, 0 if none.
func (p *InmemProvider) LatestRound() uint64 {
	p.RLock()
	defer p.RUnlock()
	if p.latest == nil {
		return 0
	}
	return p.latest.Round
}

// AddState records a state signed locally. It only replaces the latest state
// if it is complete and newer.
func (p *InmemProvider) AddState(s *SignedState) bool {
	p.Lock()
	defer p.Unlock()

	if p.latest != nil && s.Round <= p.latest.Round {
		return false
	}
	if !s.IsComplete(p.roster) {
		p.logger.WithFields(logrus.Fields{
			"round": s.Round,
			"sigs":  len(s.Signatures),
		}).Debug("State not complete")
		return false
	}

	p.latest = s
	return true
}

// InstallState implements Provider. The state is validated against the
// roster before it replaces the current one.
func (p *InmemProvider) InstallState(s *SignedState) error {
	p.Lock()
	defer p.Unlock()

	var minRound uint64
	if p.latest != nil {
		minRound = p.latest.Round
	}
	if err := s.Validate(p.roster, minRound); err != nil {
		return fmt.Errorf("installing state: %w", err)
	}

	p.latest = s

	p.logger.WithFields(logrus.Fields{
		"round": s.Round,
		"hash":  s.Hex(),
	}).Info("Installed state")

	return nil
}

// SetRoster replaces the roster used to judge completeness.
func (p *InmemProvider) SetRoster(r *roster.Roster) {
	p.Lock()
	defer p.Unlock()
	p.roster = r
}

// Roster ...
func (p *InmemProvider) Roster() *roster.Roster {
	p.RLock()
	defer p.RUnlock()
	return p.roster
}
