package eventcreator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/status"
)

// ManagerConfig ...
type ManagerConfig struct {
	// MaxCreationRate is the maximum number of events per second. Zero
	// disables the limit.
	MaxCreationRate float64

	// UnhealthyThreshold vetoes creation when the reported unhealthy duration
	// exceeds it. Zero disables the check.
	UnhealthyThreshold time.Duration
}

// Manager decides whether the creator may create an event now.
type Manager struct {
	config  ManagerConfig
	creator Creator
	limiter *RateLimiter
	clock   func() time.Time

	platformStatus    status.PlatformStatus
	quiescence        status.QuiescenceCommand
	unhealthyDuration time.Duration
	squelched         bool

	logger *logrus.Entry
}

// NewManager ...
func NewManager(config ManagerConfig, creator Creator, clock func() time.Time, logger *logrus.Entry) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		config:         config,
		creator:        creator,
		limiter:        NewRateLimiter(config.MaxCreationRate),
		clock:          clock,
		platformStatus: status.Starting,
		quiescence:     status.DontQuiesce,
		logger:         logger,
	}
}

// Tick attempts to create an event. A created event is registered with the
// creator before it is returned, so it weighs on the next decision.
func (m *Manager) Tick() *event.Event {
	if m.squelched {
		return nil
	}

	now := m.clock()
	if !m.mayCreate(now) {
		return nil
	}

	ev, err := m.creator.MaybeCreateEvent()
	if err != nil {
		m.logger.WithError(err).Debug("Event creation attempt abandoned")
		return nil
	}
	if ev == nil {
		return nil
	}

	m.limiter.Record(now)
	m.creator.RegisterEvent(ev)

	return ev
}

func (m *Manager) mayCreate(now time.Time) bool {
	if m.platformStatus != status.Active {
		return false
	}
	if m.quiescence == status.Quiesce {
		return false
	}
	if m.config.UnhealthyThreshold > 0 && m.unhealthyDuration > m.config.UnhealthyThreshold {
		return false
	}
	return m.limiter.Allow(now)
}

// RegisterEvent forwards a released event to the creator.
func (m *Manager) RegisterEvent(e *event.Event) {
	if m.squelched {
		return
	}
	m.creator.RegisterEvent(e)
}

// SetEventWindow ...
func (m *Manager) SetEventWindow(w event.Window) {
	if m.squelched {
		return
	}
	m.creator.SetEventWindow(w)
}

// UpdatePlatformStatus ...
func (m *Manager) UpdatePlatformStatus(s status.PlatformStatus) {
	if s != m.platformStatus {
		m.logger.WithFields(logrus.Fields{
			"from": m.platformStatus,
			"to":   s,
		}).Debug("Platform status changed")
	}
	m.platformStatus = s
}

// SetQuiescence ...
func (m *Manager) SetQuiescence(q status.QuiescenceCommand) {
	m.quiescence = q
}

// ReportUnhealthyDuration records how long the node has been unhealthy. Zero
// means healthy.
func (m *Manager) ReportUnhealthyDuration(d time.Duration) {
	m.unhealthyDuration = d
}

// Squelch drops all inputs and stops creation until Unsquelch, without
// touching the internal state.
func (m *Manager) Squelch() {
	m.squelched = true
}

// Unsquelch ...
func (m *Manager) Unsquelch() {
	m.squelched = false
}

// Squelched ...
func (m *Manager) Squelched() bool {
	return m.squelched
}

// Clear resets the creator and the rate limiter.
func (m *Manager) Clear() {
	m.creator.Clear()
	m.limiter.Reset()
}
