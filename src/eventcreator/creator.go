package eventcreator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
)

// Creator is what the Manager needs from an event creator.
type Creator interface {
	MaybeCreateEvent() (*event.Event, error)
	RegisterEvent(e *event.Event)
	SetEventWindow(w event.Window)
	Clear()
}

// CreatorConfig ...
type CreatorConfig struct {
	// MaxOtherParents is the maximum number of other-parents of an event.
	MaxOtherParents int

	// MaxIdleInterval is how long the creator waits, with transactions
	// pending, before creating an event that advances nobody.
	MaxIdleInterval time.Duration
}

// DefaultCreatorConfig ...
func DefaultCreatorConfig() CreatorConfig {
	return CreatorConfig{
		MaxOtherParents: 1,
		MaxIdleInterval: time.Second,
	}
}

// TipsetEventCreator creates the self-events of the local node.
type TipsetEventCreator struct {
	config   CreatorConfig
	selfID   roster.NodeID
	roster   *roster.Roster
	signer   event.Signer
	supplier TransactionSupplier
	clock    func() time.Time

	window    event.Window
	tracker   *TipsetTracker
	childless *ChildlessEventTracker

	lastSelfEvent *event.Event
	lastCreation  time.Time

	// transactions pulled by an attempt that failed, carried to the next one
	carried [][]byte

	logger *logrus.Entry
}

// NewTipsetEventCreator ...
func NewTipsetEventCreator(
	config CreatorConfig,
	selfID roster.NodeID,
	r *roster.Roster,
	mode event.AncientMode,
	signer event.Signer,
	supplier TransactionSupplier,
	clock func() time.Time,
	logger *logrus.Entry) *TipsetEventCreator {

	if config.MaxOtherParents < 1 {
		config.MaxOtherParents = 1
	}
	if clock == nil {
		clock = time.Now
	}

	return &TipsetEventCreator{
		config:    config,
		selfID:    selfID,
		roster:    r,
		signer:    signer,
		supplier:  supplier,
		clock:     clock,
		window:    event.GenesisWindow(mode),
		tracker:   NewTipsetTracker(r, mode, logger),
		childless: NewChildlessEventTracker(),
		logger:    logger,
	}
}

// RegisterEvent feeds an event, local or remote, into the tipsets. Events
// must be registered in topological order.
func (c *TipsetEventCreator) RegisterEvent(e *event.Event) {
	if !c.roster.Contains(e.Creator()) {
		c.logger.WithField("creator", e.Creator()).Debug("Ignoring event from unknown creator")
		return
	}
	if c.window.IsAncient(e) {
		return
	}

	c.tracker.AddEvent(e)
	c.childless.AddEvent(e.Descriptor(), e.Parents())

	// own events loaded from elsewhere, e.g. after a reconnect
	if e.Creator() == c.selfID &&
		(c.lastSelfEvent == nil || e.Generation() > c.lastSelfEvent.Generation()) {
		c.lastSelfEvent = e
	}
}

// SetEventWindow ...
func (c *TipsetEventCreator) SetEventWindow(w event.Window) {
	c.window = w
	c.tracker.SetEventWindow(w)
	c.childless.PruneOldEvents(w)
}

// Clear resets everything but the window.
func (c *TipsetEventCreator) Clear() {
	c.tracker.Clear()
	c.childless.Clear()
	c.lastSelfEvent = nil
	c.lastCreation = time.Time{}
	c.carried = nil
}

// LastSelfEvent ...
func (c *TipsetEventCreator) LastSelfEvent() *event.Event {
	return c.lastSelfEvent
}

// MaybeCreateEvent creates a signed self-event if one is worth creating, and
// returns nil otherwise. Errors are never fatal: the attempt is abandoned and
// may be retried on the next tick.
func (c *TipsetEventCreator) MaybeCreateEvent() (*event.Event, error) {
	now := c.clock()

	otherParents, score := c.selectOtherParents()

	create := false
	switch {
	case c.lastSelfEvent == nil:
		create = true
	case c.roster.Len() == 1:
		create = true
	case score > 0:
		create = true
	case c.hasPending() && now.Sub(c.lastCreation) >= c.config.MaxIdleInterval:
		c.logger.Debug("Creating idle event for pending transactions")
		create = true
	}

	if !create {
		return nil, nil
	}

	return c.buildEvent(otherParents, now)
}

// AdvancementScore is the weight that selecting candidate as other-parent
// would add to the tipset of the last self-event.
func (c *TipsetEventCreator) AdvancementScore(candidate event.Descriptor) uint64 {
	ts, ok := c.tracker.Get(candidate.Hash)
	if !ok {
		return 0
	}
	base := c.selfTipset()
	return base.AdvancementWeight(MergeTipsets(c.roster, base, ts))
}

// selectOtherParents greedily picks the candidates with the highest
// advancement scores. Candidates are sorted by creator, and a later candidate
// only wins with a strictly higher score, so ties go to the smallest creator.
func (c *TipsetEventCreator) selectOtherParents() ([]event.Descriptor, uint64) {
	candidates := []event.Descriptor{}
	for _, d := range c.childless.ChildlessEvents() {
		if d.Creator == c.selfID || c.window.IsAncientDescriptor(d) {
			continue
		}
		if _, ok := c.tracker.Get(d.Hash); !ok {
			continue
		}
		candidates = append(candidates, d)
	}

	base := c.selfTipset()

	var chosen []event.Descriptor
	var total uint64

	for len(chosen) < c.config.MaxOtherParents && len(candidates) > 0 {
		best := -1
		var bestScore uint64
		var bestTipset *Tipset

		for i, d := range candidates {
			ts, _ := c.tracker.Get(d.Hash)
			merged := MergeTipsets(c.roster, base, ts)
			score := base.AdvancementWeight(merged)
			if score > bestScore {
				best, bestScore, bestTipset = i, score, merged
			}
		}

		if best < 0 {
			break
		}

		chosen = append(chosen, candidates[best])
		total += bestScore
		base = bestTipset
		candidates = append(candidates[:best], candidates[best+1:]...)
	}

	return chosen, total
}

// selfTipset returns the tipset of the last self-event, computing it if the
// event was not registered yet.
func (c *TipsetEventCreator) selfTipset() *Tipset {
	if c.lastSelfEvent == nil {
		return NewTipset(c.roster)
	}
	if ts, ok := c.tracker.Get(c.lastSelfEvent.Hash()); ok {
		return ts
	}
	return c.tracker.Compute(c.lastSelfEvent)
}

func (c *TipsetEventCreator) hasPending() bool {
	return len(c.carried) > 0 || c.supplier.HasPending()
}

func (c *TipsetEventCreator) buildEvent(otherParents []event.Descriptor, now time.Time) (*event.Event, error) {
	if len(c.carried) == 0 {
		c.carried = c.supplier.Pull()
	}

	var selfParent *event.Descriptor
	if c.lastSelfEvent != nil {
		d := c.lastSelfEvent.Descriptor()
		selfParent = &d

		// creation times strictly increase along the self-parent chain
		if !now.After(c.lastSelfEvent.TimeCreated()) {
			now = c.lastSelfEvent.TimeCreated().Add(time.Nanosecond)
		}
	}

	ev, err := event.New(event.Params{
		Creator:         c.selfID,
		SelfParent:      selfParent,
		OtherParents:    otherParents,
		BirthRoundFloor: c.window.NewEventBirthRound,
		TimeCreated:     now,
		Transactions:    c.carried,
	})
	if err != nil {
		return nil, err
	}

	if err := ev.Sign(c.signer); err != nil {
		c.logger.WithError(err).Warn("Failed to sign event, will retry")
		return nil, err
	}

	c.carried = nil
	c.lastSelfEvent = ev
	c.lastCreation = now

	c.logger.WithFields(logrus.Fields{
		"hash":          ev.Hash(),
		"generation":    ev.Generation(),
		"other_parents": len(otherParents),
		"txs":           len(ev.Transactions()),
	}).Debug("Created event")

	return ev, nil
}
