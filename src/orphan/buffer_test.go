package orphan

import (
	"math/rand"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/roster"
)

// buildDAG creates n events from the given number of creators. Every event
// has its creator's previous event as self-parent and a random other-parent.
func buildDAG(t *testing.T, rnd *rand.Rand, creators, n int) []*event.Event {
	t.Helper()

	latest := make(map[roster.NodeID]*event.Event)
	all := []*event.Event{}

	for i := 0; i < n; i++ {
		creator := roster.NodeID(rnd.Intn(creators) + 1)

		p := event.Params{
			Creator:     creator,
			TimeCreated: time.Unix(int64(i), 0),
		}
		if sp, ok := latest[creator]; ok {
			d := sp.Descriptor()
			p.SelfParent = &d
		}
		if len(all) > 0 {
			op := all[rnd.Intn(len(all))]
			if op.Creator() != creator {
				p.OtherParents = []event.Descriptor{op.Descriptor()}
			}
		}

		e, err := event.New(p)
		if err != nil {
			t.Fatal(err)
		}
		latest[creator] = e
		all = append(all, e)
	}

	return all
}

func checkReleaseOrder(t *testing.T, released []*event.Event, below func(event.Descriptor) bool) {
	t.Helper()

	seen := make(map[event.Hash]bool)
	for _, e := range released {
		if seen[e.Hash()] {
			t.Fatalf("event %s released twice", e.Hash())
		}
		for _, p := range e.Parents() {
			if !seen[p.Hash] && !below(p) {
				t.Fatalf("event %s released before its parent %s", e.Hash(), p.Hash)
			}
		}
		seen[e.Hash()] = true
	}
}

func TestChildBeforeParent(t *testing.T) {
	b := NewBuffer(event.GenerationThreshold, common.NewTestEntry(t, "orphan"))

	// a chain whose last parent has generation 5
	var parent *event.Event
	for i := 0; i < 5; i++ {
		p := event.Params{Creator: 1, TimeCreated: time.Unix(int64(i), 0)}
		if parent != nil {
			d := parent.Descriptor()
			p.SelfParent = &d
		}
		e, _ := event.New(p)
		if i < 4 {
			if out := b.HandleEvent(e); len(out) != 1 {
				t.Fatalf("event %d should be released immediately", i)
			}
		}
		parent = e
	}
	if parent.Generation() != 5 {
		t.Fatalf("parent generation should be 5, got %d", parent.Generation())
	}

	d := parent.Descriptor()
	child, _ := event.New(event.Params{Creator: 1, SelfParent: &d, TimeCreated: time.Now()})

	if out := b.HandleEvent(child); len(out) != 0 {
		t.Fatalf("child should be held")
	}
	if b.Size() != 1 {
		t.Fatalf("buffer should hold one orphan, holds %d", b.Size())
	}

	out := b.HandleEvent(parent)
	if len(out) != 2 || out[0] != parent || out[1] != child {
		t.Fatalf("expected parent then child, got %v", out)
	}
	if b.Size() != 0 {
		t.Fatalf("buffer should be empty")
	}

	// duplicates are dropped
	if out := b.HandleEvent(child); len(out) != 0 {
		t.Fatalf("duplicate should not be released again")
	}
}

func TestNoOrphanLeakage(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		rnd := rand.New(rand.NewSource(seed))
		events := buildDAG(t, rnd, 4, 60)

		shuffled := make([]*event.Event, len(events))
		copy(shuffled, events)
		rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		b := NewBuffer(event.GenerationThreshold, common.NewTestEntry(t, "orphan"))

		released := []*event.Event{}
		for _, e := range shuffled {
			released = append(released, b.HandleEvent(e)...)
		}

		if len(released) != len(events) {
			t.Fatalf("seed %d: released %d of %d events", seed, len(released), len(events))
		}
		checkReleaseOrder(t, released, func(event.Descriptor) bool { return false })

		if b.Size() != 0 {
			t.Fatalf("seed %d: %d events still held", seed, b.Size())
		}
	}
}

func TestMissingAncestorHoldsDescendants(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	events := buildDAG(t, rnd, 3, 40)

	// withhold one event; only the events that do not descend from it come out
	withheld := events[10]

	descendants := map[event.Hash]bool{withheld.Hash(): true}
	for _, e := range events {
		for _, p := range e.Parents() {
			if descendants[p.Hash] {
				descendants[e.Hash()] = true
			}
		}
	}

	b := NewBuffer(event.GenerationThreshold, common.NewTestEntry(t, "orphan"))

	released := []*event.Event{}
	for _, e := range events {
		if e == withheld {
			continue
		}
		released = append(released, b.HandleEvent(e)...)
	}

	for _, e := range released {
		if descendants[e.Hash()] {
			t.Fatalf("descendant %s of a missing event was released", e.Hash())
		}
	}
	if len(released)+len(descendants) != len(events) {
		t.Fatalf("released %d, expected %d", len(released), len(events)-len(descendants))
	}

	// delivering the missing event releases the rest
	rest := b.HandleEvent(withheld)
	if len(rest) != len(descendants) {
		t.Fatalf("expected %d events, got %d", len(descendants), len(rest))
	}
	checkReleaseOrder(t, append(released, rest...), func(event.Descriptor) bool { return false })
}

func TestWindowSatisfiesAncientParents(t *testing.T) {
	b := NewBuffer(event.GenerationThreshold, common.NewTestEntry(t, "orphan"))

	a0, _ := event.New(event.Params{Creator: 1, TimeCreated: time.Now()})
	d := a0.Descriptor()
	a1, _ := event.New(event.Params{Creator: 1, SelfParent: &d, TimeCreated: time.Now()})
	d = a1.Descriptor()
	a2, _ := event.New(event.Params{Creator: 1, SelfParent: &d, TimeCreated: time.Now()})

	// a0 never arrives
	if out := b.HandleEvent(a2); len(out) != 0 {
		t.Fatalf("a2 should be held")
	}
	if out := b.HandleEvent(a1); len(out) != 0 {
		t.Fatalf("a1 should be held")
	}

	// generation 1 becomes ancient: a1's parent is satisfied
	w, _ := event.NewWindow(1, 2, 2, 1, event.GenerationThreshold)
	out := b.SetEventWindow(w)
	if len(out) != 2 || out[0] != a1 || out[1] != a2 {
		t.Fatalf("expected a1 then a2, got %v", out)
	}

	// a late a0 is ancient and dropped
	if out := b.HandleEvent(a0); len(out) != 0 {
		t.Fatalf("ancient event should be dropped")
	}
}

func TestWindowEvictsAncientOrphans(t *testing.T) {
	b := NewBuffer(event.GenerationThreshold, common.NewTestEntry(t, "orphan"))

	a0, _ := event.New(event.Params{Creator: 1, TimeCreated: time.Now()})
	d := a0.Descriptor()
	a1, _ := event.New(event.Params{Creator: 1, SelfParent: &d, TimeCreated: time.Now()})
	d = a1.Descriptor()
	a2, _ := event.New(event.Params{Creator: 1, SelfParent: &d, TimeCreated: time.Now()})
	d = a2.Descriptor()
	a3, _ := event.New(event.Params{Creator: 1, SelfParent: &d, TimeCreated: time.Now()})

	b.HandleEvent(a1)
	b.HandleEvent(a3)
	if b.Size() != 2 {
		t.Fatalf("two orphans expected, got %d", b.Size())
	}

	// generations 1 and 2 ancient: a1 is evicted, a3 still waits for a2 (gen 3)
	w, _ := event.NewWindow(2, 3, 3, 1, event.GenerationThreshold)
	if out := b.SetEventWindow(w); len(out) != 0 {
		t.Fatalf("nothing should be released, got %v", out)
	}
	if b.Size() != 1 {
		t.Fatalf("one orphan expected, got %d", b.Size())
	}

	out := b.HandleEvent(a2)
	if len(out) != 2 || out[0] != a2 || out[1] != a3 {
		t.Fatalf("expected a2 then a3, got %v", out)
	}

	b.Clear()
	if b.Size() != 0 {
		t.Fatalf("Clear should empty the buffer")
	}
}
