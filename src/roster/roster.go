package roster

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/crypto"
)

// Roster is an immutable set of members forming a network. Entries are kept
// sorted by NodeID so that indexes are identical on every node.
type Roster struct {
	Entries []*Entry `json:"entries"`

	byID        map[NodeID]int
	totalWeight uint64

	//cached values
	hash []byte
	hex  string
}

// NewRoster creates a Roster from a list of entries. It fails on duplicate
// node ids.
func NewRoster(entries []*Entry) (*Roster, error) {
	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NodeID < sorted[j].NodeID })

	r := &Roster{
		Entries: sorted,
		byID:    make(map[NodeID]int, len(sorted)),
	}

	for i, e := range sorted {
		if _, ok := r.byID[e.NodeID]; ok {
			return nil, fmt.Errorf("duplicate node id %d in roster", e.NodeID)
		}
		r.byID[e.NodeID] = i
		r.totalWeight += e.Weight
	}

	if len(sorted) > 0 && r.totalWeight == 0 {
		return nil, fmt.Errorf("roster with %d entries has no weight", len(sorted))
	}

	return r, nil
}

// MustNewRoster is NewRoster for static, known-good inputs. It panics on
// error.
func MustNewRoster(entries []*Entry) *Roster {
	r, err := NewRoster(entries)
	if err != nil {
		panic(err)
	}
	return r
}

// WithNewEntry returns a new Roster including the entry. An entry whose id
// already exists is ignored, replacing a member requires removing it first.
func (r *Roster) WithNewEntry(entry *Entry) (*Roster, error) {
	entries := make([]*Entry, 0, len(r.Entries)+1)
	entries = append(entries, r.Entries...)
	if !r.Contains(entry.NodeID) {
		entries = append(entries, entry)
	}
	return NewRoster(entries)
}

// WithRemovedEntry returns a new Roster excluding the given node.
func (r *Roster) WithRemovedEntry(id NodeID) (*Roster, error) {
	entries := make([]*Entry, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.NodeID != id {
			entries = append(entries, e)
		}
	}
	return NewRoster(entries)
}

/*******************************************************************************
Lookups
*******************************************************************************/

// Len returns the number of members.
func (r *Roster) Len() int {
	return len(r.Entries)
}

// Contains ...
func (r *Roster) Contains(id NodeID) bool {
	_, ok := r.byID[id]
	return ok
}

// Entry returns the entry of a member, if it exists.
func (r *Roster) Entry(id NodeID) (*Entry, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.Entries[i], true
}

// IndexOf returns the position of a member in the roster. Asking for a node
// that is not a member is a caller bug and panics.
func (r *Roster) IndexOf(id NodeID) int {
	i, ok := r.byID[id]
	if !ok {
		panic(fmt.Sprintf("node %d is not in the roster", id))
	}
	return i
}

// WeightOf returns the voting weight of a member. It panics for unknown nodes,
// like IndexOf.
func (r *Roster) WeightOf(id NodeID) uint64 {
	return r.Entries[r.IndexOf(id)].Weight
}

// NodeIDs returns the ids of all members in roster order.
func (r *Roster) NodeIDs() []NodeID {
	res := make([]NodeID, len(r.Entries))
	for i, e := range r.Entries {
		res[i] = e.NodeID
	}
	return res
}

/*******************************************************************************
Weights
*******************************************************************************/

// TotalWeight is the sum of all the entries' weights.
func (r *Roster) TotalWeight() uint64 {
	return r.totalWeight
}

// IsSupermajority returns true if weight is strictly more than two thirds of
// total.
func IsSupermajority(weight, total uint64) bool {
	// 3w > 2W without floating point. Weights are far below the overflow range.
	return 3*weight > 2*total
}

// IsStrongMinority returns true if weight is at least one third of total.
func IsStrongMinority(weight, total uint64) bool {
	return 3*weight >= total
}

// IsMajority returns true if weight is strictly more than half of total.
func IsMajority(weight, total uint64) bool {
	return 2*weight > total
}

// IsSupermajority checks weight against the roster's total weight.
func (r *Roster) IsSupermajority(weight uint64) bool {
	return IsSupermajority(weight, r.totalWeight)
}

// NodeHasSupermajorityWeight returns true if a single member holds more than
// two thirds of the total weight.
func (r *Roster) NodeHasSupermajorityWeight() bool {
	for _, e := range r.Entries {
		if r.IsSupermajority(e.Weight) {
			return true
		}
	}
	return false
}

// WeightOfSet sums the weights of the given members, ignoring unknown ids.
func (r *Roster) WeightOfSet(ids []NodeID) uint64 {
	var w uint64
	seen := make(map[NodeID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if i, ok := r.byID[id]; ok {
			w += r.Entries[i].Weight
		}
	}
	return w
}

/*******************************************************************************
Hash
*******************************************************************************/

// Hash uniquely identifies a Roster. It chains the SHA256 hashes of the
// entries' ids, weights and public keys, in roster order.
func (r *Roster) Hash() []byte {
	if len(r.hash) == 0 {
		items := make([][]byte, 0, len(r.Entries))
		for _, e := range r.Entries {
			buf := make([]byte, 16, 16+len(e.PubKeyHex))
			binary.BigEndian.PutUint64(buf[:8], uint64(e.NodeID))
			binary.BigEndian.PutUint64(buf[8:], e.Weight)
			buf = append(buf, e.PubKeyBytes()...)
			items = append(items, buf)
		}
		r.hash = crypto.ChainHash(items...)
	}
	return r.hash
}

// Hex is the hexadecimal representation of Hash
func (r *Roster) Hex() string {
	if len(r.hex) == 0 {
		r.hex = common.EncodeToString(r.Hash())
	}
	return r.hex
}
