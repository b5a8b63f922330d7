package roster

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/stretchr/testify/require"
)

func equalRoster(t *testing.T, weights ...uint64) *Roster {
	entries := make([]*Entry, len(weights))
	for i, w := range weights {
		entries[i] = NewEntry(NodeID(i+1), w, fmt.Sprintf("127.0.0.1:%d", 1340+i), "")
	}
	r, err := NewRoster(entries)
	require.NoError(t, err)
	return r
}

func TestRosterLookups(t *testing.T) {
	r := MustNewRoster([]*Entry{
		NewEntry(7, 10, "c", ""),
		NewEntry(3, 20, "a", ""),
		NewEntry(5, 0, "b", ""),
	})

	require.Equal(t, []NodeID{3, 5, 7}, r.NodeIDs())
	require.Equal(t, uint64(30), r.TotalWeight())
	require.Equal(t, 1, r.IndexOf(5))
	require.Equal(t, uint64(0), r.WeightOf(5))
	require.Equal(t, uint64(20), r.WeightOf(3))
	require.True(t, r.Contains(7))
	require.False(t, r.Contains(8))
	require.Equal(t, uint64(30), r.WeightOfSet([]NodeID{3, 7, 7, 42}))

	require.Panics(t, func() { r.WeightOf(42) })
	require.Panics(t, func() { r.IndexOf(42) })
}

func TestRosterInvalid(t *testing.T) {
	_, err := NewRoster([]*Entry{NewEntry(1, 1, "", ""), NewEntry(1, 2, "", "")})
	require.Error(t, err, "duplicate ids")

	_, err = NewRoster([]*Entry{NewEntry(1, 0, "", ""), NewEntry(2, 0, "", "")})
	require.Error(t, err, "no weight")

	empty, err := NewRoster(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), empty.TotalWeight())
	require.False(t, empty.NodeHasSupermajorityWeight())
}

func TestSupermajorityScenario(t *testing.T) {
	r := equalRoster(t, 25, 25, 25, 25)
	require.Equal(t, uint64(100), r.TotalWeight())
	require.False(t, r.NodeHasSupermajorityWeight(), "25 <= 66.67")

	r5, err := r.WithNewEntry(NewEntry(5, 70, "", ""))
	require.NoError(t, err)
	require.Equal(t, uint64(170), r5.TotalWeight())
	require.False(t, r5.NodeHasSupermajorityWeight(), "70 <= 113.3")

	r5b, err := r.WithNewEntry(NewEntry(5, 120, "", ""))
	require.NoError(t, err)
	require.Equal(t, uint64(220), r5b.TotalWeight())
	require.False(t, r5b.NodeHasSupermajorityWeight(), "120 <= 146.7")

	// 100 others: w > 2/3 (100 + w) <=> w > 200
	atBoundary, err := r.WithNewEntry(NewEntry(5, 200, "", ""))
	require.NoError(t, err)
	require.False(t, atBoundary.NodeHasSupermajorityWeight(), "200 == 2/3 of 300")

	above, err := r.WithNewEntry(NewEntry(5, 201, "", ""))
	require.NoError(t, err)
	require.True(t, above.NodeHasSupermajorityWeight(), "201 > 2/3 of 301")
}

func TestSupermajorityProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		n := 1 + rnd.Intn(8)
		weights := make([]uint64, n)
		var total uint64
		for i := range weights {
			weights[i] = uint64(rnd.Intn(1000))
			total += weights[i]
		}
		if total == 0 {
			continue
		}

		r := equalRoster(t, weights...)

		expected := false
		for _, w := range weights {
			if float64(w) > 2*float64(total)/3 {
				expected = true
			}
		}

		require.Equal(t, expected, r.NodeHasSupermajorityWeight(), "weights %v", weights)
	}
}

func TestThresholdHelpers(t *testing.T) {
	require.True(t, IsSupermajority(67, 100))
	require.False(t, IsSupermajority(66, 99))
	require.True(t, IsStrongMinority(33, 99))
	require.False(t, IsStrongMinority(33, 100))
	require.True(t, IsMajority(51, 100))
	require.False(t, IsMajority(50, 100))
}

func TestRosterHash(t *testing.T) {
	k1, _ := keys.GenerateECDSAKey()
	k2, _ := keys.GenerateECDSAKey()

	a := MustNewRoster([]*Entry{
		NewEntry(1, 10, "", keys.PublicKeyHex(&k1.PublicKey)),
		NewEntry(2, 10, "", keys.PublicKeyHex(&k2.PublicKey)),
	})
	b := MustNewRoster([]*Entry{
		NewEntry(2, 10, "", keys.PublicKeyHex(&k2.PublicKey)),
		NewEntry(1, 10, "", keys.PublicKeyHex(&k1.PublicKey)),
	})
	c := MustNewRoster([]*Entry{
		NewEntry(1, 11, "", keys.PublicKeyHex(&k1.PublicKey)),
		NewEntry(2, 10, "", keys.PublicKeyHex(&k2.PublicKey)),
	})

	require.Equal(t, a.Hex(), b.Hex(), "hash must not depend on input order")
	require.NotEqual(t, a.Hex(), c.Hex(), "hash must depend on weights")

	pub, err := a.Entries[0].PublicKey()
	require.NoError(t, err)
	require.Equal(t, 0, pub.X.Cmp(k1.PublicKey.X))

	removed, err := a.WithRemovedEntry(1)
	require.NoError(t, err)
	require.Equal(t, []NodeID{2}, removed.NodeIDs())
}

func TestHistory(t *testing.T) {
	r1 := equalRoster(t, 1, 1)
	r2 := equalRoster(t, 1, 1, 1)

	h := NewHistory(1, r1)
	require.NoError(t, h.Add(10, r2))
	require.Error(t, h.Add(10, r2))

	require.False(t, h.IsRoundValid(0))
	require.True(t, h.IsRoundValid(1))

	got, err := h.RosterForRound(9)
	require.NoError(t, err)
	require.Equal(t, r1, got)

	got, err = h.RosterForRound(10)
	require.NoError(t, err)
	require.Equal(t, r2, got)

	got, err = h.RosterForRound(1000)
	require.NoError(t, err)
	require.Equal(t, r2, got)

	_, err = h.RosterForRound(0)
	require.Error(t, err)

	require.Equal(t, r2, h.Current())
	require.Len(t, h.Hashes(), 2)
}

func TestJSONRoster(t *testing.T) {
	dir := t.TempDir()

	r := equalRoster(t, 5, 6, 7)
	jr := NewJSONRoster(dir)
	require.NoError(t, jr.Write(r))

	read, err := jr.Roster()
	require.NoError(t, err)
	require.Equal(t, r.NodeIDs(), read.NodeIDs())
	require.Equal(t, r.TotalWeight(), read.TotalWeight())
	require.Equal(t, r.Hex(), read.Hex())
}
