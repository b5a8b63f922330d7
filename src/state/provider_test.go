package state

import (
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/murmur/src/common"
)

func TestInmemProviderAddState(t *testing.T) {
	r, members := keyedRoster(t, 1, 1, 1)
	p := NewInmemProvider(r, common.NewTestEntry(t, "state"))

	_, ok := p.LatestCompleteState()
	require.False(t, ok)

	// incomplete states are not kept
	require.False(t, p.AddState(signedBy(t, NewSignedState(1, []byte("a")), members[0])))

	require.True(t, p.AddState(signedBy(t, NewSignedState(2, []byte("b")), members...)))
	// older states never replace newer ones
	require.False(t, p.AddState(signedBy(t, NewSignedState(1, []byte("a")), members...)))

	latest, ok := p.LatestCompleteState()
	require.True(t, ok)
	require.Equal(t, uint64(2), latest.Round)
	require.Equal(t, uint64(2), p.LatestRound())
}

func TestInmemProviderInstallState(t *testing.T) {
	r, members := keyedRoster(t, 1, 1, 1)
	p := NewInmemProvider(r, common.NewTestEntry(t, "state"))

	require.NoError(t, p.InstallState(signedBy(t, NewSignedState(4, []byte("d")), members...)))

	err := p.InstallState(signedBy(t, NewSignedState(3, []byte("c")), members...))
	require.ErrorIs(t, err, ErrRoundTooOld)

	err = p.InstallState(signedBy(t, NewSignedState(9, []byte("i")), members[0]))
	require.ErrorIs(t, err, ErrInsufficientSignatures)

	latest, _ := p.LatestCompleteState()
	require.Equal(t, uint64(4), latest.Round)
}

func TestBadgerProviderPersistence(t *testing.T) {
	r, members := keyedRoster(t, 1, 1, 1)
	dir := filepath.Join(t.TempDir(), "badger")

	p, err := NewBadgerProvider(r, dir, common.NewTestEntry(t, "state"))
	require.NoError(t, err)

	_, ok := p.LatestCompleteState()
	require.False(t, ok)

	_, err = p.GetState(1)
	require.True(t, common.IsStore(err, common.KeyNotFound))

	added, err := p.AddState(signedBy(t, NewSignedState(1, []byte("one")), members...))
	require.NoError(t, err)
	require.True(t, added)

	require.NoError(t, p.InstallState(signedBy(t, NewSignedState(6, []byte("six")), members...)))
	require.NoError(t, p.Close())

	p, err = NewBadgerProvider(r, dir, common.NewTestEntry(t, "state"))
	require.NoError(t, err)
	defer p.Close()

	latest, ok := p.LatestCompleteState()
	require.True(t, ok)
	require.Equal(t, uint64(6), latest.Round)
	require.Equal(t, []byte("six"), latest.Data)
	require.True(t, latest.IsComplete(r))

	one, err := p.GetState(1)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), one.Data)
}

func TestBadgerProviderCorruptState(t *testing.T) {
	r, _ := keyedRoster(t, 1)

	p, err := NewBadgerProvider(r, filepath.Join(t.TempDir(), "badger"), common.NewTestEntry(t, "state"))
	require.NoError(t, err)
	defer p.Close()

	// a map header announcing five entries, cut after one byte of the first key
	err = p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(3), []byte{0x85, 0xa5})
	})
	require.NoError(t, err)

	_, err = p.GetState(3)
	require.True(t, common.IsStore(err, common.Corrupt))
}
