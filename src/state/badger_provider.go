package state

import (
	"fmt"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/roster"
)

const (
	latestKey   = "latest"
	statePrefix = "state"
)

// BadgerProvider is an InmemProvider backed by a badger database. Every
// state that becomes the latest one is also written to disk, and the latest
// state is loaded again when the database is reopened.
type BadgerProvider struct {
	*InmemProvider

	db   *badger.DB
	path string

	logger *logrus.Entry
}

// NewBadgerProvider opens an existing database or creates a new one if
// nothing is found in path.
func NewBadgerProvider(r *roster.Roster, path string, logger *logrus.Entry) (*BadgerProvider, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	opts = opts.WithLogger(logger.WithField("ns", "badger"))

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	p := &BadgerProvider{
		InmemProvider: NewInmemProvider(r, logger),
		db:            handle,
		path:          path,
		logger:        logger,
	}

	latest, err := p.dbGetLatest()
	switch {
	case err == nil:
		p.InmemProvider.latest = latest
		logger.WithField("round", latest.Round).Debug("Loaded latest state")
	case common.IsStore(err, common.KeyNotFound):
	default:
		handle.Close()
		return nil, err
	}

	return p, nil
}

// AddState records a locally signed state and persists it when it becomes
// the latest complete one.
func (p *BadgerProvider) AddState(s *SignedState) (bool, error) {
	if !p.InmemProvider.AddState(s) {
		return false, nil
	}
	if err := p.dbSetLatest(s); err != nil {
		return true, err
	}
	return true, nil
}

// InstallState implements Provider.
func (p *BadgerProvider) InstallState(s *SignedState) error {
	if err := p.InmemProvider.InstallState(s); err != nil {
		return err
	}
	return p.dbSetLatest(s)
}

// GetState reads the state of a given round from the database.
func (p *BadgerProvider) GetState(round uint64) (*SignedState, error) {
	return p.dbGetState(stateKey(round))
}

// Close ...
func (p *BadgerProvider) Close() error {
	return p.db.Close()
}

// StorePath returns the path of the database.
func (p *BadgerProvider) StorePath() string {
	return p.path
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func stateKey(round uint64) []byte {
	return []byte(fmt.Sprintf("%s_%09d", statePrefix, round))
}

func (p *BadgerProvider) dbGetLatest() (*SignedState, error) {
	return p.dbGetState([]byte(latestKey))
}

func (p *BadgerProvider) dbGetState(key []byte) (*SignedState, error) {
	var stateBytes []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		stateBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, mapError(err, "SignedState", string(key))
	}

	s := new(SignedState)
	if err := s.Unmarshal(stateBytes); err != nil {
		return nil, common.NewStoreErr("SignedState", common.Corrupt, string(key)).WithCause(err)
	}

	return s, nil
}

func (p *BadgerProvider) dbSetLatest(s *SignedState) error {
	val, err := s.Marshal()
	if err != nil {
		return err
	}

	return p.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(stateKey(s.Round), val); err != nil {
			return err
		}
		return txn.Set([]byte(latestKey), val)
	})
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return common.NewStoreErr(name, common.KeyNotFound, key)
		}
	}
	return err
}
