package murmur

import (
	"crypto/ecdsa"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/metrics"
	"github.com/mosaicnetworks/murmur/src/node"
	"github.com/mosaicnetworks/murmur/src/roster"
	"github.com/mosaicnetworks/murmur/src/service"
	"github.com/mosaicnetworks/murmur/src/state"
	"github.com/mosaicnetworks/murmur/src/status"
	"github.com/mosaicnetworks/murmur/src/version"
)

// Murmur assembles a node from a Config: it reads the key and the roster
// from the data directory, opens the state provider and the stream layer,
// and optionally serves the HTTP API.
type Murmur struct {
	Config    *config.Config
	Consensus node.Consensus
	Node      *node.Node
	Roster    *roster.Roster
	Stream    *gossip.TCPStreamLayer
	Provider  state.Provider
	Service   *service.Service

	logger *logrus.Entry
}

// NewMurmur ...
func NewMurmur(config *config.Config, consensus node.Consensus) *Murmur {
	logger := config.Logger()

	if consensus == nil {
		consensus = newLogConsensus(defaultWindowLength, logger.WithField("component", "consensus"))
	}

	return &Murmur{
		Config:    config,
		Consensus: consensus,
		logger:    logger,
	}
}

func (m *Murmur) initKey() error {
	if m.Config.Key != nil {
		return nil
	}

	privKey, err := keys.NewKeyfile(m.Config.Keyfile()).ReadKey()
	if err != nil {
		m.logger.WithError(err).Warn("Cannot read private key from file")

		privKey, err = Keygen(m.Config.DataDir)
		if err != nil {
			m.logger.WithError(err).Error("Cannot generate a new private key")
			return err
		}

		m.logger.WithField("pub_key", keys.PublicKeyHex(&privKey.PublicKey)).Info("Created a new key")
	}

	m.Config.Key = privKey

	return nil
}

func (m *Murmur) initRoster() error {
	r, err := roster.NewJSONRoster(m.Config.DataDir).Roster()
	if err != nil {
		return err
	}

	if r.Len() == 0 {
		return fmt.Errorf("roster is empty")
	}

	m.Roster = r

	return nil
}

func (m *Murmur) initProvider() error {
	if !m.Config.Store {
		m.Provider = state.NewInmemProvider(m.Roster, m.logger.WithField("component", "inmem-provider"))
		m.logger.Debug("created new in-mem state provider")
		return nil
	}

	m.logger.WithField("path", m.Config.DatabaseDir).Debug("Attempting to load or create database")

	p, err := state.NewBadgerProvider(m.Roster, m.Config.DatabaseDir, m.logger.WithField("component", "badger-provider"))
	if err != nil {
		return err
	}

	if latest, ok := p.LatestCompleteState(); ok {
		m.logger.WithField("round", latest.Round).Debug("loaded state provider from existing database")
	} else {
		m.logger.Debug("created state provider from fresh database")
	}

	m.Provider = p

	return nil
}

func (m *Murmur) initStream() error {
	stream, err := gossip.NewTCPStreamLayer(m.Config.BindAddr, m.Config.AdvertiseAddr)
	if err != nil {
		return err
	}

	m.Stream = stream

	return nil
}

func (m *Murmur) initNode() error {
	validator := node.NewValidator(m.Config.Key, m.Config.Moniker)

	m.logger.WithFields(logrus.Fields{
		"roster":  m.Roster.Hex(),
		"members": m.Roster.Len(),
	}).Debug("ROSTER")

	n, err := node.NewNode(m.Config, validator, m.Roster, m.Stream, m.Provider, m.Consensus)
	if err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	m.Node = n

	if lc, ok := m.Consensus.(*logConsensus); ok {
		mode, _ := m.Config.Mode()
		lc.attach(n, mode)
	}

	return nil
}

func (m *Murmur) initService() error {
	if !m.Config.NoService {
		m.Service = service.NewService(m.Config.ServiceAddr, m.Node, m.logger.WithField("component", "service"))
	}
	return nil
}

// Init reads the configuration and creates every component. Nothing is
// started.
func (m *Murmur) Init() error {
	if err := m.initKey(); err != nil {
		return err
	}

	if err := m.initRoster(); err != nil {
		return err
	}

	if err := m.initProvider(); err != nil {
		return err
	}

	if err := m.initStream(); err != nil {
		m.closeProvider()
		return err
	}

	if err := m.initNode(); err != nil {
		m.Stream.Close()
		m.closeProvider()
		return err
	}

	if err := m.initService(); err != nil {
		return err
	}

	metrics.SetBuildInfo(version.Version)

	return nil
}

func (m *Murmur) closeProvider() {
	if p, ok := m.Provider.(*state.BadgerProvider); ok {
		p.Close()
	}
}

// Run starts the service and the node, marks the node Active, and blocks
// until Shutdown.
func (m *Murmur) Run() {
	if m.Service != nil {
		go m.Service.Serve()
	}

	m.Node.RunAsync()

	if err := m.Node.UpdatePlatformStatus(status.Active); err != nil {
		m.logger.WithError(err).Debug("Node stopped before becoming active")
	}

	<-m.Node.Done()
}

// Shutdown stops the service and the node.
func (m *Murmur) Shutdown() {
	if m.Service != nil {
		if err := m.Service.Close(); err != nil {
			m.logger.WithError(err).Error("Closing service")
		}
	}
	m.Node.Shutdown()
}

// Keygen creates a new key in datadir. It fails if a key already exists.
func Keygen(datadir string) (*ecdsa.PrivateKey, error) {
	keyfile := keys.NewKeyfile(filepath.Join(datadir, config.DefaultKeyfile))

	if keyfile.Exists() {
		return nil, fmt.Errorf("Another key already lives under %s", datadir)
	}

	privKey, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := keyfile.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
