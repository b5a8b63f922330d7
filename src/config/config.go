package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/eventcreator"
	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/reconnect"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultRosterFile is the default name of the file listing the members.
	DefaultRosterFile = "roster.json"
)

// Default configuration values.
const (
	DefaultLogLevel                 = "debug"
	DefaultBindAddr                 = "127.0.0.1:1337"
	DefaultServiceAddr              = "127.0.0.1:8000"
	DefaultAncientMode              = "generation"
	DefaultTCPTimeout               = 10000 * time.Millisecond
	DefaultDialTimeout              = 2000 * time.Millisecond
	DefaultIdleSleep                = 25 * time.Millisecond
	DefaultSleepAfterFailure        = 100 * time.Millisecond
	DefaultMaxSleepAfterFailure     = 5000 * time.Millisecond
	DefaultCreationPeriod           = 10 * time.Millisecond
	DefaultMaxOtherParents          = 1
	DefaultMaxIdleInterval          = 1000 * time.Millisecond
	DefaultMaxCreationRate          = 0
	DefaultUnhealthyThreshold       = 0
	DefaultMaxPendingTransactions   = 10000
	DefaultMaxTransactionsPerEvent  = 1000
	DefaultMaxConcurrentSyncs       = 8
	DefaultSyncPeriod               = 50 * time.Millisecond
	DefaultSyncLimit                = 5000
	DefaultHeartbeatPeriod          = 1000 * time.Millisecond
	DefaultFallenBehindThreshold    = 0.5
	DefaultChunkSize                = 32 * 1024
	DefaultMaxStateSize             = 1 << 30
	DefaultMaxConcurrentTeachers    = 1
	DefaultMinTimeBetweenTeaching   = 60 * time.Second
	DefaultMinTimeBetweenReconnects = 1000 * time.Millisecond
	DefaultMaxReconnectFailures     = 10
	DefaultReconnectTimeout         = 30 * time.Second
	DefaultStore                    = false
)

// Config contains all the configuration properties of a murmur node.
type Config struct {
	// DataDir is the top-level directory containing the key, the roster and
	// the database.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// BindAddr is the local address:port where this node gossips with other
	// nodes.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// AncientMode is the ancient indicator of the network, "generation" or
	// "birth_round". All members must agree on it.
	AncientMode string `mapstructure:"ancient-mode"`

	// TCPTimeout bounds every read and write on a peer connection.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// DialTimeout bounds outbound dials.
	DialTimeout time.Duration `mapstructure:"dial-timeout"`

	// IdleSleep is the pause of a peer connection in which no protocol was
	// initiated.
	IdleSleep time.Duration `mapstructure:"idle-sleep"`

	// SleepAfterFailure is the first pause after a broken connection. It
	// doubles with each consecutive failure up to MaxSleepAfterFailure.
	SleepAfterFailure    time.Duration `mapstructure:"sleep-after-failure"`
	MaxSleepAfterFailure time.Duration `mapstructure:"max-sleep-after-failure"`

	// CreationPeriod is the interval between two event creation attempts.
	CreationPeriod time.Duration `mapstructure:"creation-period"`

	// MaxOtherParents is the maximum number of other-parents of an event.
	MaxOtherParents int `mapstructure:"max-other-parents"`

	// MaxIdleInterval is how long the node sits on pending transactions
	// before creating an event that advances nobody.
	MaxIdleInterval time.Duration `mapstructure:"max-idle-interval"`

	// MaxCreationRate caps the events created per second, 0 for no cap.
	MaxCreationRate float64 `mapstructure:"max-creation-rate"`

	// UnhealthyThreshold stops event creation while the node has been
	// unhealthy for longer, 0 to ignore health.
	UnhealthyThreshold time.Duration `mapstructure:"unhealthy-threshold"`

	// MaxPendingTransactions bounds the transaction pool.
	MaxPendingTransactions int `mapstructure:"max-pending-tx"`

	// MaxTransactionsPerEvent bounds the transactions of a single event.
	MaxTransactionsPerEvent int `mapstructure:"max-tx-per-event"`

	// MaxConcurrentSyncs bounds the syncs running at the same time.
	MaxConcurrentSyncs int `mapstructure:"max-concurrent-syncs"`

	// SyncPeriod is the minimum time between two syncs with the same peer.
	SyncPeriod time.Duration `mapstructure:"sync-period"`

	// SyncLimit is the maximum number of events sent in one sync.
	SyncLimit int `mapstructure:"sync-limit"`

	// HeartbeatPeriod is the interval between two heartbeats with a peer.
	HeartbeatPeriod time.Duration `mapstructure:"heartbeat"`

	// FallenBehindThreshold is the share of the peers' weight that must
	// report us behind before we reconnect.
	FallenBehindThreshold float64 `mapstructure:"fallen-behind-threshold"`

	// ChunkSize is the size of the pieces a state is sent in.
	ChunkSize int `mapstructure:"chunk-size"`

	// MaxStateSize bounds the states accepted from teachers.
	MaxStateSize int `mapstructure:"max-state-size"`

	// MaxConcurrentTeachers bounds the learners served at the same time.
	MaxConcurrentTeachers int `mapstructure:"max-concurrent-teachers"`

	// MinTimeBetweenTeaching is the minimum time between two transfers to the
	// same learner.
	MinTimeBetweenTeaching time.Duration `mapstructure:"min-time-between-teaching"`

	// MinTimeBetweenReconnects is the pause after a failed reconnect.
	MinTimeBetweenReconnects time.Duration `mapstructure:"min-time-between-reconnects"`

	// MaxReconnectFailures is the number of consecutive failed reconnects
	// after which the node gives up.
	MaxReconnectFailures int `mapstructure:"max-reconnect-failures"`

	// ReconnectTimeout bounds the wait for a teacher in one attempt.
	ReconnectTimeout time.Duration `mapstructure:"reconnect-timeout"`

	// Store activates persistant storage of signed states.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Key is the private key of the node.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:                  DefaultDataDir(),
		LogLevel:                 DefaultLogLevel,
		BindAddr:                 DefaultBindAddr,
		ServiceAddr:              DefaultServiceAddr,
		AncientMode:              DefaultAncientMode,
		TCPTimeout:               DefaultTCPTimeout,
		DialTimeout:              DefaultDialTimeout,
		IdleSleep:                DefaultIdleSleep,
		SleepAfterFailure:        DefaultSleepAfterFailure,
		MaxSleepAfterFailure:     DefaultMaxSleepAfterFailure,
		CreationPeriod:           DefaultCreationPeriod,
		MaxOtherParents:          DefaultMaxOtherParents,
		MaxIdleInterval:          DefaultMaxIdleInterval,
		MaxCreationRate:          DefaultMaxCreationRate,
		UnhealthyThreshold:       DefaultUnhealthyThreshold,
		MaxPendingTransactions:   DefaultMaxPendingTransactions,
		MaxTransactionsPerEvent:  DefaultMaxTransactionsPerEvent,
		MaxConcurrentSyncs:       DefaultMaxConcurrentSyncs,
		SyncPeriod:               DefaultSyncPeriod,
		SyncLimit:                DefaultSyncLimit,
		HeartbeatPeriod:          DefaultHeartbeatPeriod,
		FallenBehindThreshold:    DefaultFallenBehindThreshold,
		ChunkSize:                DefaultChunkSize,
		MaxStateSize:             DefaultMaxStateSize,
		MaxConcurrentTeachers:    DefaultMaxConcurrentTeachers,
		MinTimeBetweenTeaching:   DefaultMinTimeBetweenTeaching,
		MinTimeBetweenReconnects: DefaultMinTimeBetweenReconnects,
		MaxReconnectFailures:     DefaultMaxReconnectFailures,
		ReconnectTimeout:         DefaultReconnectTimeout,
		Store:                    DefaultStore,
		DatabaseDir:              DefaultDatabaseDir(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests. Timings are shortened so that tests converge
// quickly on loopback.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.BindAddr = "127.0.0.1:0"
	config.TCPTimeout = 2 * time.Second
	config.IdleSleep = 2 * time.Millisecond
	config.SleepAfterFailure = 5 * time.Millisecond
	config.MaxSleepAfterFailure = 50 * time.Millisecond
	config.CreationPeriod = 5 * time.Millisecond
	config.SyncPeriod = 5 * time.Millisecond
	config.HeartbeatPeriod = 50 * time.Millisecond
	config.MinTimeBetweenTeaching = 0
	config.MinTimeBetweenReconnects = 10 * time.Millisecond
	config.ReconnectTimeout = 2 * time.Second
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, it means the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Mode parses AncientMode.
func (c *Config) Mode() (event.AncientMode, error) {
	return event.ParseAncientMode(c.AncientMode)
}

// CreatorConfig ...
func (c *Config) CreatorConfig() eventcreator.CreatorConfig {
	return eventcreator.CreatorConfig{
		MaxOtherParents: c.MaxOtherParents,
		MaxIdleInterval: c.MaxIdleInterval,
	}
}

// ManagerConfig ...
func (c *Config) ManagerConfig() eventcreator.ManagerConfig {
	return eventcreator.ManagerConfig{
		MaxCreationRate:    c.MaxCreationRate,
		UnhealthyThreshold: c.UnhealthyThreshold,
	}
}

// SyncConfig ...
func (c *Config) SyncConfig() gossip.SyncConfig {
	return gossip.SyncConfig{
		MaxConcurrentSyncs: c.MaxConcurrentSyncs,
		SyncPeriod:         c.SyncPeriod,
		MaxEventsPerSync:   c.SyncLimit,
	}
}

// SetConfig returns the configuration of the peer connection set.
func (c *Config) SetConfig() gossip.SetConfig {
	return gossip.SetConfig{
		Timeout:     c.TCPTimeout,
		DialTimeout: c.DialTimeout,
		Negotiator: gossip.NegotiatorConfig{
			IdleSleep:            c.IdleSleep,
			SleepAfterFailure:    c.SleepAfterFailure,
			MaxSleepAfterFailure: c.MaxSleepAfterFailure,
		},
	}
}

// ReconnectConfig returns the configuration of the reconnect protocol.
func (c *Config) ReconnectConfig() reconnect.ProtocolConfig {
	config := reconnect.DefaultProtocolConfig()
	config.ChunkSize = c.ChunkSize
	config.MaxStateSize = c.MaxStateSize
	return config
}

// ControllerConfig returns the configuration of the reconnect controller.
func (c *Config) ControllerConfig() reconnect.ControllerConfig {
	return reconnect.ControllerConfig{
		MinTimeBetweenReconnects: c.MinTimeBetweenReconnects,
		MaxReconnectFailures:     c.MaxReconnectFailures,
		AwaitTimeout:             c.ReconnectTimeout,
	}
}

// Logger returns a formatted logrus Entry, with prefix set to "murmur".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "murmur")
}

// SetLogger replaces the logger returned by Logger. The level is set from
// LogLevel.
func (c *Config) SetLogger(logger *logrus.Logger) {
	logger.Level = LogLevel(c.LogLevel)
	c.logger = logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level murmur
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Murmur")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Murmur")
		} else {
			return filepath.Join(home, ".murmur")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
