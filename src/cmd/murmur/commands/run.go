package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mosaicnetworks/murmur/src/event"
	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/murmur"
)

//NewRunCmd returns the command that starts a murmur node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runMurmur,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runMurmur(cmd *cobra.Command, args []string) error {
	logger := _config.Murmur.Logger()

	engine := murmur.NewMurmur(&_config.Murmur, nil)

	if err := engine.Init(); err != nil {
		logger.Error("Cannot initialize engine:", err)
		return err
	}

	go drainEvents(engine.Node.SelfEvents(), logger.WithField("output", "self-events"))
	go drainEvents(engine.Node.StaleEvents(), logger.WithField("output", "stale-events"))
	go drainProgress(engine.Node.SyncProgress(), logger.WithField("output", "sync-progress"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("Shutting down")
		engine.Shutdown()
	}()

	engine.Run()

	return nil
}

func drainEvents(ch <-chan *event.Event, logger *logrus.Entry) {
	for e := range ch {
		logger.WithFields(logrus.Fields{
			"generation": e.Generation(),
			"hash":       e.Hash().String(),
		}).Debug("Event")
	}
}

func drainProgress(ch <-chan gossip.SyncProgress, logger *logrus.Entry) {
	for p := range ch {
		logger.WithFields(logrus.Fields{
			"peer":     p.Peer,
			"sent":     p.Sent,
			"received": p.Received,
			"duration": p.Duration,
		}).Debug("Sync progress")
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	c := &_config.Murmur

	cmd.Flags().String("datadir", c.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", c.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-dir", _config.LogDir, "Directory for per-level log files")
	cmd.Flags().Bool("discard", _config.Discard, "Discard console output when log files are written")
	cmd.Flags().String("moniker", c.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", c.BindAddr, "Listen IP:Port for murmur node")
	cmd.Flags().StringP("advertise", "a", c.AdvertiseAddr, "Advertise IP:Port for murmur node")
	cmd.Flags().DurationP("timeout", "t", c.TCPTimeout, "TCP Timeout")
	cmd.Flags().Duration("dial-timeout", c.DialTimeout, "Dial Timeout")
	cmd.Flags().Duration("idle-sleep", c.IdleSleep, "Sleep between negotiations when nothing is running")
	cmd.Flags().Duration("sleep-after-failure", c.SleepAfterFailure, "Initial backoff after a connection failure")
	cmd.Flags().Duration("max-sleep-after-failure", c.MaxSleepAfterFailure, "Maximum backoff after connection failures")

	// Service
	cmd.Flags().Bool("no-service", c.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", c.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", c.Store, "Use badgerDB to persist signed states")
	cmd.Flags().String("db", c.DatabaseDir, "Database directory")

	// Events
	cmd.Flags().String("ancient-mode", c.AncientMode, "Ancient indicator: generation or birth_round")
	cmd.Flags().Duration("creation-period", c.CreationPeriod, "Time between event creation attempts")
	cmd.Flags().Int("max-other-parents", c.MaxOtherParents, "Max number of other parents per event")
	cmd.Flags().Duration("max-idle-interval", c.MaxIdleInterval, "Create an empty event after this much idle time")
	cmd.Flags().Float64("max-creation-rate", c.MaxCreationRate, "Max events per second, 0 for unlimited")
	cmd.Flags().Duration("unhealthy-threshold", c.UnhealthyThreshold, "Stop creating events when unhealthy for longer")
	cmd.Flags().Int("max-pending-tx", c.MaxPendingTransactions, "Max number of pending transactions")
	cmd.Flags().Int("max-tx-per-event", c.MaxTransactionsPerEvent, "Max number of transactions per event")

	// Gossip
	cmd.Flags().Int("max-concurrent-syncs", c.MaxConcurrentSyncs, "Max number of concurrent syncs")
	cmd.Flags().Duration("sync-period", c.SyncPeriod, "Time between syncs with a peer")
	cmd.Flags().Int("sync-limit", c.SyncLimit, "Max number of events for sync")
	cmd.Flags().Duration("heartbeat", c.HeartbeatPeriod, "Time between heartbeats")
	cmd.Flags().Float64("fallen-behind-threshold", c.FallenBehindThreshold, "Share of peers reporting us behind before reconnecting")

	// Reconnect
	cmd.Flags().Int("chunk-size", c.ChunkSize, "Size of state transfer chunks")
	cmd.Flags().Int("max-state-size", c.MaxStateSize, "Max size of a received state")
	cmd.Flags().Int("max-concurrent-teachers", c.MaxConcurrentTeachers, "Max number of concurrent teaching sessions")
	cmd.Flags().Duration("min-time-between-teaching", c.MinTimeBetweenTeaching, "Min time between teaching sessions")
	cmd.Flags().Duration("min-time-between-reconnects", c.MinTimeBetweenReconnects, "Min time between reconnect attempts")
	cmd.Flags().Int("max-reconnect-failures", c.MaxReconnectFailures, "Reconnect attempts before giving up")
	cmd.Flags().Duration("reconnect-timeout", c.ReconnectTimeout, "Time to wait for a teacher")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Murmur.SetDataDir(_config.Murmur.DataDir)

	_config.Murmur.SetLogger(newLogger(_config.LogDir, _config.Discard))

	logFields := logrus.Fields{
		"murmur.DataDir":         _config.Murmur.DataDir,
		"murmur.BindAddr":        _config.Murmur.BindAddr,
		"murmur.AdvertiseAddr":   _config.Murmur.AdvertiseAddr,
		"murmur.ServiceAddr":     _config.Murmur.ServiceAddr,
		"murmur.NoService":       _config.Murmur.NoService,
		"murmur.Store":           _config.Murmur.Store,
		"murmur.LogLevel":        _config.Murmur.LogLevel,
		"murmur.Moniker":         _config.Murmur.Moniker,
		"murmur.AncientMode":     _config.Murmur.AncientMode,
		"murmur.CreationPeriod":  _config.Murmur.CreationPeriod,
		"murmur.SyncPeriod":      _config.Murmur.SyncPeriod,
		"murmur.HeartbeatPeriod": _config.Murmur.HeartbeatPeriod,
		"murmur.TCPTimeout":      _config.Murmur.TCPTimeout,
		"murmur.SyncLimit":       _config.Murmur.SyncLimit,
		"LogDir":                 _config.LogDir,
	}

	if _config.Murmur.Store {
		logFields["murmur.DatabaseDir"] = _config.Murmur.DatabaseDir
	}

	_config.Murmur.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/murmur.toml (.json, .yaml also work)
	viper.SetConfigName("murmur")
	viper.AddConfigPath(_config.Murmur.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Murmur.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Murmur.Logger().Debugf("No config file found in: %s", _config.Murmur.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
