package reconnect

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/metrics"
	"github.com/mosaicnetworks/murmur/src/monitor"
	"github.com/mosaicnetworks/murmur/src/state"
	"github.com/mosaicnetworks/murmur/src/status"
)

// Gossip is the part of the gossip layer the Controller pauses while it
// reconnects.
type Gossip interface {
	Pause()
	Resume()
}

// ControllerConfig ...
type ControllerConfig struct {
	// MinTimeBetweenReconnects is the pause after a failed attempt.
	MinTimeBetweenReconnects time.Duration
	// MaxReconnectFailures is the number of consecutive failures after which
	// the Controller gives up, 0 for no limit.
	MaxReconnectFailures int
	// AwaitTimeout bounds the wait for a teacher in a single attempt.
	AwaitTimeout time.Duration
}

// DefaultControllerConfig ...
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MinTimeBetweenReconnects: time.Second,
		MaxReconnectFailures:     10,
		AwaitTimeout:             30 * time.Second,
	}
}

// Hooks are called by the Controller to drop and rebuild the node's in-memory
// state around a reconnect.
type Hooks struct {
	// Clear drops all events held by the node. Gossip is paused.
	Clear func()
	// Installed is called with a state once the provider installed it.
	Installed func(*state.SignedState)
}

// Controller waits for the node to fall behind, then drives reconnect
// attempts until a state is installed.
type Controller struct {
	config   ControllerConfig
	monitor  *monitor.FallenBehindMonitor
	status   *status.Holder
	gossip   Gossip
	promise  *StatePromise
	provider state.Provider
	hooks    Hooks

	logger *logrus.Entry
}

// NewController ...
func NewController(
	config ControllerConfig,
	mon *monitor.FallenBehindMonitor,
	statusHolder *status.Holder,
	gossip Gossip,
	promise *StatePromise,
	provider state.Provider,
	hooks Hooks,
	logger *logrus.Entry,
) *Controller {
	return &Controller{
		config:   config,
		monitor:  mon,
		status:   statusHolder,
		gossip:   gossip,
		promise:  promise,
		provider: provider,
		hooks:    hooks,
		logger:   logger,
	}
}

// Run loops until ctx is done or the reconnect fails too many times.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if err := c.monitor.AwaitFallenBehind(ctx); err != nil {
			return err
		}
		if err := c.Reconnect(ctx); err != nil {
			return err
		}
	}
}

// Reconnect pauses gossip and retries until a state from a teacher is
// installed. On success, the status seen before falling behind is restored
// and gossip resumes.
func (c *Controller) Reconnect(ctx context.Context) error {
	previous := c.status.Set(status.Behind)
	if previous == status.Behind || previous == status.Reconnecting {
		previous = status.Active
	}
	metrics.SetPlatformStatus(status.Behind.String(), status.Names())

	c.logger.WithField("reported", c.monitor.ReportedSize()).Warn("Fallen behind, reconnecting")

	c.gossip.Pause()
	c.clear()

	failures := 0
	for {
		err := c.attempt(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		metrics.Reconnects.WithLabelValues("controller", "failure").Inc()
		c.logger.WithError(err).WithField("failures", failures).Warn("Reconnect attempt failed")

		if c.config.MaxReconnectFailures > 0 && failures >= c.config.MaxReconnectFailures {
			c.status.Set(status.CatastrophicFailure)
			metrics.SetPlatformStatus(status.CatastrophicFailure.String(), status.Names())
			return ErrTooManyFailures
		}

		c.status.Set(status.Behind)
		c.clear()
		if err := sleepCtx(ctx, c.config.MinTimeBetweenReconnects); err != nil {
			return err
		}
	}

	metrics.Reconnects.WithLabelValues("controller", "success").Inc()
	c.monitor.Reset()
	c.status.Set(previous)
	metrics.SetPlatformStatus(previous.String(), status.Names())
	c.gossip.Resume()

	c.logger.WithField("status", previous).Info("Reconnect complete")
	return nil
}

func (c *Controller) attempt(ctx context.Context) error {
	awaitCtx := ctx
	if c.config.AwaitTimeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeout(ctx, c.config.AwaitTimeout)
		defer cancel()
	}

	locked, err := c.promise.Await(awaitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return errors.New("no teacher in time")
		}
		return err
	}
	defer locked.Release()

	c.status.Set(status.Reconnecting)
	metrics.SetPlatformStatus(status.Reconnecting.String(), status.Names())

	if err := c.provider.InstallState(locked.SignedState); err != nil {
		return err
	}
	if c.hooks.Installed != nil {
		c.hooks.Installed(locked.SignedState)
	}

	c.logger.WithFields(logrus.Fields{
		"round": locked.Round,
		"hash":  locked.Hex(),
	}).Info("Installed reconnect state")
	return nil
}

func (c *Controller) clear() {
	if c.hooks.Clear != nil {
		c.hooks.Clear()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
