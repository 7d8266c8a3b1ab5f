// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/config"
	"github.com/Thermoquad/smartaudio/pkg/publish"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/golang/glog"
)

const statisticsPublishInterval = 10 * time.Second

var errRunnerStopped = errors.New("engine stopped")

// snapshot is the engine state copied out after every tick
type snapshot struct {
	Status      smartaudio.Status
	Settings    smartaudio.Settings
	Statistics  smartaudio.Statistics
	BaudRate    int
	QueueLen    int
	Outstanding bool
}

// runnerHooks are called from the runner goroutine
type runnerHooks struct {
	onStatus func(smartaudio.Status)
	onFrame  func(smartaudio.Frame)
}

type request struct {
	fn   func(*smartaudio.Engine) error
	done chan error
}

// runner confines an engine to one goroutine, ticking it at a fixed
// interval and executing requests between ticks
type runner struct {
	engine   *smartaudio.Engine
	conn     *connection
	interval time.Duration
	pub      *publish.Publisher
	pubStats bool
	hooks    runnerHooks
	requests chan request
	done     chan struct{}

	mu   sync.RWMutex
	snap snapshot
}

func newRunner(cfg *config.Config, conn *connection, pub *publish.Publisher, hooks runnerHooks) *runner {
	r := &runner{
		conn:     conn,
		interval: cfg.TickInterval(),
		pub:      pub,
		pubStats: cfg.MQTT.Statistics,
		hooks:    hooks,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	opts := append(cfg.EngineOptions(),
		smartaudio.WithStateChanged(r.stateChanged),
		smartaudio.WithFrameHandler(r.frameReceived),
	)
	r.engine = smartaudio.NewEngine(conn.Transport(), opts...)
	r.update()
	return r
}

func (r *runner) stateChanged(st smartaudio.Status) {
	glog.V(1).Infof("status: %s", st)
	if r.pub != nil {
		r.pub.PublishStatus(st)
	}
	if r.hooks.onStatus != nil {
		r.hooks.onStatus(st)
	}
}

func (r *runner) frameReceived(f smartaudio.Frame) {
	if r.hooks.onFrame != nil {
		r.hooks.onFrame(f)
	}
}

// Run ticks the engine until ctx is done or the link fails
func (r *runner) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	start := time.Now()
	lastStats := start

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-r.requests:
			req.done <- req.fn(r.engine)
			r.update()

		case <-ticker.C:
			r.engine.Tick(time.Since(start))
			r.update()

			if err := r.conn.Err(); err != nil {
				return err
			}

			if r.pub != nil && r.pubStats && time.Since(lastStats) >= statisticsPublishInterval {
				lastStats = time.Now()
				r.pub.PublishStatistics(r.engine.Statistics(), r.engine.BaudRate())
			}
		}
	}
}

// Do runs fn on the runner goroutine and returns its error
func (r *runner) Do(ctx context.Context, fn func(*smartaudio.Engine) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case r.requests <- req:
	case <-r.done:
		return errRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *runner) update() {
	_, outstanding := r.engine.Outstanding()
	snap := snapshot{
		Status:      r.engine.Status(),
		Settings:    r.engine.Settings(),
		Statistics:  r.engine.Statistics(),
		BaudRate:    r.engine.BaudRate(),
		QueueLen:    r.engine.QueueLen(),
		Outstanding: outstanding,
	}
	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
}

// Snapshot returns the engine state as of the last tick
func (r *runner) Snapshot() snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// waitOnline polls until the device answered a settings query or the
// timeout expires
func (r *runner) waitOnline(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	poll := time.NewTicker(r.interval)
	defer poll.Stop()
	for {
		if r.Snapshot().Status.Version != smartaudio.VersionUnknown {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-r.done:
			return false
		case <-poll.C:
		}
	}
}

// dialPublisher connects to the configured MQTT broker, or returns nil
// when none is set
func dialPublisher(cfg *config.Config) (*publish.Publisher, error) {
	if cfg.MQTT.Broker == "" {
		return nil, nil
	}
	return publish.Dial(cfg.MQTT.Broker, 10*time.Second)
}
