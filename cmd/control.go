// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/config"
	"github.com/Thermoquad/smartaudio/pkg/publish"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/Thermoquad/smartaudio/pkg/transport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling a SmartAudio VTX",
	Long: `Control a SmartAudio video transmitter via an interactive terminal UI.

Features:
  - Band, channel and power selection
  - Direct frequency and pit frequency entry (V2)
  - Pit mode and power-up behaviour
  - Link statistics and autobaud rate
  - Event logging
  - Automatic reconnection on connection loss

Tab or the arrow keys move between fields, left and right change the value
and enter applies a typed frequency.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// connectionManager owns the link and the engine runner, replacing both
// when the link fails
type connectionManager struct {
	cfg  *config.Config
	opts transport.Options
	pub  *publish.Publisher
	p    *tea.Program
	ctx  context.Context

	mu       sync.RWMutex
	runner   *runner
	connInfo string
}

// getRunner returns the runner of the current connection, nil while
// reconnecting
func (cm *connectionManager) getRunner() *runner {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.runner
}

func (cm *connectionManager) setRunner(r *runner, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.runner = r
	cm.connInfo = connInfo
}

// do runs fn on the current engine
func (cm *connectionManager) do(fn func(*smartaudio.Engine) error) error {
	r := cm.getRunner()
	if r == nil {
		return errors.New("not connected")
	}
	ctx, cancel := context.WithTimeout(cm.ctx, time.Second)
	defer cancel()
	return r.Do(ctx, fn)
}

func (cm *connectionManager) hooks() runnerHooks {
	return runnerHooks{
		onStatus: func(st smartaudio.Status) { cm.p.Send(statusMsg(st)) },
		onFrame:  func(f smartaudio.Frame) { cm.p.Send(frameMsg{at: time.Now(), frame: f}) },
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := linkOptions(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open initial connection (serial or WebSocket)
	conn, err := openConnection(ctx, cfg, opts)
	if err != nil {
		return err
	}

	pub, err := dialPublisher(cfg)
	if err != nil {
		glog.Warningf("mqtt: %v", err)
	}
	if pub != nil {
		defer pub.Close()
	}

	cm := &connectionManager{cfg: cfg, opts: opts, pub: pub, ctx: ctx, connInfo: conn.String()}

	m := initialControlModel(cm, conn.String(), cfg.Selection())
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	cm.p = p

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		cm.runLoop(conn)
	}()

	_, err = p.Run()
	cancel()
	<-loopDone
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runLoop runs the engine on conn and reconnects whenever the link fails,
// until the manager context is done
func (cm *connectionManager) runLoop(conn *connection) {
	for {
		r := newRunner(cm.cfg, conn, cm.pub, cm.hooks())
		cm.setRunner(r, conn.String())

		err := r.Run(cm.ctx)
		cm.setRunner(nil, conn.String())
		conn.Close()

		if cm.ctx.Err() != nil {
			return
		}
		glog.Warningf("control: link lost: %v", err)
		cm.p.Send(connectionLostMsg{err: err})

		if conn = cm.reconnect(); conn == nil {
			return // Shutdown requested during reconnect
		}
		cm.p.Send(reconnectedMsg{connInfo: conn.String()})
	}
}

// reconnect attempts to reconnect with exponential backoff.
// Returns nil if shutdown was requested during reconnection.
func (cm *connectionManager) reconnect() *connection {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		conn, err := openConnection(cm.ctx, cm.cfg, cm.opts)
		if err == nil {
			return conn
		}
		glog.V(1).Infof("control: reconnect: %v", err)

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
