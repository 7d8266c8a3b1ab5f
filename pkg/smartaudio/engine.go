// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"time"

	"github.com/golang/glog"
)

// Transport is the half-duplex serial line the engine talks over.
// Buffered and ReadByte must not block.
type Transport interface {
	// Write transmits bytes
	Write(p []byte) (int, error)
	// Buffered returns the number of received bytes ready to read
	Buffered() int
	// ReadByte returns the next received byte
	ReadByte() (byte, error)
	// SetBaudRate changes the line speed
	SetBaudRate(baud int) error
}

// Timing holds the transport timeouts
type Timing struct {
	CommandTimeout    time.Duration // retransmit after this much silence
	HeartbeatInterval time.Duration // idle time before a GetSettings heartbeat
}

// DefaultTiming returns the timing used by SmartAudio devices
func DefaultTiming() Timing {
	return Timing{
		CommandTimeout:    DefaultCommandTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
	}
}

// Option configures an Engine
type Option func(*Engine)

// WithTiming overrides the transport timing
func WithTiming(t Timing) Option {
	return func(e *Engine) { e.timing = t }
}

// WithAutobaud overrides the autobaud search range
func WithAutobaud(cfg AutobaudConfig) Option {
	return func(e *Engine) { e.autobaudCfg = cfg }
}

// WithInitialBaud sets the baud rate the transport was opened at
func WithInitialBaud(baud int) Option {
	return func(e *Engine) { e.initialBaud = baud }
}

// WithStateChanged registers the state-changed notification. It is called
// from Tick whenever a new device snapshot or pit frequency is committed.
func WithStateChanged(fn func(Status)) Option {
	return func(e *Engine) { e.onStateChanged = fn }
}

// WithFrameHandler registers an observer called for every valid frame
// before it is processed
func WithFrameHandler(fn func(Frame)) Option {
	return func(e *Engine) { e.onFrame = fn }
}

// Engine drives one SmartAudio link. All protocol state lives in the engine;
// it performs no I/O outside Tick and the command methods, and it is not
// safe for concurrent use.
type Engine struct {
	transport   Transport
	timing      Timing
	autobaudCfg AutobaudConfig
	initialBaud int

	receiver *Receiver
	queue    CommandQueue
	autobaud *Autobaud
	stats    Statistics

	// Device state
	settings Settings
	previous Settings
	status   Status

	// Outstanding command
	outstanding      uint8
	outstandingCmd   Command
	lastTransmission time.Duration

	initialSent bool

	onStateChanged func(Status)
	onFrame        func(Frame)
}

// NewEngine creates an engine over the given transport
func NewEngine(t Transport, opts ...Option) *Engine {
	e := &Engine{
		transport:   t,
		timing:      DefaultTiming(),
		autobaudCfg: DefaultAutobaudConfig(),
		receiver:    NewReceiver(),
		settings:    unknownSettings,
		previous:    unknownSettings,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.initialBaud == 0 {
		e.initialBaud = e.autobaudCfg.Min
	}
	e.autobaud = NewAutobaud(e.autobaudCfg, e.initialBaud)
	return e
}

// Tick runs one engine cycle at the given monotonic time: drain received
// bytes, evaluate autobaud, then retransmit, send a queued command or send
// a heartbeat, in that order of priority.
func (e *Engine) Tick(now time.Duration) {
	e.drain()
	e.runAutobaud()

	if !e.initialSent {
		e.queueCommand(NewGetSettings())
		e.queueCommand(NewGetPitFrequency())
		e.sendQueue(now)
		e.initialSent = true
		return
	}

	switch {
	case e.outstanding != CmdNone && now-e.lastTransmission > e.timing.CommandTimeout:
		// Last command timed out
		e.resend(now)
	case !e.queue.Empty():
		e.sendQueue(now)
	case now-e.lastTransmission >= e.timing.HeartbeatInterval:
		// Heartbeat keeps traffic flowing for autobauding
		e.queueCommand(NewGetSettings())
		e.sendQueue(now)
	}
}

// drain feeds every buffered byte to the receiver
func (e *Engine) drain() {
	for e.transport.Buffered() > 0 {
		b, err := e.transport.ReadByte()
		if err != nil {
			e.stats.TransportErrors++
			glog.Warningf("smartaudio: read error: %v", err)
			return
		}

		ev, frame := e.receiver.Feed(b)
		e.stats.record(ev)
		if ev == EventFrame {
			if e.onFrame != nil {
				e.onFrame(frame)
			}
			e.processResponse(frame)
		}
	}
}

func (e *Engine) runAutobaud() {
	switch e.autobaud.Evaluate(e.stats.Sent, e.stats.Received) {
	case AutobaudSkipped:
		return
	case AutobaudAdjusted:
		baud := e.autobaud.BaudRate()
		glog.V(1).Infof("smartaudio: autobaud %d/%d answered, now %d baud",
			e.stats.Received, e.stats.Sent, baud)
		if err := e.transport.SetBaudRate(baud); err != nil {
			e.stats.TransportErrors++
			glog.Warningf("smartaudio: set baud rate %d: %v", baud, err)
		}
		e.stats.BaudChanges++
	}
	e.stats.resetWindow()
}

// queueCommand appends a command, dropping it when the queue is full
func (e *Engine) queueCommand(c Command) {
	if !e.queue.Push(c) {
		e.stats.DroppedCommands++
		glog.V(1).Infof("smartaudio: queue full, dropped command 0x%02X", c.Code())
	}
}

// sendQueue transmits the oldest queued command and makes it outstanding
func (e *Engine) sendQueue(now time.Duration) {
	c, ok := e.queue.Pop()
	if !ok {
		return
	}
	e.outstandingCmd = c
	e.outstanding = c.Code()
	glog.V(1).Infof("smartaudio: send %s", FormatCommandName(e.outstanding))
	e.sendFrame(e.outstandingCmd.Bytes(), now)
}

// resend retransmits the outstanding frame as-is
func (e *Engine) resend(now time.Duration) {
	e.stats.Retransmits++
	glog.V(1).Infof("smartaudio: resend %s", FormatCommandName(e.outstanding))
	e.sendFrame(e.outstandingCmd.Bytes(), now)
}

// sendFrame writes a frame wrapped in zero guard bytes. The leading zero
// generates the first start bit on the half-duplex line.
func (e *Engine) sendFrame(frame []byte, now time.Duration) {
	var buf [MaxFrameSize + 2]byte
	n := copy(buf[1:], frame)
	if _, err := e.transport.Write(buf[:n+2]); err != nil {
		e.stats.TransportErrors++
		glog.Warningf("smartaudio: write error: %v", err)
	}
	e.lastTransmission = now
	e.stats.countSent()
}

// SetBandChannel queues a channel change. band is 0-4, channel is 0-7.
func (e *Engine) SetBandChannel(band, channel int) error {
	c, err := NewSetChannel(band, channel)
	if err != nil {
		return err
	}
	e.queueCommand(c)
	return nil
}

// SetPowerByIndex queues a power change to a 0-based power table index.
// It fails with ErrVersionUnknown until the device version is known.
func (e *Engine) SetPowerByIndex(index int) error {
	c, err := NewSetPower(e.settings.Version, index)
	if err != nil {
		return err
	}
	e.queueCommand(c)
	return nil
}

// SetMode queues a SET_MODE command
func (e *Engine) SetMode(mode ModeFlags) {
	e.queueCommand(NewSetMode(mode))
}

// SetFrequency queues a tune-to-frequency command
func (e *Engine) SetFrequency(freq uint16) error {
	if freq&freqPitMask != 0 {
		return ErrInvalidFrequency
	}
	e.queueCommand(NewSetFrequency(freq))
	return nil
}

// SetPitFrequency queues a pit mode frequency change
func (e *Engine) SetPitFrequency(freq uint16) error {
	c, err := NewSetPitFrequency(freq)
	if err != nil {
		return err
	}
	e.queueCommand(c)
	return nil
}

// Status returns the device state for display callers
func (e *Engine) Status() Status {
	return e.status
}

// Settings returns the last committed device snapshot
func (e *Engine) Settings() Settings {
	return e.settings
}

// Statistics returns a copy of the link statistics
func (e *Engine) Statistics() Statistics {
	return e.stats
}

// Outstanding returns the command awaiting a response, if any
func (e *Engine) Outstanding() (Command, bool) {
	if e.outstanding == CmdNone {
		return Command{}, false
	}
	return e.outstandingCmd, true
}

// QueueLen returns the number of queued commands
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// BaudRate returns the baud rate currently applied by autobaud
func (e *Engine) BaudRate() int {
	return e.autobaud.BaudRate()
}

func (e *Engine) receiverState() ReceiverState {
	return e.receiver.State()
}
