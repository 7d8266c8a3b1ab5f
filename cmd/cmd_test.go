// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/capture"
	"github.com/Thermoquad/smartaudio/pkg/config"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/Thermoquad/smartaudio/pkg/vtxsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simLink adapts an in-memory simulator link to transport.Link
type simLink struct {
	*vtxsim.Link
}

func (simLink) Close() error   { return nil }
func (simLink) Err() error     { return nil }
func (simLink) String() string { return "sim" }

func simConnection(dev *vtxsim.Device, echo bool) *connection {
	return &connection{link: simLink{vtxsim.NewLink(dev, smartaudio.DefaultBaudMin, echo)}}
}

func TestRunner_DrivesDevice(t *testing.T) {
	dev := vtxsim.NewDevice(vtxsim.DefaultConfig())
	cfg := config.Default()

	var statuses []smartaudio.Status
	statusCh := make(chan smartaudio.Status, 64)
	r := newRunner(cfg, simConnection(dev, true), nil, runnerHooks{
		onStatus: func(st smartaudio.Status) { statusCh <- st },
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	require.True(t, r.waitOnline(ctx, 2*time.Second))

	err := r.Do(ctx, func(e *smartaudio.Engine) error {
		return e.SetBandChannel(4, 7)
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return dev.Settings().Channel == 39
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return r.Snapshot().Status.Band == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)
	assert.ErrorIs(t, r.Do(context.Background(), func(*smartaudio.Engine) error { return nil }), errRunnerStopped)

	close(statusCh)
	for st := range statusCh {
		statuses = append(statuses, st)
	}
	require.NotEmpty(t, statuses)
	assert.Equal(t, smartaudio.Version2, statuses[0].Version)
}

func TestScanBaud(t *testing.T) {
	cfg := vtxsim.DefaultConfig()
	cfg.BaudMin, cfg.BaudMax = 4850, 4900

	t.Run("inside window", func(t *testing.T) {
		conn := simConnection(vtxsim.NewDevice(cfg), true)
		require.NoError(t, conn.Transport().SetBaudRate(4850))

		res, err := scanBaud(context.Background(), conn, 4850, 3, 100*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 3, res.sent)
		assert.Equal(t, 3, res.answered)
		assert.Equal(t, 3, res.echoes)
		assert.Zero(t, res.errors)
		assert.InDelta(t, 100.0, res.ratio(), 0.01)
		assert.Equal(t, uint8(smartaudio.CmdGetSettingsV2), res.lastReply.Code())
	})

	t.Run("outside window", func(t *testing.T) {
		conn := simConnection(vtxsim.NewDevice(cfg), false)
		res, err := scanBaud(context.Background(), conn, 4800, 2, 20*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 2, res.sent)
		assert.Zero(t, res.answered)
		assert.Zero(t, res.ratio())
	})
}

func frameBytes(t *testing.T, code uint8, payload ...byte) []byte {
	t.Helper()
	f, err := smartaudio.NewFrame(code, payload)
	require.NoError(t, err)
	return f.Encode()
}

func writeCapture(t *testing.T, records ...capture.Record) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := capture.NewWriter(&buf)
	for _, r := range records {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Flush())
	return &buf
}

func TestReplay(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.Local)
	query := smartaudio.NewGetSettings()

	buf := writeCapture(t,
		capture.Record{Dir: capture.TX, At: at, Data: append([]byte{0x00}, query.Bytes()...)},
		capture.Record{Dir: capture.RX, At: at.Add(20 * time.Millisecond),
			Data: frameBytes(t, smartaudio.CmdGetSettingsV2, 0x0A, 0x02, 0x00, 0x16, 0x8B)},
		capture.Record{Dir: capture.RX, At: at.Add(time.Second), Data: []byte{0xAA, 0x00}},
	)

	t.Run("all", func(t *testing.T) {
		var out bytes.Buffer
		stats, n, err := replay(bytes.NewReader(buf.Bytes()), &out, true, false)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, uint64(1), stats.Commands)
		assert.Equal(t, uint64(1), stats.Responses)
		assert.Equal(t, uint64(1), stats.BadPreamble)

		text := out.String()
		assert.Contains(t, text, "12:00:00.000] TX 00 AA 55 03 00")
		assert.Contains(t, text, "BAD PREAMBLE")
	})

	t.Run("errors only", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := replay(bytes.NewReader(buf.Bytes()), &out, false, true)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "BAD PREAMBLE")
	})

	t.Run("truncated", func(t *testing.T) {
		data := buf.Bytes()
		_, n, err := replay(bytes.NewReader(data[:len(data)-1]), &bytes.Buffer{}, false, false)
		assert.Error(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestPlainWriter_StripsColor(t *testing.T) {
	var out bytes.Buffer
	colored := []byte("RX \033[1;31mCRC ERROR\033[0m\n")
	n, err := plainWriter{&out}.Write(colored)
	require.NoError(t, err)
	assert.Equal(t, len(colored), n)
	assert.Equal(t, "RX CRC ERROR\n", out.String())

	// cursor and hyperlink sequences are not color codes but still go
	out.Reset()
	_, err = plainWriter{&out}.Write([]byte("\033[2K\033]8;;http://vtx\007TX\033]8;;\007 GET_SETTINGS\n"))
	require.NoError(t, err)
	assert.Equal(t, "TX GET_SETTINGS\n", out.String())
}

func TestParseBand(t *testing.T) {
	tests := []struct {
		arg  string
		band int
		ok   bool
	}{
		{"1", 1, true},
		{"5", 5, true},
		{"A", 1, true},
		{"e", 3, true},
		{"r", 5, true},
		{"0", 0, false},
		{"6", 0, false},
		{"X", 0, false},
		{"AB", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			band, err := parseBand(tt.arg)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.band, band)
		})
	}
}

func TestSimConfig(t *testing.T) {
	defer func(v, b, c, p, f int) {
		simVersion, simBand, simChannel, simPower, simPitFreq = v, b, c, p, f
	}(simVersion, simBand, simChannel, simPower, simPitFreq)

	simVersion, simBand, simChannel, simPower, simPitFreq = 1, 2, 3, 3, 5584
	cfg, err := simConfig()
	require.NoError(t, err)
	assert.Equal(t, smartaudio.Version1, cfg.Version)
	assert.Equal(t, uint8(10), cfg.Channel)
	assert.Equal(t, uint8(25), cfg.Power, "V1 reports the DAC value")

	simVersion = 2
	cfg, err = simConfig()
	require.NoError(t, err)
	assert.Equal(t, uint8(2), cfg.Power)

	simBand = 6
	_, err = simConfig()
	assert.Error(t, err)
}

func TestWrap(t *testing.T) {
	assert.Equal(t, 1, wrap(0, 1, 5))
	assert.Equal(t, 5, wrap(0, -1, 5))
	assert.Equal(t, 1, wrap(5, 1, 5))
	assert.Equal(t, 5, wrap(1, -1, 5))
	assert.Equal(t, 3, wrap(2, 1, 5))
}

func TestControlModel_StepWhileDisconnected(t *testing.T) {
	cm := &connectionManager{ctx: context.Background()}
	m := initialControlModel(cm, "test", smartaudio.Selection{})

	next, cmd := m.stepField(1)
	m = next.(controlModel)
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Equal(t, 1, m.sel.Band)

	// a second change waits for the first
	_, again := m.stepField(1)
	assert.Nil(t, again)

	msg := cmd()
	applied, ok := msg.(appliedMsg)
	require.True(t, ok)
	assert.EqualError(t, applied.err, "not connected")

	next, _ = m.Update(applied)
	m = next.(controlModel)
	assert.False(t, m.pending)
	require.Len(t, m.errorLog, 1)
	assert.True(t, m.errorLog[0].isError)
}

func TestControlModel_FocusCycles(t *testing.T) {
	m := initialControlModel(&connectionManager{ctx: context.Background()}, "test", smartaudio.Selection{})
	for i := 0; i < focusCount; i++ {
		m = m.cycleFocus(1)
	}
	assert.Equal(t, focusBand, m.focusedField)

	m = m.cycleFocus(-1)
	assert.Equal(t, focusPitFMode, m.focusedField)

	m.focusedField = focusChannel
	m = m.cycleFocus(1)
	assert.Equal(t, focusPower, m.focusedField)
	m = m.cycleFocus(1)
	assert.True(t, m.editingText())
	assert.True(t, m.freqInput.Focused())
}
