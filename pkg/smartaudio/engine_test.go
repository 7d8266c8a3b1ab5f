// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records writes and serves queued receive bytes
type fakeTransport struct {
	rx     []byte
	writes [][]byte
	bauds  []int
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeTransport) Buffered() int { return len(f.rx) }

func (f *fakeTransport) ReadByte() (byte, error) {
	if len(f.rx) == 0 {
		return 0, io.EOF
	}
	b := f.rx[0]
	f.rx = f.rx[1:]
	return b, nil
}

func (f *fakeTransport) SetBaudRate(baud int) error {
	f.bauds = append(f.bauds, baud)
	return nil
}

// respond queues an encoded response frame for the next Tick
func (f *fakeTransport) respond(t *testing.T, code uint8, payload ...byte) {
	t.Helper()
	fr, err := NewFrame(code, payload)
	require.NoError(t, err)
	f.rx = append(f.rx, fr.Encode()...)
}

// frames returns the written frames with the zero guard bytes removed
func (f *fakeTransport) frames(t *testing.T) [][]byte {
	t.Helper()
	out := make([][]byte, 0, len(f.writes))
	for _, w := range f.writes {
		require.GreaterOrEqual(t, len(w), 2)
		require.Equal(t, byte(0), w[0], "leading guard byte")
		require.Equal(t, byte(0), w[len(w)-1], "trailing guard byte")
		out = append(out, w[1:len(w)-1])
	}
	return out
}

func (f *fakeTransport) lastFrame(t *testing.T) []byte {
	t.Helper()
	frames := f.frames(t)
	require.NotEmpty(t, frames)
	return frames[len(frames)-1]
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// v2Settings is a V2 GetSettings payload: channel 10 (B3), power index 2,
// no pit mode, 5825 MHz frequency field
var v2Settings = []byte{0x0A, 0x02, 0x00, 0x16, 0xC1}

func newTestEngine(opts ...Option) (*Engine, *fakeTransport, *[]Status) {
	tr := &fakeTransport{}
	var notes []Status
	opts = append(opts, WithStateChanged(func(s Status) { notes = append(notes, s) }))
	return NewEngine(tr, opts...), tr, &notes
}

func TestEngine_Bootstrap(t *testing.T) {
	e, tr, _ := newTestEngine()

	e.Tick(0)

	getSettings := NewGetSettings()
	require.Len(t, tr.writes, 1, "bootstrap sends exactly one frame")
	assert.Equal(t, []byte{0x00, 0xAA, 0x55, 0x03, 0x00, 0x9F, 0x00}, tr.writes[0])
	assert.Equal(t, getSettings.Bytes(), tr.lastFrame(t))
	assert.Equal(t, 1, e.QueueLen(), "GetPitFrequency waits in the queue")

	out, ok := e.Outstanding()
	require.True(t, ok)
	assert.Equal(t, uint8(CmdGetSettings), out.Code())

	// Queued GetPitFrequency goes out on the next tick
	e.Tick(ms(5))
	getPit := NewGetPitFrequency()
	require.Len(t, tr.writes, 2)
	assert.Equal(t, getPit.Bytes(), tr.lastFrame(t))
	assert.Equal(t, 0, e.QueueLen())

	stats := e.Statistics()
	assert.Equal(t, uint32(2), stats.Sent)
	assert.Equal(t, uint64(2), stats.TotalSent)
}

func TestEngine_Retransmit(t *testing.T) {
	e, tr, _ := newTestEngine()
	e.Tick(0)
	e.Tick(ms(5))
	require.Len(t, tr.writes, 2)

	// Not yet timed out
	e.Tick(ms(100))
	e.Tick(ms(125))
	require.Len(t, tr.writes, 2)

	// 126ms after the last transmission
	e.Tick(ms(131))
	require.Len(t, tr.writes, 3)
	assert.Equal(t, tr.writes[1], tr.writes[2], "retransmission must be byte-identical")
	assert.Equal(t, uint64(1), e.Statistics().Retransmits)
	assert.Equal(t, uint64(3), e.Statistics().TotalSent)

	// The retransmission restarted the timer
	e.Tick(ms(200))
	require.Len(t, tr.writes, 3)
	e.Tick(ms(252))
	require.Len(t, tr.writes, 4)
}

func TestEngine_V2Settings(t *testing.T) {
	e, tr, notes := newTestEngine()
	e.Tick(0)

	tr.respond(t, CmdGetSettingsV2, v2Settings...)
	e.Tick(ms(10))

	require.Len(t, *notes, 1, "exactly one state change")
	st := e.Status()
	assert.Equal(t, Version2, st.Version)
	assert.Equal(t, 2, st.Band)
	assert.Equal(t, 3, st.Channel)
	assert.Equal(t, uint16(5771), st.Frequency)
	assert.Equal(t, 3, st.PowerIndex)
	assert.Equal(t, TxModeActive, st.TxMode)
	assert.Equal(t, st, (*notes)[0])

	s := e.Settings()
	assert.Equal(t, 10, s.Channel)
	assert.Equal(t, 2, s.Power)
	assert.Equal(t, uint16(5825), s.Frequency)
	assert.True(t, s.Known())

	// The V2 response resolved the V1 GetSettings; GetPitFrequency followed
	out, ok := e.Outstanding()
	require.True(t, ok)
	assert.Equal(t, uint8(CmdSetFrequency), out.Code())
	assert.Equal(t, uint64(0), e.Statistics().OutOfOrder)
	assert.Equal(t, uint32(1), e.Statistics().Received)
}

func TestEngine_DuplicateSettingsIgnored(t *testing.T) {
	e, tr, notes := newTestEngine()
	e.Tick(0)
	tr.respond(t, CmdGetSettingsV2, v2Settings...)
	e.Tick(ms(10))
	require.Len(t, *notes, 1)

	tr.respond(t, CmdGetSettingsV2, v2Settings...)
	e.Tick(ms(20))
	assert.Len(t, *notes, 1, "identical snapshot must not notify")

	// A changed field is a new snapshot
	tr.respond(t, CmdGetSettingsV2, 0x0A, 0x03, 0x00, 0x16, 0xC1)
	e.Tick(ms(30))
	require.Len(t, *notes, 2)
	assert.Equal(t, 4, e.Status().PowerIndex)
}

func TestEngine_V1Settings(t *testing.T) {
	e, tr, notes := newTestEngine()
	e.Tick(0)

	// A1, DAC 16, in-range pit mode active, unlocked
	tr.respond(t, CmdGetSettings, 0x00, 16, ModeGetPitMode|ModeGetInRangePitMode|ModeGetUnlock, 0x16, 0xE9)
	e.Tick(ms(10))

	require.Len(t, *notes, 1)
	st := e.Status()
	assert.Equal(t, Version1, st.Version)
	assert.Equal(t, 1, st.Band)
	assert.Equal(t, 1, st.Channel)
	assert.Equal(t, uint16(5865), st.Frequency)
	assert.Equal(t, DacToPowerIndex(16)+1, st.PowerIndex)
	assert.Equal(t, TxModePitInRange, st.TxMode)
	assert.True(t, st.OpMode.Unlocked())
}

func TestEngine_OutOfRangeChannel(t *testing.T) {
	e, tr, notes := newTestEngine()
	e.Tick(0)
	tr.respond(t, CmdGetSettingsV2, 45, 0x00, ModeGetPitMode|ModeGetOutRangePitMode, 0x16, 0xC1)
	e.Tick(ms(10))

	require.Len(t, *notes, 1)
	st := e.Status()
	assert.Equal(t, 0, st.Band)
	assert.Equal(t, 0, st.Channel)
	assert.Equal(t, uint16(0), st.Frequency)
	assert.Equal(t, TxModePitOutRange, st.TxMode)
	assert.Equal(t, byte('-'), st.BandLetter())
}

func TestEngine_PitFrequency(t *testing.T) {
	e, tr, notes := newTestEngine()
	e.Tick(0)
	tr.respond(t, CmdGetSettingsV2, v2Settings...)
	e.Tick(ms(5)) // sends GetPitFrequency

	tr.respond(t, CmdSetFrequency, 0x56, 0xA8, 0x00) // 5800 | FreqGetPit
	e.Tick(ms(10))

	require.Len(t, *notes, 2)
	assert.Equal(t, uint16(5800), e.Status().PitFrequency)
	assert.Equal(t, uint16(5800), (*notes)[1].PitFrequency)
	_, ok := e.Outstanding()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), e.Statistics().OutOfOrder)
}

func TestEngine_ShortPayloadsIgnored(t *testing.T) {
	e, tr, notes := newTestEngine()
	e.Tick(0)

	tr.respond(t, CmdGetSettingsV2, 0x0A, 0x02, 0x00, 0x16)
	e.Tick(ms(5))
	assert.Empty(t, *notes)
	assert.False(t, e.Settings().Known())

	// The short response still resolved GetSettings; GetPit is now outstanding
	tr.respond(t, CmdSetFrequency, 0x56, 0xA8)
	e.Tick(ms(10))
	assert.Empty(t, *notes)
	assert.Equal(t, uint16(0), e.Status().PitFrequency)
	assert.Equal(t, uint64(0), e.Statistics().OutOfOrder)
}

func TestEngine_ZeroCodeWithNothingOutstanding(t *testing.T) {
	e, _, notes := newTestEngine()
	f, err := NewFrame(CmdNone, nil)
	require.NoError(t, err)

	e.processResponse(f)

	_, ok := e.Outstanding()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), e.Statistics().OutOfOrder)
	assert.Empty(t, *notes)
}

func TestEngine_OutOfOrder(t *testing.T) {
	e, tr, _ := newTestEngine()
	e.Tick(0)

	tr.respond(t, CmdSetPower, 0x01)
	e.Tick(ms(1))

	assert.Equal(t, uint64(1), e.Statistics().OutOfOrder)
	// GetSettings still outstanding, but the queued command was sent
	// and is now the outstanding one
	out, ok := e.Outstanding()
	require.True(t, ok)
	assert.Equal(t, uint8(CmdSetFrequency), out.Code())
}

func TestEngine_Heartbeat(t *testing.T) {
	e, tr, _ := newTestEngine()
	e.Tick(0)
	tr.respond(t, CmdGetSettingsV2, v2Settings...)
	e.Tick(ms(5))
	tr.respond(t, CmdSetFrequency, 0x56, 0xA8, 0x00)
	e.Tick(ms(10))
	require.Len(t, tr.writes, 2)

	e.Tick(ms(1004))
	require.Len(t, tr.writes, 2, "idle for 999ms")

	e.Tick(ms(1005))
	require.Len(t, tr.writes, 3)
	getSettings := NewGetSettings()
	assert.Equal(t, getSettings.Bytes(), tr.lastFrame(t))
}

func TestEngine_ResendBeforeQueue(t *testing.T) {
	e, tr, _ := newTestEngine()
	e.Tick(0)
	e.Tick(ms(5))
	require.NoError(t, e.SetBandChannel(3, 3))

	e.Tick(ms(200))
	require.Len(t, tr.writes, 3)
	assert.Equal(t, tr.writes[1], tr.writes[2], "timed out command goes first")

	e.Tick(ms(210))
	require.Len(t, tr.writes, 4)
	want, _ := NewSetChannel(3, 3)
	assert.Equal(t, want.Bytes(), tr.lastFrame(t))
}

func TestEngine_QueueFullDrops(t *testing.T) {
	e, _, _ := newTestEngine()
	e.Tick(0) // leaves GetPitFrequency queued

	e.SetMode(ModeSetUnlock)
	e.SetMode(ModeSetLock)
	assert.Equal(t, QueueSize-1, e.QueueLen())

	e.SetMode(ModeClearPitMode)
	assert.Equal(t, QueueSize-1, e.QueueLen())
	assert.Equal(t, uint64(1), e.Statistics().DroppedCommands)
}

func TestEngine_CommandErrors(t *testing.T) {
	e, tr, _ := newTestEngine()

	assert.ErrorIs(t, e.SetPowerByIndex(0), ErrVersionUnknown)
	assert.ErrorIs(t, e.SetBandChannel(5, 0), ErrInvalidBand)
	assert.ErrorIs(t, e.SetBandChannel(0, 8), ErrInvalidChannel)
	assert.ErrorIs(t, e.SetFrequency(FreqSetPit|5800), ErrInvalidFrequency)
	assert.ErrorIs(t, e.SetPitFrequency(FreqGetPit), ErrInvalidFrequency)
	assert.Equal(t, 0, e.QueueLen())

	e.Tick(0)
	tr.respond(t, CmdGetSettingsV2, v2Settings...)
	e.Tick(ms(5))
	require.NoError(t, e.SetPowerByIndex(3))
	e.Tick(ms(10))
	want, _ := NewSetPower(Version2, 3)
	assert.Equal(t, want.Bytes(), tr.lastFrame(t))
}

func TestEngine_FrameHandler(t *testing.T) {
	var seen []Frame
	e, tr, _ := newTestEngine(WithFrameHandler(func(f Frame) { seen = append(seen, f) }))
	e.Tick(0)

	tr.rx = append(tr.rx, 0x13, 0x37)
	tr.respond(t, CmdGetSettingsV2, v2Settings...)
	e.Tick(ms(5))

	require.Len(t, seen, 1)
	assert.Equal(t, uint8(CmdGetSettingsV2), seen[0].Code())
	assert.Equal(t, StateWaitPreamble1, e.receiverState())
}

func TestEngine_AutobaudOnSilentLink(t *testing.T) {
	e, tr, _ := newTestEngine()
	assert.Equal(t, DefaultBaudMin, e.BaudRate())

	// Every 130ms the outstanding command is retransmitted
	for now := 0; now < 130*12; now += 10 {
		e.Tick(ms(now))
	}

	require.NotEmpty(t, tr.bauds)
	assert.Equal(t, 4850, tr.bauds[0])
	assert.Equal(t, 4850, e.BaudRate())
	stats := e.Statistics()
	assert.Equal(t, uint64(len(tr.bauds)), stats.BaudChanges)
	assert.Less(t, stats.Sent, uint32(DefaultAutobaudSamples), "window resets after adjusting")
}

func TestEngine_AutobaudHealthyLink(t *testing.T) {
	e, tr, _ := newTestEngine(WithInitialBaud(4900))
	e.Tick(0)

	for i := 1; i <= 20; i++ {
		tr.respond(t, CmdGetSettingsV2, v2Settings...)
		e.Tick(ms(i * 1000))
	}

	assert.Empty(t, tr.bauds)
	assert.Equal(t, 4900, e.BaudRate())
}

type failingTransport struct{ fakeTransport }

func (f *failingTransport) Write(p []byte) (int, error) {
	return 0, errors.New("line down")
}

func TestEngine_WriteErrorsCounted(t *testing.T) {
	tr := &failingTransport{}
	e := NewEngine(tr)
	e.Tick(0)

	stats := e.Statistics()
	assert.Equal(t, uint64(1), stats.TransportErrors)
	assert.Equal(t, uint64(1), stats.TotalSent, "a failed write still counts as a sample")
}
