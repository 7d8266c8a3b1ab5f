// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// feedAll feeds data to the receiver, returning frames and counting events
func feedAll(r *Receiver, data []byte) ([]Frame, *Statistics) {
	var frames []Frame
	stats := &Statistics{}
	for _, b := range data {
		ev, f := r.Feed(b)
		stats.record(ev)
		if ev == EventFrame {
			frames = append(frames, f)
		}
	}
	return frames, stats
}

func mustFrame(t *testing.T, code uint8, payload ...byte) Frame {
	t.Helper()
	f, err := NewFrame(code, payload)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return f
}

func TestReceiver_Response(t *testing.T) {
	want := mustFrame(t, CmdGetSettingsV2, 0x0A, 0x02, 0x00, 0x16, 0xC1)
	wire := want.Encode()

	if !bytes.Equal(wire, []byte{0xAA, 0x55, 0x09, 0x05, 0x0A, 0x02, 0x00, 0x16, 0xC1, 0xC8}) {
		t.Fatalf("unexpected wire bytes % X", wire)
	}

	r := NewReceiver()
	frames, stats := feedAll(r, wire)

	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	got := frames[0]
	if got.Code() != want.Code() || !bytes.Equal(got.Payload(), want.Payload()) {
		t.Errorf("frame mismatch: got code 0x%02X % X", got.Code(), got.Payload())
	}
	if stats.Errors() != 0 || stats.Echoes != 0 {
		t.Errorf("unexpected errors: %+v", stats)
	}
	if r.State() != StateWaitPreamble1 {
		t.Errorf("state = %s, want WAIT_PREAMBLE1", r.State())
	}
}

func TestReceiver_CommandRoundTrip(t *testing.T) {
	setChan, _ := NewSetChannel(4, 7)
	setPower, _ := NewSetPower(Version1, 3)
	setPit, _ := NewSetPitFrequency(5800)
	commands := []Command{
		NewGetSettings(),
		setChan,
		setPower,
		NewSetFrequency(5865),
		NewGetPitFrequency(),
		setPit,
		NewSetMode(ModeSetUnlock | ModeClearPitMode),
	}

	for _, c := range commands {
		t.Run(FormatCommandName(c.Code()), func(t *testing.T) {
			r := NewCommandReceiver()
			frames, stats := feedAll(r, c.Bytes())
			if len(frames) != 1 {
				t.Fatalf("expected 1 frame, got %d", len(frames))
			}
			f := frames[0]
			if f.Code() != c.Bytes()[2] {
				t.Errorf("code = 0x%02X, want 0x%02X", f.Code(), c.Bytes()[2])
			}
			if int(f.Length()) != len(c.Payload()) {
				t.Errorf("length = %d, want %d", f.Length(), len(c.Payload()))
			}
			if !bytes.Equal(f.Payload(), c.Payload()) {
				t.Errorf("payload = % X, want % X", f.Payload(), c.Payload())
			}
			if stats.Errors() != 0 || stats.Echoes != 0 {
				t.Errorf("unexpected error counters: %+v", stats)
			}
		})
	}
}

func TestReceiver_ZeroLength(t *testing.T) {
	f := mustFrame(t, CmdSetMode)
	frames, stats := feedAll(NewReceiver(), f.Encode())
	if len(frames) != 1 || frames[0].Length() != 0 {
		t.Fatalf("expected one empty frame, got %v", frames)
	}
	if stats.Errors() != 0 {
		t.Errorf("unexpected errors: %+v", stats)
	}
}

func TestReceiver_Resync(t *testing.T) {
	// Two bad preambles: 0xAA 0x00, then 0xAA 0xAA where the second 0xAA is
	// consumed as the failed second preamble byte. 0x42 and the trailing
	// 0x55 bytes arrive in WAIT_PREAMBLE1 and are dropped silently.
	garbage := []byte{0x00, 0x13, 0xAA, 0x00, 0xFF, 0xAA, 0xAA, 0x42, 0x55, 0x55}
	frame := mustFrame(t, CmdSetChannel, 0x0A).Encode()

	frames, stats := feedAll(NewReceiver(), append(garbage, frame...))

	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Code() != CmdSetChannel {
		t.Errorf("code = 0x%02X, want SET_CHANNEL", frames[0].Code())
	}
	if stats.BadPreamble != 2 {
		t.Errorf("BadPreamble = %d, want 2", stats.BadPreamble)
	}
	if stats.BadLength != 0 || stats.CRCErrors != 0 {
		t.Errorf("unexpected errors: %+v", stats)
	}
}

func TestReceiver_BadPreamblePairs(t *testing.T) {
	// Each 0xAA followed by a byte other than 0x55 counts once
	garbage := []byte{0xAA, 0x00, 0xAA, 0x13, 0xAA, 0xFF}
	frame := mustFrame(t, CmdGetSettings).Encode()

	r := NewReceiver()
	frames, stats := feedAll(r, garbage)
	if len(frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
	if stats.BadPreamble != 3 {
		t.Errorf("BadPreamble = %d, want 3", stats.BadPreamble)
	}
	if r.State() != StateWaitPreamble1 {
		t.Errorf("state = %s, want WAIT_PREAMBLE1", r.State())
	}

	frames, _ = feedAll(r, frame)
	if len(frames) != 1 || frames[0].Code() != CmdGetSettings {
		t.Errorf("expected GET_SETTINGS after resync, got %v", frames)
	}
}

func TestReceiver_LengthBound(t *testing.T) {
	for length := MaxPayloadSize + 1; length <= 0xFF; length++ {
		r := NewReceiver()
		_, stats := feedAll(r, []byte{0xAA, 0x55, 0x01, byte(length)})
		if stats.BadLength != 1 {
			t.Fatalf("length %d: BadLength = %d, want 1", length, stats.BadLength)
		}
		if r.State() != StateWaitPreamble1 {
			t.Fatalf("length %d: state = %s, want WAIT_PREAMBLE1", length, r.State())
		}
	}

	// Maximum payload is accepted
	payload := make([]byte, MaxPayloadSize)
	frames, stats := feedAll(NewReceiver(), mustFrame(t, 0x06, payload...).Encode())
	if len(frames) != 1 || stats.BadLength != 0 {
		t.Errorf("max payload rejected: frames=%d stats=%+v", len(frames), stats)
	}
}

func TestReceiver_CRCMismatch(t *testing.T) {
	tests := []struct {
		name     string
		code     uint8
		wantCRC  uint64
		wantEcho uint64
	}{
		{"even code counted as CRC error", CmdSetPower, 1, 0},
		{"odd code treated as echo", CommandByte(CmdSetChannel), 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := mustFrame(t, tt.code, 0x01).Encode()
			wire[len(wire)-1] ^= 0xFF

			frames, stats := feedAll(NewReceiver(), wire)
			if len(frames) != 0 {
				t.Errorf("corrupted frame dispatched")
			}
			if stats.CRCErrors != tt.wantCRC || stats.Echoes != tt.wantEcho {
				t.Errorf("CRCErrors=%d Echoes=%d, want %d/%d", stats.CRCErrors, stats.Echoes, tt.wantCRC, tt.wantEcho)
			}
		})
	}
}

func TestReceiver_EchoedCommandIgnored(t *testing.T) {
	// Our own command echoed on the half-duplex line, followed by the answer
	c, _ := NewSetChannel(1, 2)
	resp := mustFrame(t, CmdSetChannel, 0x0A).Encode()

	frames, stats := feedAll(NewReceiver(), append(append([]byte{0x00}, c.Bytes()...), resp...))
	if len(frames) != 1 || frames[0].Code() != CmdSetChannel {
		t.Fatalf("expected SET_CHANNEL response, got %v", frames)
	}
	if stats.Errors() != 0 || stats.Echoes != 1 {
		t.Errorf("stats = %+v, want one echo and no errors", stats)
	}
}

func TestReceiver_FuzzGarbageThenFrame(t *testing.T) {
	rng := newFuzzRng(t)
	frame := mustFrame(t, CmdGetSettings, 0x03, 0x07, 0x00, 0x16, 0xAD).Encode()

	for round := 0; round < getFuzzRounds(); round++ {
		garbage := make([]byte, rng.Intn(64))
		rng.Read(garbage)

		r := NewReceiver()
		feedAll(r, garbage)
		// Whatever state the garbage left behind, a frame longer than any
		// partial one resynchronizes after at most one more frame
		frames, _ := feedAll(r, append(append([]byte(nil), frame...), frame...))
		if len(frames) == 0 {
			t.Fatalf("round %d: no frame recovered after garbage % X", round, garbage)
		}
		last := frames[len(frames)-1]
		if last.Code() != CmdGetSettings || last.Length() != 5 {
			t.Fatalf("round %d: unexpected frame code 0x%02X len %d", round, last.Code(), last.Length())
		}
	}
}

func TestReceiver_FuzzNoPanic(t *testing.T) {
	rng := newFuzzRng(t)
	r := NewReceiver()
	c := NewCommandReceiver()
	for round := 0; round < getFuzzRounds(); round++ {
		data := make([]byte, rng.Intn(256))
		rng.Read(data)
		feedAll(r, data)
		feedAll(c, data)
	}
}
