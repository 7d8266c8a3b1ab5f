// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "errors"

var (
	// ErrVersionUnknown indicates no GetSettings response has been received
	// yet, so version-dependent commands cannot be encoded.
	ErrVersionUnknown = errors.New("protocol version not yet known")
	// ErrInvalidBand indicates a band outside 0-4.
	ErrInvalidBand = errors.New("invalid band")
	// ErrInvalidChannel indicates a channel outside 0-7.
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrInvalidPowerIndex indicates a power index outside 0-3.
	ErrInvalidPowerIndex = errors.New("invalid power index")
	// ErrInvalidFrequency indicates a frequency that collides with the pit
	// flag bits.
	ErrInvalidFrequency = errors.New("invalid frequency")
)
