// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

// Backend names
const (
	BackendSerial    = "serial"
	BackendTarm      = "tarm"
	BackendWebSocket = "websocket"
)

// Link is an open transport
type Link interface {
	smartaudio.Transport
	Close() error
	Err() error
	String() string
}

// Options selects and configures a backend
type Options struct {
	Backend       string
	Port          string
	Baud          int
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// Open opens the link described by opts. A URL selects the WebSocket
// backend regardless of Backend.
func Open(ctx context.Context, opts Options) (Link, error) {
	if opts.URL != "" {
		ws, err := DialWebSocket(ctx, opts.URL, opts.Username, opts.Password, opts.SkipSSLVerify)
		if err != nil {
			return nil, err
		}
		return ws, nil
	}
	if opts.Port == "" {
		return nil, fmt.Errorf("either --port or --url must be specified")
	}

	switch opts.Backend {
	case BackendSerial, "":
		s, err := OpenSerial(opts.Port, opts.Baud)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendTarm:
		t, err := OpenTarm(opts.Port, opts.Baud)
		if err != nil {
			return nil, err
		}
		return t, nil
	case BackendWebSocket:
		return nil, fmt.Errorf("websocket backend requires --url")
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}
