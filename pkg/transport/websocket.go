// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrBaudRateUnsupported is returned by transports whose line speed is
// fixed by the far end
var ErrBaudRateUnsupported = errors.New("baud rate change not supported by transport")

// WebSocket is a serial bridge reached over a WebSocket. Line bytes travel
// in binary messages; text messages are ignored.
type WebSocket struct {
	rxBuffer

	mu     sync.Mutex
	conn   *websocket.Conn
	url    string
	closed bool
}

// DialWebSocket connects to a ws:// or wss:// serial bridge with optional
// HTTP Basic auth
func DialWebSocket(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (*WebSocket, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	w := &WebSocket{conn: conn, url: wsURL}
	w.start(&messageReader{conn: conn})
	return w, nil
}

// messageReader flattens binary messages into a byte stream
type messageReader struct {
	conn *websocket.Conn
	buf  []byte
}

func (m *messageReader) Read(p []byte) (int, error) {
	for len(m.buf) == 0 {
		messageType, data, err := m.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		m.buf = data
	}
	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n, nil
}

// Write sends bytes as one binary message
func (w *WebSocket) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetBaudRate always fails: the bridge owns the serial port
func (w *WebSocket) SetBaudRate(baud int) error {
	return fmt.Errorf("%w (requested %d)", ErrBaudRateUnsupported, baud)
}

// Close closes the connection
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.detach()
	return w.conn.Close()
}

func (w *WebSocket) String() string {
	return fmt.Sprintf("WebSocket: %s", w.url)
}
