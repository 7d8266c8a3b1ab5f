// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Thermoquad/smartaudio/pkg/capture"
	"github.com/Thermoquad/smartaudio/pkg/config"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/Thermoquad/smartaudio/pkg/transport"
	"github.com/golang/glog"
	"golang.org/x/term"
)

// EnvPassword holds the WebSocket password
const EnvPassword = "SMARTAUDIO_PASSWORD"

// connection is an open link, optionally recorded to a capture file
type connection struct {
	link    transport.Link
	tap     *transport.Tap
	capFile *os.File
}

// Transport returns the transport the engine should drive
func (c *connection) Transport() smartaudio.Transport {
	if c.tap != nil {
		return c.tap
	}
	return c.link
}

// Err returns the sticky receive error of the link, if any
func (c *connection) Err() error {
	return c.link.Err()
}

func (c *connection) String() string {
	s := c.link.String()
	if c.capFile != nil {
		s += " | capture: " + c.capFile.Name()
	}
	return s
}

// Close flushes the capture and closes the link
func (c *connection) Close() error {
	if c.tap != nil {
		if err := c.tap.Flush(); err != nil {
			glog.Warningf("capture flush: %v", err)
		}
	}
	if c.capFile != nil {
		c.capFile.Close()
	}
	return c.link.Close()
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// linkOptions builds transport options from the configuration, prompting
// for a password when a WebSocket username is set
func linkOptions(cfg *config.Config) (transport.Options, error) {
	opts := transport.Options{
		Backend:       cfg.Link.Backend,
		Port:          cfg.Link.Port,
		Baud:          cfg.Link.Baud,
		URL:           cfg.Link.URL,
		Username:      cfg.Link.Username,
		SkipSSLVerify: cfg.Link.NoSSLVerify,
	}
	if opts.URL != "" && opts.Username != "" {
		password, err := GetPassword()
		if err != nil {
			return opts, err
		}
		opts.Password = password
	}
	return opts, nil
}

// openConnection opens the configured link. When a capture path is set all
// traffic is recorded to it.
func openConnection(ctx context.Context, cfg *config.Config, opts transport.Options) (*connection, error) {
	link, err := transport.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	conn := &connection{link: link}

	if cfg.Capture != "" {
		f, err := os.OpenFile(cfg.Capture, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			link.Close()
			return nil, fmt.Errorf("failed to open capture file: %w", err)
		}
		conn.capFile = f
		conn.tap = transport.NewTap(link, capture.NewWriter(f))
	}

	glog.V(1).Infof("connected: %s", conn)
	return conn, nil
}
