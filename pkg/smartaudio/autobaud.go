// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import "fmt"

// AutobaudConfig bounds the baud rate search
type AutobaudConfig struct {
	Min          int // lowest baud rate tried
	Max          int // highest baud rate tried
	Step         int // adjustment per evaluation
	MinSamples   int // sent frames required before evaluating
	HealthyRatio int // response percentage at or above which the rate is kept
}

// DefaultAutobaudConfig returns the search range known to cover SmartAudio
// devices
func DefaultAutobaudConfig() AutobaudConfig {
	return AutobaudConfig{
		Min:          DefaultBaudMin,
		Max:          DefaultBaudMax,
		Step:         DefaultBaudStep,
		MinSamples:   DefaultAutobaudSamples,
		HealthyRatio: DefaultHealthyRatio,
	}
}

// Validate checks the configuration for a usable search range
func (c AutobaudConfig) Validate() error {
	if c.Min <= 0 || c.Max < c.Min {
		return fmt.Errorf("invalid autobaud range %d-%d", c.Min, c.Max)
	}
	if c.Step <= 0 {
		return fmt.Errorf("invalid autobaud step %d", c.Step)
	}
	if c.MinSamples <= 0 {
		return fmt.Errorf("invalid autobaud sample count %d", c.MinSamples)
	}
	if c.HealthyRatio < 1 || c.HealthyRatio > 100 {
		return fmt.Errorf("invalid autobaud healthy ratio %d (must be 1-100)", c.HealthyRatio)
	}
	return nil
}

// AutobaudDecision is the outcome of one evaluation
type AutobaudDecision int

// Autobaud decisions
const (
	AutobaudSkipped  AutobaudDecision = iota // not enough samples
	AutobaudHealthy                          // response ratio acceptable
	AutobaudAdjusted                         // baud rate moved one step
)

// Autobaud hunts for a working baud rate by sweeping the configured range
// while the response ratio stays low
type Autobaud struct {
	cfg  AutobaudConfig
	baud int
	dir  int // 1 going up, -1 going down
}

// NewAutobaud creates an autobaud controller starting at the given rate
func NewAutobaud(cfg AutobaudConfig, initial int) *Autobaud {
	return &Autobaud{cfg: cfg, baud: initial, dir: 1}
}

// BaudRate returns the current baud rate
func (a *Autobaud) BaudRate() int {
	return a.baud
}

// Direction returns 1 while sweeping up and -1 while sweeping down
func (a *Autobaud) Direction() int {
	return a.dir
}

// Evaluate inspects the sample window. The caller resets its window for
// every decision except AutobaudSkipped, and applies BaudRate to the
// transport on AutobaudAdjusted.
func (a *Autobaud) Evaluate(sent, received uint32) AutobaudDecision {
	if int(sent) < a.cfg.MinSamples {
		return AutobaudSkipped
	}

	if int(received)*100/int(sent) >= a.cfg.HealthyRatio {
		return AutobaudHealthy
	}

	if a.dir > 0 && a.baud+a.cfg.Step > a.cfg.Max {
		a.dir = -1
	} else if a.dir < 0 && a.baud-a.cfg.Step < a.cfg.Min {
		a.dir = 1
	}
	a.baud += a.cfg.Step * a.dir

	// ranges narrower than one step
	if a.baud > a.cfg.Max {
		a.baud = a.cfg.Max
	} else if a.baud < a.cfg.Min {
		a.baud = a.cfg.Min
	}

	return AutobaudAdjusted
}
