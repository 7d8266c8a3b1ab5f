// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/abiosoft/ishell"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

const (
	shellKey       = "$vtx"
	offlinePrompt  = "[offline] > "
	shellCmdWait   = 2 * time.Second
	shellOnlineMax = 5 * time.Second
)

var shellCmd = &cobra.Command{
	Use:   "shell [command [args...]]",
	Short: "Interactive command shell for the VTX",
	Long: `Open an interactive shell to query and change VTX settings.

With arguments, the command is run once after the VTX answered and the
shell exits, e.g.

  smartaudio shell -p /dev/ttyUSB0 channel 3

Type 'help' in the shell for the list of commands.`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// vtxShell binds an ishell instance to an engine runner
type vtxShell struct {
	shell  *ishell.Shell
	runner *runner
	ctx    context.Context
	sel    smartaudio.Selection
}

func shellFrom(c *ishell.Context) *vtxShell {
	return c.Get(shellKey).(*vtxShell)
}

// do runs fn against the engine with the shell's selection synced to the
// device state
func (s *vtxShell) do(fn func(e *smartaudio.Engine, sel *smartaudio.Selection) error) error {
	ctx, cancel := context.WithTimeout(s.ctx, shellCmdWait)
	defer cancel()
	return s.runner.Do(ctx, func(e *smartaudio.Engine) error {
		s.sel.Sync(e.Status())
		return fn(e, &s.sel)
	})
}

func (s *vtxShell) updatePrompt() {
	st := s.runner.Snapshot().Status
	if st.Version == smartaudio.VersionUnknown {
		s.shell.SetPrompt(offlinePrompt)
		return
	}
	s.shell.SetPrompt(fmt.Sprintf("[%s] > ", strings.TrimSpace(smartaudio.StatusString(st))))
}

// mustBeOnline wraps commands that need the device to have answered
func mustBeOnline(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := shellFrom(c)
		if s.runner.Snapshot().Status.Version == smartaudio.VersionUnknown {
			c.Err(errors.New("VTX has not answered yet"))
			return
		}
		fn(c)
		s.updatePrompt()
	}
}

// intArg parses the single integer argument of a command
func intArg(c *ishell.Context, name string, min, max int) (int, bool) {
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("usage: %s <%d-%d>", c.Cmd.Name, min, max))
		return 0, false
	}
	v, err := strconv.Atoi(c.Args[0])
	if err != nil || v < min || v > max {
		c.Err(fmt.Errorf("invalid %s %q (%d-%d)", name, c.Args[0], min, max))
		return 0, false
	}
	return v, true
}

func parseBand(arg string) (int, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= smartaudio.BandCount {
			return n, nil
		}
	} else if len(arg) == 1 {
		letter := rune(strings.ToUpper(arg)[0])
		for i, l := range smartaudio.BandLetters {
			if l == letter {
				return i + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("invalid band %q (1-%d or %s)", arg, smartaudio.BandCount, smartaudio.BandLetters)
}

func printStatus(c *ishell.Context, snap snapshot) {
	st := snap.Status
	c.Printf("Version:   %s\n", st.Version)
	c.Printf("Band:      %c (%s)\n", st.BandLetter(), bandName(st.Band))
	c.Printf("Channel:   %d\n", st.Channel)
	c.Printf("Frequency: %d MHz\n", st.Frequency)
	c.Printf("Power:     %d mW (index %d)\n", st.MilliWatts(), st.PowerIndex)
	c.Printf("TX mode:   %s\n", st.TxMode)
	if st.Version == smartaudio.Version2 {
		c.Printf("Pit freq:  %d MHz\n", st.PitFrequency)
	}
	c.Printf("Baud:      %d\n", snap.BaudRate)
}

var shellCommands = []*ishell.Cmd{
	{
		Name: "status",
		Help: "show the VTX state",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			printStatus(c, s.runner.Snapshot())
			s.updatePrompt()
		},
	},
	{
		Name: "settings",
		Help: "show the last raw settings response",
		Func: mustBeOnline(func(c *ishell.Context) {
			c.Print(smartaudio.FormatSettings(shellFrom(c).runner.Snapshot().Settings))
		}),
	},
	{
		Name: "stats",
		Help: "show link statistics",
		Func: func(c *ishell.Context) {
			snap := shellFrom(c).runner.Snapshot()
			c.Println(snap.Statistics.String())
			c.Printf("Queue: %d pending, outstanding=%v\n", snap.QueueLen, snap.Outstanding)
		},
	},
	{
		Name: "band",
		Help: "band <1-5|A|B|E|F|R>: select the band",
		Func: mustBeOnline(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("usage: band <band>"))
				return
			}
			band, err := parseBand(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			err = shellFrom(c).do(func(e *smartaudio.Engine, sel *smartaudio.Selection) error {
				sel.Band = band
				return sel.ApplyBand(e)
			})
			reportResult(c, err)
		}),
	},
	{
		Name: "channel",
		Help: "channel <1-8>: select the channel within the band",
		Func: mustBeOnline(func(c *ishell.Context) {
			ch, ok := intArg(c, "channel", 1, 8)
			if !ok {
				return
			}
			err := shellFrom(c).do(func(e *smartaudio.Engine, sel *smartaudio.Selection) error {
				sel.Channel = ch
				return sel.ApplyChannel(e)
			})
			reportResult(c, err)
		}),
	},
	{
		Name: "power",
		Help: "power <1-4>: select the power level (25/200/500/800 mW)",
		Func: mustBeOnline(func(c *ishell.Context) {
			idx, ok := intArg(c, "power", 1, len(smartaudio.PowerTable))
			if !ok {
				return
			}
			err := shellFrom(c).do(func(e *smartaudio.Engine, sel *smartaudio.Selection) error {
				sel.Power = idx
				return sel.ApplyPower(e)
			})
			reportResult(c, err)
		}),
	},
	{
		Name: "freq",
		Help: "freq <MHz>: tune to a frequency directly",
		Func: mustBeOnline(func(c *ishell.Context) {
			f, ok := intArg(c, "frequency", 1, 0x3FFF)
			if !ok {
				return
			}
			err := shellFrom(c).do(func(e *smartaudio.Engine, _ *smartaudio.Selection) error {
				return e.SetFrequency(uint16(f))
			})
			reportResult(c, err)
		}),
	},
	{
		Name: "pitfreq",
		Help: "pitfreq <MHz>: set the pit mode frequency (V2)",
		Func: mustBeOnline(func(c *ishell.Context) {
			f, ok := intArg(c, "pit frequency", 1, 0x3FFF)
			if !ok {
				return
			}
			err := shellFrom(c).do(func(e *smartaudio.Engine, _ *smartaudio.Selection) error {
				return e.SetPitFrequency(uint16(f))
			})
			reportResult(c, err)
		}),
	},
	{
		Name: "active",
		Help: "leave pit mode and transmit (V2, cannot be undone until power cycle)",
		Func: mustBeOnline(func(c *ishell.Context) {
			var mode smartaudio.TxMode
			err := shellFrom(c).do(func(e *smartaudio.Engine, sel *smartaudio.Selection) error {
				sel.TxMode = smartaudio.TxModeActive
				sel.ApplyTxMode(e)
				mode = sel.TxMode
				return nil
			})
			if err == nil && mode != smartaudio.TxModeActive {
				err = errors.New("only V2 devices can leave pit mode")
			}
			reportResult(c, err)
		}),
	},
	{
		Name: "opmodel",
		Help: "opmodel <free|pit>: select how the VTX powers up",
		Func: mustBeOnline(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("usage: opmodel <free|pit>"))
				return
			}
			m, err := smartaudio.ParseOpModel(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			err = shellFrom(c).do(func(e *smartaudio.Engine, sel *smartaudio.Selection) error {
				sel.OpModel = m
				sel.ApplyOpModel(e)
				return nil
			})
			reportResult(c, err)
		}),
	},
	{
		Name: "pitfmode",
		Help: "pitfmode <in-range|out-range>: select the pit mode variant",
		Func: mustBeOnline(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("usage: pitfmode <in-range|out-range>"))
				return
			}
			m, err := smartaudio.ParsePitFMode(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			err = shellFrom(c).do(func(e *smartaudio.Engine, sel *smartaudio.Selection) error {
				sel.PitFMode = m
				sel.ApplyPitFMode(e)
				return nil
			})
			reportResult(c, err)
		}),
	},
	{
		Name: "wait",
		Help: "wait until the queued commands were answered",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			deadline := time.Now().Add(shellCmdWait)
			for time.Now().Before(deadline) {
				snap := s.runner.Snapshot()
				if snap.QueueLen == 0 && !snap.Outstanding {
					c.Println("OK")
					s.updatePrompt()
					return
				}
				time.Sleep(s.runner.interval)
			}
			c.Err(errors.New("commands still pending"))
		},
	},
}

func reportResult(c *ishell.Context, err error) {
	if err != nil {
		c.Err(err)
		return
	}
	c.Println("OK")
}

func runShell(cmd *cobra.Command, args []string) error {
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

	conn, err := openConnection(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	pub, err := dialPublisher(cfg)
	if err != nil {
		glog.Warningf("mqtt: %v", err)
	}
	if pub != nil {
		defer pub.Close()
	}

	r := newRunner(cfg, conn, pub, runnerHooks{})
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	s := &vtxShell{shell: ishell.New(), runner: r, ctx: ctx}
	s.sel = cfg.Selection()
	s.shell.Set(shellKey, s)
	s.shell.SetPrompt(offlinePrompt)
	for _, c := range shellCommands {
		s.shell.AddCmd(c)
	}

	if len(args) > 0 {
		if !r.waitOnline(ctx, shellOnlineMax) {
			return fmt.Errorf("no response from VTX on %s", conn)
		}
		if err := s.shell.Process(args...); err != nil {
			return err
		}
		// give queued commands a chance to go out before closing the link
		return s.shell.Process("wait")
	}

	s.shell.Printf("smartaudio shell on %s, type 'help' for commands\n", conn)
	if r.waitOnline(ctx, shellOnlineMax) {
		s.updatePrompt()
	} else {
		s.shell.Println("VTX has not answered yet, still trying")
	}
	s.shell.Run()

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
