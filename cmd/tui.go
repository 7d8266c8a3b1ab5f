// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/Thermoquad/smartaudio/pkg/sniffer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// tuiStyles are shared by the monitor and control views
type tuiStyles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	statsLabel lipgloss.Style
	statsValue lipgloss.Style
	err        lipgloss.Style
	warning    lipgloss.Style
	box        lipgloss.Style
	focusedBox lipgloss.Style
	button     lipgloss.Style
	focusedBtn lipgloss.Style
}

func newTUIStyles() tuiStyles {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	button := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	return tuiStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		statsLabel: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		statsValue: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		err:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box:        box,
		focusedBox: box.BorderForeground(lipgloss.Color("12")),
		button:     button,
		focusedBtn: button.Background(lipgloss.Color("10")),
	}
}

// renderEventLog renders the newest entries that fit in height lines
func renderEventLog(st tuiStyles, log []errorLogEntry, height, width int) string {
	var s strings.Builder
	start := len(log) - height
	if start < 0 {
		start = 0
	}

	if len(log) == 0 {
		s.WriteString(st.header.Render("  (no events yet)"))
	}
	for _, entry := range log[start:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			s.WriteString(fmt.Sprintf("%s %s\n", st.header.Render(timestamp), st.err.Render("✗ "+entry.message)))
		} else {
			s.WriteString(fmt.Sprintf("%s %s\n", st.header.Render(timestamp), st.warning.Render("ℹ "+entry.message)))
		}
	}
	return st.box.Width(width).Render(s.String())
}

func appendLog(log []errorLogEntry, max int, message string, isError bool) []errorLogEntry {
	log = append(log, errorLogEntry{timestamp: time.Now(), message: message, isError: isError})
	if len(log) > max {
		log = log[len(log)-max:]
	}
	return log
}

// monitor TUI model
type monitorModel struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *sniffer.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalid       int
	lastSettings  string
	lastCommand   string
	linkErr       error
	width         int
	height        int
	quitting      bool
	styles        tuiStyles
}

// Messages
type monitorTickMsg time.Time

type monitorSyncMsg struct {
	invalid int
}

type monitorBatchMsg struct {
	items []sniffer.Item
	sync  *monitorSyncMsg
}

type monitorLinkErrMsg struct {
	err error
}

func initialMonitorModel(connInfo string, statsInterval int, showAll bool) monitorModel {
	return monitorModel{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         sniffer.NewStatistics(),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		styles:        newTUIStyles(),
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		monitorTickCmd(),
		tea.EnterAltScreen,
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.errorLog = appendLog(m.errorLog, m.maxLogEntries, "Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		m.stats.CalculateRates()
		return m, monitorTickCmd()

	case monitorLinkErrMsg:
		m.linkErr = msg.err
		m.errorLog = appendLog(m.errorLog, m.maxLogEntries, fmt.Sprintf("Link error: %v", msg.err), true)

	case monitorBatchMsg:
		if msg.sync != nil {
			m.synchronized = true
			m.invalid = msg.sync.invalid
			if m.invalid > 0 {
				m.errorLog = appendLog(m.errorLog, m.maxLogEntries, fmt.Sprintf("Synchronized after skipping %d errors", m.invalid), false)
			} else {
				m.errorLog = appendLog(m.errorLog, m.maxLogEntries, "Synchronized", false)
			}
		}
		for _, it := range msg.items {
			m.processItem(it)
		}
	}

	return m, nil
}

func (m *monitorModel) processItem(it sniffer.Item) {
	m.stats.Update(it)

	if it.IsError() {
		dir := "RX"
		if it.Command {
			dir = "TX"
		}
		m.errorLog = appendLog(m.errorLog, m.maxLogEntries, fmt.Sprintf("%s %s", dir, strings.ToUpper(it.Event.String())), true)
		return
	}

	name := itemName(it)
	if it.Command {
		m.lastCommand = fmt.Sprintf("%s % X", name, it.Frame.Payload())
	} else if code := it.Frame.Code(); code == smartaudio.CmdGetSettings || code == smartaudio.CmdGetSettingsV2 {
		if lines := strings.SplitN(smartaudio.FormatFrame(it.At, it.Frame), "\n", 2); len(lines) == 2 {
			m.lastSettings = strings.TrimSpace(lines[1])
		}
	}

	if len(it.Anomalies) > 0 {
		for _, a := range it.Anomalies {
			m.errorLog = appendLog(m.errorLog, m.maxLogEntries, fmt.Sprintf("%s: %s", name, a.Message), true)
		}
	} else if m.showAll {
		dir := "RX"
		if it.Command {
			dir = "TX"
		}
		m.errorLog = appendLog(m.errorLog, m.maxLogEntries, fmt.Sprintf("%s %s (valid)", dir, name), false)
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := m.styles

	// Header
	var s strings.Builder
	s.WriteString(st.title.Render("SMARTAUDIO - LINE MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Mode: %s | r=reset q=quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.linkErr != nil:
		s.WriteString(st.err.Render(fmt.Sprintf("✗ Link lost: %v", m.linkErr)))
	case !m.synchronized:
		s.WriteString(st.warning.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(st.statsValue.Render("✓ Synchronized"))
		if m.invalid > 0 {
			s.WriteString(st.header.Render(fmt.Sprintf(" (skipped %d errors)", m.invalid)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	stats := m.stats
	var validPercent float64
	if total := stats.TotalFrames + stats.Errors(); total > 0 {
		validPercent = float64(stats.ValidFrames) * 100.0 / float64(total)
	}

	var sc strings.Builder
	sc.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		st.statsLabel.Render("Frames:"), st.statsValue.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		st.statsLabel.Render("Valid:"), st.statsValue.Render(fmt.Sprintf("%d (%.1f%%)", stats.ValidFrames, validPercent)),
		st.statsLabel.Render("Errors:"), st.err.Render(fmt.Sprintf("%d", stats.Errors())),
	))
	sc.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		st.statsLabel.Render("Commands:"), st.statsValue.Render(fmt.Sprintf("%d", stats.Commands)),
		st.statsLabel.Render("Responses:"), st.statsValue.Render(fmt.Sprintf("%d (%.1f%%)", stats.Responses, stats.ResponseRatio())),
		st.statsLabel.Render("Retransmits:"), st.warning.Render(fmt.Sprintf("%d", stats.Retransmits)),
	))

	if stats.Errors() > 0 {
		sc.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			st.statsLabel.Render("Line errors:"), st.err.Render(fmt.Sprintf("%d", stats.Errors())),
			st.header.Render("CRC"), stats.CRCErrors+stats.CommandErrors,
			st.header.Render("preamble"), stats.BadPreamble,
			st.header.Render("length"), stats.BadLength,
		))
	}
	if stats.Anomalies > 0 {
		sc.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			st.statsLabel.Render("Anomalous:"), st.warning.Render(fmt.Sprintf("%d", stats.Anomalies)),
			st.header.Render("short"), stats.LengthMismatches,
			st.header.Render("channel"), stats.ChannelRange,
			st.header.Render("power"), stats.PowerRange,
			st.header.Render("freq"), stats.FrequencyMismatch,
		))
	}

	errRate := st.statsValue.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	if stats.ErrorRate > 0 {
		errRate = st.err.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	}
	sc.WriteString(fmt.Sprintf("%s %s   %s %s",
		st.statsLabel.Render("Frame Rate:"), st.statsValue.Render(fmt.Sprintf("%.1f frames/s", stats.FrameRate)),
		st.statsLabel.Render("Error Rate:"), errRate,
	))

	s.WriteString(st.box.Render(sc.String()))
	s.WriteString("\n\n")

	// Latest VTX state
	if m.lastSettings != "" || m.lastCommand != "" {
		s.WriteString(st.statsLabel.Render("Latest Traffic:"))
		s.WriteString("\n")
		var tc strings.Builder
		if m.lastCommand != "" {
			tc.WriteString(fmt.Sprintf("%s %s\n", st.statsLabel.Render("Command:"), st.statsValue.Render(m.lastCommand)))
		}
		if m.lastSettings != "" {
			tc.WriteString(fmt.Sprintf("%s %s", st.statsLabel.Render("Settings:"), st.statsValue.Render(m.lastSettings)))
		}
		s.WriteString(st.box.Render(tc.String()))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(st.statsLabel.Render("Recent Events:"))
	s.WriteString("\n")
	logHeight := m.height - 18
	if logHeight < 5 {
		logHeight = 5
	}
	s.WriteString(renderEventLog(st, m.errorLog, logHeight, m.width-4))

	return s.String()
}
