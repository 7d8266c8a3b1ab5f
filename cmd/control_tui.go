// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	snapshotInterval = 200 * time.Millisecond
	maxFrequency     = 0x3FFF
)

// Focus states
const (
	focusBand = iota
	focusChannel
	focusPower
	focusFreq
	focusPitFreq
	focusTxMode
	focusOpModel
	focusPitFMode
	focusCount
)

var fieldLabels = [focusCount]string{
	"Band", "Channel", "Power", "Frequency", "Pit freq", "TX mode", "Op model", "Pit mode",
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	connMgr  *connectionManager
	connInfo string

	// Device state as of the last engine tick
	snap snapshot
	sel  smartaudio.Selection

	errorLog      []errorLogEntry
	maxLogEntries int
	lastCommand   string

	// Control
	freqInput    textinput.Model
	pitInput     textinput.Model
	focusedField int
	pending      bool // an apply is in flight

	// UI state
	width          int
	height         int
	online         bool
	quitting       bool
	connectionLost bool
	styles         tuiStyles
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type snapshotMsg snapshot

type statusMsg smartaudio.Status

type frameMsg struct {
	at    time.Time
	frame smartaudio.Frame
}

// appliedMsg reports the outcome of a selection change
type appliedMsg struct {
	label string
	sel   smartaudio.Selection
	err   error
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newFreqInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 5
	ti.Width = 8
	ti.Validate = func(s string) error {
		for _, r := range s {
			if r < '0' || r > '9' {
				return fmt.Errorf("digits only")
			}
		}
		return nil
	}
	return ti
}

func initialControlModel(connMgr *connectionManager, connInfo string, sel smartaudio.Selection) controlModel {
	return controlModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		sel:           sel,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		freqInput:     newFreqInput("5800"),
		pitInput:      newFreqInput("5584"),
		focusedField:  focusBand,
		width:         80,
		height:        24,
		styles:        newTUIStyles(),
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(controlTickCmd(), snapshotCmd(m.connMgr))
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

// snapshotCmd polls the engine state of the current connection
func snapshotCmd(cm *connectionManager) tea.Cmd {
	return tea.Tick(snapshotInterval, func(time.Time) tea.Msg {
		if r := cm.getRunner(); r != nil {
			return snapshotMsg(r.Snapshot())
		}
		return snapshotMsg(snapshot{})
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case controlTickMsg:
		return m, controlTickCmd()

	case snapshotMsg:
		m.snap = snapshot(msg)
		return m, snapshotCmd(m.connMgr)

	case statusMsg:
		st := smartaudio.Status(msg)
		if !m.online && st.Version != smartaudio.VersionUnknown {
			m.online = true
			m.addLogEntry(fmt.Sprintf("VTX online: SmartAudio %s", st.Version), false)
		}
		m.addLogEntry(fmt.Sprintf("Status: %s", strings.TrimSpace(smartaudio.StatusString(st))), false)
		m.snap.Status = st
		if !m.pending {
			m.sel.Sync(st)
		}

	case frameMsg:
		m.lastCommand = fmt.Sprintf("%s % X", smartaudio.FormatCommandName(msg.frame.Code()), msg.frame.Payload())

	case appliedMsg:
		m.pending = false
		m.sel = msg.sel
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.label, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s queued", msg.label), false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.online = false
		m.addLogEntry(fmt.Sprintf("Connection lost: %v. Reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if msg.String() == "q" && m.editingText() {
			break
		}
		m.quitting = true
		return m, tea.Quit
	case "tab", "down":
		return m.cycleFocus(1), nil
	case "shift+tab", "up":
		return m.cycleFocus(-1), nil
	case "left":
		if !m.editingText() {
			return m.stepField(-1)
		}
	case "right":
		if !m.editingText() {
			return m.stepField(1)
		}
	case "enter":
		return m.handleEnter()
	}

	// Forward other keys to the focused text input
	var cmd tea.Cmd
	switch m.focusedField {
	case focusFreq:
		m.freqInput, cmd = m.freqInput.Update(msg)
	case focusPitFreq:
		m.pitInput, cmd = m.pitInput.Update(msg)
	}
	return m, cmd
}

func (m controlModel) editingText() bool {
	return m.focusedField == focusFreq || m.focusedField == focusPitFreq
}

func (m controlModel) cycleFocus(delta int) controlModel {
	m.focusedField = (m.focusedField + delta + focusCount) % focusCount
	m.freqInput.Blur()
	m.pitInput.Blur()
	switch m.focusedField {
	case focusFreq:
		m.freqInput.Focus()
	case focusPitFreq:
		m.pitInput.Focus()
	}
	return m
}

// wrap steps v by delta within [1, n]. An unknown value of 0 steps into
// range from either end.
func wrap(v, delta, n int) int {
	if v == 0 {
		if delta > 0 {
			return 1
		}
		return n
	}
	return (v-1+delta+n)%n + 1
}

// stepField changes the focused selector and applies it
func (m controlModel) stepField(delta int) (tea.Model, tea.Cmd) {
	if m.pending {
		return m, nil
	}
	sel := m.sel
	var label string
	var apply func(*smartaudio.Selection, smartaudio.Commander) error

	switch m.focusedField {
	case focusBand:
		sel.Band = wrap(sel.Band, delta, smartaudio.BandCount)
		label = fmt.Sprintf("Band %c", smartaudio.BandLetters[sel.Band-1])
		apply = (*smartaudio.Selection).ApplyBand
	case focusChannel:
		sel.Channel = wrap(sel.Channel, delta, smartaudio.ChannelsPerBand)
		label = fmt.Sprintf("Channel %d", sel.Channel)
		apply = (*smartaudio.Selection).ApplyChannel
	case focusPower:
		sel.Power = wrap(sel.Power, delta, len(smartaudio.PowerTable))
		label = fmt.Sprintf("Power %d mW", smartaudio.PowerTable[sel.Power-1].MilliWatts)
		apply = (*smartaudio.Selection).ApplyPower
	case focusTxMode:
		sel.TxMode = smartaudio.TxMode(wrap(int(sel.TxMode), delta, int(smartaudio.TxModeActive)))
		label = fmt.Sprintf("TX mode %s", sel.TxMode)
		apply = func(s *smartaudio.Selection, c smartaudio.Commander) error {
			s.ApplyTxMode(c)
			return nil
		}
	case focusOpModel:
		sel.OpModel = 1 - sel.OpModel
		label = fmt.Sprintf("Op model %s", sel.OpModel)
		apply = func(s *smartaudio.Selection, c smartaudio.Commander) error {
			s.ApplyOpModel(c)
			return nil
		}
	case focusPitFMode:
		sel.PitFMode = 1 - sel.PitFMode
		label = fmt.Sprintf("Pit mode %s", sel.PitFMode)
		apply = func(s *smartaudio.Selection, c smartaudio.Commander) error {
			s.ApplyPitFMode(c)
			return nil
		}
	default:
		return m, nil
	}

	m.sel = sel
	m.pending = true
	return m, applyCmd(m.connMgr, label, sel, apply)
}

// applyCmd runs apply against the engine on the runner goroutine and
// reports the possibly bounced selection
func applyCmd(cm *connectionManager, label string, sel smartaudio.Selection, apply func(*smartaudio.Selection, smartaudio.Commander) error) tea.Cmd {
	return func() tea.Msg {
		err := cm.do(func(e *smartaudio.Engine) error {
			return apply(&sel, e)
		})
		return appliedMsg{label: label, sel: sel, err: err}
	}
}

func (m controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if !m.editingText() || m.pending {
		return m, nil
	}

	input := &m.freqInput
	label := "Frequency"
	if m.focusedField == focusPitFreq {
		input = &m.pitInput
		label = "Pit frequency"
	}

	freq, err := strconv.Atoi(input.Value())
	if err != nil || freq < 1 || freq > maxFrequency {
		m.addLogEntry(fmt.Sprintf("Invalid %s: %q", strings.ToLower(label), input.Value()), true)
		return m, nil
	}
	input.SetValue("")

	label = fmt.Sprintf("%s %d MHz", label, freq)
	pit := m.focusedField == focusPitFreq
	m.pending = true
	return m, applyCmd(m.connMgr, label, m.sel, func(_ *smartaudio.Selection, c smartaudio.Commander) error {
		e := c.(*smartaudio.Engine)
		if pit {
			return e.SetPitFrequency(uint16(freq))
		}
		return e.SetFrequency(uint16(freq))
	})
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.errorLog = appendLog(m.errorLog, m.maxLogEntries, message, isError)
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := m.styles

	var s strings.Builder
	s.WriteString(st.title.Render("SMARTAUDIO - VTX CONTROL"))
	s.WriteString("\n")
	s.WriteString(st.header.Render(fmt.Sprintf("%s | tab/↑↓=field ←→=change enter=apply q=quit", m.connInfo)))
	s.WriteString("\n\n")

	switch {
	case m.connectionLost:
		s.WriteString(st.err.Render("✗ Connection lost, reconnecting..."))
	case m.snap.Status.Version == smartaudio.VersionUnknown:
		s.WriteString(st.warning.Render(fmt.Sprintf("⏳ Waiting for VTX at %d baud...", m.snap.BaudRate)))
	default:
		s.WriteString(st.statsValue.Render("✓ " + smartaudio.StatusString(m.snap.Status)))
	}
	s.WriteString("\n\n")

	s.WriteString(m.renderControlPanel())
	s.WriteString("\n")
	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n")

	logHeight := m.height - 24
	if logHeight < 4 {
		logHeight = 4
	}
	s.WriteString(st.statsLabel.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(renderEventLog(st, m.errorLog, logHeight, m.width-4))

	return s.String()
}

// fieldValue renders the current value of a control field
func (m controlModel) fieldValue(field int) string {
	sel, status := m.sel, m.snap.Status
	switch field {
	case focusBand:
		if sel.Band < 1 || sel.Band > smartaudio.BandCount {
			return "-"
		}
		return fmt.Sprintf("%c  %s", smartaudio.BandLetters[sel.Band-1], smartaudio.BandNames[sel.Band-1])
	case focusChannel:
		if sel.Channel == 0 {
			return "-"
		}
		return strconv.Itoa(sel.Channel)
	case focusPower:
		if sel.Power < 1 || sel.Power > len(smartaudio.PowerTable) {
			return "-"
		}
		return fmt.Sprintf("%d mW", smartaudio.PowerTable[sel.Power-1].MilliWatts)
	case focusFreq:
		return fmt.Sprintf("%s  (now %d MHz)", m.freqInput.View(), status.Frequency)
	case focusPitFreq:
		if status.Version != smartaudio.Version2 {
			return m.styles.header.Render("V2 only")
		}
		return fmt.Sprintf("%s  (now %d MHz)", m.pitInput.View(), status.PitFrequency)
	case focusTxMode:
		return sel.TxMode.String()
	case focusOpModel:
		return sel.OpModel.String()
	case focusPitFMode:
		return sel.PitFMode.String()
	}
	return ""
}

func (m controlModel) renderControlPanel() string {
	st := m.styles
	var s strings.Builder
	for field := 0; field < focusCount; field++ {
		label := fmt.Sprintf("%-10s", fieldLabels[field])
		marker := "  "
		if field == m.focusedField {
			marker = "▸ "
			label = st.focusedBtn.Render(label)
		} else {
			label = st.statsLabel.Render(label)
		}
		s.WriteString(fmt.Sprintf("%s%s %s", marker, label, st.statsValue.Render(m.fieldValue(field))))
		if field < focusCount-1 {
			s.WriteString("\n")
		}
	}
	if m.pending {
		s.WriteString("\n" + st.warning.Render("applying..."))
	}
	if m.lastCommand != "" {
		s.WriteString("\n" + st.header.Render("Last response: "+m.lastCommand))
	}
	return st.focusedBox.Width(m.width - 4).Render(s.String())
}

func (m controlModel) renderStatisticsBar() string {
	st := m.styles
	stats := m.snap.Statistics

	errs := st.statsValue.Render("0")
	if n := stats.Errors(); n > 0 {
		errs = st.err.Render(strconv.FormatUint(n, 10))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  %s %s",
		st.statsLabel.Render("Sent:"), st.statsValue.Render(fmt.Sprintf("%d", stats.TotalSent)),
		st.statsLabel.Render("Recv:"), st.statsValue.Render(fmt.Sprintf("%d (%.1f%%)", stats.TotalReceived, stats.ResponseRatio())),
		st.statsLabel.Render("Retx:"), st.warning.Render(fmt.Sprintf("%d", stats.Retransmits)),
		st.statsLabel.Render("Errors:"), errs,
		st.statsLabel.Render("Baud:"), st.statsValue.Render(fmt.Sprintf("%d", m.snap.BaudRate)),
		st.statsLabel.Render("Queue:"), st.statsValue.Render(fmt.Sprintf("%d", m.snap.QueueLen)),
	)
	return st.box.Width(m.width - 4).Render(content)
}
