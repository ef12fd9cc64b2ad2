// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/linkage/pkg/linkage/gamepad"
	"github.com/Thermoquad/linkage/pkg/logging"
	"github.com/Thermoquad/linkage/pkg/messaging"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// padItem is one occupied gamepad slot in the list
type padItem struct {
	slot int
	id   uint8
}

func (p padItem) Title() string       { return fmt.Sprintf("Slot %d", p.slot) }
func (p padItem) Description() string { return fmt.Sprintf("gamepad id %d", p.id) }
func (p padItem) FilterValue() string { return p.Title() }

// Messages
type monitorTickMsg time.Time
type ackMsg struct {
	ack messaging.BackendToFrontend
}
type gamepadFrameMsg struct {
	frame messaging.Frame
}
type linkLostMsg struct {
	endpoint string
	err      error
}
type sendResultMsg struct {
	req messaging.FrontendToBackend
	err error
}

// backend state as last acknowledged
const (
	stateUnknown  = "UNKNOWN"
	stateEnabled  = "ENABLED"
	stateDisabled = "DISABLED"
)

type monitorModel struct {
	connInfo string
	send     func(messaging.Frame) error

	state   string
	pending *messaging.FrontendToBackend

	gamepads *gamepad.Manager
	padList  list.Model
	stats    *messaging.Statistics

	eventLog      []logEntry
	maxLogEntries int
	controlUp     bool
	gamepadUp     bool
	width         int
	height        int
	quitting      bool
}

func initialMonitorModel(connInfo string, send func(messaging.Frame) error) monitorModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	padList := list.New([]list.Item{}, delegate, 24, 10)
	padList.Title = "Gamepads"
	padList.SetShowStatusBar(false)
	padList.SetShowHelp(false)
	padList.SetFilteringEnabled(false)

	return monitorModel{
		connInfo:      connInfo,
		send:          send,
		state:         stateUnknown,
		gamepads:      gamepad.NewManager(logging.Discard()),
		padList:       padList,
		stats:         messaging.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		controlUp:     true,
		gamepadUp:     true,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// requestCmd sends req on the control link
func (m monitorModel) requestCmd(req messaging.FrontendToBackend) tea.Cmd {
	send := m.send
	return func() tea.Msg {
		return sendResultMsg{req: req, err: send(req.Frame())}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "e":
			return m.request(messaging.FrontendEnable)
		case "d", " ":
			return m.request(messaging.FrontendDisable)
		}
		var cmd tea.Cmd
		m.padList, cmd = m.padList.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		m.stats.CalculateRates()
		return m, monitorTickCmd()

	case sendResultMsg:
		if msg.err != nil {
			m.pending = nil
			m.addLogEntry(fmt.Sprintf("%s request failed: %v", msg.req, msg.err), true)
		}

	case ackMsg:
		m.handleAck(msg.ack)

	case gamepadFrameMsg:
		m.handleGamepadFrame(msg.frame)

	case linkLostMsg:
		switch msg.endpoint {
		case "/control":
			m.controlUp = false
			m.state = stateUnknown
		case "/gamepad":
			m.gamepadUp = false
		}
		m.addLogEntry(fmt.Sprintf("Connection %s lost: %v", msg.endpoint, msg.err), true)
	}

	return m, nil
}

func (m monitorModel) request(req messaging.FrontendToBackend) (tea.Model, tea.Cmd) {
	if !m.controlUp {
		m.addLogEntry("Control link is down", true)
		return m, nil
	}
	if m.pending != nil {
		m.addLogEntry(fmt.Sprintf("Waiting for %s acknowledgement", *m.pending), false)
		return m, nil
	}
	m.pending = &req
	m.addLogEntry(fmt.Sprintf("Requested %s", req), false)
	return m, m.requestCmd(req)
}

func (m *monitorModel) handleAck(ack messaging.BackendToFrontend) {
	if ack == messaging.BackendEnabled {
		m.state = stateEnabled
	} else {
		m.state = stateDisabled
	}

	if m.pending != nil && expectedAck(*m.pending) != ack {
		m.addLogEntry(fmt.Sprintf("%s refused, backend is %s", *m.pending, m.state), true)
	} else {
		m.addLogEntry(fmt.Sprintf("Backend %s", m.state), false)
	}
	m.pending = nil
}

func (m *monitorModel) handleGamepadFrame(f messaging.Frame) {
	ev, err := messaging.DecodeCockpitToLinkage(f)
	m.stats.Update(err)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", err), true)
		return
	}

	m.gamepads.HandleEvent(ev)

	switch gamepad.EventType(ev.EventType) {
	case gamepad.Connected:
		m.addLogEntry(fmt.Sprintf("Gamepad %d connected", ev.GamepadID), false)
		m.refreshPads()
	case gamepad.Disconnected:
		m.addLogEntry(fmt.Sprintf("Gamepad %d disconnected", ev.GamepadID), false)
		m.refreshPads()
	default:
		if m.gamepads.Len() != len(m.padList.Items()) {
			m.refreshPads()
		}
	}
}

// refreshPads rebuilds the list from the occupied slots
func (m *monitorModel) refreshPads() {
	items := []list.Item{}
	for slot := 0; slot < m.gamepads.Len(); slot++ {
		d, ok := m.gamepads.Data(gamepad.Index(slot))
		if !ok {
			continue
		}
		items = append(items, padItem{slot: slot, id: d.ID})
	}
	m.padList.SetItems(items)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// selectedPad returns the controller view for the highlighted list entry
func (m monitorModel) selectedPad() (gamepad.PsController, bool) {
	item, ok := m.padList.SelectedItem().(padItem)
	if !ok {
		return gamepad.PsController{}, false
	}
	return gamepad.PsControllerAt(m.gamepads, gamepad.Index(item.slot))
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("LINKAGE - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Backend: %s | e: enable  d/space: disable  q: quit", m.connInfo)))
	s.WriteString("\n\n")

	// Robot state
	var state string
	switch m.state {
	case stateEnabled:
		state = valueStyle.Render("● " + m.state)
	case stateDisabled:
		state = warningStyle.Render("○ " + m.state)
	default:
		state = headerStyle.Render("? " + m.state)
	}
	if m.pending != nil {
		state += headerStyle.Render(fmt.Sprintf("  (%s pending)", *m.pending))
	}
	link := func(up bool) string {
		if up {
			return valueStyle.Render("up")
		}
		return errorStyle.Render("down")
	}

	statusContent := strings.Builder{}
	statusContent.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Robot:"), state))
	statusContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("Control:"), link(m.controlUp),
		labelStyle.Render("Gamepad stream:"), link(m.gamepadUp),
	))

	m.stats.CalculateRates()
	statusContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		labelStyle.Render("Errors:"), func() string {
			if n := m.stats.Errors(); n > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", n))
			}
			return valueStyle.Render("0")
		}(),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
	))
	s.WriteString(boxStyle.Render(statusContent.String()))
	s.WriteString("\n\n")

	// Gamepads
	padContent := strings.Builder{}
	if pad, ok := m.selectedPad(); ok {
		pressed := func(name string, on bool) string {
			if on {
				return valueStyle.Render(name)
			}
			return headerStyle.Render(name)
		}
		padContent.WriteString(fmt.Sprintf("%s %s %s %s   %s %s %s %s\n",
			pressed("△", pad.Triangle()), pressed("○", pad.Circle()),
			pressed("✕", pad.Cross()), pressed("□", pad.Square()),
			pressed("↑", pad.DpadUp()), pressed("↓", pad.DpadDown()),
			pressed("←", pad.DpadLeft()), pressed("→", pad.DpadRight()),
		))
		padContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			pressed("L1", pad.LeftBumper()), pressed("R1", pad.RightBumper()),
			pressed("L3", pad.LeftJoystickButton()), pressed("R3", pad.RightJoystickButton()),
			pressed("Share", pad.Share()), pressed("Options", pad.Options()),
		))
		padContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("L2:"), valueStyle.Render(fmt.Sprintf("%.2f", pad.LeftTrigger())),
			labelStyle.Render("R2:"), valueStyle.Render(fmt.Sprintf("%.2f", pad.RightTrigger())),
		))
		padContent.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render("Left stick:"),
			valueStyle.Render(fmt.Sprintf("x=%+.2f y=%+.2f", pad.LeftJoystickX(), pad.LeftJoystickY())),
		))
		padContent.WriteString(fmt.Sprintf("%s %s",
			labelStyle.Render("Right stick:"),
			valueStyle.Render(fmt.Sprintf("x=%+.2f y=%+.2f", pad.RightJoystickX(), pad.RightJoystickY())),
		))
	} else {
		padContent.WriteString(headerStyle.Render("(no gamepad connected)"))
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(m.padList.View()),
		boxStyle.Render(padContent.String()),
	))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := max(m.height-26, 5)
	startIdx := max(len(m.eventLog)-logHeight, 0)

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.eventLog[startIdx:] {
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}
	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(logContent.String()))

	return s.String()
}
