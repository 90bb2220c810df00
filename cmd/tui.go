// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/autoterm-bridge/pkg/autoterm"
	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
	"github.com/Thermoquad/autoterm-bridge/pkg/climate"
	"github.com/Thermoquad/autoterm-bridge/pkg/mqtt"
)

const commandReplyTimeout = 2 * time.Second

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// dashboardModel is the Bubble Tea model for the bridge dashboard
type dashboardModel struct {
	connInfo string
	intents  chan<- bridge.Intent
	started  time.Time

	// Monitoring
	stats         *bridge.Statistics
	eventLog      []logEntry
	maxLogEntries int
	showFrames    bool

	// Bridge state
	status         *autoterm.Status
	settings       *autoterm.Settings
	panelTemp      float64
	virtualEnabled bool
	virtualTemp    float64
	virtualValid   bool
	forced         autoterm.Source
	fanLevel       uint8
	connected      bool
	climate        climate.State
	links          map[string]bool

	// Command input
	input textinput.Model

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type tickMsg time.Time

type statusMsg autoterm.Status
type settingsMsg autoterm.Settings
type panelTempMsg float64
type forcedSourceMsg autoterm.Source
type fanLevelMsg uint8
type connectedMsg bool
type climateMsg climate.State

type virtualPanelMsg struct {
	enabled bool
	celsius float64
	valid   bool
}

type eventMsg bridge.Event

type linkMsg struct {
	name      string
	connected bool
}

type commandResultMsg struct {
	command string
	err     error
}

//////////////////////////////////////////////////////////////
// Sink
//////////////////////////////////////////////////////////////

// dashboardSink forwards bridge state and wire events into the program.
// Statistics are kept by the model so they are only touched on the UI
// goroutine.
type dashboardSink struct {
	p *tea.Program
}

func (s dashboardSink) PublishStatus(v autoterm.Status)       { s.p.Send(statusMsg(v)) }
func (s dashboardSink) PublishSettings(v autoterm.Settings)   { s.p.Send(settingsMsg(v)) }
func (s dashboardSink) PublishPanelTemperature(c float64)     { s.p.Send(panelTempMsg(c)) }
func (s dashboardSink) PublishForcedSource(v autoterm.Source) { s.p.Send(forcedSourceMsg(v)) }
func (s dashboardSink) PublishFanLevel(v uint8)               { s.p.Send(fanLevelMsg(v)) }
func (s dashboardSink) PublishConnected(v bool)               { s.p.Send(connectedMsg(v)) }
func (s dashboardSink) PublishClimate(v climate.State)        { s.p.Send(climateMsg(v)) }
func (s dashboardSink) OnEvent(e bridge.Event)                { s.p.Send(eventMsg(e)) }

// Link reports a transport connection change
func (s dashboardSink) Link(name string, connected bool) {
	s.p.Send(linkMsg{name, connected})
}

func (s dashboardSink) PublishVirtualPanel(enabled bool, celsius float64, valid bool) {
	s.p.Send(virtualPanelMsg{enabled, celsius, valid})
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialDashboardModel(connInfo string, intents chan<- bridge.Intent, showFrames bool) dashboardModel {
	ti := textinput.New()
	ti.Placeholder = "set_temperature 20"
	ti.Prompt = ": "
	ti.CharLimit = 64
	ti.Width = 40

	return dashboardModel{
		connInfo:      connInfo,
		intents:       intents,
		started:       time.Now(),
		stats:         bridge.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		showFrames:    showFrames,
		panelTemp:     math.NaN(),
		virtualTemp:   math.NaN(),
		climate:       climate.DefaultState(),
		links:         make(map[string]bool),
		input:         ti,
		width:         80,
		height:        24,
	}
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case statusMsg:
		s := autoterm.Status(msg)
		m.status = &s
	case settingsMsg:
		s := autoterm.Settings(msg)
		m.settings = &s
	case panelTempMsg:
		m.panelTemp = float64(msg)
	case virtualPanelMsg:
		m.virtualEnabled, m.virtualTemp, m.virtualValid = msg.enabled, msg.celsius, msg.valid
	case forcedSourceMsg:
		m.forced = autoterm.Source(msg)
	case fanLevelMsg:
		m.fanLevel = uint8(msg)
	case climateMsg:
		m.climate = climate.State(msg)

	case connectedMsg:
		m.connected = bool(msg)
		if m.connected {
			m.addLogEntry("Controller connected", false)
		} else {
			m.addLogEntry("No controller, polling heater", false)
		}

	case linkMsg:
		m.links[msg.name] = msg.connected
		if msg.connected {
			m.addLogEntry(fmt.Sprintf("%s link up", msg.name), false)
		} else {
			m.addLogEntry(fmt.Sprintf("%s link lost, reconnecting", msg.name), true)
		}

	case eventMsg:
		m.handleEvent(bridge.Event(msg))

	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.command, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s: ok", msg.command), false)
		}
	}

	return m, nil
}

func (m *dashboardModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.input.Focused() {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return *m, tea.Quit
		case "esc":
			m.input.Blur()
			m.input.Reset()
			return *m, nil
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			m.input.Blur()
			cmd := m.submit(line)
			return *m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return *m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return *m, tea.Quit
	case ":", "/":
		return *m, m.input.Focus()
	case "f":
		m.showFrames = !m.showFrames
	case "r":
		m.stats.Reset()
		m.addLogEntry("Statistics reset", false)
	}
	return *m, nil
}

// submit parses a command line and hands the intent to the bridge. The
// result arrives later as a commandResultMsg.
func (m *dashboardModel) submit(line string) tea.Cmd {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, value := fields[0], strings.Join(fields[1:], " ")

	intent, err := mqtt.ParseCommand(name, value)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return nil
	}

	reply := make(chan error, 1)
	intent.Reply = reply
	select {
	case m.intents <- intent:
	default:
		m.addLogEntry("Bridge busy, command dropped", true)
		return nil
	}

	return func() tea.Msg {
		select {
		case err := <-reply:
			return commandResultMsg{command: line, err: err}
		case <-time.After(commandReplyTimeout):
			return commandResultMsg{command: line, err: fmt.Errorf("no reply from bridge")}
		}
	}
}

func (m *dashboardModel) handleEvent(e bridge.Event) {
	m.stats.OnEvent(e)

	switch e.Kind {
	case bridge.EventCRCError:
		m.addLogEntry(fmt.Sprintf("%s CRC error: %s", e.Direction, autoterm.FormatHex(e.Frame.Bytes())), true)
	case bridge.EventResync:
		m.addLogEntry(fmt.Sprintf("%s flushed %d unsynchronized bytes", e.Direction, len(e.Bytes)), true)
	case bridge.EventSendFailed:
		m.addLogEntry(fmt.Sprintf("Send failed: %v", e.Err), true)
	case bridge.EventRewritten:
		m.addLogEntry(fmt.Sprintf("%s source rewritten to %s", autoterm.FormatCommand(e.Frame.Command()), m.forced), false)
	case bridge.EventCommand:
		m.addLogEntry(fmt.Sprintf("Sent %s", autoterm.FormatCommand(e.Frame.Command())), false)
	case bridge.EventFrame:
		if problems := autoterm.ValidateFrame(e.Frame); len(problems) > 0 {
			for _, p := range problems {
				m.addLogEntry(fmt.Sprintf("%s: %s", autoterm.FormatCommand(e.Frame.Command()), p.Message), true)
			}
		} else if m.showFrames {
			m.addLogEntry(fmt.Sprintf("%s %s", e.Direction, autoterm.FormatCommand(e.Frame.Command())), false)
		}
	}
}

func (m *dashboardModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("AUTOTERM BRIDGE"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | up %s | q=quit :=command f=frames r=reset",
		m.connInfo, formatUptime(time.Since(m.started)))))
	s.WriteString("\n\n")

	heater := boxStyle.Width(38).Render(m.renderHeater())
	control := boxStyle.Width(38).Render(m.renderControl())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, heater, " ", control))
	s.WriteString("\n")

	s.WriteString(boxStyle.Render(m.renderStatistics()))
	s.WriteString("\n")

	s.WriteString(m.renderEventLog())
	s.WriteString("\n")

	if m.input.Focused() {
		s.WriteString(m.input.View())
	} else {
		s.WriteString(headerStyle.Render("Press : to enter a command (e.g. power ON, climate/mode heat)"))
	}

	return s.String()
}

func (m dashboardModel) renderHeater() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Heater"))
	s.WriteString("\n")

	if m.status == nil {
		s.WriteString(warningStyle.Render("Waiting for status..."))
		s.WriteString("\n")
	} else {
		st := m.status
		row(&s, "Status:", fmt.Sprintf("%.1f %s", st.Value, st.Text))
		row(&s, "Heater:", fmt.Sprintf("%.0f°C", st.HeaterTemperature))
		row(&s, "Internal:", fmt.Sprintf("%.0f°C", st.InternalTemperature))
		row(&s, "External:", fmt.Sprintf("%.0f°C", st.ExternalTemperature))
		row(&s, "Voltage:", fmt.Sprintf("%.1f V", st.Voltage))
		row(&s, "Fan:", fmt.Sprintf("%d / %d RPM", st.FanActualRPM, st.FanSetRPM))
		row(&s, "Pump:", fmt.Sprintf("%.2f Hz", st.PumpFrequency))
	}

	if m.settings == nil {
		s.WriteString(headerStyle.Render("Settings not reported yet"))
	} else {
		st := m.settings
		row(&s, "Target:", fmt.Sprintf("%d°C", st.SetTemperature))
		row(&s, "Source:", st.TemperatureSource.String())
		row(&s, "Power level:", fmt.Sprintf("%d", st.PowerLevel))
		row(&s, "Wait mode:", autoterm.WaitModeName(st.WaitMode))
		if st.WorkTimeEnabled() {
			row(&s, "Work time:", fmt.Sprintf("%d min", st.WorkTime))
		}
	}
	return strings.TrimRight(s.String(), "\n")
}

func (m dashboardModel) renderControl() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Control"))
	s.WriteString("\n")

	panel := errorStyle.Render("absent")
	if m.connected {
		panel = valueStyle.Render("connected")
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Panel:"), panel))
	for name, up := range m.links {
		if !up {
			s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(name+":"), warningStyle.Render("reconnecting")))
		}
	}

	row(&s, "Panel temp:", celsius(m.panelTemp))
	virtual := "off"
	if m.virtualEnabled {
		virtual = "on"
		if m.virtualValid {
			virtual = "on, " + celsius(m.virtualTemp)
		}
	}
	row(&s, "Virtual panel:", virtual)

	forced := mqtt.ForceSourceOff
	if m.forced.Valid() {
		forced = m.forced.String()
	}
	row(&s, "Forced source:", forced)
	row(&s, "Fan level:", fmt.Sprintf("%d", m.fanLevel))

	c := m.climate
	row(&s, "Mode:", fmt.Sprintf("%s (%s)", c.Mode, c.Preset))
	row(&s, "Action:", c.Action.String())
	row(&s, "Climate:", fmt.Sprintf("%s → %.0f°C", celsius(c.CurrentTemperature), c.TargetTemperature))
	return strings.TrimRight(s.String(), "\n")
}

func (m dashboardModel) renderStatistics() string {
	st := m.stats
	errors := valueStyle.Render(fmt.Sprintf("%d", st.Errors()))
	if st.Errors() > 0 {
		errors = errorStyle.Render(fmt.Sprintf("%d", st.Errors()))
	}

	line1 := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Panel→Heater:"), valueStyle.Render(fmt.Sprintf("%d", st.ControllerFrames)),
		labelStyle.Render("Heater→Panel:"), valueStyle.Render(fmt.Sprintf("%d", st.HeaterFrames)),
		labelStyle.Render("Errors:"), errors,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
	)
	line2 := fmt.Sprintf("%s %d   %s %d   %s %d   %s %d",
		labelStyle.Render("Suppressed:"), st.Suppressed,
		labelStyle.Render("Injected:"), st.Injected,
		labelStyle.Render("Rewritten:"), st.Rewritten,
		labelStyle.Render("Commands:"), st.Commands,
	)
	return line1 + "\n" + line2
}

func (m dashboardModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Reserve space for the panels above
	logHeight := max(m.height-26, 5)

	logContent := strings.Builder{}
	startIdx := max(len(m.eventLog)-logHeight, 0)

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
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

	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(strings.TrimRight(logContent.String(), "\n")))
	return s.String()
}

func row(s *strings.Builder, label, value string) {
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(label), valueStyle.Render(value)))
}

func celsius(v float64) string {
	if math.IsNaN(v) {
		return "--"
	}
	return fmt.Sprintf("%.1f°C", v)
}
