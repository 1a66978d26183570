// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/emslink/pkg/ems"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// TUI model
type model struct {
	gateway       string
	statsInterval int
	showAll       bool
	stats         *ems.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	connected     bool
	connectedAt   time.Time
	synchronized  bool
	spinner       spinner.Model
	width         int
	height        int
	quitting      bool
	lastTelegram  *ems.Telegram
}

// Messages
type tickMsg time.Time
type telegramMsg struct {
	telegram *ems.Telegram
}
type rejectionMsg struct {
	err *ems.FrameError
}
type linkMsg struct {
	connected bool
	addr      string
	cause     error
}

// tuiSink forwards monitor events into the program
type tuiSink struct {
	p *tea.Program
}

func (s *tuiSink) HandleTelegram(tg *ems.Telegram) error {
	s.p.Send(telegramMsg{telegram: tg})
	return nil
}

func (s *tuiSink) HandleRejection(fe *ems.FrameError) {
	s.p.Send(rejectionMsg{err: fe})
}

func (s *tuiSink) Connected(addr string) {
	s.p.Send(linkMsg{connected: true, addr: addr})
}

func (s *tuiSink) Disconnected(cause error) {
	s.p.Send(linkMsg{connected: false, cause: cause})
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
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

func plural(n uint64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func initialModel(gateway string, statsInterval int, showAll bool, stats *ems.Statistics) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{
		gateway:       gateway,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         stats,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		spinner:       s,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case linkMsg:
		m.connected = msg.connected
		m.synchronized = false
		if msg.connected {
			m.connectedAt = time.Now()
			m.addLogEntry(fmt.Sprintf("Connected to %s", msg.addr), false)
		} else {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.cause), true)
		}

	case telegramMsg:
		if !m.synchronized {
			m.synchronized = true
			m.addLogEntry("Synchronized", false)
		}
		m.lastTelegram = msg.telegram
		if m.showAll {
			m.addLogEntry(fmt.Sprintf("Telegram {%d} %s", msg.telegram.Len(), ems.HexDump(msg.telegram.Body)), false)
		}

	case rejectionMsg:
		m.addLogEntry(msg.err.Error(), msg.err.Reason != ems.ReasonShortFrames)
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
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

func (m model) View() string {
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

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
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

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("EMSLINK - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Gateway: %s | Mode: %s | Press 'q' to quit",
		m.gateway, func() string {
			if m.showAll {
				return "All telegrams"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Link status
	switch {
	case !m.connected:
		s.WriteString(warningStyle.Render(m.spinner.View() + " Connecting..."))
	case !m.synchronized:
		s.WriteString(warningStyle.Render(m.spinner.View() + " Waiting for first telegram..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		s.WriteString(headerStyle.Render(" (connected for " +
			formatUptime(uint64(time.Since(m.connectedAt).Milliseconds())) + ")"))
	}
	s.WriteString("\n\n")

	// Statistics
	c := m.stats.Snapshot()
	rejections := c.Rejections()
	var validPercent, errorPercent float64
	if c.TotalFrames > 0 {
		validPercent = float64(c.Telegrams) * 100.0 / float64(c.TotalFrames)
		errorPercent = float64(rejections) * 100.0 / float64(c.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", c.TotalFrames)),
		statsLabelStyle.Render("Telegrams:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", c.Telegrams, validPercent)),
		statsLabelStyle.Render("Rejected:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", rejections, errorPercent)),
	))

	if rejections > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("CRC:"), errorStyle.Render(fmt.Sprintf("%d", c.CRCErrors)),
			statsLabelStyle.Render("Header:"), errorStyle.Render(fmt.Sprintf("%d", c.InvalidHeaders)),
			statsLabelStyle.Render("Terminator:"), errorStyle.Render(fmt.Sprintf("%d", c.MissingTerminators)),
		))
		if c.LengthMismatches > 0 || c.InvalidBodyLengths > 0 {
			statsContent.WriteString(fmt.Sprintf(" (%s: %d, %s: %d)\n",
				headerStyle.Render("length mismatches"), c.LengthMismatches,
				headerStyle.Render("bad body lengths"), c.InvalidBodyLengths,
			))
		}
	}

	if c.ShortFrames > 0 || c.Resyncs > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Short:"), warningStyle.Render(fmt.Sprintf("%d", c.ShortFrames)),
			statsLabelStyle.Render("Resyncs:"), warningStyle.Render(fmt.Sprintf("%d (%d bytes)", c.Resyncs, c.SkippedBytes)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Telegram Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f tg/s", c.TelegramRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if c.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
		}(),
		statsLabelStyle.Render("Connects:"), statsValueStyle.Render(fmt.Sprintf("%d", c.Connects)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Latest telegram (only shown once one arrived)
	if m.lastTelegram != nil {
		s.WriteString(statsLabelStyle.Render("Latest Telegram:"))
		s.WriteString("\n")
		tg := m.lastTelegram
		telegramContent := fmt.Sprintf("%s %s   %s %s\n%s %s",
			statsLabelStyle.Render("Header:"), statsValueStyle.Render(tg.Header.String()),
			statsLabelStyle.Render("CRC:"), statsValueStyle.Render(fmt.Sprintf("0x%02X", tg.CRC)),
			statsLabelStyle.Render("Body:"), statsValueStyle.Render(ems.HexDump(tg.Body)),
		)
		s.WriteString(boxStyle.Render(telegramContent))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15 // Reserve space for header and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
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

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
