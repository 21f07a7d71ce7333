// ABOUTME: Bubbletea model for alignment status TUI
// ABOUTME: Defines application state and update logic
package ui

import (
	"fmt"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sdrsync/sdrsync-go/internal/align"
	"github.com/sdrsync/sdrsync-go/internal/audio"
)

// Model represents the TUI state
type Model struct {
	// Session
	frequency int
	mode      string

	// Alignment
	metrics align.Metrics

	// Clock, per source
	offsets map[audio.SourceID]float64
	drifts  map[audio.SourceID]float64
	refID   audio.SourceID

	// Playback
	volume int
	muted  bool

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	volumeCtrl *VolumeControl
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderSources()
	s += m.renderControls()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders session info and alignment quality
func (m Model) renderHeader() string {
	session := "No session"
	if m.frequency > 0 {
		session = fmt.Sprintf("%.3f MHz %s", float64(m.frequency)/1e6, m.mode)
	}

	alignIcon := "✗"
	alignText := "No aligned output"
	if m.metrics.SuccessRate > 0.9 {
		alignIcon = "✓"
		alignText = fmt.Sprintf("Aligned (%.0f%%, jitter: %.1fms)",
			m.metrics.SuccessRate*100, m.metrics.TimestampJitterMs)
	} else if m.metrics.SuccessRate > 0 {
		alignIcon = "⚠"
		alignText = fmt.Sprintf("Degraded (%.0f%%)", m.metrics.SuccessRate*100)
	}

	return fmt.Sprintf(`┌─ SDRSync ────────────────────────────────────────────┐
│ Tuned:  %-45s │
│ Align:  %s %-42s │
├──────────────────────────────────────────────────────┤
`, session, alignIcon, alignText)
}

// renderSources renders per-source clock state
func (m Model) renderSources() string {
	if len(m.offsets) == 0 {
		return "│ No sources                                           │\n"
	}

	ids := make([]audio.SourceID, 0, len(m.offsets))
	for id := range m.offsets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	s := "│ Sources:                                             │\n"
	for _, id := range ids {
		ref := " "
		if id == m.refID {
			ref = "*"
		}
		line := fmt.Sprintf("%s source %d: offset %+8.1fms  drift %+6.2fms/s",
			ref, id, m.offsets[id], m.drifts[id])
		s += fmt.Sprintf("│  %-51s │\n", line)
	}

	return s
}

// renderControls renders volume and buffer status
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " 🔇"
	}

	volumeBar := renderBar(m.volume, 100, 10)
	bufferBar := renderBar(int(m.metrics.PlaybackUtilization*100), 100, 10)

	return fmt.Sprintf("│                                                      │\n"+
		"│ Volume: [%s] %d%%%s%-17s │\n"+
		"│ Buffer: [%s] %.0f%%%-21s │\n",
		volumeBar, m.volume, muteIcon, "",
		bufferBar, m.metrics.PlaybackUtilization*100, "")
}

// renderStats renders alignment statistics
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Stats:  Aligned: %d/%d  Dropped: %d  Underruns: %d%-4s │
│                                                      │
`, m.metrics.SuccessfulAligns, m.metrics.TotalAttempts,
		m.metrics.ChunksDropped, m.metrics.Underruns, "")
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ ↑/↓:Volume  m:Mute  d:Debug  q:Quit                │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders per-source ring fill levels
func (m Model) renderDebug() string {
	s := "│ DEBUG:                                               │\n"
	for id, u := range m.metrics.SourceUtilization {
		s += fmt.Sprintf("│   source %d ring %3.0f%% full%-26s │\n", id, u*100, "")
	}
	return s
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		if m.volume < 100 {
			m.volume += 5
			if m.volume > 100 {
				m.volume = 100
			}
			m.sendVolume()
		}
	case "down":
		if m.volume > 0 {
			m.volume -= 5
			if m.volume < 0 {
				m.volume = 0
			}
			m.sendVolume()
		}
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// sendVolume notifies the app of a volume change
func (m Model) sendVolume() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Frequency != 0 {
		m.frequency = msg.Frequency
		m.mode = msg.Mode
	}
	if msg.Metrics != nil {
		m.metrics = *msg.Metrics
	}
	if msg.Offsets != nil {
		m.offsets = msg.Offsets
		m.drifts = msg.Drifts
		m.refID = msg.RefID
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	Frequency int
	Mode      string
	Metrics   *align.Metrics
	Offsets   map[audio.SourceID]float64
	Drifts    map[audio.SourceID]float64
	RefID     audio.SourceID
}

// VolumeChangeMsg carries a volume change from the TUI
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// QuitMsg signals the user quit the TUI
type QuitMsg struct{}

// Utility functions
func renderBar(value, max, width int) string {
	if value > max {
		value = max
	}
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}
