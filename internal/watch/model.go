// Package watch is a terminal dashboard that tails a running splot server.
package watch

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/splot/internal/record"
	"github.com/ppiankov/splot/internal/relay"
)

const statsTimeout = 2 * time.Second

// StatsFunc fetches server stats; *client.Client's Stats method fits.
type StatsFunc func(ctx context.Context) (relay.Snapshot, error)

// Model is the bubbletea model for the live dashboard.
type Model struct {
	feed    *Feed
	stats   StatsFunc
	target  string
	version string

	// counters
	server       relay.Snapshot
	serverErr    error
	latest       record.Tuple
	tuples       int64
	tailErr      error
	prevTuples   int64
	prevLines    uint64
	lastTick     time.Time
	tuplesPerSec float64
	linesPerSec  float64

	// text pane
	lines     []string
	linesSeen uint64
	scrollOff int
	follow    bool

	// search
	searching   bool
	searchInput string
	searchRegex *regexp.Regexp
	searchIdx   int
	matches     []int // indices into lines

	lastGPress time.Time

	width  int
	height int

	quitting bool
}

type tickMsg time.Time

type statsMsg struct {
	snap relay.Snapshot
	err  error
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// NewModel creates a dashboard over feed. stats may be nil.
func NewModel(feed *Feed, stats StatsFunc, target, version string) Model {
	return Model{
		feed:    feed,
		stats:   stats,
		target:  target,
		version: version,
		follow:  true,
		width:   80,
		height:  24,
	}
}

// Init starts the tick timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.fetchStats())
}

func (m Model) fetchStats() tea.Cmd {
	if m.stats == nil {
		return nil
	}
	fn := m.stats
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		defer cancel()
		snap, err := fn(ctx)
		return statsMsg{snap: snap, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.applyTick(time.Time(msg))
		return m, tea.Batch(tickCmd(), m.fetchStats())

	case statsMsg:
		m.serverErr = msg.err
		if msg.err == nil {
			m.server = msg.snap
		}
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateNormal(msg)
	}

	return m, nil
}

func (m *Model) applyTick(now time.Time) {
	m.latest, m.tuples, m.tailErr = m.feed.Latest()
	seen := m.feed.LineCount()

	if !m.lastTick.IsZero() {
		elapsed := now.Sub(m.lastTick).Seconds()
		if elapsed > 0 {
			m.tuplesPerSec = float64(m.tuples-m.prevTuples) / elapsed
			m.linesPerSec = float64(seen-m.prevLines) / elapsed
		}
	}
	m.prevTuples = m.tuples
	m.prevLines = seen
	m.lastTick = now

	if seen != m.linesSeen {
		m.lines, m.linesSeen = m.feed.Lines()
		m.updateSearchMatches()
		if m.follow {
			m.scrollToBottom()
		}
	}
}

func (m Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "j", "down":
		m.follow = false
		m.scrollOff = clamp(m.scrollOff+1, 0, m.maxScroll())

	case "k", "up":
		m.follow = false
		m.scrollOff = clamp(m.scrollOff-1, 0, m.maxScroll())

	case "d":
		m.follow = false
		m.scrollOff = clamp(m.scrollOff+m.paneHeight()/2, 0, m.maxScroll())

	case "u":
		m.follow = false
		m.scrollOff = clamp(m.scrollOff-m.paneHeight()/2, 0, m.maxScroll())

	case "G":
		m.follow = true
		m.scrollToBottom()

	case "g":
		now := time.Now()
		if now.Sub(m.lastGPress) < 500*time.Millisecond {
			m.follow = false
			m.scrollOff = 0
			m.lastGPress = time.Time{}
		} else {
			m.lastGPress = now
		}

	case "f":
		m.follow = !m.follow
		if m.follow {
			m.scrollToBottom()
		}

	case "/":
		m.searching = true
		m.searchInput = ""

	case "n":
		m.nextMatch(1)

	case "N":
		m.nextMatch(-1)
	}

	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searching = false
		re, err := regexp.Compile(m.searchInput)
		if err == nil {
			m.searchRegex = re
			m.updateSearchMatches()
			m.searchIdx = 0
			if len(m.matches) > 0 {
				m.follow = false
				m.scrollOff = clamp(m.matches[0]-m.paneHeight()/2, 0, m.maxScroll())
			}
		}

	case "esc":
		m.searching = false
		m.searchInput = ""
		m.searchRegex = nil
		m.matches = nil

	case "backspace":
		if len(m.searchInput) > 0 {
			m.searchInput = m.searchInput[:len(m.searchInput)-1]
		}

	default:
		if len(msg.String()) == 1 {
			m.searchInput += msg.String()
		}
	}

	return m, nil
}

func (m *Model) updateSearchMatches() {
	m.matches = nil
	if m.searchRegex == nil {
		return
	}
	for i, line := range m.lines {
		if m.searchRegex.MatchString(line) {
			m.matches = append(m.matches, i)
		}
	}
	if m.searchIdx >= len(m.matches) {
		m.searchIdx = 0
	}
}

func (m *Model) nextMatch(dir int) {
	if len(m.matches) == 0 {
		return
	}
	m.searchIdx = (m.searchIdx + dir + len(m.matches)) % len(m.matches)
	m.follow = false
	m.scrollOff = clamp(m.matches[m.searchIdx]-m.paneHeight()/2, 0, m.maxScroll())
}

func (m *Model) scrollToBottom() {
	m.scrollOff = m.maxScroll()
}

func (m Model) paneHeight() int {
	// header(1) + blank(1) + stats(5) + separator(1) + status(1)
	return max(m.height-9, 1)
}

func (m Model) maxScroll() int {
	return max(len(m.lines)-m.paneHeight(), 0)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	v := m.version
	if v == "" {
		v = "dev"
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("splot %s | %s | arity %d", v, m.target, m.server.Arity)))
	b.WriteString("\n\n")

	left := strings.Split(m.renderFeed(), "\n")
	right := strings.Split(m.renderServer(), "\n")
	leftW := max(m.width/2, 36)
	for i := 0; i < max(len(left), len(right)); i++ {
		var l, r string
		if i < len(left) {
			l = left[i]
		}
		if i < len(right) {
			r = right[i]
		}
		b.WriteString(padRight(l, leftW))
		b.WriteString(r)
		b.WriteString("\n")
	}

	b.WriteString(sepStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	paneH := m.paneHeight()
	start := max(m.scrollOff, 0)
	end := min(start+paneH, len(m.lines))

	matchSet := make(map[int]bool, len(m.matches))
	for _, idx := range m.matches {
		matchSet[idx] = true
	}
	for i := start; i < end; i++ {
		line := m.lines[i]
		if len(line) > m.width {
			line = line[:m.width]
		}
		if matchSet[i] {
			b.WriteString(matchStyle.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	for i := end - start; i < paneH; i++ {
		b.WriteString("\n")
	}

	var status strings.Builder
	if m.searching {
		status.WriteString(searchBadge.Render("/" + m.searchInput))
	} else if m.searchRegex != nil {
		status.WriteString(searchBadge.Render(fmt.Sprintf("[%d/%d] /%s", m.searchIdx+1, len(m.matches), m.searchRegex.String())))
	}
	if m.follow {
		if status.Len() > 0 {
			status.WriteString(" ")
		}
		status.WriteString(followBadge.Render("FOLLOW"))
	}
	if status.Len() > 0 {
		b.WriteString(padLeft(status.String(), m.width))
	}

	return b.String()
}

func (m Model) renderFeed() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render(" Latest:       "))
	if m.latest != nil {
		b.WriteString(record.FormatTuple(m.latest))
	} else {
		b.WriteString("-")
	}
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(" Tuples/sec:   "))
	b.WriteString(fmt.Sprintf("%s (%d total)\n", formatRate(m.tuplesPerSec), m.tuples))
	b.WriteString(labelStyle.Render(" Lines/sec:    "))
	b.WriteString(fmt.Sprintf("%s (%d total)\n", formatRate(m.linesPerSec), m.linesSeen))
	b.WriteString(labelStyle.Render(" Bytes sent:   "))
	b.WriteString(formatBytes(m.server.BytesEmitted))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(" Tail:         "))
	if m.tailErr != nil {
		b.WriteString(errStyle.Render(m.tailErr.Error()))
	} else {
		b.WriteString("ok")
	}
	return b.String()
}

func (m Model) renderServer() string {
	var b strings.Builder
	b.WriteString(boldStyle.Render("Server"))
	b.WriteString("\n")
	if m.serverErr != nil {
		b.WriteString(errStyle.Render(" " + m.serverErr.Error()))
		b.WriteString("\n\n\n\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf(" data   %s\n", formatWindow(m.server.Data)))
	b.WriteString(fmt.Sprintf(" text   %s\n", formatWindow(m.server.Text)))
	b.WriteString(fmt.Sprintf(" sessions %d active, %d waiting\n", m.server.ActiveSessions, m.server.Data.Waiters+m.server.Text.Waiters))
	b.WriteString(" evicted  ")
	if m.server.SessionsEvicted > 0 {
		b.WriteString(errStyle.Render(fmt.Sprintf("%d", m.server.SessionsEvicted)))
	} else {
		b.WriteString("0")
	}
	return b.String()
}

// styles
var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Faint(true)
	boldStyle   = lipgloss.NewStyle().Bold(true)
	sepStyle    = lipgloss.NewStyle().Faint(true)
	matchStyle  = lipgloss.NewStyle().Background(lipgloss.Color("226")).Foreground(lipgloss.Color("0"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	searchBadge = lipgloss.NewStyle().Background(lipgloss.Color("226")).Foreground(lipgloss.Color("0")).Padding(0, 1)
	followBadge = lipgloss.NewStyle().Background(lipgloss.Color("34")).Foreground(lipgloss.Color("15")).Padding(0, 1)
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func padRight(s string, w int) string {
	n := lipgloss.Width(s)
	if n >= w {
		return s
	}
	return s + strings.Repeat(" ", w-n)
}

func padLeft(s string, w int) string {
	n := lipgloss.Width(s)
	if n >= w {
		return s
	}
	return strings.Repeat(" ", w-n) + s
}

func formatWindow(s relay.StoreStats) string {
	return fmt.Sprintf("[%d, %d) of %d", s.Bottom, s.Top, s.Capacity)
}

func formatRate(r float64) string {
	switch {
	case r >= 1_000_000:
		return fmt.Sprintf("%.1fM", r/1_000_000)
	case r >= 1_000:
		return fmt.Sprintf("%.1fK", r/1_000)
	default:
		return fmt.Sprintf("%.0f", r)
	}
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
