// Package ui implements the interactive terminal view of an engine run: one
// row per chunk with live status, attempt counters, and a summary footer.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/astrio-ai/legacy2modern/internal/cli/hooks"
	"github.com/astrio-ai/legacy2modern/pkg/engine"
)

const listHeightMargin = 4

// Model is the Bubble Tea state for a run. Chunk counts are small (tens, not
// thousands), so rows are updated synchronously without debouncing.
type Model struct {
	list        list.Model
	spinner     spinner.Model
	width       int
	height      int
	initialized bool
	appVersion  string

	chunkRows []chunkRow
	rowIndex  map[string]int
	startTime map[string]time.Time

	summary      Summary
	phaseMessage string
	quitting     bool
	done         bool
}

// chunkRow is one chunk's display state.
type chunkRow struct {
	chunkID  string
	items    int
	cost     int
	status   engine.Status
	message  string
	attempt  int
	duration time.Duration
}

// Summary holds the aggregated statistics displayed in the footer.
type Summary struct {
	TotalChunks int
	DoneCount   int
	CachedCount int
	ErrorCount  int
	StartTime   time.Time
}

// NewModel creates the initial model.
func NewModel(appVersion string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(colorSelectedFg).Background(colorSelectedBg).Bold(true).Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(colorNormalDescFg).Background(colorSelectedBg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(colorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(colorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return Model{
		list:         l,
		spinner:      s,
		appVersion:   appVersion,
		rowIndex:     map[string]int{},
		startTime:    map[string]time.Time{},
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: "Partitioning...",
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height - listHeightMargin
		if listHeight < 1 {
			listHeight = 1
		}
		m.list.SetSize(m.width, listHeight)
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting || m.done {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case hooks.ChunkQueuedMsg:
		if _, exists := m.rowIndex[msg.ChunkID]; !exists {
			m.chunkRows = append(m.chunkRows, chunkRow{
				chunkID: msg.ChunkID,
				items:   msg.ItemCount,
				cost:    msg.EstimatedCost,
				status:  engine.StatusQueued,
			})
			m.rowIndex[msg.ChunkID] = len(m.chunkRows) - 1
			m.summary.TotalChunks++
			cmds = append(cmds, m.syncList())
		}
		if m.phaseMessage == "Partitioning..." {
			m.phaseMessage = "Processing..."
		}

	case hooks.ChunkStatusMsg:
		cmds = append(cmds, m.applyStatus(msg))

	case hooks.RunCompleteMsg:
		m.done = true
		m.phaseMessage = "Complete"
		m.summary.DoneCount = msg.Report.Summary.SuccessfulChunks
		m.summary.CachedCount = msg.Report.Summary.CachedChunks
		m.summary.ErrorCount = msg.Report.Summary.FailedChunks
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) applyStatus(msg hooks.ChunkStatusMsg) tea.Cmd {
	idx, ok := m.rowIndex[msg.ChunkID]
	if !ok {
		m.chunkRows = append(m.chunkRows, chunkRow{chunkID: msg.ChunkID, status: msg.Status, message: msg.Message, attempt: msg.Attempt})
		m.rowIndex[msg.ChunkID] = len(m.chunkRows) - 1
		m.summary.TotalChunks++
		idx = len(m.chunkRows) - 1
	}
	row := &m.chunkRows[idx]

	switch msg.Status {
	case engine.StatusProcessing:
		m.startTime[msg.ChunkID] = time.Now()
	case engine.StatusSuccess, engine.StatusFailed, engine.StatusCached:
		if start, found := m.startTime[msg.ChunkID]; found {
			row.duration = time.Since(start)
			delete(m.startTime, msg.ChunkID)
		}
		if !isFinal(row.status) {
			m.summary.DoneCount++
			if msg.Status == engine.StatusCached {
				m.summary.CachedCount++
			}
			if msg.Status == engine.StatusFailed {
				m.summary.ErrorCount++
			}
		}
	}
	row.status = msg.Status
	row.message = msg.Message
	row.attempt = msg.Attempt
	return m.syncList()
}

func (m *Model) syncList() tea.Cmd {
	items := make([]list.Item, len(m.chunkRows))
	for i, row := range m.chunkRows {
		items[i] = row
	}
	return m.list.SetItems(items)
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return "Initializing..."
	}

	headerLeft := fmt.Sprintf("legacy2modern v%s", m.appVersion)
	headerRight := m.phaseMessage
	if !m.done {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	headerGap := m.width - lipgloss.Width(headerLeft) - lipgloss.Width(headerRight)
	headerCenter := ""
	if headerGap > 0 {
		headerCenter = lipgloss.PlaceHorizontal(headerGap, lipgloss.Center, " ")
	}
	header := headerStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Top, headerLeft, headerCenter, headerRight))

	elapsed := time.Since(m.summary.StartTime).Round(time.Millisecond)
	footerLeft := fmt.Sprintf("Chunks: %d/%d (cached: %d, failed: %d) | Elapsed: %s",
		m.summary.DoneCount, m.summary.TotalChunks, m.summary.CachedCount, m.summary.ErrorCount, elapsed)
	footerRight := "q: quit"
	footerGap := m.width - lipgloss.Width(footerLeft) - lipgloss.Width(footerRight)
	footerCenter := ""
	if footerGap > 0 {
		footerCenter = lipgloss.PlaceHorizontal(footerGap, lipgloss.Center, " ")
	}
	footer := footerStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Bottom, footerLeft, footerCenter, footerRight))

	return lipgloss.JoinVertical(lipgloss.Left, header, m.list.View(), footer)
}

func isFinal(status engine.Status) bool {
	return status == engine.StatusSuccess ||
		status == engine.StatusFailed ||
		status == engine.StatusCached
}

// FilterValue implements list.Item.
func (r chunkRow) FilterValue() string { return r.chunkID }

// Title implements list.Item.
func (r chunkRow) Title() string {
	return fmt.Sprintf("%s (%d files, cost %d)", r.chunkID, r.items, r.cost)
}

// Description implements list.Item.
func (r chunkRow) Description() string {
	var style lipgloss.Style
	icon := " "
	switch r.status {
	case engine.StatusSuccess:
		style, icon = statusStyleSuccess, "✓"
	case engine.StatusFailed:
		style, icon = statusStyleFailed, "✗"
	case engine.StatusCached:
		style, icon = statusStyleCached, "C"
	case engine.StatusProcessing:
		style, icon = statusStyleProcessing, "…"
	case engine.StatusRetrying:
		style, icon = statusStyleRetrying, "R"
	default:
		style = statusStyleQueued
	}

	details := ""
	switch r.status {
	case engine.StatusFailed:
		details = r.message
	case engine.StatusRetrying:
		details = fmt.Sprintf("attempt %d failed: %s", r.attempt, r.message)
	case engine.StatusSuccess:
		details = formatDuration(r.duration)
		if r.attempt > 1 {
			details = fmt.Sprintf("%s (attempt %d)", details, r.attempt)
		}
	case engine.StatusCached:
		details = "from cache"
	}
	return fmt.Sprintf("%s %s", style.Render("["+icon+"]"), details)
}

func formatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return ""
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

const (
	colorHeaderFg = lipgloss.Color("252")
	colorHeaderBg = lipgloss.Color("62")

	colorFooterFg = lipgloss.Color("252")
	colorFooterBg = lipgloss.Color("56")

	colorNormalFg     = lipgloss.Color("250")
	colorNormalDescFg = lipgloss.Color("244")
	colorSelectedFg   = lipgloss.Color("255")
	colorSelectedBg   = lipgloss.Color("56")

	colorSuccess    = lipgloss.Color("40")
	colorFailed     = lipgloss.Color("196")
	colorCached     = lipgloss.Color("39")
	colorRetrying   = lipgloss.Color("214")
	colorQueued     = lipgloss.Color("244")
	colorProcessing = lipgloss.Color("205")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorHeaderFg).
			Background(colorHeaderBg).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorFooterFg).
			Background(colorFooterBg).
			Padding(0, 1)

	statusStyleSuccess    = lipgloss.NewStyle().Foreground(colorSuccess)
	statusStyleFailed     = lipgloss.NewStyle().Foreground(colorFailed)
	statusStyleCached     = lipgloss.NewStyle().Foreground(colorCached)
	statusStyleRetrying   = lipgloss.NewStyle().Foreground(colorRetrying)
	statusStyleQueued     = lipgloss.NewStyle().Foreground(colorQueued)
	statusStyleProcessing = lipgloss.NewStyle().Foreground(colorProcessing)
)
