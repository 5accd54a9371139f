package monitor

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
)

// Panel represents which panel is active
type Panel int

const (
	PanelQueue Panel = iota
	PanelHistory
)

const panelCount = 2

// QueueRow is one pending outbox entry plus its failure record, if any.
type QueueRow struct {
	Entry     models.OutboxEntry
	Attempts  int
	LastError string
}

// Model is the main Bubble Tea model for the sync monitor
type Model struct {
	DB *db.DB

	// Window dimensions
	Width  int
	Height int

	// Panel data
	Status      models.SyncStatus
	Queue       []QueueRow
	Pending     int
	Quarantined int
	History     []db.SyncHistoryEntry // newest first

	// UI state
	ActivePanel  Panel
	ScrollOffset map[Panel]int
	ShowHelp     bool
	LastRefresh  time.Time
	Err          error // Last error, if any

	// Configuration
	RefreshInterval time.Duration

	spinner  spinner.Model
	statuses <-chan models.SyncStatus
	trigger  func()
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 15

// rowLimit caps how many queue and history rows are fetched per refresh.
const rowLimit = 200

// TickMsg triggers a data refresh
type TickMsg time.Time

// StatusMsg carries a status published by the drainer.
type StatusMsg models.SyncStatus

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Queue       []QueueRow
	Pending     int
	Quarantined int
	History     []db.SyncHistoryEntry
	Timestamp   time.Time
	Err         error
}

// NewModel creates a monitor over database. statuses is a notifier
// subscription and trigger requests an immediate drain; either may be nil.
func NewModel(database *db.DB, statuses <-chan models.SyncStatus, trigger func(), interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = syncingStyle
	return Model{
		DB:              database,
		RefreshInterval: interval,
		ScrollOffset:    make(map[Panel]int),
		ActivePanel:     PanelQueue,
		Status:          models.SyncStatus{State: models.SyncOffline},
		spinner:         sp,
		statuses:        statuses,
		trigger:         trigger,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
		m.waitForStatus(),
		m.spinner.Tick,
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case StatusMsg:
		m.Status = models.SyncStatus(msg)
		return m, tea.Batch(m.fetchData(), m.waitForStatus())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case RefreshDataMsg:
		m.Err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		m.Queue = msg.Queue
		m.Pending = msg.Pending
		m.Quarantined = msg.Quarantined
		m.History = msg.History
		m.LastRefresh = msg.Timestamp
		m.clampScroll()
		return m, nil
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.ActivePanel = (m.ActivePanel + 1) % panelCount
		return m, nil

	case "shift+tab":
		m.ActivePanel = (m.ActivePanel + panelCount - 1) % panelCount
		return m, nil

	case "1":
		m.ActivePanel = PanelQueue
		return m, nil

	case "2":
		m.ActivePanel = PanelHistory
		return m, nil

	case "j", "down":
		m.ScrollOffset[m.ActivePanel]++
		m.clampScroll()
		return m, nil

	case "k", "up":
		if m.ScrollOffset[m.ActivePanel] > 0 {
			m.ScrollOffset[m.ActivePanel]--
		}
		return m, nil

	case "s":
		if m.trigger != nil {
			m.trigger()
		}
		return m, nil

	case "r":
		return m, m.fetchData()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

func (m *Model) clampScroll() {
	limits := map[Panel]int{PanelQueue: len(m.Queue), PanelHistory: len(m.History)}
	for p, n := range limits {
		if m.ScrollOffset[p] >= n {
			m.ScrollOffset[p] = max(n-1, 0)
		}
	}
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// waitForStatus blocks on the notifier subscription for the next status.
func (m Model) waitForStatus() tea.Cmd {
	if m.statuses == nil {
		return nil
	}
	ch := m.statuses
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return StatusMsg(s)
	}
}

// fetchData returns a command that fetches all data and sends a RefreshDataMsg
func (m Model) fetchData() tea.Cmd {
	database := m.DB
	return func() tea.Msg {
		return FetchData(database, rowLimit)
	}
}
