package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blockminds/internal/domain"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guregu/null/v6"
)

const loadTimeout = 10 * time.Second

type SnapshotReader interface {
	Top(ctx context.Context, n int) ([]domain.PublishedRecord, error)
	LatestRun(ctx context.Context) (domain.RunReport, error)
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	tableStyle = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
)

type loadedMsg struct {
	records []domain.PublishedRecord
	run     *domain.RunReport
	err     error
}

// Model is the snapshot browser shown to SSH sessions.
type Model struct {
	snapshots SnapshotReader
	username  string

	table     table.Model
	filter    textinput.Model
	filtering bool

	records []domain.PublishedRecord
	run     *domain.RunReport
	err     error
	loading bool

	width, height int
}

func NewModel(snapshots SnapshotReader, username string) *Model {
	t := table.New(
		table.WithColumns(columns()),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	s.Selected = s.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(s)

	f := textinput.New()
	f.Placeholder = "name or symbol"
	f.Prompt = "/ "

	return &Model{
		snapshots: snapshots,
		username:  username,
		table:     t,
		filter:    f,
		loading:   true,
	}
}

func columns() []table.Column {
	return []table.Column{
		{Title: "#", Width: 5},
		{Title: "Asset", Width: 18},
		{Title: "Sym", Width: 7},
		{Title: "Price", Width: 14},
		{Title: "24h %", Width: 8},
		{Title: "RSI", Width: 6},
		{Title: "Predicted", Width: 14},
		{Title: "Sentiment", Width: 10},
	}
}

// SetSize fits the table to the terminal.
func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
	if h := height - 8; h > 3 {
		m.table.SetHeight(h)
	}
}

func (m *Model) Init() tea.Cmd {
	return m.load()
}

func (m *Model) load() tea.Cmd {
	snapshots := m.snapshots
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		records, err := snapshots.Top(ctx, 0)
		if err != nil {
			return loadedMsg{err: err}
		}
		msg := loadedMsg{records: records}
		if run, err := snapshots.LatestRun(ctx); err == nil {
			msg.run = &run
		}
		return msg
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil
	case loadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.records = msg.records
			m.run = msg.run
		}
		m.table.SetRows(Rows(m.records, m.filter.Value()))
		return m, nil
	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, m.load()
		case "/":
			m.filtering = true
			m.filter.Focus()
			return m, textinput.Blink
		case "esc":
			m.filter.SetValue("")
			m.table.SetRows(Rows(m.records, ""))
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.filtering = false
		m.filter.Blur()
		if msg.String() == "esc" {
			m.filter.SetValue("")
		}
		m.table.SetRows(Rows(m.records, m.filter.Value()))
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.table.SetRows(Rows(m.records, m.filter.Value()))
	return m, cmd
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("blockminds snapshot"))
	if m.username != "" {
		b.WriteString(helpStyle.Render("  " + m.username))
	}
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(tableStyle.Render(m.table.View()))
	b.WriteString("\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ move • / filter • esc clear • r refresh • q quit"))
	return b.String()
}

func (m *Model) statusLine() string {
	if m.loading {
		return helpStyle.Render("loading...")
	}
	if m.run == nil {
		return helpStyle.Render(fmt.Sprintf("%d assets", len(m.records)))
	}
	return helpStyle.Render(fmt.Sprintf("%d assets • run %s %s at %s",
		len(m.records), m.run.RunID, m.run.Status, m.run.FinishedAt.UTC().Format(time.RFC3339)))
}

// Rows renders records whose name, symbol or id contains filter.
func Rows(records []domain.PublishedRecord, filter string) []table.Row {
	filter = strings.ToLower(strings.TrimSpace(filter))
	rows := make([]table.Row, 0, len(records))
	for _, r := range records {
		if filter != "" &&
			!strings.Contains(strings.ToLower(r.Name), filter) &&
			!strings.Contains(strings.ToLower(r.Symbol), filter) &&
			!strings.Contains(r.AssetID, filter) {
			continue
		}
		rank := "-"
		if r.MarketCapRank.Valid {
			rank = fmt.Sprintf("%d", r.MarketCapRank.Int64)
		}
		rows = append(rows, table.Row{
			rank,
			r.Name,
			strings.ToUpper(r.Symbol),
			cell(r.CurrentPrice, "%.4f"),
			cell(r.PriceChangePct24h, "%.2f"),
			cell(r.RSI14, "%.1f"),
			cell(r.PredictedPrice, "%.4f"),
			string(r.Sentiment.Label),
		})
	}
	return rows
}

func cell(v null.Float, format string) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf(format, v.Float64)
}
