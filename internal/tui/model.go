// Package tui is a terminal rendition of the container list page: a
// checkbox list, a bulk action bar that appears while anything is selected,
// and a confirm-then-delete flow driven by the bulk delete orchestrator.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/SpanFreight/tracking/internal/bulkdelete"
	"github.com/SpanFreight/tracking/internal/client"
	"github.com/SpanFreight/tracking/internal/selection"
)

// Lister fetches the current container list.
type Lister interface {
	List(ctx context.Context) ([]client.ContainerSummary, error)
}

type mode int

const (
	modeNormal mode = iota
	modeConfirm
)

type listLoadedMsg struct {
	rows []client.ContainerSummary
	err  error
}

type deleteDoneMsg struct {
	outcome bulkdelete.Outcome
}

// Model is the bubbletea model for the container list.
type Model struct {
	ctx    context.Context
	lister Lister
	orch   *bulkdelete.Orchestrator
	queue  *uiQueue
	sel    *selection.Model

	rows    []client.ContainerSummary
	cursor  int
	snap    selection.Snapshot
	loading bool
	loadErr error

	triggerLabel   string
	triggerEnabled bool
	deleting       bool

	mode    mode
	prompt  string
	pending []int64
	alert   string

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	styles  styles
	width   int
}

// New creates the model. Deletes go through d; the list is fetched with l.
func New(ctx context.Context, l Lister, d bulkdelete.Deleter) *Model {
	m := &Model{
		ctx:            ctx,
		lister:         l,
		queue:          &uiQueue{},
		sel:            selection.New(nil),
		triggerLabel:   bulkdelete.TriggerLabel,
		triggerEnabled: true,
		keys:           defaultKeys(),
		help:           help.New(),
		spinner:        spinner.New(spinner.WithSpinner(spinner.Dot)),
		styles:         newStyles(),
		loading:        true,
	}
	m.orch = bulkdelete.New(m.sel, d, m.queue)
	m.sel.Subscribe(func(s selection.Snapshot) { m.snap = s })
	return m
}

// Run starts the program on the terminal and blocks until the user quits.
func Run(ctx context.Context, l Lister, d bulkdelete.Deleter) error {
	p := tea.NewProgram(New(ctx, l, d), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.fetch()
}

func (m *Model) fetch() tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		rows, err := m.lister.List(m.ctx)
		return listLoadedMsg{rows: rows, err: err}
	}
}

func (m *Model) performDelete(ids []int64) tea.Cmd {
	return func() tea.Msg {
		return deleteDoneMsg{outcome: m.orch.PerformDelete(m.ctx, ids)}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case listLoadedMsg:
		m.loading = false
		m.loadErr = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.setRows(msg.rows)
		return m, nil

	case spinner.TickMsg:
		if !m.deleting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, tea.Batch(cmd, m.applyQueued())

	case deleteDoneMsg:
		m.deleting = false
		return m, m.applyQueued()

	case tea.KeyMsg:
		if m.mode == modeConfirm {
			return m, m.handleConfirmKey(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Toggle):
		if m.cursor < len(m.rows) {
			m.sel.Toggle(m.rows[m.cursor].ID)
		}

	case key.Matches(msg, m.keys.SelectAll):
		m.sel.SelectAll(!m.snap.AllSelected)

	case key.Matches(msg, m.keys.Delete):
		if !m.triggerEnabled || m.orch.InFlight() {
			return nil
		}
		m.alert = ""
		ids, prompt, ok := m.orch.Prepare()
		if !ok {
			return m.applyQueued()
		}
		m.mode = modeConfirm
		m.prompt = prompt
		m.pending = ids

	case key.Matches(msg, m.keys.Refresh):
		if m.deleting {
			return nil
		}
		m.alert = ""
		return m.fetch()
	}
	return nil
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Yes):
		ids := m.pending
		m.mode, m.prompt, m.pending = modeNormal, "", nil
		m.deleting = true
		return tea.Batch(m.spinner.Tick, m.performDelete(ids))

	case key.Matches(msg, m.keys.No):
		m.mode, m.prompt, m.pending = modeNormal, "", nil
	}
	return nil
}

// applyQueued applies whatever the orchestrator reported since the last
// drain, in order.
func (m *Model) applyQueued() tea.Cmd {
	var cmds []tea.Cmd
	for _, ev := range m.queue.drain() {
		switch ev := ev.(type) {
		case alertMsg:
			m.alert = ev.text
		case triggerMsg:
			m.triggerLabel, m.triggerEnabled = ev.label, ev.enabled
		case reloadMsg:
			cmds = append(cmds, m.fetch())
		}
	}
	return tea.Batch(cmds...)
}

// setRows replaces the list, discarding the selection as a page reload would.
func (m *Model) setRows(rows []client.ContainerSummary) {
	m.rows = rows
	items := make([]selection.Item, len(rows))
	for i, r := range rows {
		items[i] = selection.Item{ID: r.ID, Label: r.Number}
	}
	m.sel.Reset(items)
	if m.cursor >= len(rows) {
		m.cursor = max(len(rows)-1, 0)
	}
	m.triggerLabel, m.triggerEnabled = bulkdelete.TriggerLabel, true
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Container Tracking"))
	b.WriteString("\n")

	switch {
	case m.loadErr != nil:
		b.WriteString(m.styles.Error.Render("Failed to load containers: " + m.loadErr.Error()))
		b.WriteString("\n")
	case m.loading && len(m.rows) == 0:
		b.WriteString(m.styles.Dim.Render("Loading containers..."))
		b.WriteString("\n")
	case len(m.rows) == 0:
		b.WriteString(m.styles.Dim.Render("No containers found."))
		b.WriteString("\n")
	default:
		b.WriteString(m.renderTable())
	}

	if m.snap.BarVisible {
		b.WriteString(m.renderBar())
		b.WriteString("\n")
	}

	if m.alert != "" {
		style := m.styles.Alert
		if m.alert == bulkdelete.ErrorMessage {
			style = m.styles.Error
		}
		b.WriteString("\n")
		b.WriteString(style.Render(m.alert))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.mode == modeConfirm {
		b.WriteString(m.styles.Confirm.Render(m.prompt + " [y/N]"))
		b.WriteString("\n")
		b.WriteString(m.help.View(confirmKeys{m.keys}))
	} else {
		b.WriteString(m.help.View(m.keys))
	}
	return b.String()
}

func (m *Model) renderTable() string {
	var b strings.Builder
	selectAll := "[ ]"
	if m.snap.AllSelected {
		selectAll = "[x]"
	}
	header := fmt.Sprintf("  %s %-14s %-8s %-12s %s", selectAll, "CONTAINER #", "TYPE", "STATUS", "LOCATION")
	b.WriteString(m.styles.Header.Render(header))
	b.WriteString("\n")

	for i, r := range m.rows {
		box := "[ ]"
		if m.sel.IsSelected(r.ID) {
			box = "[x]"
		}
		status := r.CurrentStatus
		if status == "" {
			status = "-"
		}
		line := fmt.Sprintf("%s %-14s %-8s %-12s %s", box, r.Number, r.Type, status, r.Location)

		switch {
		case i == m.cursor:
			b.WriteString(m.styles.Cursor.Render("> " + line))
		case box == "[x]":
			b.WriteString(m.styles.Selected.Render("  " + line))
		default:
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderBar() string {
	trigger := m.styles.Trigger.Render("[d] " + m.triggerLabel)
	if !m.triggerEnabled {
		trigger = m.styles.Disabled.Render(m.spinner.View() + " " + m.triggerLabel)
	}
	return m.styles.Bar.Render(fmt.Sprintf("%d selected   %s", m.snap.Count, trigger))
}
