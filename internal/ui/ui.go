package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/desertthunder/vsa/internal/formatter"
	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/session"
	"github.com/desertthunder/vsa/internal/socket"
)

const (
	sidebarWidth = 34
	barWidth     = 24
)

// Source is where the model reads session state from. [*session.Session] satisfies it.
type Source interface {
	Updates() <-chan session.Snapshot
	Snapshot() session.Snapshot
}

// Commands is the intent surface of the model. [*session.Dispatcher] satisfies it.
type Commands interface {
	StartRun(ctx context.Context, url, modelHint string) error
	SelectAnalysis(ctx context.Context, summary models.AnalysisSummary) error
	NewAnalysis(ctx context.Context) error
	Refresh() error
}

// Pane is the area receiving key input.
type Pane int

const (
	SidebarPane Pane = iota
	MainPane
)

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	source   Source
	commands Commands
	model    string

	snap    session.Snapshot
	focus   Pane
	width   int
	height  int
	sidebar list.Model
	input   textinput.Model
	spinner spinner.Model
	results viewport.Model
	help    help.Model
	keys    keyMap
	err     error
	closed  bool
}

// NewModel creates a new TUI model rendering source and sending intents through commands.
// modelHint is passed to every start command; blank uses the session's configured model.
func NewModel(ctx context.Context, source Source, commands Commands, modelHint string) *Model {
	input := textinput.New()
	input.Placeholder = "https://www.youtube.com/watch?v=..."
	input.Prompt = "URL › "
	input.CharLimit = 2048
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.warn

	sidebar := list.New(nil, list.NewDefaultDelegate(), sidebarWidth, 10)
	sidebar.Title = "Analyses"
	sidebar.SetShowHelp(false)
	sidebar.SetShowStatusBar(false)

	m := &Model{
		ctx:      ctx,
		source:   source,
		commands: commands,
		model:    modelHint,
		focus:    MainPane,
		sidebar:  sidebar,
		input:    input,
		spinner:  sp,
		results:  viewport.New(40, 10),
		help:     help.New(),
		keys:     newKeyMap(),
	}
	m.applySnapshot(source.Snapshot())
	return m
}

// Init starts listening for session updates.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForUpdate())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgSnapshot:
			snap := msg.data.(session.Snapshot)
			if snap.Seq >= m.snap.Seq {
				m.applySnapshot(snap)
			}
			return m, m.waitForUpdate()
		case MsgUpdatesClosed:
			m.closed = true
			return m, tea.Quit
		case MsgCommandFailed:
			m.err, _ = msg.data.(error)
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.focus == MainPane && m.snap.View == session.ViewForm {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

// View renders the sidebar, the main view selected by the session, and the status and help lines.
func (m *Model) View() string {
	sidebarStyle := styles.sidebar
	if m.focus == SidebarPane {
		sidebarStyle = styles.focused
	}
	left := sidebarStyle.Render(m.sidebar.View())

	var main string
	switch m.snap.View {
	case session.ViewProcessing:
		main = m.renderProcessing()
	case session.ViewResults:
		main = m.renderResults()
	default:
		main = m.renderForm()
	}
	right := styles.main.Width(m.mainWidth()).Render(main)

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	return fmt.Sprintf("%s\n%s\n%s", body, m.renderStatus(), m.help.View(m.keys))
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	typing := m.focus == MainPane && m.snap.View == session.ViewForm
	filtering := m.focus == SidebarPane && m.sidebar.FilterState() == list.Filtering

	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case filtering:
		var cmd tea.Cmd
		m.sidebar, cmd = m.sidebar.Update(msg)
		return m, cmd
	case key.Matches(msg, m.keys.focus):
		m.toggleFocus()
		return m, nil
	case key.Matches(msg, m.keys.back):
		m.focusPane(MainPane)
		return m, m.run(func() error { return m.commands.NewAnalysis(m.ctx) })
	case key.Matches(msg, m.keys.enter):
		if typing {
			return m, m.submit()
		}
		if m.focus == SidebarPane {
			return m, m.selectCurrent()
		}
		return m, nil
	}

	if typing {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.create):
		m.focusPane(MainPane)
		return m, m.run(func() error { return m.commands.NewAnalysis(m.ctx) })
	case key.Matches(msg, m.keys.refresh):
		return m, m.run(m.commands.Refresh)
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	var cmd tea.Cmd
	if m.focus == SidebarPane {
		m.sidebar, cmd = m.sidebar.Update(msg)
	} else if m.snap.View == session.ViewResults {
		m.results, cmd = m.results.Update(msg)
	}
	return m, cmd
}

func (m *Model) submit() tea.Cmd {
	url := strings.TrimSpace(m.input.Value())
	m.err = nil
	return m.run(func() error {
		return m.commands.StartRun(m.ctx, url, m.model)
	})
}

func (m *Model) selectCurrent() tea.Cmd {
	item, ok := m.sidebar.SelectedItem().(analysisItem)
	if !ok {
		return nil
	}
	m.err = nil
	return m.run(func() error { return m.commands.SelectAnalysis(m.ctx, item.summary) })
}

// run executes an intent off the update loop and reports only failures.
func (m *Model) run(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return commandFailedMsg(err)
		}
		return nil
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	updates := m.source.Updates()
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return updatesClosedMsg()
		}
		return snapshotMsg(snap)
	}
}

func (m *Model) applySnapshot(snap session.Snapshot) {
	previous := m.snap.View
	m.snap = snap
	m.sidebar.SetItems(analysisItems(snap.Registry))

	if previous == session.ViewForm && snap.View == session.ViewProcessing {
		m.input.Reset()
	}
	m.syncInputFocus()
	m.refreshResults()
}

func (m *Model) toggleFocus() {
	if m.focus == SidebarPane {
		m.focusPane(MainPane)
	} else {
		m.focusPane(SidebarPane)
	}
}

func (m *Model) focusPane(p Pane) {
	m.focus = p
	m.syncInputFocus()
}

func (m *Model) syncInputFocus() {
	if m.focus == MainPane && m.snap.View == session.ViewForm {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) mainWidth() int {
	return max(m.width-sidebarWidth-8, 20)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	bodyHeight := max(height-6, 5)

	m.sidebar.SetSize(sidebarWidth, bodyHeight)
	m.input.Width = max(m.mainWidth()-len(m.input.Prompt)-2, 10)
	m.results.Width = m.mainWidth() - 4
	m.results.Height = bodyHeight
	m.help.Width = width
	m.refreshResults()
}

// resultTarget picks what the results view shows: the completed run, or else the selected analysis.
func (m *Model) resultTarget() (*models.CompletedDetail, *models.AnalysisSummary) {
	if m.snap.Run.Phase == session.PhaseCompleted && m.snap.Run.Detail != nil {
		return m.snap.Run.Detail, nil
	}
	if m.snap.Selection != nil {
		return m.snap.Selection.Detail, &m.snap.Selection.Summary
	}
	return nil, nil
}

func (m *Model) refreshResults() {
	detail, summary := m.resultTarget()
	m.results.SetContent(renderDetail(detail, summary, m.results.Width))
	m.results.GotoTop()
}

func (m *Model) renderForm() string {
	title := styles.title.Render("Analyze a video")

	var b strings.Builder
	b.WriteString(title + "\n")
	b.WriteString(m.input.View() + "\n\n")

	if m.snap.Status != socket.StatusConnected {
		b.WriteString(styles.warn.Render("Waiting for the backend connection...") + "\n")
	}
	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}
	if m.snap.ServerError != "" {
		b.WriteString(styles.err.Render(fmt.Sprintf("Server: %s", m.snap.ServerError)) + "\n")
	}
	return b.String()
}

func (m *Model) renderProcessing() string {
	run := m.snap.Run

	var b strings.Builder
	switch run.Phase {
	case session.PhaseFailed:
		b.WriteString(styles.err.Render("✗ Analysis failed") + "\n\n")
	default:
		b.WriteString(styles.title.Render(fmt.Sprintf("%s Analyzing", m.spinner.View())) + "\n")
	}

	b.WriteString(styles.help.Render(run.URL) + "\n\n")
	if len(run.Steps) == 0 && run.Phase != session.PhaseFailed {
		b.WriteString("Waiting for the first step...\n")
	}

	for _, step := range run.Steps {
		line := stepLine(step)
		switch step.Status {
		case models.StatusCompleted:
			line = styles.ok.Render(line)
		case models.StatusError:
			line = styles.err.Render(line)
		}
		b.WriteString(line + "\n")
	}

	if run.Failure != nil && len(run.Steps) == 0 {
		b.WriteString(styles.err.Render(run.Failure.Error()) + "\n")
	}
	if run.Phase == session.PhaseFailed {
		b.WriteString("\n" + styles.help.Render("Press n to start a new analysis") + "\n")
	}
	return b.String()
}

func (m *Model) renderResults() string {
	return m.results.View()
}

func (m *Model) renderStatus() string {
	var dot string
	switch m.snap.Status {
	case socket.StatusConnected:
		dot = styles.ok.Render("●")
	case socket.StatusConnecting:
		dot = styles.warn.Render("●")
	default:
		dot = styles.err.Render("●")
	}

	line := fmt.Sprintf("%s %s", dot, m.snap.Status)
	if m.snap.StatusReason != "" && m.snap.Status != socket.StatusConnected {
		line += " (" + m.snap.StatusReason + ")"
	}
	if m.snap.StatusErr != nil {
		line += " " + styles.err.Render(m.snap.StatusErr.Error())
	}
	return line + styles.help.Render(fmt.Sprintf("  %d analyses", len(m.snap.Registry)))
}

// renderDetail lays out a completed detail: header, per-category bars and the wrapped transcription.
func renderDetail(detail *models.CompletedDetail, summary *models.AnalysisSummary, width int) string {
	var b strings.Builder

	if detail == nil {
		if summary == nil {
			return ""
		}
		b.WriteString(styles.title.Render(summary.DisplayTitle()) + "\n")
		if summary.URL != "" {
			b.WriteString(styles.help.Render(summary.URL) + "\n")
		}
		b.WriteString(fmt.Sprintf("\nStatus: %s %s\n", statusIcon(summary.Status), summary.Status))
		b.WriteString(styles.warn.Render("No result is cached for this analysis yet.") + "\n")
		return b.String()
	}

	title := detail.Title
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	b.WriteString(styles.title.Render(title) + "\n")
	if detail.URL != "" {
		b.WriteString(styles.help.Render(detail.URL) + "\n")
	}

	breakdowns := detail.Sentiment.Breakdowns()
	b.WriteString("\n" + styles.ok.Render("Sentiment") + "\n")
	if len(breakdowns) == 0 {
		b.WriteString(styles.help.Render("No categories were detected.") + "\n")
	}
	for _, bd := range breakdowns {
		b.WriteString(fmt.Sprintf("\n%s (%d)\n", bd.Category, bd.Total))
		for _, row := range []struct {
			label string
			ratio float64
		}{
			{"positive", bd.Positive},
			{"neutral", bd.Neutral},
			{"negative", bd.Negative},
		} {
			bar := sentimentStyle(row.label).Render(formatter.Bar(row.ratio, barWidth))
			b.WriteString(fmt.Sprintf("  %-8s %s %s\n", row.label, bar, formatter.Percent(row.ratio)))
		}
	}

	b.WriteString("\n" + styles.ok.Render("Transcription") + "\n")
	text := strings.TrimSpace(detail.Transcription)
	if text == "" {
		text = "No transcription available."
	}
	b.WriteString(wordwrap.String(text, max(width, 20)) + "\n")
	return b.String()
}
