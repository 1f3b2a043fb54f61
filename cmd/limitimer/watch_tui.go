package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
)

// beepFlashDuration is how long the beep indicator stays lit.
const beepFlashDuration = 800 * time.Millisecond

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// watchDevice is the driver surface the view needs.
type watchDevice interface {
	Key() string
	Name() string
	Snapshot() limitimer.Snapshot
	SendAction(ctx context.Context, a limitimer.Action) error
	Resync() error
}

// watchKeys maps keyboard keys to front-panel buttons.
type watchKeys struct {
	Program1  key.Binding
	Program2  key.Binding
	Program3  key.Binding
	Session4  key.Binding
	StartStop key.Binding
	Beep      key.Binding
	Blink     key.Binding
	Repeat    key.Binding
	Clear     key.Binding
	TotalUp   key.Binding
	TotalDown key.Binding
	SumUp     key.Binding
	SumDown   key.Binding
	Seconds   key.Binding
	Resync    key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultWatchKeys() watchKeys {
	return watchKeys{
		Program1:  key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "program 1")),
		Program2:  key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "program 2")),
		Program3:  key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "program 3")),
		Session4:  key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "session")),
		StartStop: key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "start/stop")),
		Beep:      key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "beep")),
		Blink:     key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "blink")),
		Repeat:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repeat")),
		Clear:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
		TotalUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "total time +")),
		TotalDown: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "total time -")),
		SumUp:     key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "sum time +")),
		SumDown:   key.NewBinding(key.WithKeys("["), key.WithHelp("[", "sum time -")),
		Seconds:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "seconds")),
		Resync:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "full status")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "keys")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k watchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.StartStop, k.Clear, k.Beep, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k watchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Program1, k.Program2, k.Program3, k.Session4},
		{k.StartStop, k.Repeat, k.Clear, k.Seconds},
		{k.TotalUp, k.TotalDown, k.SumUp, k.SumDown},
		{k.Beep, k.Blink, k.Resync, k.Quit},
	}
}

// actionFor returns the front-panel action bound to msg.
func (k watchKeys) actionFor(msg tea.KeyMsg) (limitimer.Action, bool) {
	bindings := []struct {
		binding key.Binding
		action  limitimer.Action
	}{
		{k.Program1, limitimer.ActionProgram1},
		{k.Program2, limitimer.ActionProgram2},
		{k.Program3, limitimer.ActionProgram3},
		{k.Session4, limitimer.ActionSession4},
		{k.StartStop, limitimer.ActionStartStop},
		{k.Beep, limitimer.ActionBeep},
		{k.Blink, limitimer.ActionBlink},
		{k.Repeat, limitimer.ActionRepeat},
		{k.Clear, limitimer.ActionClear},
		{k.TotalUp, limitimer.ActionTotalTimePlus},
		{k.TotalDown, limitimer.ActionTotalTimeMinus},
		{k.SumUp, limitimer.ActionSumTimePlus},
		{k.SumDown, limitimer.ActionSumTimeMinus},
		{k.Seconds, limitimer.ActionSetSeconds},
	}
	for _, b := range bindings {
		if key.Matches(msg, b.binding) {
			return b.action, true
		}
	}
	return "", false
}

// watchModel is the Bubble Tea model for the watch view.
type watchModel struct {
	ctx    context.Context
	device watchDevice
	snap   limitimer.Snapshot

	keys watchKeys
	help help.Model

	beepUntil  time.Time
	lastAction string
	lastErr    error
	now        func() time.Time

	width int
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type changeMsg limitimer.Change

type beepMsg struct{}

type watchTickMsg time.Time

type actionResultMsg struct {
	action string
	err    error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newWatchModel(ctx context.Context, d watchDevice) watchModel {
	return watchModel{
		ctx:    ctx,
		device: d,
		snap:   d.Snapshot(),
		keys:   defaultWatchKeys(),
		help:   help.New(),
		now:    time.Now,
		width:  80,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m watchModel) Init() tea.Cmd {
	return watchTickCmd()
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case changeMsg:
		m.snap = m.device.Snapshot()

	case beepMsg:
		m.beepUntil = m.now().Add(beepFlashDuration)

	case actionResultMsg:
		m.lastAction = msg.action
		m.lastErr = msg.err

	case watchTickMsg:
		return m, watchTickCmd()
	}

	return m, nil
}

func (m watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Resync):
		return m, m.resyncCmd()
	}

	if action, ok := m.keys.actionFor(msg); ok {
		return m, m.sendCmd(action)
	}
	return m, nil
}

// sendCmd writes action off the UI goroutine.
func (m watchModel) sendCmd(action limitimer.Action) tea.Cmd {
	ctx, d := m.ctx, m.device
	return func() tea.Msg {
		return actionResultMsg{action: string(action), err: d.SendAction(ctx, action)}
	}
}

func (m watchModel) resyncCmd() tea.Cmd {
	d := m.device
	return func() tea.Msg {
		return actionResultMsg{action: "fullStatus", err: d.Resync()}
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	watchTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	watchBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	watchLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	watchClockStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	watchOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	ledOnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	ledDimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	ledOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// statusStyles colours the connection status.
var statusStyles = map[limitimer.ConnectionStatus]lipgloss.Style{
	limitimer.StatusOffline:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	limitimer.StatusConnecting: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	limitimer.StatusOnline:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
	limitimer.StatusWarning:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	limitimer.StatusError:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
}

func (m watchModel) View() string {
	s := m.snap

	title := watchTitleStyle.Render(fmt.Sprintf("%s (%s)", m.device.Name(), m.device.Key()))
	status := statusStyles[s.Status].Render(s.Status.String())
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", status)

	programs := lipgloss.JoinHorizontal(lipgloss.Top,
		ledCell("P1", s.Program1LED),
		ledCell("P2", s.Program2LED),
		ledCell("P3", s.Program3LED),
		ledCell("SESSION", s.SessionLED),
	)

	lamps := lipgloss.JoinHorizontal(lipgloss.Top,
		lampCell("GREEN", s.GreenLED, lipgloss.Color("10")),
		lampCell("YELLOW", s.YellowLED, lipgloss.Color("11")),
		lampCell("RED", s.RedLED, lipgloss.Color("9")),
		lampCell("BEEP", s.BeepLED || m.now().Before(m.beepUntil), lipgloss.Color("13")),
		lampCell("BLINK", s.BlinkLED, lipgloss.Color("14")),
		lampCell("SEC", s.SecondsMode, lipgloss.Color("12")),
	)

	clocks := lipgloss.JoinHorizontal(lipgloss.Top,
		clockCell("TOTAL", s.TotalTime),
		clockCell("SUM UP", s.SumUpTime),
		clockCell("REMAINING", s.RemainingTime),
	)

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(watchBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, programs, lamps, clocks)))
	b.WriteString("\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m watchModel) footer() string {
	switch {
	case m.lastAction == "":
		return watchLabelStyle.Render("ready")
	case m.lastErr != nil:
		return watchErrorStyle.Render(fmt.Sprintf("%s failed: %v", m.lastAction, m.lastErr))
	default:
		return watchOKStyle.Render("sent " + m.lastAction)
	}
}

func ledCell(label string, st limitimer.LEDState) string {
	style := ledOffStyle
	switch st {
	case limitimer.LEDOn:
		style = ledOnStyle
	case limitimer.LEDDim:
		style = ledDimStyle
	}
	return lipgloss.NewStyle().Width(12).Render(style.Render("●") + " " + watchLabelStyle.Render(label))
}

func lampCell(label string, lit bool, color lipgloss.Color) string {
	dot := ledOffStyle.Render("○")
	if lit {
		dot = lipgloss.NewStyle().Bold(true).Foreground(color).Render("●")
	}
	return lipgloss.NewStyle().Width(10).Render(dot + " " + watchLabelStyle.Render(label))
}

func clockCell(label, value string) string {
	return lipgloss.NewStyle().Width(14).Render(
		watchLabelStyle.Render(label) + "\n" + watchClockStyle.Render(value),
	)
}
