package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fleetserver/game"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	boardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	waterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("24"))
	shipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	hitStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	missStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	sunkStyle    = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("241"))
)

// Controller is the game side the TUI drives. *client.Runner implements it.
type Controller interface {
	Place(kind game.ShipKind, anchor game.Point, o game.Orientation) error
	AutoPlace() error
	Attack(cell game.Point) error
	State() game.Snapshot
	Updates() <-chan struct{}
	Done() <-chan struct{}
}

type stateMsg game.Snapshot

type doneMsg struct{}

// Model is the bubbletea model for one player.
type Model struct {
	ctl    Controller
	title  string
	snap   game.Snapshot
	cursor game.Point
	orient game.Orientation

	// selected indexes snap.Available
	selected int
	status   string
	closed   bool
}

func New(ctl Controller, title string) Model {
	return Model{ctl: ctl, title: title, snap: ctl.State()}
}

func (m Model) Init() tea.Cmd {
	return m.wait()
}

// wait blocks until the runner reports a change.
func (m Model) wait() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		select {
		case <-ctl.Updates():
			return stateMsg(ctl.State())
		case <-ctl.Done():
			return doneMsg{}
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.snap = game.Snapshot(msg)
		m.clampSelection()
		return m, m.wait()

	case doneMsg:
		m.closed = true
		m.snap = m.ctl.State()
		return m, nil

	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "q":
		return m, tea.Quit
	case "up", "k":
		m.move(0, -1)
	case "down", "j":
		m.move(0, 1)
	case "left", "h":
		m.move(-1, 0)
	case "right", "l":
		m.move(1, 0)
	case "r":
		m.orient = m.orient.Rotate()
	case "tab":
		if n := len(m.snap.Available); n > 0 {
			m.selected = (m.selected + 1) % n
		}
	case "a":
		m.report(m.ctl.AutoPlace(), "Fleet placed")
	case "enter", " ":
		m.act()
	}
	return m, nil
}

func (m *Model) move(dx, dy int) {
	next := game.Point{X: m.cursor.X + dx, Y: m.cursor.Y + dy}
	if next.InBounds() {
		m.cursor = next
	}
}

func (m *Model) act() {
	switch m.snap.Phase {
	case game.PhasePlacement:
		kind, ok := m.selectedKind()
		if !ok {
			return
		}
		m.report(m.ctl.Place(kind, m.cursor, m.orient), fmt.Sprintf("%s placed at %s", kind, m.cursor))
	case game.PhaseAttack:
		m.report(m.ctl.Attack(m.cursor), fmt.Sprintf("Fired at %s", m.cursor))
	}
}

// report refreshes the snapshot after a request and sets the status line.
func (m *Model) report(err error, ok string) {
	if err != nil {
		m.status = describe(err)
	} else {
		m.status = ok
	}
	m.snap = m.ctl.State()
	m.clampSelection()
}

func describe(err error) string {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, game.ErrAttackPending):
		return "Waiting for the result of your last attack"
	case errors.Is(err, game.ErrAlreadyAttacked):
		return "You already attacked that cell"
	case errors.Is(err, game.ErrOverlap):
		return "Ships cannot overlap"
	case errors.Is(err, game.ErrOutOfBounds):
		return "Ship does not fit there"
	}
	return err.Error()
}

func (m *Model) clampSelection() {
	if m.selected >= len(m.snap.Available) {
		m.selected = 0
	}
}

func (m Model) selectedKind() (game.ShipKind, bool) {
	if len(m.snap.Available) == 0 {
		return 0, false
	}
	return m.snap.Available[m.selected], true
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	own := boardStyle.Render("Your fleet\n" + m.renderOwn())
	target := boardStyle.Render("Enemy waters\n" + m.renderObserved())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, own, " ", target, " ", m.renderSide()))
	b.WriteString("\n")

	b.WriteString(statusStyle.Render(m.headline()))
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	for _, line := range m.snap.Log {
		b.WriteString("  " + line + "\n")
	}
	b.WriteString(helpStyle.Render(m.help()))
	return b.String()
}

func (m Model) headline() string {
	snap := m.snap
	switch {
	case snap.Over && snap.Won():
		return "You won!"
	case snap.Over:
		return "You lost."
	case snap.Phase == game.PhaseDisconnected:
		return "Opponent disconnected"
	case snap.Phase == game.PhasePlacement:
		if kind, ok := m.selectedKind(); ok {
			return fmt.Sprintf("Place your %s (%d) %s", kind, kind.Size(), m.orient)
		}
		return "Placing ships"
	case snap.Phase == game.PhaseReadyWait:
		if !snap.PeerJoined {
			return "Waiting for an opponent to join"
		}
		return "Waiting for the opponent to place ships"
	case snap.MyTurn:
		return "Your turn"
	case snap.Pending:
		return "Waiting for result"
	}
	return "Opponent's turn"
}

func (m Model) help() string {
	if m.closed {
		return "Connection closed • q: quit"
	}
	switch m.snap.Phase {
	case game.PhasePlacement:
		return "arrows: move • r: rotate • tab: next ship • enter: place • a: auto • q: quit"
	case game.PhaseAttack:
		return "arrows: move • enter: fire • q: quit"
	}
	return "q: quit"
}

func (m Model) renderSide() string {
	var b strings.Builder
	score := m.snap.Score
	fmt.Fprintf(&b, "%s (%s)\n", m.snap.Role, m.snap.Mode)
	fmt.Fprintf(&b, "Hits %d / Moves %d\n", score.Hits, score.Moves)
	fmt.Fprintf(&b, "Accuracy %.2f%%\n", score.Accuracy)
	fmt.Fprintf(&b, "Score %d\n\n", score.Total)

	b.WriteString("Fleet\n")
	for _, ship := range m.snap.Ships {
		line := fmt.Sprintf(" %-10s %d/%d", ship.Kind, ship.Remaining, ship.Kind.Size())
		if ship.Sunk {
			line = sunkStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if len(m.snap.OpponentSunk) > 0 {
		b.WriteString("\nSunk\n")
		for _, kind := range m.snap.OpponentSunk {
			b.WriteString(" " + kind.String() + "\n")
		}
	}
	return b.String()
}

// preview は配置予定のマスと、その配置が有効かどうか
func (m Model) preview() (map[game.Point]bool, bool) {
	kind, ok := m.selectedKind()
	if !ok || m.snap.Phase != game.PhasePlacement {
		return nil, false
	}
	cells := make(map[game.Point]bool)
	valid := true
	for _, p := range game.ShipCells(kind, m.cursor, m.orient) {
		if !p.InBounds() || m.snap.Own.At(p) != game.Empty {
			valid = false
		}
		if p.InBounds() {
			cells[p] = true
		}
	}
	return cells, valid
}

func (m Model) renderOwn() string {
	cells, valid := m.preview()
	return m.renderGrid(m.snap.Own, func(p game.Point, s string) string {
		if cells[p] {
			if valid {
				return previewStyle.Render("■")
			}
			return badStyle.Render("■")
		}
		return s
	})
}

func (m Model) renderObserved() string {
	attack := m.snap.Phase == game.PhaseAttack
	return m.renderGrid(m.snap.Observed, func(p game.Point, s string) string {
		if attack && p == m.cursor {
			return cursorStyle.Render(s)
		}
		return s
	})
}

func (m Model) renderGrid(g game.Grid, decorate func(game.Point, string) string) string {
	var b strings.Builder
	b.WriteString("  ")
	for x := 0; x < game.GridSize; x++ {
		fmt.Fprintf(&b, "%d ", x)
	}
	b.WriteString("\n")
	for y := 0; y < game.GridSize; y++ {
		fmt.Fprintf(&b, "%d ", y)
		for x := 0; x < game.GridSize; x++ {
			p := game.Point{X: x, Y: y}
			b.WriteString(decorate(p, cellGlyph(g.At(p))))
			b.WriteString(" ")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func cellGlyph(c game.Cell) string {
	switch c {
	case game.Ship:
		return shipStyle.Render("S")
	case game.Hit:
		return hitStyle.Render("X")
	case game.Miss:
		return missStyle.Render("O")
	}
	return waterStyle.Render("~")
}

// Run starts the program in the alternate screen and blocks until it quits.
func Run(ctl Controller, title string) error {
	p := tea.NewProgram(New(ctl, title), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
