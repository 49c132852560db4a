// Package tui is the interactive study session.
//
// The model shows one deck item at a time. Typed romaji is transliterated
// live, and enter checks the answer against the item's accepted readings.
// The deck can be reloaded underneath the model at any time (a background
// sync, a settings change); the model then re-reads the deck snapshot.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kanjideck/kanjideck/internal/cache/db"
	"github.com/kanjideck/kanjideck/internal/marks"
	"github.com/kanjideck/kanjideck/internal/study"
	"github.com/kanjideck/kanjideck/internal/ui"
)

// Marker toggles bookmarks.
type Marker interface {
	Toggle(m marks.Mark) (bool, error)
	Has(subjectID int64) (bool, error)
}

const reloadingStatus = "reloading…"

// deckChangedMsg asks the model to re-read the deck.
type deckChangedMsg struct{}

// reloadedMsg reports the end of a reload started by the model.
type reloadedMsg struct{ err error }

// Model is the study session's Bubble Tea model.
type Model struct {
	deck   *study.Deck
	marker Marker

	snap   study.Snapshot
	input  textinput.Model
	result *study.Result
	reveal bool
	marked bool
	status string

	keys keyMap
	help help.Model
}

// New creates a model for deck. marker may be nil, which disables marking.
func New(deck *study.Deck, marker Marker) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "type the reading in romaji"
	ti.CharLimit = 64
	ti.Focus()

	m := Model{
		deck:   deck,
		marker: marker,
		snap:   deck.Snapshot(),
		input:  ti,
		keys:   defaultKeys(),
		help:   help.New(),
	}
	return m
}

// Init starts the first load.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.reload())
}

func (m Model) reload() tea.Cmd {
	deck := m.deck
	return func() tea.Msg {
		return reloadedMsg{err: deck.Reload(context.Background())}
	}
}

// Update handles keys and deck changes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case deckChangedMsg:
		return m.refresh(), nil

	case reloadedMsg:
		m = m.refresh()
		if m.status == reloadingStatus {
			m.status = ""
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Reload):
			m.status = reloadingStatus
			return m, m.reload()
		case key.Matches(msg, m.keys.Next):
			m.deck.Next()
			return m.refresh(), nil
		case key.Matches(msg, m.keys.Prev):
			m.deck.Prev()
			return m.refresh(), nil
		case key.Matches(msg, m.keys.Reveal):
			m.reveal = !m.reveal
			return m, nil
		case key.Matches(msg, m.keys.Mark):
			return m.toggleMark()
		case key.Matches(msg, m.keys.Check):
			return m.check(), nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh re-reads the deck and clears per-item state when the cursor
// landed on a different subject.
func (m Model) refresh() Model {
	prev, hadPrev := m.snap.Current()
	m.snap = m.deck.Snapshot()
	cur, ok := m.snap.Current()
	if !ok || !hadPrev || cur.ID() != prev.ID() {
		m.input.SetValue("")
		m.result = nil
		m.reveal = false
		m.status = ""
	}
	if ok && m.result != nil && m.deck.Session().State(cur.ID()) == study.Unanswered {
		// The session was reset by a reload.
		m.result = nil
	}
	m.marked = false
	if ok && m.marker != nil {
		m.marked, _ = m.marker.Has(cur.ID())
	}
	return m
}

// check validates the input. Enter on an empty input after a correct answer
// moves on.
func (m Model) check() Model {
	cur, ok := m.snap.Current()
	if !ok {
		return m
	}
	raw := strings.TrimSpace(m.input.Value())
	if raw == "" {
		if m.result != nil && m.result.Correct {
			m.deck.Next()
			return m.refresh()
		}
		return m
	}

	res := m.deck.Session().Check(cur.Subject, raw)
	m.result = &res
	if res.Correct {
		m.input.SetValue("")
	}
	return m
}

func (m Model) toggleMark() (tea.Model, tea.Cmd) {
	cur, ok := m.snap.Current()
	if !ok || m.marker == nil {
		return m, nil
	}
	marked, err := m.marker.Toggle(marks.FromSubject(cur.Subject))
	if err != nil {
		m.status = "mark failed: " + err.Error()
		return m, nil
	}
	m.marked = marked
	if marked {
		m.status = "marked for review"
	} else {
		m.status = "unmarked"
	}
	if m.snap.Query.Section == study.SectionMarked {
		return m, m.reload()
	}
	return m, nil
}

// View renders the session.
func (m Model) View() string {
	var b strings.Builder

	section := m.snap.Query.Section
	switch {
	case m.snap.Loading:
		b.WriteString(ui.RenderMuted("Loading…") + "\n")
	case m.snap.Err != nil:
		b.WriteString(ui.RenderFail("✖ "+m.snap.Err.Error()) + "\n")
		b.WriteString(ui.RenderMuted("ctrl+l to retry") + "\n")
	case m.snap.Empty():
		if section == study.SectionMarked {
			b.WriteString("No marked items. Press ctrl+b on an item to mark it.\n")
		} else {
			fmt.Fprintf(&b, "No %s items at level %d.\n", section, m.snap.Query.Level)
		}
	default:
		m.viewItem(&b)
	}

	if m.status != "" {
		b.WriteString("\n" + ui.RenderAccent(m.status) + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys) + "\n")
	return b.String()
}

func (m Model) viewItem(b *strings.Builder) {
	cur, _ := m.snap.Current()
	sub := cur.Subject
	total := len(m.snap.Items)
	correct := len(m.deck.Session().Correct())

	header := fmt.Sprintf("%s · level %d · %d/%d", m.snap.Query.Section, m.snap.Query.Level, m.snap.Index+1, total)
	if m.snap.Query.Section == study.SectionMarked {
		header = fmt.Sprintf("%s · %d/%d", m.snap.Query.Section, m.snap.Index+1, total)
	}
	b.WriteString(ui.RenderTitle(header) + "  " + ui.ProgressBar(correct, total, 20) + "\n\n")

	title := ui.RenderSubject(sub.Characters)
	if m.marked {
		title += " " + ui.RenderWarn("★")
	}
	lines := []string{
		title,
		ui.RenderMuted(fmt.Sprintf("%s · level %d", sub.Kind.Label(), sub.Level)),
		sub.PrimaryMeaning(),
	}
	if cur.Learned() {
		lines[1] += ui.RenderMuted(" · learned")
	}
	b.WriteString(ui.Panel(lines...) + "\n\n")

	b.WriteString(m.input.View() + "\n")
	if preview := study.Normalize(m.input.Value()); preview != "" {
		b.WriteString(ui.RenderMuted("  "+preview) + "\n")
	}

	if m.result != nil {
		if m.result.Correct {
			b.WriteString(ui.RenderPass("✔ "+m.result.Normalized) + ui.RenderMuted("  enter for next") + "\n")
		} else {
			b.WriteString(ui.RenderFail("✖ "+m.result.Normalized) + "\n")
		}
	}
	if m.reveal {
		b.WriteString(ui.RenderMuted("accepted: ") + strings.Join(study.AcceptedAnswers(sub), ", ") + "\n")
	}
}

// Options configures Run.
type Options struct {
	// Changes, when set, reloads the deck whenever the cache changes.
	Changes <-chan db.Change
	// ProgramOptions are passed to tea.NewProgram after the alt-screen
	// default.
	ProgramOptions []tea.ProgramOption
}

// Run starts the session and blocks until the learner quits or ctx is done.
func Run(ctx context.Context, deck *study.Deck, marker Marker, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progOpts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts.ProgramOptions...)
	p := tea.NewProgram(New(deck, marker), progOpts...)

	// Send from a goroutine: deck updates can fire inside Update.
	deck.OnUpdate(func(study.Snapshot) {
		go p.Send(deckChangedMsg{})
	})
	if opts.Changes != nil {
		go deck.Follow(ctx, opts.Changes)
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
