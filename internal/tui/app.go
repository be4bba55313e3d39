// Package tui is the terminal front end of an annotation run. The model only
// reads and drives a session.Runner; persistence and delivery stay in the runner.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lehigh-university-libraries/annotator/internal/annotation"
	"github.com/lehigh-university-libraries/annotator/internal/session"
)

// finishedMsg carries the result of the completion step
type finishedMsg struct {
	outcome    *session.Outcome
	reportPath string
	err        error
}

// App is the annotation screen model
type App struct {
	ctx        context.Context
	runner     *session.Runner
	reportsDir string
	annotator  string

	keys    KeyMap
	theme   Theme
	help    help.Model
	comment textinput.Model

	width  int
	height int

	editing    bool
	zoom       bool
	finishing  bool
	status     string
	lastError  string
	outcome    *session.Outcome
	reportPath string
	quitting   bool

	// progress shown while the completion step owns the runner
	frozen annotation.Progress
}

// NewApp builds the model over an open runner. Completed reports are also
// written to reportsDir.
func NewApp(ctx context.Context, runner *session.Runner, reportsDir string) App {
	ti := textinput.New()
	ti.Placeholder = "comment"
	ti.CharLimit = 500
	ti.Prompt = "> "

	return App{
		ctx:        ctx,
		runner:     runner,
		reportsDir: reportsDir,
		annotator:  runner.Session().Annotator,
		keys:       DefaultKeyMap(),
		theme:      DarkTheme(),
		help:       help.New(),
		comment:    ti,
		outcome:    runner.Outcome(),
		frozen:     runner.Progress(),
		// a resumed session may already be past its last target
		finishing:  runner.Complete() && !runner.Finished(),
	}
}

func (a App) Init() tea.Cmd {
	if a.finishing {
		return a.finish()
	}
	return nil
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		return a, nil

	case finishedMsg:
		a.finishing = false
		a.outcome = msg.outcome
		a.reportPath = msg.reportPath
		if msg.err != nil {
			a.lastError = msg.err.Error()
		}
		return a, nil

	case tea.KeyMsg:
		if key.Matches(msg, a.keys.Quit) {
			a.quitting = true
			return a, tea.Quit
		}
		if a.editing {
			return a.updateComment(msg)
		}
		if a.finishing {
			return a, nil
		}
		if a.outcome != nil || a.runner.Finished() {
			return a.updateFinished(msg)
		}
		return a.updateAnnotating(msg)
	}

	return a, nil
}

func (a App) updateAnnotating(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a.lastError = ""
	a.status = ""
	cursor := a.runner.Machine().Cursor()

	if n, ok := classIndex(msg, len(a.runner.Machine().Classes())); ok {
		label := a.runner.Machine().Classes()[n]
		if err := a.runner.Label(cursor, label); err != nil {
			a.lastError = err.Error()
		}
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keys.Next):
		done, err := a.runner.Next()
		if err != nil {
			a.lastError = err.Error()
			return a, nil
		}
		if done {
			a.finishing = true
			a.frozen = a.runner.Progress()
			return a, a.finish()
		}

	case key.Matches(msg, a.keys.Back):
		if err := a.runner.Back(); err != nil {
			a.lastError = err.Error()
		}

	case key.Matches(msg, a.keys.Ignore):
		ignored := a.runner.Machine().Response(cursor).Ignored()
		if err := a.runner.Ignore(cursor, !ignored); err != nil {
			a.lastError = err.Error()
		}

	case key.Matches(msg, a.keys.Comment):
		a.editing = true
		a.comment.SetValue(a.runner.Machine().Response(cursor).Comment)
		a.comment.CursorEnd()
		return a, a.comment.Focus()

	case key.Matches(msg, a.keys.Zoom):
		a.zoom = !a.zoom

	case key.Matches(msg, a.keys.Save):
		if err := a.runner.Save(); err != nil {
			a.lastError = err.Error()
		} else {
			a.status = "Progress saved"
		}

	case key.Matches(msg, a.keys.Home):
		if err := a.runner.Home(true); err != nil {
			a.lastError = err.Error()
			return a, nil
		}
		a.quitting = true
		return a, tea.Quit
	}

	return a, nil
}

func (a App) updateComment(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Submit):
		if err := a.runner.Comment(a.runner.Machine().Cursor(), a.comment.Value()); err != nil {
			a.lastError = err.Error()
		}
		a.editing = false
		a.comment.Blur()
		return a, nil
	case key.Matches(msg, a.keys.Cancel):
		a.editing = false
		a.comment.Blur()
		return a, nil
	}

	var cmd tea.Cmd
	a.comment, cmd = a.comment.Update(msg)
	return a, cmd
}

func (a App) updateFinished(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, a.keys.Home) || key.Matches(msg, a.keys.Submit) {
		_ = a.runner.Home(false)
		a.quitting = true
		return a, tea.Quit
	}
	return a, nil
}

// finish runs the completion step off the update loop and keeps a local
// copy of the CSV report. The model must not read the runner until the
// finishedMsg arrives.
func (a App) finish() tea.Cmd {
	runner, ctx, dir := a.runner, a.ctx, a.reportsDir
	return func() tea.Msg {
		outcome, err := runner.Finish(ctx)
		if err != nil {
			return finishedMsg{outcome: runner.Outcome(), err: err}
		}
		path, err := writeReport(dir, outcome)
		if err != nil {
			slog.Error("Failed to write local report", "dir", dir, "err", err)
			return finishedMsg{outcome: outcome, err: err}
		}
		return finishedMsg{outcome: outcome, reportPath: path}
	}
}

func writeReport(dir string, outcome *session.Outcome) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}
	path := filepath.Join(dir, outcome.ReportName)
	if err := os.WriteFile(path, outcome.Report, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	slog.Info("Report written", "path", path)
	return path, nil
}

// classIndex maps the digit keys 1-9 to a zero-based class index
func classIndex(msg tea.KeyMsg, classes int) (int, bool) {
	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return 0, false
	}
	r := msg.Runes[0]
	if r < '1' || r > '9' {
		return 0, false
	}
	n := int(r - '1')
	return n, n < classes
}

// Quitting reports whether the user left the screen
func (a App) Quitting() bool { return a.quitting }

// Run starts the annotation screen and blocks until the user leaves it
func Run(ctx context.Context, runner *session.Runner, reportsDir string) error {
	app := NewApp(ctx, runner, reportsDir)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
