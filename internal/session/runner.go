// Package session drives one annotator's run: it owns the session, persists
// it through the store and runs the completion step once the cursor reaches
// the end of the target list.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/annotation"
	"github.com/lehigh-university-libraries/annotator/internal/history"
	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/notify"
	"github.com/lehigh-university-libraries/annotator/internal/reconcile"
	"github.com/lehigh-university-libraries/annotator/internal/report"
	"github.com/lehigh-university-libraries/annotator/internal/scanner"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
)

var (
	ErrSessionExists   = errors.New("a saved session already exists for this annotator; resume it instead")
	ErrNoTargets       = errors.New("no complete bbox/crop pairs found")
	ErrNotComplete     = errors.New("session is not complete")
	ErrAlreadyFinished = errors.New("session already finished")
	ErrClosed          = errors.New("session was closed")
	ErrOutOfRange      = errors.New("target index out of range")
)

// Store persists session documents
type Store interface {
	Load(displayName string) (*models.Session, error)
	Save(session *models.Session) error
	Exists(displayName string) (bool, error)
	Delete(displayName string) error
}

// Notifier delivers the completion report
type Notifier interface {
	Notify(ctx context.Context, r notify.Report) error
}

// Recorder logs finished runs
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (int64, error)
}

// Deps are the collaborators a runner needs
type Deps struct {
	Store    Store
	Notifier Notifier
	History  Recorder
	Classes  annotation.Classes
	// Scan defaults to scanner.Scan
	Scan          func(root string) ([]models.Target, error)
	AutoSave      bool
	AutoSaveEvery int
}

func (d Deps) scan(root string) ([]models.Target, error) {
	if d.Scan != nil {
		return d.Scan(root)
	}
	return scanner.Scan(root)
}

func (d Deps) validate() error {
	if d.Store == nil {
		return fmt.Errorf("session store is required")
	}
	if len(d.Classes) == 0 {
		return fmt.Errorf("at least one class is required")
	}
	return nil
}

// Outcome is the result of the completion step
type Outcome struct {
	Summary     report.Summary
	ReportName  string
	Report      []byte
	Delivered   bool
	DeliveryErr error
	FinishedAt  time.Time
}

// Runner owns a session for the duration of one interactive run. It is not
// safe for concurrent use.
type Runner struct {
	deps     Deps
	machine  *annotation.Machine
	delta    reconcile.Delta
	orphans  int
	outcome  *Outcome
	closed   bool
	finished bool
}

// Start creates a new session for name over the targets found under root.
// It refuses to overwrite a readable saved session for the same identity key.
func Start(deps Deps, name, root string) (*Runner, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	exists, err := deps.Store.Exists(name)
	if err != nil {
		return nil, err
	}
	if exists {
		saved, err := deps.Store.Load(name)
		switch {
		case errors.Is(err, storage.ErrCorrupt):
			// an unreadable document holds no work to protect
			slog.Warn("Replacing corrupt saved session", "annotator", name)
		case err != nil:
			return nil, err
		case saved.Complete():
			// completed but undelivered; its report is already out
			slog.Warn("Replacing completed saved session whose report was not delivered", "annotator", saved.Annotator)
		default:
			return nil, ErrSessionExists
		}
	}

	targets, err := deps.scan(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTargets, root)
	}

	rootDir, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	s := models.NewSession(name, rootDir, targets)
	machine, err := annotation.New(s, targets, deps.Classes)
	if err != nil {
		return nil, err
	}

	r := &Runner{deps: deps, machine: machine, delta: reconcile.Delta{Current: len(targets), Added: len(targets)}}
	if err := r.Save(); err != nil {
		return nil, err
	}

	slog.Info("Session started", "annotator", name, "root", rootDir, "targets", len(targets))
	return r, nil
}

// Resume loads the saved session for name, rescans its root and reconciles
// the result into the saved responses.
func Resume(deps Deps, name string) (*Runner, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	s, err := deps.Store.Load(name)
	if err != nil {
		return nil, err
	}
	if s.Annotator != name {
		slog.Warn("Annotator name collides with a saved session", "requested", name, "saved", s.Annotator)
	}

	targets, err := deps.scan(s.RootDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to rescan %s: %w", s.RootDirectory, err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTargets, s.RootDirectory)
	}

	responses, delta := reconcile.Reconcile(s.Responses, targets)
	orphans := delta.Removed
	if len(delta.Misaligned) > 0 {
		slog.Warn("Scan order changed since the last save; matching responses by target",
			"annotator", s.Annotator, "misaligned", len(delta.Misaligned))
		responses, orphans = reconcile.Realign(s.Responses, targets)
	}
	if delta.Changed() {
		slog.Info("Session reconciled", "annotator", s.Annotator, "previous", delta.Previous,
			"current", delta.Current, "added", delta.Added, "removed", delta.Removed, "orphans", orphans)
	}

	s.Responses = responses
	s.TotalImages = len(targets)
	if s.CurrentIndex > len(targets) {
		s.CurrentIndex = len(targets)
	}
	behind := 0
	for i := 0; i < s.CurrentIndex; i++ {
		if responses[i].Pending() {
			behind++
		}
	}
	if behind > 0 {
		slog.Warn("Targets behind the cursor are not annotated", "annotator", s.Annotator, "cursor", s.CurrentIndex, "pending", behind)
	}

	machine, err := annotation.New(s, targets, deps.Classes)
	if err != nil {
		return nil, err
	}

	slog.Info("Session resumed", "annotator", s.Annotator, "cursor", s.CurrentIndex, "targets", len(targets))
	return &Runner{deps: deps, machine: machine, delta: delta, orphans: orphans}, nil
}

func (r *Runner) Machine() *annotation.Machine { return r.machine }

func (r *Runner) Session() *models.Session { return r.machine.Session() }

func (r *Runner) Targets() []models.Target { return r.machine.Targets() }

// Delta reports what reconciliation changed when the runner was created
func (r *Runner) Delta() reconcile.Delta { return r.delta }

// Orphans counts saved responses whose target was not found by the rescan
func (r *Runner) Orphans() int { return r.orphans }

func (r *Runner) Complete() bool { return r.machine.Complete() }

func (r *Runner) Finished() bool { return r.finished }

func (r *Runner) Outcome() *Outcome { return r.outcome }

func (r *Runner) Progress() annotation.Progress { return r.machine.Progress() }

func (r *Runner) check() error {
	if r.closed {
		return ErrClosed
	}
	return nil
}

// mutable rejects changes once the completion step has run
func (r *Runner) mutable() error {
	if err := r.check(); err != nil {
		return err
	}
	if r.finished {
		return ErrAlreadyFinished
	}
	return nil
}

func (r *Runner) checkIndex(idx int) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if idx < 0 || idx >= len(r.Targets()) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, idx)
	}
	return nil
}

// Label chooses a class for the target at idx
func (r *Runner) Label(idx int, label string) error {
	if err := r.checkIndex(idx); err != nil {
		return err
	}
	return r.machine.SetLabel(idx, label)
}

// Ignore sets or clears the ignored mark of the target at idx
func (r *Runner) Ignore(idx int, ignored bool) error {
	if err := r.checkIndex(idx); err != nil {
		return err
	}
	r.machine.SetIgnored(idx, ignored)
	return nil
}

// Comment replaces the comment of the target at idx
func (r *Runner) Comment(idx int, text string) error {
	if err := r.checkIndex(idx); err != nil {
		return err
	}
	r.machine.SetComment(idx, text)
	return nil
}

// Next advances the cursor, saving when the new position is a multiple of
// the auto-save interval. It returns true once every target has been passed.
// A failed auto-save undoes the step.
func (r *Runner) Next() (bool, error) {
	if err := r.mutable(); err != nil {
		return false, err
	}

	before := r.machine.Cursor()
	var prior models.Response
	if !r.machine.Complete() {
		prior = r.machine.Response(before)
	}
	done := r.machine.Advance()
	cursor := r.machine.Cursor()

	if cursor != before && r.deps.AutoSave && r.deps.AutoSaveEvery > 0 && cursor%r.deps.AutoSaveEvery == 0 {
		if err := r.Save(); err != nil {
			slog.Error("Auto-save failed", "annotator", r.Session().Annotator, "err", err)
			r.machine.Rewind(before, prior)
			return false, err
		}
		slog.Debug("Auto-saved", "annotator", r.Session().Annotator, "cursor", cursor)
	}
	return done, nil
}

// Back moves the cursor back one target
func (r *Runner) Back() error {
	if err := r.mutable(); err != nil {
		return err
	}
	r.machine.Retreat()
	return nil
}

// Save persists the whole session document
func (r *Runner) Save() error {
	if err := r.mutable(); err != nil {
		return err
	}
	if err := r.deps.Store.Save(r.Session()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Home optionally persists the session, then releases it. The runner cannot
// be used afterwards.
func (r *Runner) Home(save bool) error {
	if err := r.check(); err != nil {
		return err
	}
	var err error
	if save && !r.finished {
		err = r.Save()
	}
	r.closed = true
	return err
}

// Export renders the current state in one of report.Formats
func (r *Runner) Export(format string) ([]byte, error) {
	s := r.Session()
	rows := report.Rows(r.Targets(), s.Responses)
	meta := report.Meta{Annotator: s.Annotator, RootDirectory: s.RootDirectory, GeneratedAt: time.Now()}
	return report.Render(format, meta, report.Summarize(r.Targets(), s.Responses), rows)
}

// Finish runs the completion step exactly once: the completed document is
// saved, the CSV report is built and delivered, and the saved document is
// deleted only when delivery succeeded. A delivery failure is reported in
// the outcome, not as an error, and leaves the document in place.
func (r *Runner) Finish(ctx context.Context) (*Outcome, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if r.finished {
		return r.outcome, ErrAlreadyFinished
	}
	if !r.Complete() {
		return nil, ErrNotComplete
	}

	if err := r.Save(); err != nil {
		return nil, err
	}

	s := r.Session()
	now := time.Now()
	data, err := r.Export("csv")
	if err != nil {
		return nil, fmt.Errorf("failed to export report: %w", err)
	}

	outcome := &Outcome{
		Summary:    report.Summarize(r.Targets(), s.Responses),
		ReportName: report.FileName(s.Annotator, now, "csv"),
		Report:     data,
		FinishedAt: now,
	}
	r.finished = true
	r.outcome = outcome

	if r.deps.Notifier == nil {
		outcome.DeliveryErr = notify.ErrNotConfigured
	} else {
		outcome.DeliveryErr = r.deps.Notifier.Notify(ctx, notify.Report{
			Annotator:      s.Annotator,
			RootDirectory:  s.RootDirectory,
			Summary:        outcome.Summary,
			FinishedAt:     now,
			AttachmentName: outcome.ReportName,
			Attachment:     data,
		})
	}

	if outcome.DeliveryErr == nil {
		outcome.Delivered = true
		if err := r.deps.Store.Delete(s.Annotator); err != nil {
			slog.Error("Failed to delete finished session", "annotator", s.Annotator, "err", err)
		}
	} else {
		slog.Warn("Report delivery failed; saved session kept", "annotator", s.Annotator, "err", outcome.DeliveryErr)
	}

	r.record(ctx, outcome)
	slog.Info("Session finished", "annotator", s.Annotator, "annotated", outcome.Summary.Annotated,
		"ignored", outcome.Summary.Ignored, "delivered", outcome.Delivered)
	return outcome, nil
}

func (r *Runner) record(ctx context.Context, o *Outcome) {
	if r.deps.History == nil {
		return
	}
	s := r.Session()
	entry := history.Entry{
		Annotator:     s.Annotator,
		RootDirectory: s.RootDirectory,
		Total:         o.Summary.Total,
		Annotated:     o.Summary.Annotated,
		Ignored:       o.Summary.Ignored,
		Delivered:     o.Delivered,
		ReportName:    o.ReportName,
		FinishedAt:    o.FinishedAt,
	}
	if o.DeliveryErr != nil {
		entry.DeliveryError = o.DeliveryErr.Error()
	}
	if _, err := r.deps.History.Record(ctx, entry); err != nil {
		slog.Error("Failed to record completion", "annotator", s.Annotator, "err", err)
	}
}

// IsRecoverable reports whether err is a user-facing error that leaves the
// session in its prior valid state.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrSessionExists) ||
		errors.Is(err, ErrNoTargets) ||
		errors.Is(err, ErrNotComplete) ||
		errors.Is(err, ErrAlreadyFinished) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, annotation.ErrUnknownLabel) ||
		errors.Is(err, scanner.ErrRootNotFound) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, storage.ErrCorrupt) ||
		errors.Is(err, storage.ErrInvalidIdentity)
}
