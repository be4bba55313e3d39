// Package annotation holds the per-target status model and the cursor over the
// ordered target list. It performs no I/O.
package annotation

import (
	"errors"
	"fmt"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// ErrUnknownLabel is returned when a label is not part of the class enumeration
var ErrUnknownLabel = errors.New("label is not a known class")

// Progress carries the counters shown to the annotator
type Progress struct {
	Total     int
	Position  int
	Annotated int
	Ignored   int
	Pending   int
}

// Percent returns the share of targets the cursor has passed
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Position) / float64(p.Total) * 100
}

// Machine drives one session over its target list
type Machine struct {
	session *models.Session
	targets []models.Target
	classes Classes
}

// New binds a session to the targets it was reconciled against
func New(session *models.Session, targets []models.Target, classes Classes) (*Machine, error) {
	if session == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("at least one class is required")
	}
	if session.TotalImages != len(targets) {
		return nil, fmt.Errorf("session expects %d images but %d targets were given", session.TotalImages, len(targets))
	}
	if session.Responses == nil {
		session.Responses = make(map[int]models.Response, len(targets))
	}
	for i, t := range targets {
		if _, ok := session.Responses[i]; !ok {
			return nil, fmt.Errorf("no response for target %d (%s/%s); reconcile first", i, t.Folder, t.BaseName)
		}
	}
	if session.CurrentIndex < 0 {
		session.CurrentIndex = 0
	}
	if session.CurrentIndex > len(targets) {
		session.CurrentIndex = len(targets)
	}

	return &Machine{session: session, targets: targets, classes: classes}, nil
}

func (m *Machine) Session() *models.Session { return m.session }

func (m *Machine) Targets() []models.Target { return m.targets }

func (m *Machine) Classes() Classes { return m.classes }

// Cursor returns the index of the next target to present
func (m *Machine) Cursor() int { return m.session.CurrentIndex }

// Complete reports whether every target has been passed
func (m *Machine) Complete() bool { return m.session.CurrentIndex >= len(m.targets) }

// Current returns the target under the cursor; ok is false once complete
func (m *Machine) Current() (models.Target, models.Response, bool) {
	if m.Complete() {
		return models.Target{}, models.Response{}, false
	}
	idx := m.session.CurrentIndex
	return m.targets[idx], m.session.Responses[idx], true
}

// Response returns the response at idx
func (m *Machine) Response(idx int) models.Response {
	m.mustIndex(idx)
	return m.session.Responses[idx]
}

// Suggested returns the label displayed by default for the target at idx
func (m *Machine) Suggested(idx int) string {
	m.mustIndex(idx)
	return m.classes.Suggest(m.targets[idx].LabelInitial)
}

// Displayed returns the label the annotator currently sees selected for idx:
// the chosen label once annotated, otherwise the suggestion.
func (m *Machine) Displayed(idx int) string {
	r := m.Response(idx)
	if r.Annotated() {
		return r.Label
	}
	return m.Suggested(idx)
}

// SetLabel records an explicit class choice for idx
func (m *Machine) SetLabel(idx int, label string) error {
	m.mustIndex(idx)
	if !m.classes.Contains(label) {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	m.session.Responses[idx] = m.session.Responses[idx].Annotate(label)
	return nil
}

// SetIgnored marks idx as fitting no class, or clears that mark. Clearing
// leaves the target pending; a label chosen before ignoring is not restored.
func (m *Machine) SetIgnored(idx int, ignored bool) {
	m.mustIndex(idx)
	r := m.session.Responses[idx]
	if ignored {
		m.session.Responses[idx] = r.Ignore()
	} else {
		m.session.Responses[idx] = r.Unignore()
	}
}

// SetComment replaces the free-text comment of idx
func (m *Machine) SetComment(idx int, comment string) {
	m.mustIndex(idx)
	r := m.session.Responses[idx]
	r.Comment = comment
	m.session.Responses[idx] = r
}

// Advance moves the cursor forward one target. A target still pending is
// committed with its suggested label first, so no target is passed unresolved.
// It returns true when the cursor has reached the end.
func (m *Machine) Advance() bool {
	if m.Complete() {
		return true
	}
	idx := m.session.CurrentIndex
	if r := m.session.Responses[idx]; r.Pending() {
		m.session.Responses[idx] = r.Annotate(m.Suggested(idx))
	}
	m.session.CurrentIndex++
	return m.Complete()
}

// Rewind puts the cursor back on idx and restores its response, undoing an Advance
func (m *Machine) Rewind(idx int, prior models.Response) {
	m.mustIndex(idx)
	m.session.Responses[idx] = prior
	m.session.CurrentIndex = idx
}

// Retreat moves the cursor back one target; no-op at the first target
func (m *Machine) Retreat() {
	if m.session.CurrentIndex > 0 {
		m.session.CurrentIndex--
	}
}

// Progress counts statuses over the current target list
func (m *Machine) Progress() Progress {
	p := Progress{Total: len(m.targets), Position: m.session.CurrentIndex}
	for i := range m.targets {
		switch m.session.Responses[i].Status {
		case models.StatusAnnotated:
			p.Annotated++
		case models.StatusIgnored:
			p.Ignored++
		default:
			p.Pending++
		}
	}
	return p
}

func (m *Machine) mustIndex(idx int) {
	if idx < 0 || idx >= len(m.targets) {
		panic(fmt.Sprintf("annotation: index %d out of range [0,%d)", idx, len(m.targets)))
	}
}
