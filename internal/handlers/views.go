package handlers

import (
	"fmt"
	"net/url"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/report"
	"github.com/lehigh-university-libraries/annotator/internal/session"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
)

type progressView struct {
	Total     int     `json:"total"`
	Position  int     `json:"position"`
	Annotated int     `json:"annotated"`
	Ignored   int     `json:"ignored"`
	Pending   int     `json:"pending"`
	Percent   float64 `json:"percent"`
}

type targetView struct {
	Index        int    `json:"index"`
	BaseName     string `json:"base_name"`
	Folder       string `json:"folder"`
	LabelInitial string `json:"label_initial"`
	BBoxFile     string `json:"bbox_file"`
	CropFile     string `json:"crop_file"`
	BBoxURL      string `json:"bbox_url"`
	CropURL      string `json:"crop_url"`
	Status       string `json:"status"`
	Label        string `json:"label,omitempty"`
	Suggested    string `json:"suggested"`
	Displayed    string `json:"displayed"`
	Comment      string `json:"comment"`
}

type reconcileView struct {
	Added      int `json:"added"`
	Removed    int `json:"removed"`
	Misaligned int `json:"misaligned"`
	Orphans    int `json:"orphans"`
}

type outcomeView struct {
	Summary       report.Summary `json:"summary"`
	ReportName    string         `json:"report_name"`
	ReportURL     string         `json:"report_url"`
	Delivered     bool           `json:"delivered"`
	DeliveryError string         `json:"delivery_error,omitempty"`
	FinishedAt    time.Time      `json:"finished_at"`
}

type stateView struct {
	Annotator     string         `json:"annotator"`
	RootDirectory string         `json:"root_directory"`
	Classes       []string       `json:"classes"`
	Progress      progressView   `json:"progress"`
	Complete      bool           `json:"complete"`
	Finished      bool           `json:"finished"`
	Current       *targetView    `json:"current,omitempty"`
	Reconciled    *reconcileView `json:"reconciled,omitempty"`
	Outcome       *outcomeView   `json:"outcome,omitempty"`
}

type summaryView struct {
	storage.Summary
	Percent float64 `json:"percent"`
	Open    bool    `json:"open"`
}

func sessionURL(annotator string) string {
	return "/api/sessions/" + url.PathEscape(annotator)
}

func newTargetView(runner *session.Runner, idx int) *targetView {
	m := runner.Machine()
	t := runner.Targets()[idx]
	resp := m.Response(idx)
	base := sessionURL(runner.Session().Annotator)

	return &targetView{
		Index:        idx,
		BaseName:     t.BaseName,
		Folder:       t.Folder,
		LabelInitial: t.LabelInitial,
		BBoxFile:     t.BBoxFile(),
		CropFile:     t.CropFile(),
		BBoxURL:      fmt.Sprintf("%s/targets/%d/bbox", base, idx),
		CropURL:      fmt.Sprintf("%s/targets/%d/crop", base, idx),
		Status:       resp.Status.String(),
		Label:        resp.Label,
		Suggested:    m.Suggested(idx),
		Displayed:    m.Displayed(idx),
		Comment:      resp.Comment,
	}
}

func newStateView(runner *session.Runner) stateView {
	s := runner.Session()
	p := runner.Progress()

	view := stateView{
		Annotator:     s.Annotator,
		RootDirectory: s.RootDirectory,
		Classes:       runner.Machine().Classes(),
		Progress: progressView{
			Total:     p.Total,
			Position:  p.Position,
			Annotated: p.Annotated,
			Ignored:   p.Ignored,
			Pending:   p.Pending,
			Percent:   p.Percent(),
		},
		Complete: runner.Complete(),
		Finished: runner.Finished(),
	}

	if !runner.Complete() {
		view.Current = newTargetView(runner, runner.Machine().Cursor())
	}
	if d := runner.Delta(); len(d.Misaligned) > 0 || d.Removed > 0 || runner.Orphans() > 0 {
		view.Reconciled = &reconcileView{
			Added:      d.Added,
			Removed:    d.Removed,
			Misaligned: len(d.Misaligned),
			Orphans:    runner.Orphans(),
		}
	}
	if o := runner.Outcome(); o != nil {
		view.Outcome = &outcomeView{
			Summary:    o.Summary,
			ReportName: o.ReportName,
			ReportURL:  sessionURL(s.Annotator) + "/report?format=csv",
			Delivered:  o.Delivered,
			FinishedAt: o.FinishedAt,
		}
		if o.DeliveryErr != nil {
			view.Outcome.DeliveryError = o.DeliveryErr.Error()
		}
	}
	return view
}
