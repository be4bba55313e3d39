package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lehigh-university-libraries/annotator/internal/preview"
)

func (a App) View() string {
	if a.quitting {
		return ""
	}

	var sections []string
	sections = append(sections, a.renderHeader())

	switch {
	case a.finishing:
		sections = append(sections, a.theme.MutedStyle.Render("Finishing session and sending the report..."))
	case a.outcome != nil:
		sections = append(sections, a.renderOutcome())
	case a.runner.Complete():
		sections = append(sections, a.theme.MutedStyle.Render("All targets passed."))
	default:
		sections = append(sections, a.renderTarget())
		if a.zoom {
			sections = append(sections, a.renderZoom())
		}
		sections = append(sections, a.renderClasses())
		sections = append(sections, a.renderComment())
		sections = append(sections, a.help.ShortHelpView(a.keys.ShortHelp()))
	}

	if a.status != "" {
		sections = append(sections, a.theme.SuccessStyle.Render(a.status))
	}
	if a.lastError != "" {
		sections = append(sections, a.theme.ErrorStyle.Render("Error: "+a.lastError))
	}

	return strings.Join(sections, "\n\n") + "\n"
}

func (a App) renderHeader() string {
	p := a.frozen
	if !a.finishing {
		p = a.runner.Progress()
	}

	title := a.theme.TitleStyle.Render(fmt.Sprintf("Annotator · %s", a.annotator))
	width := a.width - 30
	if width < 10 {
		width = 30
	}
	bar := renderProgressBar(p.Percent(), width)
	counts := fmt.Sprintf("%d/%d  annotated %d · ignored %d · pending %d",
		min(p.Position+1, p.Total), p.Total, p.Annotated, p.Ignored, p.Pending)

	return lipgloss.JoinVertical(lipgloss.Left, title, bar, a.theme.MutedStyle.Render(counts))
}

func (a App) renderTarget() string {
	m := a.runner.Machine()
	idx := m.Cursor()
	t := m.Targets()[idx]
	resp := m.Response(idx)

	status := resp.Status.String()
	switch {
	case resp.Ignored():
		status = a.theme.ErrorStyle.Render(status)
	case resp.Annotated():
		status = a.theme.SuccessStyle.Render(status)
	}

	lines := []string{
		fmt.Sprintf("Folder:   %s", t.Folder),
		fmt.Sprintf("BBox:     %s", t.BBoxPath),
		fmt.Sprintf("Crop:     %s", t.CropPath),
		fmt.Sprintf("Initial:  %s", t.LabelInitial),
		fmt.Sprintf("Status:   %s", status),
	}
	return a.theme.PanelStyle.Render(strings.Join(lines, "\n"))
}

// renderZoom shows the crop detail the terminal can offer: pixel sizes and
// the enlarged size served by the zoom endpoint.
func (a App) renderZoom() string {
	t := a.runner.Machine().Targets()[a.runner.Machine().Cursor()]

	var lines []string
	for _, img := range []struct{ name, path string }{{"Crop", t.CropPath}, {"BBox", t.BBoxPath}} {
		w, h, err := preview.Dimensions(img.path)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s: unreadable (%v)", img.name, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %dx%d px (x%.0f: %dx%d)", img.name, w, h,
			preview.MaxZoom, int(float64(w)*preview.MaxZoom), int(float64(h)*preview.MaxZoom)))
	}
	return a.theme.PanelStyle.Render(a.theme.TitleStyle.Render("Zoom") + "\n" + strings.Join(lines, "\n"))
}

func (a App) renderClasses() string {
	m := a.runner.Machine()
	idx := m.Cursor()
	resp := m.Response(idx)
	displayed := m.Displayed(idx)

	var lines []string
	for i, class := range m.Classes() {
		line := fmt.Sprintf("  %d  %s", i+1, class)
		if !resp.Ignored() && class == displayed {
			line = a.theme.SelectedStyle.Render(fmt.Sprintf("▸ %d  %s", i+1, class))
			if !resp.Annotated() {
				line += a.theme.MutedStyle.Render("  (suggested)")
			}
		}
		lines = append(lines, line)
	}
	mark := "  i  ignore (fits no class)"
	if resp.Ignored() {
		mark = a.theme.ErrorStyle.Render("▸ i  ignored")
	}
	lines = append(lines, mark)
	return strings.Join(lines, "\n")
}

func (a App) renderComment() string {
	if a.editing {
		return a.comment.View()
	}
	c := a.runner.Machine().Response(a.runner.Machine().Cursor()).Comment
	if c == "" {
		return a.theme.MutedStyle.Render("No comment")
	}
	return "Comment: " + c
}

func (a App) renderOutcome() string {
	o := a.outcome
	lines := []string{
		a.theme.TitleStyle.Render("Session complete"),
		fmt.Sprintf("Annotated %d · ignored %d · pending %d of %d",
			o.Summary.Annotated, o.Summary.Ignored, o.Summary.Pending, o.Summary.Total),
		fmt.Sprintf("Folder label kept for %.0f%% of annotated targets", o.Summary.AgreementRate()*100),
	}
	for _, label := range o.Summary.Labels() {
		lines = append(lines, fmt.Sprintf("  %-16s %d", label, o.Summary.ByLabel[label]))
	}
	if a.reportPath != "" {
		lines = append(lines, "Report: "+a.reportPath)
	}
	if o.Delivered {
		lines = append(lines, a.theme.SuccessStyle.Render("Report sent. The saved session was removed."))
	} else {
		lines = append(lines, a.theme.ErrorStyle.Render(fmt.Sprintf("Report not sent: %v", o.DeliveryErr)))
		lines = append(lines, a.theme.MutedStyle.Render("The saved session was kept; resume it later or send it with 'annotator sessions notify'."))
	}
	lines = append(lines, a.theme.HelpStyle.Render("enter/q home · ctrl+c quit"))
	return strings.Join(lines, "\n")
}

func renderProgressBar(percent float64, width int) string {
	if width < 4 {
		width = 4
	}
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
