package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
)

var (
	accent  = lipgloss.Color("#1E88E5")
	success = lipgloss.Color("#4CAF50")
	failure = lipgloss.Color("#F44336")
	warning = lipgloss.Color("#FFB74D")
	muted   = lipgloss.Color("#90A4AE")
)

// Renderer draws a Report as a terminal summary.
type Renderer struct {
	title   lipgloss.Style
	panel   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	pass    lipgloss.Style
	fail    lipgloss.Style
	warn    lipgloss.Style
	caption lipgloss.Style
}

// NewRenderer creates a renderer for w. With color disabled no escape
// sequences are emitted.
func NewRenderer(w io.Writer, color bool) *Renderer {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}

	return &Renderer{
		title: r.NewStyle().
			Bold(true).
			Foreground(accent).
			Padding(0, 1),
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		label: r.NewStyle().
			Foreground(muted).
			Width(18),
		value: r.NewStyle().
			Bold(true),
		pass: r.NewStyle().
			Bold(true).
			Foreground(success),
		fail: r.NewStyle().
			Bold(true).
			Foreground(failure),
		warn: r.NewStyle().
			Foreground(warning),
		caption: r.NewStyle().
			Foreground(muted).
			Italic(true),
	}
}

func (r *Renderer) row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, r.label.Render(label), r.value.Render(value))
}

// Render returns the summary panel for rep.
func (r *Renderer) Render(rep *Report) string {
	rows := []string{
		r.row("Capture", rep.CaptureFile),
		r.row("Stream", rep.Filter),
		r.row("Npackets", humanize.Comma(int64(rep.PacketsPerFrame))),
		r.row("Frame Frequency", rep.FrameFrequency+" Hz"),
		r.row("Packets", humanize.Comma(int64(rep.Packets))),
		r.row("Frames", fmt.Sprintf("%s opened, %s drained",
			humanize.Comma(int64(rep.FramesOpened)), humanize.Comma(int64(rep.FramesDrained)))),
		r.row("VRX max", humanize.Comma(int64(rep.MaxOccupancy))),
	}

	if rep.Compliant() {
		rows = append(rows, r.label.Render("Underruns")+r.pass.Render("none"))
	} else {
		rows = append(rows, r.label.Render("Underruns")+r.fail.Render(fmt.Sprintf("%s (worst %d, first at packet %s)",
			humanize.Comma(int64(rep.Underruns)), rep.WorstUnderrun, humanize.Comma(int64(rep.FirstUnderrun)))))
	}

	if rep.DoubleFinishes > 0 {
		rows = append(rows, r.label.Render("Double finishes")+r.warn.Render(humanize.Comma(int64(rep.DoubleFinishes))))
	}

	if rep.NonRTP > 0 || rep.Filtered > 0 {
		rows = append(rows, r.row("Skipped", fmt.Sprintf("%s non-RTP, %s other streams",
			humanize.Comma(int64(rep.NonRTP)), humanize.Comma(int64(rep.Filtered)))))
	}

	if rep.TracePath != "" {
		rows = append(rows, r.row("Trace", rep.TracePath))
	}
	if rep.CSVPath != "" {
		rows = append(rows, r.row("CSV", rep.CSVPath))
	}

	body := lipgloss.JoinVertical(lipgloss.Left, rows...)
	caption := r.caption.Render(fmt.Sprintf("run %s, %s, vrx %s", rep.RunID, rep.Duration.Round(time.Millisecond), rep.Version))

	return lipgloss.JoinVertical(lipgloss.Left,
		r.title.Render("VRX buffer analysis"),
		r.panel.Render(body),
		caption,
	)
}

// Write renders rep to w followed by a newline.
func (r *Renderer) Write(w io.Writer, rep *Report) error {
	_, err := fmt.Fprintln(w, r.Render(rep))
	return err
}
