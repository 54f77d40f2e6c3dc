package main

import "github.com/charmbracelet/lipgloss"

// styles renders adminctl's table-ish output. Styling is skipped entirely
// when stdout isn't a terminal so piped/scripted output stays plain text.
type styles struct {
	enabled bool
	header  lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	dim     lipgloss.Style
}

func newStyles(tty bool) styles {
	if !tty {
		return styles{}
	}
	return styles{
		enabled: true,
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (s styles) renderStatus(status string) string {
	if !s.enabled {
		return status
	}
	switch status {
	case "PASS", "Succeeded", "completed":
		return s.ok.Render(status)
	case "WARN":
		return s.warn.Render(status)
	case "FAIL", "Failed", "provisioning_failed":
		return s.fail.Render(status)
	default:
		return s.dim.Render(status)
	}
}
