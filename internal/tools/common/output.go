package common

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	detailStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("245"))
)

// PrintResult renders a one-shot command outcome for a terminal.
func PrintResult(w io.Writer, title string, ok bool, details []string, err error) {
	status := okStyle.Render("OK")
	if !ok {
		status = failStyle.Render("FAILED")
	}
	lines := []string{fmt.Sprintf("%s %s", titleStyle.Render(title), status)}
	for _, d := range details {
		lines = append(lines, detailStyle.Render("- "+d))
	}
	if err != nil {
		lines = append(lines, detailStyle.Render("error: "+err.Error()))
	}
	_, _ = fmt.Fprintln(w, strings.Join(lines, "\n"))
}

// PrintCIResult is the plain form of PrintResult for log collectors.
func PrintCIResult(w io.Writer, ok bool, title string, details []string, err error) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	_, _ = fmt.Fprintf(w, "%s status=%s\n", title, status)
	for _, d := range details {
		_, _ = fmt.Fprintf(w, "  %s\n", d)
	}
	if err != nil {
		_, _ = fmt.Fprintf(w, "  error=%s\n", err.Error())
	}
}
