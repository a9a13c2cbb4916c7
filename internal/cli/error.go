package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
)

// cobra reports usage problems as plain errors, recognised by their text.
var usagePrefixes = []string{
	"unknown command",
	"unknown flag:",
	"unknown shorthand flag:",
	"flag needs an argument:",
	"invalid argument",
	"accepts ",
	"requires ",
}

// ErrorHandler renders command errors for fang. Usage errors and a missing
// --host get a pointer to --help.
func ErrorHandler(w io.Writer, styles fang.Styles, err error) {
	body := lipgloss.NewStyle().MarginLeft(2)

	lines := []string{styles.ErrorHeader.String(), body.Render(err.Error()), ""}

	if wantsHelp(err) {
		lines = append(lines, lipgloss.JoinHorizontal(
			lipgloss.Left,
			styles.ErrorText.UnsetWidth().Render("Try"),
			styles.Program.Flag.Render("--help"),
			styles.ErrorText.UnsetWidth().UnsetMargins().UnsetTransform().PaddingLeft(1).Render("for usage."),
		), "")
	}

	// Nothing sensible can be done when stderr is gone.
	_, _ = fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func wantsHelp(err error) bool {
	if errors.Is(err, ErrNoHost) {
		return true
	}
	msg := err.Error()
	for _, prefix := range usagePrefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}

	return false
}
