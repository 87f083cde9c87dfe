package diagnostics

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Summary is the CLI driver's one-line process-exit summary: counts of
// diagnostics by severity plus how many workers were involved.
type Summary struct {
	Errors   int
	Warnings int
	Workers  int
}

// WriteSummary prints s to w, colorized only when w is a terminal.
func WriteSummary(w io.Writer, s Summary) {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd())
	}

	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	if !useColor {
		red, yellow, green = plainSprintFunc, plainSprintFunc, plainSprintFunc
	}

	switch {
	case s.Errors > 0:
		fmt.Fprintf(w, "%s %d errors, %d warnings across %d workers\n", red("FAIL"), s.Errors, s.Warnings, s.Workers)
	case s.Warnings > 0:
		fmt.Fprintf(w, "%s %d warnings across %d workers\n", yellow("WARN"), s.Warnings, s.Workers)
	default:
		fmt.Fprintf(w, "%s no diagnostics across %d workers\n", green("OK"), s.Workers)
	}
}

func plainSprintFunc(a ...interface{}) string {
	return fmt.Sprint(a...)
}
