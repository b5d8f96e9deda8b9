package main

import (
	"fmt"
	"io"
	"os"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
)

// All human-facing chatter goes to stderr so stdout stays pipeable.
var msgOut io.Writer = os.Stderr

func colorize(code, text string) string {
	if noColor {
		return text
	}
	return code + text + ansiReset
}

func printLine(code, mark, format string, args ...any) {
	fmt.Fprintln(msgOut, colorize(code, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printLine(ansiGreen, "✓", format, args...) }
func printError(format string, args ...any)   { printLine(ansiRed, "✗", format, args...) }
func printWarning(format string, args ...any) { printLine(ansiYellow, "!", format, args...) }
func printStep(format string, args ...any)    { printLine(ansiCyan, "→", format, args...) }

func printStatus(label, format string, args ...any) {
	fmt.Fprintf(msgOut, "  %s %s\n", colorize(ansiBold, label+":"), fmt.Sprintf(format, args...))
}

// stateLabel renders a run state, appending the error kind for failed runs.
func stateLabel(state, errorKind string) string {
	switch state {
	case "done":
		return colorize(ansiGreen, state)
	case "failed":
		if errorKind != "" {
			state += " (" + errorKind + ")"
		}
		return colorize(ansiRed, state)
	default:
		return colorize(ansiYellow, state)
	}
}
