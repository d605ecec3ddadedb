package cmd

import "github.com/fatih/color"

// Color definitions for CLI output
var (
	colorInfo    = color.New(color.FgCyan)
	colorWarning = color.New(color.FgYellow)
	colorError   = color.New(color.FgRed, color.Bold)
	colorHeading = color.New(color.FgWhite, color.Bold)
	colorAddr    = color.New(color.FgCyan)
	colorFunc    = color.New(color.FgHiMagenta)
)
