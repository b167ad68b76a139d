package main

import (
	"fmt"

	"github.com/fatih/color"
)

// formatter colours output when the terminal supports it and falls back to
// plain text otherwise, including under NO_COLOR.
type formatter struct {
	color *color.Color
}

func (f formatter) Sprint(a ...any) string {
	return f.color.Sprint(fmt.Sprint(a...))
}

func (f formatter) Sprintf(format string, a ...any) string {
	return f.color.Sprintf(format, a...)
}

var (
	success   = formatter{color.New(color.FgGreen)}
	failure   = formatter{color.New(color.FgRed)}
	warning   = formatter{color.New(color.FgYellow)}
	highlight = formatter{color.New(color.FgCyan)}
	muted     = formatter{color.New(color.FgHiBlack)}
)
