package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type level int

const (
	levelInfo level = iota
	levelOK
	levelWarn
	levelError
)

var levelTags = map[level]string{
	levelOK:    "OK",
	levelWarn:  "WARN",
	levelError: "ERROR",
}

var levelColors = map[level]text.Colors{
	levelOK:    {text.FgGreen},
	levelWarn:  {text.FgYellow},
	levelError: {text.FgRed},
}

// statusPrinter writes aligned "label: [TAG] value" lines, coloured when the
// output is a terminal.
type statusPrinter struct {
	out   io.Writer
	color bool
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, color: isTerminal(out)}
}

func (p *statusPrinter) section(title string) {
	heading := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(heading))
	if p.color {
		heading = text.FgBlue.Sprint(heading)
		rule = text.FgBlue.Sprint(rule)
	}
	fmt.Fprintln(p.out, heading)
	fmt.Fprintln(p.out, rule)
}

func (p *statusPrinter) line(label string, lvl level, value string) {
	fmt.Fprintln(p.out, formatStatus(label, lvl, value, p.color))
}

func formatStatus(label string, lvl level, value string, color bool) string {
	line := fmt.Sprintf("  %-16s ", label+":")
	if tag, ok := levelTags[lvl]; ok {
		line += "[" + tag + "] "
	}
	line += value
	if colors, ok := levelColors[lvl]; ok && color {
		return colors.Sprint(line)
	}
	return line
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
