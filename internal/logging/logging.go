// Package logging sets up the shared structured logger and the
// startup banner every protopuzzles subcommand prints.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// New returns a logrus.Logger writing JSON lines to w at the given
// level. An empty or unrecognized level falls back to info.
func New(w io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Banner prints a short colorized startup line to stderr. It is purely
// informational; nothing in the codebase depends on it being seen.
func Banner(puzzle string, addr string, extra ...string) {
	title := color.New(color.FgCyan, color.Bold).SprintFunc()
	field := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(os.Stderr, "%s listening on %s\n", title("protopuzzles/"+puzzle), addr)
	for _, e := range extra {
		fmt.Fprintf(os.Stderr, "  %s\n", field(e))
	}
}
