// Package diag provides Ralph's ambient stderr diagnostics: a small
// colored logger used by the event loop and landing sequence to report
// best-effort warnings without aborting the operation that raised them.
package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Logger writes leveled, colored lines to an underlying writer
// (normally os.Stderr). The zero value writes to os.Stderr.
type Logger struct {
	out io.Writer
}

// New returns a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{out: w}
}

// Stderr returns the default Logger, writing to os.Stderr.
func Stderr() *Logger {
	return &Logger{out: os.Stderr}
}

func (l *Logger) writer() io.Writer {
	if l.out == nil {
		return os.Stderr
	}
	return l.out
}

// Warnf logs a yellow "[ralph] warning:" line. Used for the pending-
// event precheck and every best-effort landing step.
func (l *Logger) Warnf(format string, args ...any) {
	msg := color.YellowString(format, args...)
	fmt.Fprintf(l.writer(), "[ralph] warning: %s\n", msg)
}

// Infof logs a plain "[ralph]" line.
func (l *Logger) Infof(format string, args ...any) {
	fmt.Fprintf(l.writer(), "[ralph] %s\n", fmt.Sprintf(format, args...))
}

// Errorf logs a red "[ralph] error:" line.
func (l *Logger) Errorf(format string, args ...any) {
	msg := color.RedString(format, args...)
	fmt.Fprintf(l.writer(), "[ralph] error: %s\n", msg)
}
