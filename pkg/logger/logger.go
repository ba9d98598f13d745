package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	*logrus.Logger
}

func NewLogger(verbose bool) *Logger {
	return New(os.Stdout, verbose)
}

// New builds a logger writing to out. A nil out discards everything, which is
// what tests and the GUI front-ends usually want.
func New(out io.Writer, verbose bool) *Logger {
	if out == nil {
		out = io.Discard
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   out == os.Stdout || out == os.Stderr,
	})

	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Logger: log}
}

// Discard returns a logger that drops all output.
func Discard() *Logger {
	return New(nil, false)
}

// WithRun tags every entry of a backup run with its identifier.
func (l *Logger) WithRun(runID string) *logrus.Entry {
	return l.WithField("run", runID)
}
