// Package monitor turns pipeline events into what the interactive front-ends
// display. It holds no widgets so both the desktop and console views share it.
package monitor

import (
	"fmt"
	"time"

	"github.com/kadirbelkuyu/mongobackup/internal/backup"
)

const maxLines = 500

// State is owned by the UI goroutine. It is not safe for concurrent use.
type State struct {
	Running  bool
	Status   string
	Database string

	Databases     int
	DatabasesDone int

	Collections     int
	CollectionsDone int

	Exported int
	Failed   int

	Lines  []string
	Report *backup.Report
}

// New returns an idle state.
func New() *State {
	return &State{Status: "Ready."}
}

// Apply folds ev into the state and returns the log line it produced.
func (s *State) Apply(ev backup.Event) string {
	switch ev.Kind {
	case backup.RunStarted:
		*s = State{Running: true, Databases: ev.Total, Lines: s.Lines}
		s.Status = fmt.Sprintf("Backing up %d database(s)...", ev.Total)
	case backup.DatabaseStarted:
		s.Database = ev.Database
		s.Collections, s.CollectionsDone = 0, 0
		s.Status = fmt.Sprintf("Backing up %s...", ev.Database)
	case backup.CollectionsListed:
		s.Collections = ev.Total
	case backup.CollectionStarted:
		s.Status = fmt.Sprintf("%s: exporting %s (%d/%d)", ev.Database, ev.Collection, ev.Index, ev.Total)
	case backup.CollectionExported:
		s.CollectionsDone = ev.Index
		s.Exported++
	case backup.CollectionFailed:
		s.CollectionsDone = ev.Index
		s.Failed++
	case backup.DatabaseFailed, backup.DatabaseFinished:
		s.DatabasesDone++
	case backup.RunFinished:
		s.Running = false
		s.Report = ev.Report
		s.Status = s.summary()
	}

	return s.addLine(stamp(ev.Time, ev.String()))
}

// Progress is the fraction of collections finished in the current database.
func (s *State) Progress() float64 {
	if s.Report != nil && !s.Running {
		return 1
	}
	if s.Collections == 0 {
		return 0
	}
	return float64(s.CollectionsDone) / float64(s.Collections)
}

// Outcome classifies a finished run for the closing dialog.
func (s *State) Outcome() (title, message string, failed bool) {
	if s.Report == nil {
		return "Backup", s.Status, false
	}
	switch {
	case s.Report.Failed():
		return "Backup failed", s.summary(), true
	case s.Report.Clean():
		return "Backup complete", s.summary(), false
	default:
		return "Backup finished with errors", s.summary(), false
	}
}

func (s *State) summary() string {
	if s.Report == nil {
		return fmt.Sprintf("%d collection(s) exported, %d failed.", s.Exported, s.Failed)
	}
	r := s.Report
	return fmt.Sprintf("%d collection(s) exported, %d failed, %d of %d database(s) failed.",
		r.Exported(), r.FailedCollections(), r.FailedDatabases(), len(r.Databases))
}

// Logf records a message that did not come from the pipeline.
func (s *State) Logf(format string, args ...interface{}) string {
	s.Status = fmt.Sprintf(format, args...)
	return s.addLine(stamp(time.Now(), s.Status))
}

func (s *State) addLine(line string) string {
	s.Lines = append(s.Lines, line)
	if over := len(s.Lines) - maxLines; over > 0 {
		s.Lines = s.Lines[over:]
	}
	return line
}

func stamp(t time.Time, msg string) string {
	if t.IsZero() {
		t = time.Now()
	}
	return fmt.Sprintf("[%s] %s", t.Format("15:04:05"), msg)
}
