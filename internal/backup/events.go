package backup

import (
	"fmt"
	"time"
)

type EventKind int

const (
	RunStarted EventKind = iota
	DatabaseStarted
	DatabaseFailed
	CollectionsListed
	CollectionStarted
	CollectionExported
	CollectionFailed
	DatabaseFinished
	RunFinished
)

var eventKindNames = map[EventKind]string{
	RunStarted:         "run-started",
	DatabaseStarted:    "database-started",
	DatabaseFailed:     "database-failed",
	CollectionsListed:  "collections-listed",
	CollectionStarted:  "collection-started",
	CollectionExported: "collection-exported",
	CollectionFailed:   "collection-failed",
	DatabaseFinished:   "database-finished",
	RunFinished:        "run-finished",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a progress notification sent from the pipeline worker. Index is
// the 1-based position of the collection and Total the number of collections
// in the database, or the number of databases for run events.
type Event struct {
	Kind       EventKind
	RunID      string
	Time       time.Time
	Database   string
	Collection string
	Index      int
	Total      int
	Documents  int
	Path       string
	Err        error
	Result     *DatabaseResult
	Report     *Report
}

// String renders the event as a log line for status panels.
func (e Event) String() string {
	switch e.Kind {
	case RunStarted:
		return fmt.Sprintf("Starting backup of %d database(s)...", e.Total)
	case DatabaseStarted:
		return fmt.Sprintf("Backing up database %s...", e.Database)
	case DatabaseFailed:
		return fmt.Sprintf("Error processing database %s: %v", e.Database, e.Err)
	case CollectionsListed:
		return fmt.Sprintf("Found %d collection(s) in %s", e.Total, e.Database)
	case CollectionStarted:
		return fmt.Sprintf("Exporting collection: %s from %s...", e.Collection, e.Database)
	case CollectionExported:
		return fmt.Sprintf("Successfully exported: %s -> %s (%d documents)", e.Collection, e.Path, e.Documents)
	case CollectionFailed:
		return fmt.Sprintf("Error exporting %s from %s: %v", e.Collection, e.Database, e.Err)
	case DatabaseFinished:
		if e.Result != nil {
			return fmt.Sprintf("All collections from %s processed into %s (%d exported, %d failed)",
				e.Database, e.Result.OutputDir, e.Result.Exported(), e.Result.Failed())
		}
		return fmt.Sprintf("All collections from %s processed", e.Database)
	case RunFinished:
		if e.Report != nil {
			return fmt.Sprintf("Export completed for all databases (%d collection(s) exported, %d failed, %d database(s) failed)",
				e.Report.Exported(), e.Report.FailedCollections(), e.Report.FailedDatabases())
		}
		return "Export completed for all databases."
	default:
		return e.Kind.String()
	}
}
