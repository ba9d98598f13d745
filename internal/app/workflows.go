package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kadirbelkuyu/mongobackup/internal/backup"
	"github.com/kadirbelkuyu/mongobackup/internal/config"
	"github.com/kadirbelkuyu/mongobackup/internal/database"
	"github.com/kadirbelkuyu/mongobackup/pkg/logger"
	"github.com/kadirbelkuyu/mongobackup/pkg/progress"
)

const pingTimeout = 5 * time.Second

// Configuration errors stop a run before anything is exported.
var (
	ErrMissingURI       = errors.New("a MongoDB URI is required (--uri, config file, profile or MONGOBACKUP_URI)")
	ErrMissingDatabases = errors.New("at least one database is required (--databases)")
)

type Service struct {
	log      *logger.Logger
	out      io.Writer
	progress io.Writer

	listDatabases func(ctx context.Context, uri string) ([]database.DatabaseInfo, error)
	ping          func(ctx context.Context, uri string) error
	newPipeline   func(cfg *config.Config, log *logger.Logger) *backup.Pipeline
}

func NewService(log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewLogger(false)
	}
	return &Service{
		log:           log,
		out:           os.Stdout,
		progress:      os.Stderr,
		listDatabases: fetchDatabases,
		ping: func(ctx context.Context, uri string) error {
			return database.Ping(ctx, uri, pingTimeout)
		},
		newPipeline: backup.NewService,
	}
}

// Validate reports configuration that makes a batch run impossible.
func Validate(cfg *config.Config) error {
	if cfg == nil || !cfg.HasConnection() {
		return ErrMissingURI
	}
	if len(cfg.Backup.Databases) == 0 {
		return ErrMissingDatabases
	}
	return nil
}

// Backup exports every configured database, drawing a progress bar per
// database, and prints a summary. Partial failures are reported in the
// returned Report, not as an error.
func (s *Service) Backup(ctx context.Context, cfg *config.Config) (*backup.Report, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Backup.BackupDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w %s: %w", backup.ErrOutputDir, cfg.Backup.BackupDir, err)
	}

	s.log.Infof("Backing up %s from %s into %s",
		strings.Join(cfg.Backup.Databases, ", "), database.MaskURI(cfg.GetMongoURI()), cfg.Backup.BackupDir)

	pipeline := s.newPipeline(cfg, s.log)
	return s.Run(ctx, pipeline, cfg.Backup.Databases), nil
}

// Run drains a pipeline run into progress bars and the summary table.
func (s *Service) Run(ctx context.Context, pipeline *backup.Pipeline, databases []string) *backup.Report {
	var (
		bar    *progress.Bar
		report *backup.Report
	)

	for ev := range pipeline.Start(ctx, databases) {
		switch ev.Kind {
		case backup.CollectionsListed:
			if ev.Total > 0 {
				bar = progress.NewBarTo(s.progress, int64(ev.Total), ev.Database)
			}
		case backup.CollectionExported, backup.CollectionFailed:
			bar.Increment()
		case backup.DatabaseFinished, backup.DatabaseFailed:
			bar.Finish()
			bar = nil
		case backup.RunFinished:
			report = ev.Report
		}
	}

	s.PrintSummary(report, pipeline.Options().BackupDir)
	return report
}

func (s *Service) PrintSummary(report *backup.Report, backupDir string) {
	if report == nil {
		return
	}

	fmt.Fprintln(s.out)
	fmt.Fprintf(s.out, "Backup summary (run %s)\n", report.RunID)
	fmt.Fprintln(s.out, strings.Repeat("=", 72))
	fmt.Fprintf(s.out, "%-30s %-10s %-8s %-10s %-10s\n", "Database", "Exported", "Failed", "Size", "Duration")
	fmt.Fprintln(s.out, strings.Repeat("-", 72))

	var failures []string
	for _, db := range report.Databases {
		if db.Err != nil {
			fmt.Fprintf(s.out, "%-30s %s\n", db.Name, db.Err)
			continue
		}

		var size int64
		for _, c := range db.Collections {
			size += c.Bytes
			if !c.OK() {
				failures = append(failures, fmt.Sprintf("  %s.%s [%s]: %v", db.Name, c.Name, c.Stage, c.Err))
			}
		}
		fmt.Fprintf(s.out, "%-30s %-10d %-8d %-10s %-10s\n",
			db.Name, db.Exported(), db.Failed(), humanize.Bytes(uint64(size)), db.Duration().Round(time.Millisecond))
	}
	fmt.Fprintln(s.out, strings.Repeat("=", 72))

	if len(failures) > 0 {
		fmt.Fprintln(s.out, "Failed collections:")
		for _, line := range failures {
			fmt.Fprintln(s.out, line)
		}
	}

	fmt.Fprintf(s.out, "Total: %d collection(s) exported, %d failed, %d database(s) failed. Output: %s\n",
		report.Exported(), report.FailedCollections(), report.FailedDatabases(), backupDir)
}

// Databases lists databases on the configured server, hiding system ones
// unless the config asks for them.
func (s *Service) Databases(ctx context.Context, cfg *config.Config) ([]database.DatabaseInfo, error) {
	if cfg == nil || !cfg.HasConnection() {
		return nil, ErrMissingURI
	}

	all, err := s.listDatabases(ctx, cfg.GetMongoURI())
	if err != nil {
		return nil, err
	}

	if cfg.Backup.ShowSystem {
		return all, nil
	}
	visible := make([]database.DatabaseInfo, 0, len(all))
	for _, db := range all {
		if !database.IsSystemDatabase(db.Name) {
			visible = append(visible, db)
		}
	}
	return visible, nil
}

func (s *Service) ListDatabases(ctx context.Context, cfg *config.Config) error {
	databases, err := s.Databases(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "\nDatabases on %s:\n", database.MaskURI(cfg.GetMongoURI()))
	fmt.Fprintln(s.out, strings.Repeat("=", 36))
	for i, db := range databases {
		fmt.Fprintf(s.out, "%d. %s (Collections: %d, Size: %s)\n",
			i+1, db.Name, db.Collections, humanize.Bytes(uint64(db.SizeOnDisk)))
	}
	fmt.Fprintf(s.out, "\nTotal databases: %d\n", len(databases))
	return nil
}

func (s *Service) TestConnection(ctx context.Context, cfg *config.Config) error {
	if cfg == nil || !cfg.HasConnection() {
		return ErrMissingURI
	}

	target := database.MaskURI(cfg.GetMongoURI())
	if err := s.ping(ctx, cfg.GetMongoURI()); err != nil {
		fmt.Fprintf(s.out, "Connection to %s failed: %v\n", target, err)
		return err
	}
	fmt.Fprintf(s.out, "Connection to %s successful.\n", target)
	return nil
}

func fetchDatabases(ctx context.Context, uri string) ([]database.DatabaseInfo, error) {
	conn, err := database.Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.Background())

	return conn.ListDatabases(ctx)
}
