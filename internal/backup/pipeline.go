package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kadirbelkuyu/mongobackup/pkg/logger"
)

// Catalog lists the collections of a database on a connected server.
type Catalog interface {
	ListCollectionNames(ctx context.Context, database string) ([]string, error)
	Close(ctx context.Context) error
}

// Connector opens a Catalog for a connection URI.
type Connector interface {
	Connect(ctx context.Context, uri string) (Catalog, error)
}

type ConnectorFunc func(ctx context.Context, uri string) (Catalog, error)

func (f ConnectorFunc) Connect(ctx context.Context, uri string) (Catalog, error) {
	return f(ctx, uri)
}

// Pipeline exports every collection of a database, one at a time.
type Pipeline struct {
	opts      Options
	connector Connector
	exporter  Exporter
	log       *logger.Logger
	now       func() time.Time
}

func NewPipeline(opts Options, connector Connector, exporter Exporter, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{
		opts:      opts,
		connector: connector,
		exporter:  exporter,
		log:       log,
		now:       time.Now,
	}
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// Run exports a single database.
func (p *Pipeline) Run(ctx context.Context, databaseName string) DatabaseResult {
	return p.runDatabase(ctx, uuid.NewString(), databaseName, func(Event) {})
}

// RunAll exports each database in order. A failing database never stops the
// ones after it.
func (p *Pipeline) RunAll(ctx context.Context, databases []string) *Report {
	return p.runAll(ctx, databases, func(Event) {})
}

// Start runs RunAll on a new goroutine and streams its progress. The channel
// is closed after the RunFinished event; callers must drain it.
func (p *Pipeline) Start(ctx context.Context, databases []string) <-chan Event {
	events := make(chan Event, 32)
	go func() {
		defer close(events)
		p.runAll(ctx, databases, func(ev Event) {
			events <- ev
		})
	}()
	return events
}

func (p *Pipeline) runAll(ctx context.Context, databases []string, emit func(Event)) *Report {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
	}

	names := make([]string, 0, len(databases))
	for _, name := range databases {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	runLog := p.log.WithRun(report.RunID)
	runLog.Infof("Starting export of %d database(s) to %s", len(names), p.opts.BackupDir)
	emit(Event{Kind: RunStarted, RunID: report.RunID, Time: report.StartedAt, Total: len(names)})

	for _, name := range names {
		result := p.runDatabase(ctx, report.RunID, name, emit)
		report.Databases = append(report.Databases, result)
	}

	report.CompletedAt = p.now()
	runLog.WithFields(logrus.Fields{
		"exported": report.Exported(),
		"failed":   report.FailedCollections(),
	}).Info("Export completed for all databases.")

	final := *report
	emit(Event{Kind: RunFinished, RunID: report.RunID, Time: report.CompletedAt, Total: len(names), Report: &final})
	return report
}

func (p *Pipeline) runDatabase(ctx context.Context, runID, name string, emit func(Event)) DatabaseResult {
	result := DatabaseResult{
		Name:      name,
		OutputDir: filepath.Join(p.opts.BackupDir, name),
		StartedAt: p.now(),
	}
	log := p.log.WithRun(runID).WithField("database", name)

	emit(Event{Kind: DatabaseStarted, RunID: runID, Time: result.StartedAt, Database: name})

	fail := func(err error) DatabaseResult {
		result.Err = err
		result.CompletedAt = p.now()
		log.WithError(err).Errorf("Error processing database %s", name)
		res := result
		emit(Event{Kind: DatabaseFailed, RunID: runID, Time: result.CompletedAt, Database: name, Err: err, Result: &res})
		return result
	}

	if err := checkFileName(name); err != nil {
		return fail(fmt.Errorf("%w: database %q", ErrUnsafeName, name))
	}

	if err := os.MkdirAll(result.OutputDir, 0o755); err != nil {
		return fail(fmt.Errorf("%w %s: %w", ErrOutputDir, result.OutputDir, err))
	}

	catalog, err := p.connector.Connect(ctx, p.opts.URI)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrConnect, err))
	}
	defer func() {
		if cerr := catalog.Close(context.Background()); cerr != nil {
			log.WithError(cerr).Warn("failed to close connection")
		}
	}()

	collections, err := catalog.ListCollectionNames(ctx, name)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrListCollections, err))
	}

	log.Infof("Found collections in %s: %v", name, collections)
	emit(Event{Kind: CollectionsListed, RunID: runID, Time: p.now(), Database: name, Total: len(collections)})

	result.Collections = make([]CollectionResult, 0, len(collections))
	for i, collection := range collections {
		target := Target{
			URI:        p.opts.URI,
			Database:   name,
			Collection: collection,
			OutputDir:  result.OutputDir,
			ToolPath:   p.opts.ToolPath,
		}
		ev := Event{RunID: runID, Database: name, Collection: collection, Index: i + 1, Total: len(collections)}

		ev.Kind, ev.Time = CollectionStarted, p.now()
		emit(ev)

		cr := p.exportCollection(ctx, log.WithField("collection", collection), target)
		result.Collections = append(result.Collections, cr)

		ev.Time = p.now()
		if cr.OK() {
			ev.Kind, ev.Documents, ev.Path = CollectionExported, cr.Documents, cr.Artifact
		} else {
			ev.Kind, ev.Err = CollectionFailed, cr.Err
		}
		emit(ev)
	}

	result.CompletedAt = p.now()
	log.WithFields(logrus.Fields{
		"exported": result.Exported(),
		"failed":   result.Failed(),
	}).Infof("All collections from %s processed into %s", name, result.OutputDir)

	res := result
	emit(Event{Kind: DatabaseFinished, RunID: runID, Time: result.CompletedAt, Database: name, Total: len(collections), Result: &res})
	return result
}

func (p *Pipeline) exportCollection(ctx context.Context, log *logrus.Entry, target Target) CollectionResult {
	result := CollectionResult{
		Name:         target.Collection,
		Artifact:     target.ArtifactPath(),
		Intermediate: target.IntermediatePath(),
	}

	fail := func(stage Stage, err error) CollectionResult {
		result.Stage, result.Err = stage, err
		log.WithField("stage", string(stage)).WithError(err).
			Errorf("Failed to export collection %s from %s", target.Collection, target.Database)
		return result
	}

	log.Infof("Exporting collection: %s from %s...", target.Collection, target.Database)

	if err := checkFileName(target.Collection); err != nil {
		return fail(StageExport, fmt.Errorf("%w: collection %q", ErrUnsafeName, target.Collection))
	}

	if err := p.exporter.Export(ctx, target, result.Intermediate); err != nil {
		if !errors.Is(err, ErrToolExecution) {
			err = fmt.Errorf("%w: %w", ErrToolExecution, err)
		}
		return fail(StageExport, err)
	}

	stats, err := ConvertNDJSON(result.Intermediate, result.Artifact)
	if err != nil {
		stage := StageConvert
		if errors.Is(err, ErrWrite) {
			stage = StageWrite
		}
		return fail(stage, err)
	}
	result.Documents, result.Bytes = stats.Documents, stats.Bytes

	if err := os.Remove(result.Intermediate); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warnf("could not remove %s", result.Intermediate)
	}

	log.WithField("documents", result.Documents).
		Infof("Successfully exported: %s -> %s", target.Collection, result.Artifact)
	return result
}

func checkFileName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return ErrUnsafeName
	}
	return nil
}
