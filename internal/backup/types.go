package backup

import (
	"path/filepath"
	"time"
)

const (
	IntermediateExt = ".ndjson"
	ArtifactExt     = ".json"
)

// Options configures one pipeline. ToolPath is the full path to mongoexport.
type Options struct {
	URI       string
	BackupDir string
	ToolPath  string
	Verbose   bool
}

// Target identifies a single collection export.
type Target struct {
	URI        string
	Database   string
	Collection string
	OutputDir  string
	ToolPath   string
}

func (t Target) IntermediatePath() string {
	return filepath.Join(t.OutputDir, t.Collection+IntermediateExt)
}

func (t Target) ArtifactPath() string {
	return filepath.Join(t.OutputDir, t.Collection+ArtifactExt)
}

// Stage names the step a collection export failed in.
type Stage string

const (
	StageNone    Stage = ""
	StageExport  Stage = "export"
	StageConvert Stage = "convert"
	StageWrite   Stage = "write"
)

type CollectionResult struct {
	Name         string
	Artifact     string
	Intermediate string
	Documents    int
	Bytes        int64
	Stage        Stage
	Err          error
}

func (r CollectionResult) OK() bool {
	return r.Err == nil
}

type DatabaseResult struct {
	Name        string
	OutputDir   string
	Collections []CollectionResult
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
}

// Exported counts collections that produced an artifact.
func (r DatabaseResult) Exported() int {
	n := 0
	for _, c := range r.Collections {
		if c.OK() {
			n++
		}
	}
	return n
}

// Failed counts collections that did not produce an artifact.
func (r DatabaseResult) Failed() int {
	return len(r.Collections) - r.Exported()
}

func (r DatabaseResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Report summarizes a multi-database run.
type Report struct {
	RunID       string
	Databases   []DatabaseResult
	StartedAt   time.Time
	CompletedAt time.Time
}

func (r *Report) Exported() int {
	n := 0
	for _, db := range r.Databases {
		n += db.Exported()
	}
	return n
}

func (r *Report) FailedCollections() int {
	n := 0
	for _, db := range r.Databases {
		n += db.Failed()
	}
	return n
}

func (r *Report) FailedDatabases() int {
	n := 0
	for _, db := range r.Databases {
		if db.Err != nil {
			n++
		}
	}
	return n
}

// Failed is true when databases were requested and none of them got as far
// as exporting its collections.
func (r *Report) Failed() bool {
	return len(r.Databases) > 0 && r.FailedDatabases() == len(r.Databases)
}

// Clean reports a run with no database or collection failures.
func (r *Report) Clean() bool {
	return r.FailedDatabases() == 0 && r.FailedCollections() == 0
}
