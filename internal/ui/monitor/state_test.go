package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/mongobackup/internal/backup"
)

var at = time.Date(2024, 5, 1, 14, 30, 5, 0, time.UTC)

func TestApplyTracksProgress(t *testing.T) {
	s := New()

	s.Apply(backup.Event{Kind: backup.RunStarted, Time: at, Total: 2})
	require.True(t, s.Running)
	assert.Equal(t, 2, s.Databases)

	s.Apply(backup.Event{Kind: backup.DatabaseStarted, Time: at, Database: "shop"})
	s.Apply(backup.Event{Kind: backup.CollectionsListed, Time: at, Database: "shop", Total: 4})
	assert.Zero(t, s.Progress())

	s.Apply(backup.Event{Kind: backup.CollectionStarted, Time: at, Database: "shop", Collection: "users", Index: 1, Total: 4})
	assert.Equal(t, "shop: exporting users (1/4)", s.Status)

	s.Apply(backup.Event{Kind: backup.CollectionExported, Time: at, Database: "shop", Collection: "users", Index: 1, Total: 4})
	s.Apply(backup.Event{Kind: backup.CollectionFailed, Time: at, Database: "shop", Collection: "orders", Index: 2, Total: 4, Err: errors.New("boom")})
	assert.InDelta(t, 0.5, s.Progress(), 0.0001)
	assert.Equal(t, 1, s.Exported)
	assert.Equal(t, 1, s.Failed)

	s.Apply(backup.Event{Kind: backup.DatabaseStarted, Time: at, Database: "blog"})
	assert.Zero(t, s.Progress(), "progress resets for each database")
	assert.Equal(t, "blog", s.Database)
}

func TestApplyLogLines(t *testing.T) {
	s := New()

	line := s.Apply(backup.Event{Kind: backup.CollectionFailed, Time: at, Database: "shop", Collection: "orders", Err: errors.New("exit status 1")})

	assert.Equal(t, "[14:30:05] Error exporting orders from shop: exit status 1", line)
	assert.Equal(t, []string{line}, s.Lines)
}

func TestApplyKeepsBoundedLog(t *testing.T) {
	s := New()
	for i := 0; i < maxLines+25; i++ {
		s.Apply(backup.Event{Kind: backup.DatabaseStarted, Time: at, Database: "db"})
	}
	assert.Len(t, s.Lines, maxLines)
}

func TestRunStartedKeepsPreviousLog(t *testing.T) {
	s := New()
	s.Logf("Connected to %s", "mongodb://localhost")

	s.Apply(backup.Event{Kind: backup.RunStarted, Time: at, Total: 1})

	require.Len(t, s.Lines, 2)
	assert.True(t, strings.HasSuffix(s.Lines[0], "Connected to mongodb://localhost"))
}

func TestOutcome(t *testing.T) {
	ok := &backup.Report{Databases: []backup.DatabaseResult{{Name: "shop", Collections: []backup.CollectionResult{{Name: "users"}}}}}
	partial := &backup.Report{Databases: []backup.DatabaseResult{
		{Name: "shop", Err: backup.ErrConnect},
		{Name: "blog", Collections: []backup.CollectionResult{{Name: "posts"}}},
	}}
	total := &backup.Report{Databases: []backup.DatabaseResult{
		{Name: "shop", Err: backup.ErrConnect},
		{Name: "blog", Err: backup.ErrConnect},
	}}

	tests := []struct {
		name   string
		report *backup.Report
		title  string
		failed bool
	}{
		{name: "clean", report: ok, title: "Backup complete"},
		{name: "partial", report: partial, title: "Backup finished with errors"},
		{name: "total failure", report: total, title: "Backup failed", failed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Apply(backup.Event{Kind: backup.RunStarted, Time: at, Total: len(tt.report.Databases)})
			s.Apply(backup.Event{Kind: backup.RunFinished, Time: at, Report: tt.report})

			title, message, failed := s.Outcome()
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.failed, failed)
			assert.NotEmpty(t, message)
			assert.False(t, s.Running)
			assert.Equal(t, float64(1), s.Progress())
		})
	}
}
