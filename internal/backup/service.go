package backup

import (
	"github.com/kadirbelkuyu/mongobackup/internal/config"
	"github.com/kadirbelkuyu/mongobackup/pkg/logger"
)

// NewService wires a pipeline against a live server and the mongoexport tool
// found under the configured tools path.
func NewService(cfg *config.Config, log *logger.Logger) *Pipeline {
	opts := OptionsFromConfig(cfg)
	return NewPipeline(opts, MongoConnector{}, NewToolExporter(log, opts.Verbose), log)
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URI:       cfg.GetMongoURI(),
		BackupDir: cfg.Backup.BackupDir,
		ToolPath:  cfg.ExportToolPath(),
		Verbose:   cfg.Verbose,
	}
}
