package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kadirbelkuyu/mongobackup/internal/database"
	"github.com/kadirbelkuyu/mongobackup/pkg/logger"
)

// Exporter writes the documents of one collection to outPath as NDJSON.
type Exporter interface {
	Export(ctx context.Context, target Target, outPath string) error
}

// ToolExporter runs the mongoexport binary from the MongoDB Database Tools.
type ToolExporter struct {
	log     *logger.Logger
	verbose bool
}

func NewToolExporter(log *logger.Logger, verbose bool) *ToolExporter {
	if log == nil {
		log = logger.Discard()
	}
	return &ToolExporter{log: log, verbose: verbose}
}

func (e *ToolExporter) Args(target Target, outPath string) []string {
	return []string{
		fmt.Sprintf("--uri=%s", target.URI),
		fmt.Sprintf("--db=%s", target.Database),
		fmt.Sprintf("--collection=%s", target.Collection),
		fmt.Sprintf("--out=%s", outPath),
	}
}

func (e *ToolExporter) Export(ctx context.Context, target Target, outPath string) error {
	name := filepath.Base(target.ToolPath)
	args := e.Args(target, outPath)

	cmd := exec.CommandContext(ctx, target.ToolPath, args...)
	tail := &tailBuffer{limit: 2048}
	if e.verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = io.MultiWriter(os.Stderr, tail)
	} else {
		writer := e.log.WriterLevel(logrus.DebugLevel)
		defer writer.Close()
		cmd.Stdout = writer
		cmd.Stderr = io.MultiWriter(writer, tail)
	}

	e.log.Debugf("executing %s %s", target.ToolPath, strings.Join(maskArgs(args), " "))

	if err := cmd.Run(); err != nil {
		if detail := tail.lastLine(); detail != "" {
			return fmt.Errorf("%w: %s: %w (%s)", ErrToolExecution, name, err, detail)
		}
		return fmt.Errorf("%w: %s: %w", ErrToolExecution, name, err)
	}

	return nil
}

func maskArgs(args []string) []string {
	masked := make([]string, len(args))
	for i, arg := range args {
		if uri, ok := strings.CutPrefix(arg, "--uri="); ok {
			arg = "--uri=" + database.MaskURI(uri)
		}
		masked[i] = arg
	}
	return masked
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.data = b.data[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) lastLine() string {
	lines := strings.Split(strings.TrimSpace(string(b.data)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
