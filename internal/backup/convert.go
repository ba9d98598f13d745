package backup

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const artifactIndent = "    "

// ConvertStats describes a finished conversion.
type ConvertStats struct {
	Documents int
	Bytes     int64
}

// ConvertNDJSON reads one JSON value per line from src and writes them to dst
// as a single indented JSON array. dst is replaced only once the new content
// is fully written.
func ConvertNDJSON(src, dst string) (ConvertStats, error) {
	in, err := os.Open(src)
	if err != nil {
		return ConvertStats{}, fmt.Errorf("%w: %w", ErrIntermediate, err)
	}
	defer in.Close()

	docs, err := ReadDocuments(in)
	if err != nil {
		return ConvertStats{}, err
	}

	size, err := writeArtifact(dst, docs)
	if err != nil {
		return ConvertStats{}, err
	}

	return ConvertStats{Documents: len(docs), Bytes: size}, nil
}

// ReadDocuments parses newline-delimited JSON. Blank lines are skipped; any
// other line must hold exactly one valid JSON value.
func ReadDocuments(r io.Reader) ([]json.RawMessage, error) {
	reader := bufio.NewReader(r)
	docs := make([]json.RawMessage, 0)

	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrIntermediate, err)
		}

		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var doc json.RawMessage
			if uerr := json.Unmarshal(trimmed, &doc); uerr != nil {
				return nil, fmt.Errorf("%w at line %d: %w", ErrMalformedLine, lineNo, uerr)
			}
			docs = append(docs, doc)
		}

		if errors.Is(err, io.EOF) {
			return docs, nil
		}
	}
}

// WriteArray encodes docs as a JSON array indented by four spaces. Document
// key order and value text are preserved as read.
func WriteArray(w io.Writer, docs []json.RawMessage) error {
	if docs == nil {
		docs = []json.RawMessage{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", artifactIndent)
	return enc.Encode(docs)
}

func writeArtifact(dst string, docs []json.RawMessage) (int64, error) {
	tmp := dst + ".partial"

	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	buffered := bufio.NewWriter(out)
	writeErr := WriteArray(buffered, docs)
	if writeErr == nil {
		writeErr = buffered.Flush()
	}
	if closeErr := out.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr == nil {
		writeErr = os.Rename(tmp, dst)
	}
	if writeErr != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: %w", ErrWrite, writeErr)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return info.Size(), nil
}
