package backup

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteArrayIndentation(t *testing.T) {
	docs, err := ReadDocuments(strings.NewReader(`{"a":1,"b":[1,2]}` + "\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteArray(&buf, docs))

	want := "[\n" +
		"    {\n" +
		"        \"a\": 1,\n" +
		"        \"b\": [\n" +
		"            1,\n" +
		"            2\n" +
		"        ]\n" +
		"    }\n" +
		"]\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteArrayEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteArray(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestReadDocuments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
	}{
		{name: "empty", input: "", count: 0},
		{name: "no trailing newline", input: `{"a":1}` + "\n" + `{"a":2}`, count: 2},
		{name: "blank lines skipped", input: "\n" + `{"a":1}` + "\n\n  \n" + `{"a":2}` + "\n", count: 2},
		{name: "crlf", input: `{"a":1}` + "\r\n" + `{"a":2}` + "\r\n", count: 2},
		{name: "scalars", input: "1\n\"x\"\nnull\n", count: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := ReadDocuments(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Len(t, docs, tt.count)
		})
	}
}

func TestReadDocumentsMalformed(t *testing.T) {
	input := `{"a":1}` + "\n\n" + `{"a":` + "\n"

	_, err := ReadDocuments(strings.NewReader(input))

	require.ErrorIs(t, err, ErrMalformedLine)
	assert.Contains(t, err.Error(), "line 3")
}

func TestReadDocumentsRejectsTrailingData(t *testing.T) {
	_, err := ReadDocuments(strings.NewReader(`{"a":1} {"b":2}` + "\n"))
	assert.ErrorIs(t, err, ErrMalformedLine)
}

func TestReadDocumentsLongLine(t *testing.T) {
	payload := strings.Repeat("x", 256*1024)
	input := `{"blob":"` + payload + `"}` + "\n"

	docs, err := ReadDocuments(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, docs, 1)
	var doc struct {
		Blob string `json:"blob"`
	}
	require.NoError(t, json.Unmarshal(docs[0], &doc))
	assert.Len(t, doc.Blob, len(payload))
}

func TestConvertNDJSONKeepsTextVerbatim(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "people.ndjson")
	dst := filepath.Join(dir, "people.json")
	lines := `{"z":1,"a":{"$date":"2024-01-02T03:04:05Z"},"name":"Zoë","big":12345678901234567890,"f":1.0}` + "\n"
	require.NoError(t, os.WriteFile(src, []byte(lines), 0o644))

	stats, err := ConvertNDJSON(src, dst)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), stats.Bytes)

	text := string(data)
	assert.Less(t, strings.Index(text, `"z"`), strings.Index(text, `"a"`), "key order follows the source")
	assert.Contains(t, text, `"name": "Zoë"`)
	assert.Contains(t, text, `"big": 12345678901234567890`)
	assert.Contains(t, text, `"f": 1.0`)
	assert.NoFileExists(t, dst+".partial")
}

func TestConvertNDJSONMissingSource(t *testing.T) {
	dir := t.TempDir()

	_, err := ConvertNDJSON(filepath.Join(dir, "missing.ndjson"), filepath.Join(dir, "out.json"))

	assert.ErrorIs(t, err, ErrIntermediate)
	assert.NoFileExists(t, filepath.Join(dir, "out.json"))
}

func TestConvertNDJSONMalformedLeavesPreviousArtifact(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "c.ndjson")
	dst := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(dst, []byte("[]\n"), 0o644))
	require.NoError(t, os.WriteFile(src, []byte("not json\n"), 0o644))

	_, err := ConvertNDJSON(src, dst)

	require.ErrorIs(t, err, ErrMalformedLine)
	data, rerr := os.ReadFile(dst)
	require.NoError(t, rerr)
	assert.Equal(t, "[]\n", string(data))
}
