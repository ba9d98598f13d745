package interactive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/kadirbelkuyu/mongobackup/internal/database"
)

var ErrNoDatabases = errors.New("no databases found")

type DatabaseSelector struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewDatabaseSelector prompts on out and reads answers from reader. Pass the
// same reader the caller uses so buffered input is not lost between prompts.
func NewDatabaseSelector(reader *bufio.Reader, out io.Writer) *DatabaseSelector {
	if reader == nil {
		reader = bufio.NewReader(os.Stdin)
	}
	if out == nil {
		out = os.Stdout
	}
	return &DatabaseSelector{reader: reader, out: out}
}

// SelectDatabases prints a numbered table and asks for a selection such as
// "1,3", "2-4" or "all". It keeps asking until the answer parses.
func (ds *DatabaseSelector) SelectDatabases(databases []database.DatabaseInfo) ([]string, error) {
	if len(databases) == 0 {
		return nil, ErrNoDatabases
	}

	fmt.Fprintln(ds.out)
	fmt.Fprintln(ds.out, "Available databases:")
	fmt.Fprintln(ds.out, strings.Repeat("=", 64))
	fmt.Fprintf(ds.out, "%-4s %-30s %-12s %-12s\n", "No", "Database", "Collections", "Size")
	fmt.Fprintln(ds.out, strings.Repeat("-", 64))
	for i, db := range databases {
		fmt.Fprintf(ds.out, "%-4d %-30s %-12d %-12s\n", i+1, db.Name, db.Collections, humanize.Bytes(uint64(db.SizeOnDisk)))
	}
	fmt.Fprintln(ds.out, strings.Repeat("=", 64))

	for {
		fmt.Fprintf(ds.out, "\nSelect databases (e.g. 1,3 or 1-%d or all): ", len(databases))

		input, err := ds.readLine()
		if err != nil {
			return nil, fmt.Errorf("unable to read input: %w", err)
		}

		indexes, err := ParseSelection(input, len(databases))
		if err != nil {
			fmt.Fprintf(ds.out, "Invalid selection: %v\n", err)
			continue
		}

		names := make([]string, 0, len(indexes))
		for _, i := range indexes {
			names = append(names, databases[i].Name)
		}
		fmt.Fprintf(ds.out, "\nSelected: %s\n", strings.Join(names, ", "))
		return names, nil
	}
}

func (ds *DatabaseSelector) ConfirmAction(action, target string) bool {
	fmt.Fprintf(ds.out, "\nConfirm running %s for %s (y/N): ", action, target)

	input, err := ds.readLine()
	if err != nil {
		return false
	}

	input = strings.ToLower(input)
	return input == "y" || input == "yes"
}

func (ds *DatabaseSelector) readLine() (string, error) {
	line, err := ds.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ParseSelection turns a 1-based selection into 0-based indexes, in the order
// given and without duplicates.
func ParseSelection(input string, count int) ([]int, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return nil, errors.New("select at least one database")
	}

	if input == "all" || input == "*" {
		all := make([]int, count)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	seen := make(map[int]bool)
	var indexes []int
	add := func(n int) error {
		if n < 1 || n > count {
			return fmt.Errorf("select numbers between 1 and %d", count)
		}
		if !seen[n] {
			seen[n] = true
			indexes = append(indexes, n-1)
		}
		return nil
	}

	for _, part := range strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ' ' }) {
		if from, to, ok := strings.Cut(part, "-"); ok {
			lo, err1 := strconv.Atoi(from)
			hi, err2 := strconv.Atoi(to)
			if err1 != nil || err2 != nil || lo > hi {
				return nil, fmt.Errorf("invalid range %q", part)
			}
			for n := lo; n <= hi; n++ {
				if err := add(n); err != nil {
					return nil, err
				}
			}
			continue
		}

		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		if err := add(n); err != nil {
			return nil, err
		}
	}

	if len(indexes) == 0 {
		return nil, errors.New("select at least one database")
	}
	return indexes, nil
}
