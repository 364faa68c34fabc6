package dataset

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/credit-risk-cli/internal/fetcher"
)

// SourceOptions configures how a raw file is read into a Table.
type SourceOptions struct {
	Delimiter   rune
	Encoding    string
	Sheet       string            // xlsx sheet name; empty selects the first sheet
	DropColumns []string          // dropped right after the header is read
	Rename      map[string]string // applied after DropColumns
}

// SourceNotFoundError reports a raw input file that does not exist.
type SourceNotFoundError struct {
	Path string
}

func (e *SourceNotFoundError) Error() string {
	return "source data not found: " + e.Path
}

// IsSourceNotFound returns true if err (or any error in its chain) is a
// SourceNotFoundError.
func IsSourceNotFound(err error) bool {
	var se *SourceNotFoundError
	return errors.As(err, &se)
}

// Load reads a delimited text file, or an .xlsx workbook, whose first row is
// the header. Cells are kept exactly as read.
func Load(ctx context.Context, path string, opts SourceOptions) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &SourceNotFoundError{Path: path}
		}
		return nil, eris.Wrapf(err, "dataset: stat %s", path)
	}

	var (
		records [][]string
		err     error
	)
	isXLSX := strings.EqualFold(filepath.Ext(path), ".xlsx")
	if isXLSX {
		records, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: opts.Sheet})
	} else {
		records, err = readDelimited(ctx, path, opts)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	if len(records) == 0 {
		return nil, eris.Errorf("dataset: %s has no header row", path)
	}

	header := records[0]
	rows := records[1:]
	// Spreadsheet rows are shorter than the header when trailing cells are empty.
	for i, row := range rows {
		if isXLSX && len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			rows[i] = padded
		}
	}

	t, err := NewTable(header, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: parse %s", path)
	}
	t = t.Drop(opts.DropColumns...)
	for from, to := range opts.Rename {
		t.Rename(from, to)
	}
	return t, nil
}

func readDelimited(ctx context.Context, path string, opts SourceOptions) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open")
	}
	defer f.Close() //nolint:errcheck

	return fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{
		Delimiter: opts.Delimiter,
		Encoding:  opts.Encoding,
	})
}
