// Package loader reads and writes query inputs and outputs. Tabular formats
// (CSV, Avro, Parquet, SQLite) produce Tables; JSON and YAML produce whatever
// tree the document holds; JSONL produces an Array with one element per line.
package loader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// Format names a file format.
type Format string

const (
	CSV     Format = "csv"
	JSON    Format = "json"
	JSONL   Format = "jsonl"
	YAML    Format = "yaml"
	Avro    Format = "avro"
	Parquet Format = "parquet"
	SQLite  Format = "sqlite"
)

// Formats lists every supported format.
var Formats = []Format{CSV, JSON, JSONL, YAML, Avro, Parquet, SQLite}

var extensions = map[string]Format{
	".csv":     CSV,
	".json":    JSON,
	".jsonl":   JSONL,
	".ndjson":  JSONL,
	".yaml":    YAML,
	".yml":     YAML,
	".avro":    Avro,
	".parquet": Parquet,
	".db":      SQLite,
	".sqlite":  SQLite,
	".sqlite3": SQLite,
}

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(s, "."))
	if f, ok := extensions["."+s]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// DetectFormat picks the format from the file extension. SQLite paths may
// carry a #table suffix.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	if file, name := splitTable(path); name != "" {
		if f, ok := extensions[strings.ToLower(filepath.Ext(file))]; ok && f == SQLite {
			return f, nil
		}
	}
	return "", &FormatError{Path: path, Err: fmt.Errorf("unsupported file extension %q", ext)}
}

// ErrUnsupported is returned when a format cannot serve a request, such as
// SQLite from a stream.
var ErrUnsupported = errors.New("not supported")

// FormatError is the I/O boundary error: a failure to read or write a file
// in a given format.
type FormatError struct {
	Format Format
	Path   string
	Err    error
}

func (e *FormatError) Error() string {
	var sb strings.Builder
	if e.Format != "" {
		sb.WriteString(string(e.Format))
		sb.WriteString(" ")
	}
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Err.Error())
	return sb.String()
}

func (e *FormatError) Unwrap() error { return e.Err }

// Options configures reads and writes. Read options apply to tabular input
// and to Arrays; writes ignore them.
type Options struct {
	// Format overrides extension detection.
	Format Format

	// MaxRows caps the rows returned; 0 means no limit.
	MaxRows int
	// SkipRows drops leading rows.
	SkipRows int
	// Columns keeps only these columns, in this order.
	Columns []string

	// IncludeHeader writes a CSV header row.
	IncludeHeader bool
	// Overwrite allows replacing an existing file or SQLite table.
	Overwrite bool

	// Table names the SQLite table when the path has no #table suffix.
	Table string
	// Concurrency bounds parallel reads in ReadGlob; 0 uses one worker per file.
	Concurrency int

	Logger *slog.Logger
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{IncludeHeader: true}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (o Options) format(path string) (Format, error) {
	if o.Format != "" {
		return o.Format, nil
	}
	return DetectFormat(path)
}

type reader func(r io.Reader, opts Options) (value.Value, error)

type writer func(w io.Writer, v value.Value, opts Options) error

var (
	readers = map[Format]reader{
		CSV:     readCSV,
		JSON:    readJSON,
		JSONL:   readJSONL,
		YAML:    readYAML,
		Avro:    readAvro,
		Parquet: readParquet,
	}
	writers = map[Format]writer{
		CSV:     writeCSV,
		JSON:    writeJSON,
		JSONL:   writeJSONL,
		YAML:    writeYAML,
		Avro:    writeAvro,
		Parquet: writeParquet,
	}
)

// Read loads path. The format comes from opts.Format or the extension.
func Read(path string, opts Options) (value.Value, error) {
	format, err := opts.format(path)
	if err != nil {
		return value.Null(), err
	}
	start := time.Now()
	var v value.Value
	if format == SQLite {
		v, err = readSQLite(path, opts)
	} else if v, err = readFile(path, format, opts); err == nil {
		v, err = applyOptions(v, opts)
	}
	if err != nil {
		return value.Null(), wrap(format, path, err)
	}
	opts.logger().Debug("read input", "path", path, "format", format, "rows", rowCount(v), "elapsed", time.Since(start))
	return v, nil
}

func readFile(path string, format Format, opts Options) (value.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return value.Null(), err
	}
	defer f.Close()
	return readers[format](f, opts)
}

// ReadFrom loads a stream such as stdin.
func ReadFrom(r io.Reader, format Format, opts Options) (value.Value, error) {
	read, ok := readers[format]
	if !ok {
		return value.Null(), &FormatError{Format: format, Path: "-", Err: fmt.Errorf("reading from a stream: %w", ErrUnsupported)}
	}
	v, err := read(r, opts)
	if err != nil {
		return value.Null(), wrap(format, "-", err)
	}
	v, err = applyOptions(v, opts)
	if err != nil {
		return value.Null(), wrap(format, "-", err)
	}
	return v, nil
}

// Write stores v at path. An existing file is an error unless
// opts.Overwrite is set.
func Write(path string, v value.Value, opts Options) error {
	format, err := opts.format(path)
	if err != nil {
		return err
	}
	if format == SQLite {
		if err := writeSQLite(path, v, opts); err != nil {
			return wrap(format, path, err)
		}
		return nil
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !opts.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			err = fmt.Errorf("file exists (set overwrite to replace it): %w", err)
		}
		return wrap(format, path, err)
	}
	if err := writers[format](f, v, opts); err != nil {
		f.Close()
		return wrap(format, path, err)
	}
	if err := f.Close(); err != nil {
		return wrap(format, path, err)
	}
	opts.logger().Debug("wrote output", "path", path, "format", format, "rows", rowCount(v))
	return nil
}

// WriteTo encodes v to a stream.
func WriteTo(w io.Writer, format Format, v value.Value, opts Options) error {
	write, ok := writers[format]
	if !ok {
		return &FormatError{Format: format, Path: "-", Err: fmt.Errorf("writing to a stream: %w", ErrUnsupported)}
	}
	if err := write(w, v, opts); err != nil {
		return wrap(format, "-", err)
	}
	return nil
}

func wrap(format Format, path string, err error) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	return &FormatError{Format: format, Path: path, Err: err}
}

// applyOptions applies SkipRows, MaxRows and Columns to a Table or an
// Array. Other values pass through.
func applyOptions(v value.Value, opts Options) (value.Value, error) {
	switch v.Kind {
	case value.KindTable:
		t := v.Table
		if opts.SkipRows > 0 || opts.MaxRows > 0 {
			n := t.NumRows()
			if opts.MaxRows > 0 {
				n = opts.MaxRows
			}
			t = t.Slice(opts.SkipRows, n)
		}
		if len(opts.Columns) > 0 {
			var err error
			if t, err = t.Select(opts.Columns...); err != nil {
				return value.Null(), err
			}
		}
		return value.TableVal(t), nil
	case value.KindArray:
		rows := v.Arr
		if opts.SkipRows > 0 {
			rows = rows[min(opts.SkipRows, len(rows)):]
		}
		if opts.MaxRows > 0 && opts.MaxRows < len(rows) {
			rows = rows[:opts.MaxRows]
		}
		if len(opts.Columns) > 0 {
			out := make([]value.Value, len(rows))
			for i, r := range rows {
				if r.Kind != value.KindObject {
					return value.Null(), fmt.Errorf("columns option: row %d is %s, not object", i, r.TypeName())
				}
				m := make(map[string]value.Value, len(opts.Columns))
				for _, c := range opts.Columns {
					m[c] = r.Obj[c]
				}
				out[i] = value.ObjectVal(m)
			}
			rows = out
		}
		return value.ArrayVal(rows), nil
	}
	return v, nil
}

func rowCount(v value.Value) int {
	switch v.Kind {
	case value.KindTable:
		return v.Table.NumRows()
	case value.KindArray:
		return len(v.Arr)
	}
	return 1
}

// tableOf turns a Table, DeferredTable or Array of Objects into a Table
// for the tabular writers.
func tableOf(v value.Value) (*table.Table, error) {
	return value.AsTable("write", v)
}

// cellOf converts a decoded Go scalar into a cell.
func cellOf(x any) table.Cell {
	return value.ToCell(value.FromGo(x))
}

// rowsOf walks the rows of a Table or the elements of an Array.
func rowsOf(v value.Value) ([]value.Value, error) {
	switch v.Kind {
	case value.KindArray:
		return v.Arr, nil
	case value.KindTable, value.KindDeferredTable:
		return value.Iterate(v)
	}
	return []value.Value{v}, nil
}
