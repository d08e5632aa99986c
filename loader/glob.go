package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/panjf2000/ants/v2"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// FileColumn names the column ReadGlob adds with each row's source path.
const FileColumn = "_file"

// Expand resolves a doublestar pattern (`data/**/*.csv`). A path without
// glob metacharacters is returned as is, whether or not it exists.
func Expand(pattern string) ([]string, error) {
	file, _ := splitTable(pattern)
	if !hasMeta(file) {
		return []string{pattern}, nil
	}
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no files match pattern %q", pattern)
	}
	return matches, nil
}

func hasMeta(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// ReadGlob reads every file matching pattern on a bounded worker pool and
// concatenates them into one Table with a FileColumn. A pattern naming a
// single file is read as Read would, without the extra column.
func ReadGlob(ctx context.Context, pattern string, opts Options) (value.Value, error) {
	paths, err := Expand(pattern)
	if err != nil {
		return value.Null(), &FormatError{Format: opts.Format, Path: pattern, Err: err}
	}
	if len(paths) == 1 && !hasMeta(pattern) {
		return Read(paths[0], opts)
	}

	size := opts.Concurrency
	if size <= 0 || size > len(paths) {
		size = len(paths)
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return value.Null(), err
	}
	defer pool.Release()

	// row options apply to the combined result
	per := opts
	per.MaxRows, per.SkipRows, per.Columns = 0, 0, nil

	tables := make([]*table.Table, len(paths))
	errs := make([]error, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			v, err := Read(path, per)
			if err == nil {
				tables[i], err = value.AsTable("read", v)
			}
			errs[i] = err
		}); err != nil {
			wg.Done()
			errs[i] = err
			break
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return value.Null(), err
		}
	}

	t, err := concat(tables, paths)
	if err != nil {
		return value.Null(), &FormatError{Format: opts.Format, Path: pattern, Err: err}
	}
	opts.logger().Debug("read glob", "pattern", pattern, "files", len(paths), "rows", t.NumRows())
	return applyOptions(value.TableVal(t), opts)
}

// concat stacks tables by column name in first-seen order; columns a table
// lacks are null for its rows.
func concat(tables []*table.Table, paths []string) (*table.Table, error) {
	var columns []string
	seen := map[string]bool{FileColumn: true}
	for _, t := range tables {
		for _, c := range t.Columns() {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}
	columns = append(columns, FileColumn)

	b := table.NewBuilder(columns)
	for i, t := range tables {
		idx := make([]int, len(columns))
		for j, c := range columns {
			idx[j] = t.ColIndex(c)
		}
		file := table.StrVal(paths[i])
		for r := 0; r < t.NumRows(); r++ {
			row := t.Row(r)
			cells := make([]table.Cell, len(columns))
			for j, k := range idx {
				if k >= 0 {
					cells[j] = row[k]
				}
			}
			cells[len(cells)-1] = file
			b.AddRow(cells)
		}
	}
	return b.Build()
}
