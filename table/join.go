package table

import (
	"errors"
	"fmt"
	"strings"
)

// JoinType selects which unmatched rows a join keeps.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	OuterJoin
)

func (j JoinType) String() string {
	switch j {
	case InnerJoin:
		return "inner"
	case LeftJoin:
		return "left"
	case RightJoin:
		return "right"
	case OuterJoin:
		return "outer"
	}
	return "?"
}

// ParseJoinType accepts inner, left, right, outer and full.
func ParseJoinType(s string) (JoinType, error) {
	switch strings.ToLower(s) {
	case "", "inner":
		return InnerJoin, nil
	case "left":
		return LeftJoin, nil
	case "right":
		return RightJoin, nil
	case "outer", "full":
		return OuterJoin, nil
	}
	return InnerJoin, fmt.Errorf("unknown join type %q", s)
}

// JoinValidation constrains key multiplicity on each side.
type JoinValidation int

const (
	ManyToMany JoinValidation = iota
	OneToOne
	OneToMany
	ManyToOne
)

func (v JoinValidation) String() string {
	switch v {
	case OneToOne:
		return "1:1"
	case OneToMany:
		return "1:m"
	case ManyToOne:
		return "m:1"
	}
	return "m:m"
}

// ParseJoinValidation accepts m:m, 1:1, 1:m and m:1.
func ParseJoinValidation(s string) (JoinValidation, error) {
	switch s {
	case "", "m:m":
		return ManyToMany, nil
	case "1:1":
		return OneToOne, nil
	case "1:m":
		return OneToMany, nil
	case "m:1":
		return ManyToOne, nil
	}
	return ManyToMany, fmt.Errorf("unknown join validation %q", s)
}

// ErrJoinValidation is returned when keys violate the requested multiplicity.
var ErrJoinValidation = errors.New("join validation failed")

// DefaultJoinSuffix is appended to clashing right-side column names.
const DefaultJoinSuffix = "_right"

// JoinOptions configures Join.
type JoinOptions struct {
	How      JoinType
	LeftOn   []string
	RightOn  []string
	Validate JoinValidation
	Suffix   string
}

func (o *JoinOptions) String() string {
	on := strings.Join(o.LeftOn, ", ")
	if len(o.RightOn) > 0 && strings.Join(o.RightOn, ",") != strings.Join(o.LeftOn, ",") {
		on += " = " + strings.Join(o.RightOn, ", ")
	}
	s := fmt.Sprintf("%s join on %s", o.How, on)
	if o.Validate != ManyToMany {
		s += " validate " + o.Validate.String()
	}
	return s
}

// Join combines two tables on equal key tuples. Null keys never match. Key
// columns appear once, under the left names.
func (t *Table) Join(right *Table, opts JoinOptions) (*Table, error) {
	if len(opts.RightOn) == 0 {
		opts.RightOn = opts.LeftOn
	}
	if len(opts.LeftOn) == 0 || len(opts.LeftOn) != len(opts.RightOn) {
		return nil, fmt.Errorf("join: need the same number of keys on each side, got %d and %d", len(opts.LeftOn), len(opts.RightOn))
	}
	if opts.Suffix == "" {
		opts.Suffix = DefaultJoinSuffix
	}

	lkeys, err := keyColumns(t, opts.LeftOn)
	if err != nil {
		return nil, fmt.Errorf("join: left: %w", err)
	}
	rkeys, err := keyColumns(right, opts.RightOn)
	if err != nil {
		return nil, fmt.Errorf("join: right: %w", err)
	}

	rindex := make(map[string][]int)
	for i := 0; i < right.nrows; i++ {
		if k, ok := joinKey(rkeys, i); ok {
			rindex[k] = append(rindex[k], i)
		}
	}
	if err := validateJoin(opts.Validate, t, lkeys, rindex); err != nil {
		return nil, err
	}

	var lidx, ridx []int
	matchedRight := make([]bool, right.nrows)
	switch opts.How {
	case RightJoin:
		lindex := make(map[string][]int)
		for i := 0; i < t.nrows; i++ {
			if k, ok := joinKey(lkeys, i); ok {
				lindex[k] = append(lindex[k], i)
			}
		}
		for j := 0; j < right.nrows; j++ {
			k, ok := joinKey(rkeys, j)
			matches := lindex[k]
			if !ok || len(matches) == 0 {
				lidx = append(lidx, -1)
				ridx = append(ridx, j)
				continue
			}
			for _, i := range matches {
				lidx = append(lidx, i)
				ridx = append(ridx, j)
			}
		}
	default:
		for i := 0; i < t.nrows; i++ {
			k, ok := joinKey(lkeys, i)
			matches := rindex[k]
			if !ok || len(matches) == 0 {
				if opts.How != InnerJoin {
					lidx = append(lidx, i)
					ridx = append(ridx, -1)
				}
				continue
			}
			for _, j := range matches {
				lidx = append(lidx, i)
				ridx = append(ridx, j)
				matchedRight[j] = true
			}
		}
		if opts.How == OuterJoin {
			for j := 0; j < right.nrows; j++ {
				if !matchedRight[j] {
					lidx = append(lidx, -1)
					ridx = append(ridx, j)
				}
			}
		}
	}

	return assembleJoin(t, right, opts, lidx, ridx)
}

func keyColumns(t *Table, names []string) ([]*Column, error) {
	cols := make([]*Column, len(names))
	for i, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, n)
		}
		cols[i] = c
	}
	return cols, nil
}

// joinKey reports false when any key cell is null.
func joinKey(cols []*Column, row int) (string, bool) {
	for _, c := range cols {
		if c.IsNull(row) {
			return "", false
		}
	}
	return rowKey(cols, row), true
}

func validateJoin(v JoinValidation, left *Table, lkeys []*Column, rindex map[string][]int) error {
	if v == OneToOne || v == ManyToOne {
		for _, rows := range rindex {
			if len(rows) > 1 {
				return fmt.Errorf("join: %w: %s requires unique right keys", ErrJoinValidation, v)
			}
		}
	}
	if v == OneToOne || v == OneToMany {
		seen := make(map[string]bool)
		for i := 0; i < left.nrows; i++ {
			k, ok := joinKey(lkeys, i)
			if !ok {
				continue
			}
			if seen[k] {
				return fmt.Errorf("join: %w: %s requires unique left keys", ErrJoinValidation, v)
			}
			seen[k] = true
		}
	}
	return nil
}

func assembleJoin(left, right *Table, opts JoinOptions, lidx, ridx []int) (*Table, error) {
	rightKey := make(map[string]string, len(opts.RightOn))
	for i, n := range opts.RightOn {
		rightKey[n] = opts.LeftOn[i]
	}
	leftKey := make(map[string]string, len(opts.LeftOn))
	for i, n := range opts.LeftOn {
		leftKey[n] = opts.RightOn[i]
	}

	var cols []*Column
	used := make(map[string]bool)
	for _, c := range left.cols {
		lc := c.Take(lidx)
		if rname, isKey := leftKey[c.Name()]; isKey && opts.How != InnerJoin && opts.How != LeftJoin {
			rc, _ := right.Column(rname)
			lc = coalesce(lc, rc.Take(ridx))
		}
		cols = append(cols, lc)
		used[c.Name()] = true
	}
	for _, c := range right.cols {
		if _, isKey := rightKey[c.Name()]; isKey {
			continue
		}
		name := c.Name()
		for used[name] {
			name += opts.Suffix
		}
		used[name] = true
		cols = append(cols, c.Take(ridx).Rename(name))
	}

	out, err := New(cols...)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	out.nrows = len(lidx)
	return out, nil
}

func coalesce(a, b *Column) *Column {
	if a.NullCount() == 0 {
		return a
	}
	cells := a.Cells()
	for i := range cells {
		if cells[i].IsNull() {
			cells[i] = b.Get(i)
		}
	}
	return NewColumn(a.Name(), cells)
}
