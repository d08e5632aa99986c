package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/datasetq/datasetq/loader"
	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// printer writes query results to the terminal or a pipe.
type printer struct {
	w       io.Writer
	format  string // auto, table, json or a loader format
	color   bool
	compact bool
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// useColor resolves the auto/always/never setting against w.
func useColor(setting string, w io.Writer) bool {
	switch setting {
	case "always":
		return true
	case "never":
		return false
	}
	return isTerminal(w) && os.Getenv("NO_COLOR") == ""
}

func (p *printer) print(v value.Value) error {
	if v.Kind == value.KindDeferredTable {
		t, err := v.Lazy.Collect()
		if err != nil {
			return err
		}
		v = value.TableVal(t)
	}

	format := p.format
	if format == "" || format == "auto" {
		format = "json"
		if isTerminal(p.w) && (v.Kind == value.KindTable || (value.IsRecords(v) && len(v.Arr) > 0)) {
			format = "table"
		}
	}

	switch format {
	case "table":
		t, err := value.AsTable("print", v)
		if err != nil {
			// not tabular
			return p.printJSON(v)
		}
		_, err = fmt.Fprintln(p.w, renderTable(t, p.color))
		return err
	case "json":
		return p.printJSON(v)
	}
	f, err := loader.ParseFormat(format)
	if err != nil {
		return err
	}
	return loader.WriteTo(p.w, f, v, loader.DefaultOptions())
}

func (p *printer) printJSON(v value.Value) error {
	indent := "  "
	if p.compact {
		indent = ""
	}
	_, err := fmt.Fprintln(p.w, value.Format(v, indent))
	return err
}

// renderTable draws t with a header row and a row count footer.
func renderTable(t *table.Table, colored bool) string {
	if t.NumCols() == 0 {
		return "(no columns)"
	}
	rows := make([][]string, t.NumRows())
	for i := range rows {
		row := make([]string, t.NumCols())
		for j, c := range t.Row(i) {
			row[j] = cellText(c)
		}
		rows[i] = row
	}

	header := lipgloss.NewStyle().Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	border := lipgloss.NewStyle()
	if colored {
		header = header.Bold(true).Foreground(lipgloss.Color("12"))
		border = border.Foreground(lipgloss.Color("8"))
	}

	tbl := ltable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(border).
		Headers(t.Columns()...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return header
			}
			return cell
		})

	footer := fmt.Sprintf("%d rows", t.NumRows())
	if t.NumRows() == 1 {
		footer = "1 row"
	}
	return tbl.Render() + "\n" + footer
}

func cellText(c table.Cell) string {
	switch c.Type {
	case table.CellNull:
		return "null"
	case table.CellString:
		return c.Str
	case table.CellList, table.CellOpaque:
		return value.FromCell(c).String()
	}
	return c.AsString()
}

// printError reports err on w, in red on terminals.
func printError(w io.Writer, err error, colored bool) {
	prefix := "error:"
	if colored {
		c := color.New(color.FgRed, color.Bold)
		c.EnableColor()
		prefix = c.Sprint(prefix)
	}
	fmt.Fprintln(w, prefix, err)
}
