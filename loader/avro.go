package loader

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	goavro "github.com/linkedin/goavro/v2"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

type avroField struct {
	Name string `json:"name"`
	Type any    `json:"type"`
}

type avroSchema struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Fields []avroField `json:"fields"`
}

func readAvro(r io.Reader, opts Options) (value.Value, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return value.Null(), fmt.Errorf("cannot read OCF header: %w", err)
	}

	var schema avroSchema
	if err := json.Unmarshal([]byte(ocfr.Codec().Schema()), &schema); err != nil {
		return value.Null(), fmt.Errorf("cannot parse schema: %w", err)
	}
	columns := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		columns[i] = f.Name
	}

	b := table.NewBuilder(columns)
	n := 0
	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return value.Null(), fmt.Errorf("record %d: %w", n, err)
		}
		rec, ok := datum.(map[string]any)
		if !ok {
			return value.Null(), fmt.Errorf("record %d: unexpected type %T", n, datum)
		}
		cells := make([]table.Cell, len(columns))
		for i, col := range columns {
			cells[i] = avroCell(rec[col])
		}
		b.AddRow(cells)
		n++
		if opts.MaxRows > 0 && n >= opts.SkipRows+opts.MaxRows {
			break
		}
	}
	if err := ocfr.Err(); err != nil {
		return value.Null(), err
	}
	t, err := b.Build()
	if err != nil {
		return value.Null(), err
	}
	return value.TableVal(t), nil
}

// avroCell unwraps the {"type": value} maps goavro decodes unions into.
func avroCell(x any) table.Cell {
	if m, ok := x.(map[string]any); ok && len(m) == 1 {
		for _, inner := range m {
			return avroCell(inner)
		}
	}
	return cellOf(x)
}

// columnType picks one of long, double, boolean or string for a column.
// Mixed int and float columns widen to double; any other mix, and lists or
// opaque payloads, fall back to string.
func columnType(c *table.Column) string {
	typ := ""
	for i := 0; i < c.Len(); i++ {
		var t string
		switch c.Get(i).Type {
		case table.CellNull:
			continue
		case table.CellInt:
			t = "long"
		case table.CellFloat:
			t = "double"
		case table.CellBool:
			t = "boolean"
		default:
			return "string"
		}
		switch {
		case typ == "" || typ == t:
			typ = t
		case (typ == "long" && t == "double") || (typ == "double" && t == "long"):
			typ = "double"
		default:
			return "string"
		}
	}
	if typ == "" {
		return "string"
	}
	return typ
}

func writeAvro(w io.Writer, v value.Value, _ Options) error {
	t, err := tableOf(v)
	if err != nil {
		return err
	}
	schema := avroSchema{Type: "record", Name: "Row"}
	types := make([]string, t.NumCols())
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColumnAt(i)
		types[i] = columnType(c)
		schema.Fields = append(schema.Fields, avroField{Name: c.Name(), Type: []string{"null", types[i]}})
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{W: w, Schema: string(raw)})
	if err != nil {
		return fmt.Errorf("cannot create OCF writer: %w", err)
	}

	batch := make([]any, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		rec := make(map[string]any, t.NumCols())
		for j, c := range t.Row(i) {
			rec[schema.Fields[j].Name] = avroDatum(c, types[j])
		}
		batch = append(batch, rec)
	}
	return ocfw.Append(batch)
}

func avroDatum(c table.Cell, typ string) any {
	if c.IsNull() {
		return nil
	}
	switch typ {
	case "long":
		if c.Type == table.CellInt {
			return goavro.Union(typ, c.Int)
		}
	case "double":
		if f, ok := c.AsFloat(); ok {
			return goavro.Union(typ, f)
		}
	case "boolean":
		if c.Type == table.CellBool {
			return goavro.Union(typ, c.Bool)
		}
	case "string":
		return goavro.Union(typ, csvField(c))
	}
	return nil
}
