package value

import (
	"bytes"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// String renders v as compact JSON. Tables render as an array of row
// objects with keys in column order.
func (v Value) String() string {
	var buf bytes.Buffer
	writeJSON(&buf, v, "", "")
	return buf.String()
}

// Format renders v as JSON indented with the given string.
func Format(v Value, indent string) string {
	var buf bytes.Buffer
	writeJSON(&buf, v, indent, "")
	return buf.String()
}

// MarshalJSON implements json.Marshaler. Deferred tables are collected
// first.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindDeferredTable {
		t, err := v.Lazy.Collect()
		if err != nil {
			return nil, err
		}
		v = TableVal(t)
	}
	var buf bytes.Buffer
	writeJSON(&buf, v, "", "")
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Numbers keep their integer
// precision.
func (v *Value) UnmarshalJSON(data []byte) error {
	out, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// ParseJSON decodes a single JSON document.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Null(), &OpError{Op: "fromjson", Err: err}
	}
	return FromGo(raw), nil
}

func writeJSON(buf *bytes.Buffer, v Value, indent, prefix string) {
	inner := prefix + indent
	newline := func(p string) {
		if indent != "" {
			buf.WriteByte('\n')
			buf.WriteString(p)
		}
	}
	sep := ":"
	if indent != "" {
		sep = ": "
	}
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.Bool))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.Int, 10))
	case KindBigInt:
		buf.WriteString(v.Big.String())
	case KindFloat:
		buf.WriteString(formatFloat(v.Float))
	case KindString:
		writeString(buf, v.Str)
	case KindArray:
		if len(v.Arr) == 0 {
			buf.WriteString("[]")
			return
		}
		buf.WriteByte('[')
		for i, e := range v.Arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(inner)
			writeJSON(buf, e, indent, inner)
		}
		newline(prefix)
		buf.WriteByte(']')
	case KindObject:
		if len(v.Obj) == 0 {
			buf.WriteString("{}")
			return
		}
		buf.WriteByte('{')
		for i, k := range v.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(inner)
			writeString(buf, k)
			buf.WriteString(sep)
			writeJSON(buf, v.Obj[k], indent, inner)
		}
		newline(prefix)
		buf.WriteByte('}')
	case KindTable:
		t := v.Table
		if t.NumRows() == 0 {
			buf.WriteString("[]")
			return
		}
		names := t.Columns()
		rowPrefix := inner + indent
		buf.WriteByte('[')
		for r := 0; r < t.NumRows(); r++ {
			if r > 0 {
				buf.WriteByte(',')
			}
			newline(inner)
			buf.WriteByte('{')
			for c, name := range names {
				if c > 0 {
					buf.WriteByte(',')
				}
				newline(rowPrefix)
				writeString(buf, name)
				buf.WriteString(sep)
				writeJSON(buf, FromCell(t.ColumnAt(c).Get(r)), indent, rowPrefix)
			}
			newline(inner)
			buf.WriteByte('}')
		}
		newline(prefix)
		buf.WriteByte(']')
	case KindDeferredTable:
		buf.WriteString(`"<deferred table: `)
		buf.WriteString(strconv.Itoa(v.Lazy.Len()))
		buf.WriteString(` operations>"`)
	case KindColumn:
		cells := make([]Value, v.Col.Len())
		for i := range cells {
			cells[i] = FromCell(v.Col.Get(i))
		}
		writeJSON(buf, ArrayVal(cells), indent, prefix)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	b, err := json.MarshalWithOption(s, json.DisableHTMLEscape())
	if err != nil {
		buf.WriteString(strconv.Quote(s))
		return
	}
	buf.Write(b)
}

// formatFloat renders floats the way JSON encoders do; NaN becomes null
// and infinities saturate.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "null"
	case math.IsInf(f, 1):
		return "1.7976931348623157e+308"
	case math.IsInf(f, -1):
		return "-1.7976931348623157e+308"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// e-07 -> e-7
		if n := len(s); n >= 4 && s[n-4] == 'e' && s[n-3] == '-' && s[n-2] == '0' {
			s = s[:n-2] + s[n-1:]
		}
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
