package value

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datasetq/datasetq/table"
)

// Key returns a canonical structural encoding of v. Values that are Equal
// produce the same key, so Int 1 and Float 1.0 hash together. In-memory
// grouping, de-duplication and joins all hash on Key.
func (v Value) Key() string {
	var sb strings.Builder
	v.writeKey(&sb)
	return sb.String()
}

func (v Value) writeKey(sb *strings.Builder) {
	switch v.Kind {
	case KindNull:
		sb.WriteString("z")
	case KindBool:
		if v.Bool {
			sb.WriteString("b1")
		} else {
			sb.WriteString("b0")
		}
	case KindInt:
		sb.WriteString("n")
		sb.WriteString(strconv.FormatInt(v.Int, 10))
	case KindBigInt:
		sb.WriteString("n")
		sb.WriteString(v.Big.String())
	case KindFloat:
		sb.WriteString("n")
		sb.WriteString(table.FloatKey(v.Float))
	case KindString:
		sb.WriteString("s")
		sb.WriteString(strconv.Itoa(len(v.Str)))
		sb.WriteString(":")
		sb.WriteString(v.Str)
	case KindArray:
		sb.WriteString("l[")
		for i, e := range v.Arr {
			if i > 0 {
				sb.WriteString(",")
			}
			e.writeKey(sb)
		}
		sb.WriteString("]")
	case KindObject:
		sb.WriteString("m{")
		for i, k := range v.SortedKeys() {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(":")
			v.Obj[k].writeKey(sb)
		}
		sb.WriteString("}")
	case KindTable:
		sb.WriteString("t")
		sb.WriteString(strconv.Quote(v.Table.String()))
	case KindDeferredTable:
		sb.WriteString("d")
		sb.WriteString(fmt.Sprintf("%p", v.Lazy))
	case KindColumn:
		sb.WriteString("c")
		sb.WriteString(strconv.Quote(v.Col.String()))
	}
}

// KeyOf joins the keys of several values, for composite group keys.
func KeyOf(vs []Value) string {
	var sb strings.Builder
	for i, v := range vs {
		if i > 0 {
			sb.WriteByte(0x1f)
		}
		v.writeKey(&sb)
	}
	return sb.String()
}
