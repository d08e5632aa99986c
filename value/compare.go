package value

import (
	"math"
	"math/big"
	"strings"

	"github.com/datasetq/datasetq/table"
)

// Compare orders two values. Null sorts before everything; booleans,
// numbers and strings compare natively, with Int, BigInt and Float
// promoted against each other. Arrays compare element-wise. NaN and any
// other pairing fail with ErrIncomparable; tables are never comparable.
func Compare(a, b Value) (int, error) {
	if err := rejectFrames("compare", a, b); err != nil {
		return 0, err
	}
	if a.IsNull() || b.IsNull() {
		switch {
		case a.IsNull() && b.IsNull():
			return 0, nil
		case a.IsNull():
			return -1, nil
		default:
			return 1, nil
		}
	}
	switch {
	case a.Kind == KindBool && b.Kind == KindBool:
		switch {
		case a.Bool == b.Bool:
			return 0, nil
		case !a.Bool:
			return -1, nil
		default:
			return 1, nil
		}
	case a.Kind == KindString && b.Kind == KindString:
		return strings.Compare(a.Str, b.Str), nil
	case a.IsNumber() && b.IsNumber():
		return compareNumbers(a, b)
	case a.Kind == KindArray && b.Kind == KindArray:
		for i := 0; i < len(a.Arr) && i < len(b.Arr); i++ {
			c, err := Compare(a.Arr[i], b.Arr[i])
			if err != nil || c != 0 {
				return c, err
			}
		}
		return cmpInt(len(a.Arr), len(b.Arr)), nil
	}
	return 0, &OpError{Op: "compare", Msg: a.TypeName() + " and " + b.TypeName(), Err: ErrIncomparable}
}

func compareNumbers(a, b Value) (int, error) {
	if a.Kind == KindInt && b.Kind == KindInt {
		switch {
		case a.Int < b.Int:
			return -1, nil
		case a.Int > b.Int:
			return 1, nil
		}
		return 0, nil
	}
	if a.Kind != KindFloat && b.Kind != KindFloat {
		return toBig(a).Cmp(toBig(b)), nil
	}
	af, _ := a.AsFloat()
	bf, _ := b.AsFloat()
	if math.IsNaN(af) || math.IsNaN(bf) {
		return 0, &OpError{Op: "compare", Msg: "NaN", Err: ErrIncomparable}
	}
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	}
	return 0, nil
}

// SortCompare is Compare with incomparable pairs treated as equal, which
// keeps stable sorts stable.
func SortCompare(a, b Value) int {
	c, err := Compare(a, b)
	if err != nil {
		return 0
	}
	return c
}

// Equal reports structural equality. Numbers compare across Int, BigInt
// and Float; every other variant only equals itself.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		c, err := compareNumbers(a, b)
		return err == nil && c == 0
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindString:
		return a.Str == b.Str
	case KindArray:
		if len(a.Arr) != len(b.Arr) {
			return false
		}
		for i := range a.Arr {
			if !Equal(a.Arr[i], b.Arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.Obj) != len(b.Obj) {
			return false
		}
		for k, av := range a.Obj {
			bv, ok := b.Obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindTable:
		return a.Table.Equal(b.Table)
	case KindDeferredTable:
		return a.Lazy == b.Lazy
	case KindColumn:
		return a.Col.Name() == b.Col.Name() && table.EqualColumns(a.Col, b.Col)
	}
	return false
}

func rejectFrames(op string, a, b Value) error {
	for _, v := range []Value{a, b} {
		switch v.Kind {
		case KindTable, KindDeferredTable, KindColumn:
			return typeErrf(op, v.Kind, "%s values are not comparable; use a filter predicate", v.Kind)
		}
	}
	return nil
}

func toBig(v Value) *big.Int {
	if v.Kind == KindBigInt {
		return v.Big
	}
	return big.NewInt(v.Int)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
