package ftdc

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/b1ron/ftdc/bson"
)

// ErrMetricsCountMismatch is returned when the number of flattened
// reference leaves does not equal the chunk's declared N_metrics, or when
// the reference document contains duplicate sibling keys, which makes
// column identity ambiguous.
var ErrMetricsCountMismatch = errors.New("ftdc: metrics count mismatch")

var numericString = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// FlatField is one column of the flattened reference: a dotted path and
// its sample-0 base value. Timestamp fields contribute two consecutive
// FlatFields sharing the same Path, ("seconds", "ordinal") in that order.
type FlatField struct {
	Path string
	Base int64
}

// flattenReference walks doc in document order and returns the ordered
// list of numeric leaves, dropping anything non-numeric, and rejecting
// duplicate sibling keys rather than silently overwriting a column.
func flattenReference(doc bson.D) ([]FlatField, error) {
	return flattenDoc("", doc)
}

func flattenDoc(prefix string, doc bson.D) ([]FlatField, error) {
	var out []FlatField
	seen := make(map[string]bool, len(doc))
	for _, e := range doc {
		if seen[e.Name] {
			return nil, errors.Wrapf(ErrMetricsCountMismatch, "duplicate key %q", path(prefix, e.Name))
		}
		seen[e.Name] = true

		fields, err := flattenValue(path(prefix, e.Name), e.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, fields...)
	}
	return out, nil
}

func path(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func flattenValue(p string, v interface{}) ([]FlatField, error) {
	switch val := v.(type) {
	case bson.D:
		return flattenDoc(p, val)
	case bson.Array:
		return flattenDoc(p, bson.D(val))
	case bool:
		if val {
			return []FlatField{{Path: p, Base: 1}}, nil
		}
		return []FlatField{{Path: p, Base: 0}}, nil
	case float64:
		return []FlatField{{Path: p, Base: int64(math.Trunc(val))}}, nil
	case bson.Int32:
		return []FlatField{{Path: p, Base: int64(val)}}, nil
	case bson.Int64:
		return []FlatField{{Path: p, Base: int64(val)}}, nil
	case bson.DateTime:
		return []FlatField{{Path: p, Base: int64(val)}}, nil
	case bson.Timestamp:
		return []FlatField{
			{Path: p, Base: int64(val.Seconds())},
			{Path: p, Base: int64(val.Ordinal())},
		}, nil
	case string:
		s := strings.TrimSpace(val)
		if !numericString.MatchString(s) {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, nil
		}
		return []FlatField{{Path: p, Base: int64(math.Trunc(f))}}, nil
	default:
		// bson.Null, bson.Binary, bson.ObjectID, and anything the reader
		// skipped (Decimal128, Regex, Code, ...) are dropped.
		return nil, nil
	}
}
