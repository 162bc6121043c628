package bson

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeDocument is a companion writer for the round-trip test fixture only;
// the core never writes BSON. It covers exactly the type set readValue
// produces, in the same order Elem.Value's dynamic type switch expects.
func encodeDocument(doc D) []byte {
	var body []byte
	for _, e := range doc {
		body = append(body, encodeElement(e.Name, e.Value)...)
	}
	size := int32(4 + len(body) + 1)
	out := make([]byte, 0, size)
	out = append(out, leU32(uint32(size))...)
	out = append(out, body...)
	out = append(out, 0x00)
	return out
}

func encodeElement(name string, v interface{}) []byte {
	var t Type
	var payload []byte
	switch val := v.(type) {
	case float64:
		t = TypeDouble
		payload = leU64(math.Float64bits(val))
	case string:
		t = TypeString
		payload = encodeCString(val, true)
	case D:
		t = TypeDocument
		payload = encodeDocument(val)
	case Array:
		t = TypeArray
		payload = encodeDocument(D(val))
	case Binary:
		t = TypeBinary
		payload = append(leU32(uint32(len(val.Payload))), val.Subtype)
		payload = append(payload, val.Payload...)
	case ObjectID:
		t = TypeObjectID
		payload = append([]byte{}, val[:]...)
	case bool:
		t = TypeBoolean
		if val {
			payload = []byte{0x01}
		} else {
			payload = []byte{0x00}
		}
	case DateTime:
		t = TypeDateTime
		payload = leU64(uint64(int64(val)))
	case Null:
		t = TypeNull
	case Int32:
		t = TypeInt32
		payload = leU32(uint32(val))
	case Timestamp:
		t = TypeTimestamp
		payload = leU64(uint64(val))
	case Int64:
		t = TypeInt64
		payload = leU64(uint64(val))
	default:
		panic("bson: encodeElement: unsupported fixture value type")
	}
	out := []byte{byte(t)}
	out = append(out, encodeCString(name, false)...)
	out = append(out, payload...)
	return out
}

// encodeCString encodes a NUL-terminated string. When bsonString is true it
// is prefixed with its length (the on-wire BSON string shape); a bare
// cstring (element name) has no length prefix.
func encodeCString(s string, bsonString bool) []byte {
	b := append([]byte(s), 0x00)
	if !bsonString {
		return b
	}
	return append(leU32(uint32(len(b))), b...)
}

func leU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func leU64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// Property 2: for a document assembled from the supported type set,
// parse -> re-serialize with the companion writer yields byte-identical
// output to the original wire bytes.
func TestParseRoundTrip(t *testing.T) {
	original := encodeDocument(D{
		{Name: "d", Value: 3.14},
		{Name: "s", Value: "abc"},
		{Name: "doc", Value: D{{Name: "inner", Value: Int32(7)}}},
		{Name: "arr", Value: Array{{Name: "0", Value: Int32(1)}, {Name: "1", Value: Int32(2)}}},
		{Name: "bin", Value: Binary{Subtype: 0x00, Payload: []byte{0xDE, 0xAD}}},
		{Name: "oid", Value: ObjectID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		{Name: "b", Value: true},
		{Name: "t", Value: DateTime(1234567890)},
		{Name: "n", Value: NullValue},
		{Name: "i32", Value: Int32(-42)},
		{Name: "ts", Value: Timestamp(uint64(7)<<32 | 3)},
		{Name: "i64", Value: Int64(-9223372036854775808)},
	})

	doc, err := Parse(original, Options{})
	require.NoError(t, err)

	reserialized := encodeDocument(doc)
	assert.Equal(t, original, reserialized)
}

func TestParseRoundTripEmptyAndNested(t *testing.T) {
	original := encodeDocument(D{
		{Name: "empty", Value: D{}},
		{Name: "a", Value: D{{Name: "b", Value: D{{Name: "c", Value: Int32(1)}}}}},
	})
	doc, err := Parse(original, Options{})
	require.NoError(t, err)
	assert.Equal(t, original, encodeDocument(doc))
}
