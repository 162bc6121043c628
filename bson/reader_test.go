package bson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 - minimal BSON document.
func TestParseMinimalDocument(t *testing.T) {
	buf := []byte{0x05, 0x00, 0x00, 0x00, 0x00}
	doc, err := Parse(buf, Options{})
	require.NoError(t, err)
	assert.Empty(t, doc)
}

// S2 - single Int32 field.
func TestParseSingleInt32Field(t *testing.T) {
	buf := []byte{
		0x0C, 0x00, 0x00, 0x00, // size = 12
		0x10, 'x', 0x00, // type Int32, name "x"
		0x2A, 0x00, 0x00, 0x00, // value 42
		0x00, // terminator
	}
	doc, err := Parse(buf, Options{})
	require.NoError(t, err)
	require.Len(t, doc, 1)
	assert.Equal(t, "x", doc[0].Name)
	assert.Equal(t, Int32(42), doc[0].Value)
}

// S3 - nested document {"a": {"b": 7}}.
func TestParseNestedDocument(t *testing.T) {
	buf := []byte{
		0x14, 0x00, 0x00, 0x00,
		0x03, 'a', 0x00,
		0x0C, 0x00, 0x00, 0x00,
		0x10, 'b', 0x00,
		0x07, 0x00, 0x00, 0x00,
		0x00,
		0x00,
	}
	doc, err := Parse(buf, Options{})
	require.NoError(t, err)
	require.Len(t, doc, 1)
	assert.Equal(t, "a", doc[0].Name)
	inner, ok := doc[0].Value.(D)
	require.True(t, ok)
	require.Len(t, inner, 1)
	assert.Equal(t, "b", inner[0].Name)
	assert.Equal(t, Int32(7), inner[0].Value)
}

func TestParseAllScalarTypes(t *testing.T) {
	var buf []byte
	appendElem := func(b []byte) { buf = append(buf, b...) }

	body := []byte{}
	body = append(body, 0x01, 'd', 0x00)
	body = append(body, 0x1F, 0x85, 0xEB, 0x51, 0xB8, 0x1E, 0x09, 0x40) // 3.14
	body = append(body, 0x02, 's', 0x00)
	body = append(body, 0x04, 0x00, 0x00, 0x00, 'a', 'b', 'c', 0x00)
	body = append(body, 0x08, 'b', 0x00, 0x01)
	body = append(body, 0x0A, 'n', 0x00)
	body = append(body, 0x09, 't', 0x00, 0xD2, 0x02, 0x96, 0x49, 0x00, 0x00, 0x00, 0x00)
	body = append(body, 0x11, 'm', 0x00, 0, 0, 0, 0, 1, 0, 0, 0)
	body = append(body, 0x12, 'l', 0x00, 1, 0, 0, 0, 0, 0, 0, 0)
	body = append(body, 0x07, 'o', 0x00)
	body = append(body, make([]byte, 12)...)

	size := int32(4 + len(body) + 1)
	sizeBytes := []byte{byte(size), byte(size >> 8), byte(size >> 16), byte(size >> 24)}
	appendElem(sizeBytes)
	appendElem(body)
	appendElem([]byte{0x00})

	doc, err := Parse(buf, Options{})
	require.NoError(t, err)
	m := doc.Map()
	assert.InDelta(t, 3.14, m["d"].(float64), 1e-9)
	assert.Equal(t, "abc", m["s"])
	assert.Equal(t, true, m["b"])
	assert.Equal(t, NullValue, m["n"])
	assert.Equal(t, DateTime(1234567890), m["t"])
	assert.Equal(t, Int64(1), m["l"])
	ts := m["m"].(Timestamp)
	assert.Equal(t, uint32(1), ts.Seconds())
	assert.Equal(t, uint32(0), ts.Ordinal())
	_, ok := m["o"].(ObjectID)
	assert.True(t, ok)
}

func TestParseInvalidTerminator(t *testing.T) {
	buf := []byte{
		0x0C, 0x00, 0x00, 0x00, // size = 12
		0x10, 'x', 0x00,
		0x2A, 0x00, 0x00, 0x00,
		0x01, // not a NUL terminator
	}
	_, err := Parse(buf, Options{})
	assert.ErrorIs(t, err, ErrInvalidTerminator)
}

func TestParseInvalidSize(t *testing.T) {
	buf := []byte{0x02, 0x00, 0x00, 0x00, 0x00}
	_, err := Parse(buf, Options{})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestParseUnsupportedTypeFails(t *testing.T) {
	buf := []byte{
		0x08, 0x00, 0x00, 0x00,
		0xFE, // bogus type code
		'x', 0x00,
		0x00,
	}
	_, err := Parse(buf, Options{})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestParseSkipsDecimal128WithoutEmittingValue(t *testing.T) {
	buf := []byte{
		0x18, 0x00, 0x00, 0x00,
		0x13, 'x', 0x00,
	}
	buf = append(buf, make([]byte, 16)...)
	buf = append(buf, 0x00)

	doc, err := Parse(buf, Options{})
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestParseDuplicateSiblingKeysPreserved(t *testing.T) {
	// The reader itself does not reject duplicate keys; that is the
	// flattener's job. Here we only assert order is kept.
	buf := []byte{
		0x13, 0x00, 0x00, 0x00,
		0x10, 'x', 0x00, 0x01, 0x00, 0x00, 0x00,
		0x10, 'x', 0x00, 0x02, 0x00, 0x00, 0x00,
		0x00,
	}
	doc, err := Parse(buf, Options{})
	require.NoError(t, err)
	require.Len(t, doc, 2)
	assert.Equal(t, Int32(1), doc[0].Value)
	assert.Equal(t, Int32(2), doc[1].Value)
}

func TestParseFTDCFindsTopLevelBinary(t *testing.T) {
	buf := []byte{}
	body := []byte{}
	body = append(body, 0x10, 't', 0x00, 0x01, 0x00, 0x00, 0x00) // type: 1
	body = append(body, 0x05, 'd', 0x00)
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	body = append(body, byte(len(payload)), 0x00, 0x00, 0x00, 0x00) // length + subtype 0
	body = append(body, payload...)
	body = append(body, 0x10, 'z', 0x00, 0xFF, 0xFF, 0xFF, 0xFF) // trailer garbage after binary, ignored

	size := int32(4 + len(body) + 1)
	sizeBytes := []byte{byte(size), byte(size >> 8), byte(size >> 16), byte(size >> 24)}
	buf = append(buf, sizeBytes...)
	buf = append(buf, body...)
	buf = append(buf, 0x00)

	carrier, err := ParseFTDC(buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), carrier.Subtype)
	assert.Equal(t, payload, carrier.Payload)
}

func TestParseFTDCNoPayload(t *testing.T) {
	buf := []byte{
		0x0C, 0x00, 0x00, 0x00,
		0x10, 'x', 0x00,
		0x2A, 0x00, 0x00, 0x00,
		0x00,
	}
	_, err := ParseFTDC(buf)
	assert.ErrorIs(t, err, ErrNoFTDCPayload)
}

func TestParseMaxDepthExceeded(t *testing.T) {
	// build a document nested deeper than maxDepth
	inner := []byte{0x05, 0x00, 0x00, 0x00, 0x00}
	for i := 0; i < 40; i++ {
		size := int32(4 + 1 + 2 + len(inner) + 1)
		doc := []byte{byte(size), byte(size >> 8), byte(size >> 16), byte(size >> 24)}
		doc = append(doc, 0x03, 'a', 0x00)
		doc = append(doc, inner...)
		doc = append(doc, 0x00)
		inner = doc
	}
	_, err := Parse(inner, Options{MaxDepth: 32})
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
}
