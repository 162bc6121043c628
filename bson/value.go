// Package bson implements the subset of the BSON wire format needed to
// decode MongoDB FTDC chunks and the serverStatus documents embedded in
// them: the scalar types, document/array nesting, and the one piece of
// type-punning FTDC relies on, reading the binary payload of a chunk
// without parsing the rest of the document.
//
// This is a reader only. There is no writer here; FTDC never needs to
// produce BSON, only consume it.
package bson

// Type is a BSON element type tag, as laid out on the wire.
type Type byte

const (
	TypeDouble    Type = 0x01
	TypeString    Type = 0x02
	TypeDocument  Type = 0x03
	TypeArray     Type = 0x04
	TypeBinary    Type = 0x05
	TypeObjectID  Type = 0x07
	TypeBoolean   Type = 0x08
	TypeDateTime  Type = 0x09
	TypeNull      Type = 0x0A
	TypeInt32     Type = 0x10
	TypeTimestamp Type = 0x11
	TypeInt64     Type = 0x12
)

// Elem is a single named element of a document, in the order it appeared
// on the wire.
type Elem struct {
	Name  string
	Value interface{}
}

// D is an ordered BSON document: a slice of named elements. Order is
// significant and is preserved from the wire; it is what the flattener in
// package ftdc depends on to line up with the producer's metric columns.
type D []Elem

// Map converts d to an unordered map, discarding order and any duplicate
// keys but the last. Useful for simple top-level lookups (e.g. the FTDC
// chunk trailer's "type"/"data" fields) where order does not matter.
func (d D) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(d))
	for _, e := range d {
		m[e.Name] = e.Value
	}
	return m
}

// Array is a BSON array: structurally a document whose keys are the
// decimal string indices "0", "1", ... in order. It is a distinct type
// from D purely so callers (and a round-trip writer) can tell the two
// apart; traversal is identical.
type Array D

// Binary is a BSON binary value: a subtype byte and the raw payload.
// Subtype 0x00 and 0x01 are used by FTDC for chunk payloads; other
// subtypes are preserved but not interpreted.
type Binary struct {
	Subtype byte
	Payload []byte
}

// ObjectID is the 12 raw bytes of a BSON ObjectId.
type ObjectID [12]byte

// DateTime is milliseconds since the Unix epoch, as stored on the wire.
type DateTime int64

// Int32 distinguishes a BSON Int32 element from a Go int32 used
// incidentally elsewhere; its dynamic type is what a type switch on
// Elem.Value keys off of.
type Int32 int32

// Int64 is the wire Int64 type.
type Int64 int64

// Timestamp is a BSON Timestamp: a single uint64 on the wire that packs
// two uint32 halves, an increment ordinal and a seconds-since-epoch value.
// Bit layout (per bsonspec.org): ordinal in the low 32 bits, seconds in
// the high 32 bits.
type Timestamp uint64

// Seconds returns the seconds-since-epoch half of the timestamp.
func (t Timestamp) Seconds() uint32 {
	return uint32(uint64(t) >> 32)
}

// Ordinal returns the increment-ordinal half of the timestamp.
func (t Timestamp) Ordinal() uint32 {
	return uint32(uint64(t))
}

// Null is the BSON Null value. There is exactly one instance, NullValue;
// comparing an Elem.Value against it with == identifies a null element.
type Null struct{}

// NullValue is the sentinel value of all BSON Null elements.
var NullValue = Null{}

// FtdcCarrier is returned by ParseFTDC: the binary payload of the first
// top-level Binary element found, without parsing the rest of the
// document. See ParseFTDC.
type FtdcCarrier struct {
	Subtype byte
	Payload []byte
}
