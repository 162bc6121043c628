package bson

import (
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/b1ron/ftdc/bsoncore"
)

// Error kinds surfaced by the reader. None of these are recovered
// internally; every call site wraps and returns them.
var (
	ErrInvalidSize       = errors.New("bson: invalid document size")
	ErrInvalidTerminator = errors.New("bson: missing or misplaced document terminator")
	ErrUnsupportedType   = errors.New("bson: unsupported element type")
	ErrUtf8              = errors.New("bson: invalid utf-8")
	ErrMaxDepthExceeded  = errors.New("bson: document nesting exceeds max depth")
	ErrNoFTDCPayload     = errors.New("bson: no top-level binary element found")
)

// defaultMaxDepth bounds document/array nesting depth against pathological
// or malicious input; real serverStatus documents nest well within this.
const defaultMaxDepth = 32

// Options controls Parse. ParseFTDC takes no Options; it skips the
// elements before the Binary one with the default depth cap.
type Options struct {
	// MaxDepth bounds document/array nesting depth. Zero means
	// defaultMaxDepth.
	MaxDepth int
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return defaultMaxDepth
	}
	return o.MaxDepth
}

// Parse decodes a single top-level BSON document from data.
func Parse(data []byte, opts Options) (D, error) {
	cur := bsoncore.NewCursor(data)
	doc, err := readDocument(cur, 0, opts.maxDepth())
	if err != nil {
		return nil, errors.Wrap(err, "bson: parse")
	}
	return doc, nil
}

// ParseFTDC scans the top level of data for the first Binary element and
// returns its carrier without parsing the remainder of the document (the
// FTDC chunk trailer commonly encodes a length that would otherwise
// mislead a strict parser). If no top-level Binary element is found,
// ErrNoFTDCPayload is returned.
func ParseFTDC(data []byte) (FtdcCarrier, error) {
	cur := bsoncore.NewCursor(data)
	startPos := cur.Pos()
	size, err := cur.ReadI32LE()
	if err != nil {
		return FtdcCarrier{}, errors.Wrap(err, "bson: parse ftdc header")
	}
	if size < 5 || startPos+int(size) > cur.Len() {
		return FtdcCarrier{}, errors.Wrap(ErrInvalidSize, "bson: parse ftdc header")
	}
	endOffset := startPos + int(size)

	for {
		if cur.Pos() >= endOffset {
			return FtdcCarrier{}, ErrNoFTDCPayload
		}
		t, err := cur.ReadByte()
		if err != nil {
			return FtdcCarrier{}, errors.Wrap(err, "bson: parse ftdc element")
		}
		if t == 0x00 {
			return FtdcCarrier{}, ErrNoFTDCPayload
		}
		if _, err := cur.ReadCString(); err != nil {
			return FtdcCarrier{}, errors.Wrap(err, "bson: parse ftdc element name")
		}
		if Type(t) == TypeBinary {
			length, err := cur.ReadI32LE()
			if err != nil {
				return FtdcCarrier{}, errors.Wrap(err, "bson: read ftdc binary length")
			}
			subtype, err := cur.ReadByte()
			if err != nil {
				return FtdcCarrier{}, errors.Wrap(err, "bson: read ftdc binary subtype")
			}
			payload, err := cur.Take(int(length))
			if err != nil {
				return FtdcCarrier{}, errors.Wrap(err, "bson: read ftdc binary payload")
			}
			return FtdcCarrier{Subtype: subtype, Payload: payload}, nil
		}
		if _, _, err := readValue(cur, Type(t), 0, defaultMaxDepth); err != nil {
			return FtdcCarrier{}, errors.Wrap(err, "bson: skip ftdc element")
		}
	}
}

// readDocument reads the size-prefixed, NUL-terminated element sequence
// starting at the cursor's current position.
func readDocument(cur *bsoncore.Cursor, depth, maxDepth int) (D, error) {
	if depth > maxDepth {
		return nil, ErrMaxDepthExceeded
	}
	startPos := cur.Pos()
	size, err := cur.ReadI32LE()
	if err != nil {
		return nil, err
	}
	if size < 5 {
		return nil, ErrInvalidSize
	}
	endOffset := startPos + int(size)
	if endOffset > cur.Len() {
		return nil, ErrInvalidSize
	}
	// The byte at endOffset-1 must be the document's NUL terminator.
	if last, err := cur.Peek(int(size) - 5); err != nil || last != 0x00 {
		return nil, ErrInvalidTerminator
	}

	var doc D
	for {
		if cur.Pos() >= endOffset {
			return nil, ErrInvalidTerminator
		}
		t, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		if t == 0x00 {
			if cur.Pos() != endOffset {
				return nil, ErrInvalidTerminator
			}
			break
		}
		name, err := cur.ReadCString()
		if err != nil {
			return nil, err
		}
		if !utf8.ValidString(name) {
			return nil, ErrUtf8
		}
		val, skip, err := readValue(cur, Type(t), depth, maxDepth)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		doc = append(doc, Elem{Name: name, Value: val})
	}
	return doc, nil
}

// readArray reads the same on-wire shape as a document (decimal ASCII
// keys) and wraps the result as Array.
func readArray(cur *bsoncore.Cursor, depth, maxDepth int) (Array, error) {
	d, err := readDocument(cur, depth, maxDepth)
	if err != nil {
		return nil, err
	}
	return Array(d), nil
}

func readBsonString(cur *bsoncore.Cursor) (string, error) {
	length, err := cur.ReadI32LE()
	if err != nil {
		return "", err
	}
	if length < 1 {
		return "", ErrInvalidSize
	}
	b, err := cur.Take(int(length))
	if err != nil {
		return "", err
	}
	if len(b) == 0 || b[len(b)-1] != 0x00 {
		return "", ErrInvalidTerminator
	}
	s := string(b[:len(b)-1])
	if !utf8.ValidString(s) {
		return "", ErrUtf8
	}
	return s, nil
}

// readValue reads the value payload for type t. depth is the nesting
// depth of the container t's element lives in (not t itself); nested
// documents/arrays are read at depth+1. skip reports that t was a
// skipped, non-goal type (Undefined, Regex, DBPointer, JS code, Symbol,
// Code-with-scope, Decimal128, MinKey, MaxKey): the cursor has been
// advanced past it, but the caller must not emit an element for it.
func readValue(cur *bsoncore.Cursor, t Type, depth, maxDepth int) (val interface{}, skip bool, err error) {
	switch t {
	case TypeDouble:
		val, err = cur.ReadF64LE()
	case TypeString:
		val, err = readBsonString(cur)
	case TypeDocument:
		val, err = readDocument(cur, depth+1, maxDepth)
	case TypeArray:
		val, err = readArray(cur, depth+1, maxDepth)
	case TypeBinary:
		var length int32
		var subtype byte
		var payload []byte
		length, err = cur.ReadI32LE()
		if err != nil {
			return nil, false, err
		}
		subtype, err = cur.ReadByte()
		if err != nil {
			return nil, false, err
		}
		payload, err = cur.Take(int(length))
		if err != nil {
			return nil, false, err
		}
		// Take aliases the cursor's buffer; copy so the Binary outlives
		// repeated parses of the same scratch slice.
		owned := make([]byte, len(payload))
		copy(owned, payload)
		val = Binary{Subtype: subtype, Payload: owned}
	case TypeObjectID:
		var oid [12]byte
		oid, err = cur.ReadObjectID()
		val = ObjectID(oid)
	case TypeBoolean:
		var b byte
		b, err = cur.ReadByte()
		val = b != 0
	case TypeDateTime:
		var v int64
		v, err = cur.ReadI64LE()
		val = DateTime(v)
	case TypeNull:
		val = NullValue
	case TypeInt32:
		var v int32
		v, err = cur.ReadI32LE()
		val = Int32(v)
	case TypeTimestamp:
		var v uint64
		v, err = cur.ReadU64LE()
		val = Timestamp(v)
	case TypeInt64:
		var v int64
		v, err = cur.ReadI64LE()
		val = Int64(v)
	default:
		if err = skipValue(cur, t, depth, maxDepth); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, false, nil
}

// skipValue consumes the on-wire bytes of an element of a type that this
// reader does not surface a value for (Undefined, Regex, DBPointer, JS
// code, Symbol, Code-with-scope, Decimal128, MinKey, MaxKey), without
// building a BsonValue for it. Anything with truly unknown width fails
// with ErrUnsupportedType rather than risk desynchronizing the cursor.
func skipValue(cur *bsoncore.Cursor, t Type, depth, maxDepth int) error {
	switch t {
	case 0x06, 0xFF, 0x7F: // Undefined, MinKey, MaxKey: no payload
		return nil
	case 0x13: // Decimal128
		_, err := cur.Take(16)
		return err
	case 0x0B: // Regex: pattern cstring, options cstring
		if _, err := cur.ReadCString(); err != nil {
			return err
		}
		_, err := cur.ReadCString()
		return err
	case 0x0C: // DBPointer: string, then 12-byte ObjectId
		if _, err := readBsonString(cur); err != nil {
			return err
		}
		_, err := cur.Take(12)
		return err
	case 0x0D, 0x0E: // JavaScript code, Symbol: string
		_, err := readBsonString(cur)
		return err
	case 0x0F: // Code with scope: i32 total length (inclusive), then code+scope
		total, err := cur.ReadI32LE()
		if err != nil {
			return err
		}
		if total < 4 {
			return ErrInvalidSize
		}
		_, err = cur.Take(int(total) - 4)
		return err
	default:
		return ErrUnsupportedType
	}
}
