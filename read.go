package ftdc

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"io/ioutil"

	"github.com/pkg/errors"

	"github.com/b1ron/ftdc/bson"
)

// ErrInflate wraps any failure of the external RFC-1951 decompressor.
var ErrInflate = errors.New("ftdc: inflate failed")

// expectedSubtypes is the set of FTDC binary subtypes readChunks treats as
// metric chunks worth decoding; anything else is skipped (e.g. a chunk
// whose payload is a bare metadata document rather than a delta-encoded
// metrics block).
var expectedSubtypes = map[byte]bool{0x00: true, 0x01: true}

// readDiagnostic reads successive size-prefixed top-level BSON documents
// from f and sends their raw bytes on ch, closing ch when the reader is
// exhausted or a non-EOF error occurs. ch is closed unconditionally via
// defer so a read error can't leave readChunks blocked forever on a
// channel that is never closed.
func readDiagnostic(f io.Reader, ch chan<- []byte) error {
	defer close(ch)
	buf := bufio.NewReader(f)
	for {
		raw, err := readRawDocument(buf)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "ftdc: read diagnostic stream")
		}
		ch <- raw
	}
}

// readRawDocument reads one size-prefixed BSON document's raw bytes,
// using only the leading 4-byte length (the document's own framing) to
// know how much to read.
func readRawDocument(buf *bufio.Reader) ([]byte, error) {
	hdr, err := buf.Peek(4)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	l := int(binary.LittleEndian.Uint32(hdr))
	if l < 5 {
		return nil, bson.ErrInvalidSize
	}
	raw := make([]byte, l)
	if _, err := io.ReadFull(buf, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// readChunks consumes raw chunk byte buffers from ch, decodes each into a
// Chunk, and sends the result on out.
func readChunks(ch <-chan []byte, out chan<- Chunk) error {
	defer close(out)
	for raw := range ch {
		chunk, skip, err := decodeChunk(raw)
		if err != nil {
			return err
		}
		if skip {
			continue
		}
		out <- chunk
	}
	return nil
}

// decodeChunk decodes a single raw chunk document: it extracts the binary
// carrier, inflates it, parses the leading reference document, flattens
// that reference to an ordered field list, and decodes the remaining bytes
// as the delta-encoded metrics matrix against that list.
func decodeChunk(raw []byte) (chunk Chunk, skip bool, err error) {
	carrier, err := bson.ParseFTDC(raw)
	if err != nil {
		return Chunk{}, false, errors.Wrap(err, "ftdc: parse chunk carrier")
	}
	if !expectedSubtypes[carrier.Subtype] {
		return Chunk{}, true, nil
	}

	inflated, err := inflate(carrier.Payload)
	if err != nil {
		return Chunk{}, false, err
	}

	if len(inflated) < 4 {
		return Chunk{}, false, errors.Wrap(bson.ErrInvalidSize, "ftdc: inflated payload too short for reference length")
	}
	refLen := binary.LittleEndian.Uint32(inflated[:4])
	if int(refLen) > len(inflated) {
		return Chunk{}, false, errors.Wrap(bson.ErrInvalidSize, "ftdc: reference document length exceeds payload")
	}

	refDoc, err := bson.Parse(inflated[:refLen], bson.Options{})
	if err != nil {
		return Chunk{}, false, errors.Wrap(err, "ftdc: parse reference document")
	}

	flat, err := flattenReference(refDoc)
	if err != nil {
		return Chunk{}, false, err
	}

	metrics, nSamples, err := decodeMetrics(inflated[refLen:], flat)
	if err != nil {
		return Chunk{}, false, err
	}

	return Chunk{Metrics: metrics, NDeltas: int(nSamples)}, false, nil
}

// inflate decompresses an FTDC chunk's zlib-wrapped DEFLATE payload.
func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(ErrInflate, err.Error())
	}
	defer zr.Close()
	out, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(ErrInflate, err.Error())
	}
	return out, nil
}
