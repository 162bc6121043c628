package ftdc

import (
	"github.com/pkg/errors"

	"github.com/b1ron/ftdc/bsoncore"
)

// ErrChunkTooLarge is returned when N_metrics * N_samples exceeds
// maxDeltaMatrixSize, checked before any allocation proportional to the
// product.
var ErrChunkTooLarge = errors.New("ftdc: metrics count * samples count exceeds limit")

// maxDeltaMatrixSize bounds N_metrics * N_samples to guard against
// malformed or malicious chunks.
const maxDeltaMatrixSize = 1_000_000

// decodeMetrics reads the N_metrics/N_samples header and the zero-run-
// compressed, metric-major delta stream from tail, and returns one Metric
// per flattened reference field: Value is the reference base and Deltas is
// the raw (pre-prefix-sum) first-difference series for that column.
//
// Each varint in the stream is either a non-zero delta or a literal 0
// signaling the start of a zero run: the following varint k means k
// additional zeros follow the one already consumed, for a total run length
// of k+1. Non-zero varints carry the unsigned LEB128 encoding of a
// two's-complement int64 bit pattern, not a zig-zag-encoded value.
func decodeMetrics(tail []byte, flat []FlatField) (metrics []Metric, nSamples uint32, err error) {
	cur := bsoncore.NewCursor(tail)
	nMetrics, err := cur.ReadU32LE()
	if err != nil {
		return nil, 0, errors.Wrap(err, "ftdc: read metrics count")
	}
	nSamples, err = cur.ReadU32LE()
	if err != nil {
		return nil, 0, errors.Wrap(err, "ftdc: read samples count")
	}

	if int(nMetrics) != len(flat) {
		return nil, 0, errors.Wrapf(ErrMetricsCountMismatch,
			"expected %d metrics, reference flattened to %d", nMetrics, len(flat))
	}

	if nSamples == 0 {
		metrics = make([]Metric, len(flat))
		for i, f := range flat {
			metrics[i] = Metric{Key: f.Path, Value: f.Base}
		}
		return metrics, 0, nil
	}

	total := uint64(nMetrics) * uint64(nSamples)
	if total > maxDeltaMatrixSize {
		return nil, 0, errors.Wrapf(ErrChunkTooLarge, "%d metrics * %d samples", nMetrics, nSamples)
	}

	deltas := make([]int64, total)
	var zeroes uint64
	for i := uint64(0); i < total; i++ {
		if zeroes > 0 {
			zeroes--
			continue
		}
		v, err := cur.DecodeVarint()
		if err != nil {
			return nil, 0, errors.Wrapf(err, "ftdc: decode varint at index %d", i)
		}
		if v == 0 {
			k, err := cur.DecodeVarint()
			if err != nil {
				return nil, 0, errors.Wrap(err, "ftdc: decode zero-run count")
			}
			zeroes = k
			continue
		}
		// The producer writes deltas as the unsigned LEB128 bit pattern of
		// a two's-complement int64; reinterpreting that bit pattern as
		// int64 here restores the sign.
		deltas[i] = int64(v)
	}

	metrics = make([]Metric, len(flat))
	n := int(nSamples)
	for m, f := range flat {
		metrics[m] = Metric{
			Key:    f.Path,
			Value:  f.Base,
			Deltas: deltas[m*n : (m+1)*n],
		}
	}
	return metrics, nSamples, nil
}
