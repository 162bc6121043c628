// Package ftdc decodes MongoDB Full-Time Diagnostic Data Capture metric
// chunks into a chronological stream of reconstructed sample documents.
//
// Chunks are zlib-deflated, BSON-wrapped blocks containing a reference
// document and a transposed, delta-encoded matrix of sample values. Decoding
// a chunk means inflating its payload, parsing the reference document with
// package bson, flattening it to an ordered list of numeric leaves, and
// reversing the delta encoding against that list to recover each sample.
package ftdc

import (
	"io"
	"time"
)

// Chunk represents one decoded FTDC metric chunk: the reference document's
// numeric leaves plus their per-sample deltas.
type Chunk struct {
	Metrics []Metric

	// NDeltas is the number of samples encoded in this chunk; every Metric
	// in Metrics has exactly this many Deltas, except after Clip narrows
	// it, or when the chunk had zero samples.
	NDeltas int
}

// Metric represents one flattened reference column of a chunk.
type Metric struct {
	// Key is the dotted path of the metric, e.g.
	// "serverStatus.wiredTiger.cache.bytes currently in the cache".
	Key string

	// Value is the reference base value: the metric's value immediately
	// before the first delta is applied.
	Value int64

	// Deltas is the first-difference series for this metric, in sample
	// order, after zero-run expansion and before prefix-summing.
	Deltas []int64
}

// Map converts the chunk to a map representation keyed by metric name.
func (c *Chunk) Map() map[string]Metric {
	m := make(map[string]Metric, len(c.Metrics))
	for _, metric := range c.Metrics {
		m[metric.Key] = metric
	}
	return m
}

// Clip trims the chunk to contain as little data as possible while keeping
// data within [start, end]. If the chunk is entirely outside of the range,
// it is not modified and the return value is false.
func (c *Chunk) Clip(start, end time.Time) bool {
	st := start.Unix()
	et := end.Unix()
	var si, ei int
	for _, m := range c.Metrics {
		if m.Key != "start" {
			continue
		}

		mst := m.Value / 1000
		met := (m.Value + sum(m.Deltas...)) / 1000
		if met < st || mst > et {
			return false // entire chunk outside range
		}

		if mst > st && met < et {
			return true // entire chunk inside range
		}

		t := mst
		for i := 0; i < c.NDeltas; i++ {
			t += m.Deltas[i] / 1000
			if t < st {
				si++
			}
			if t < et {
				ei++
			} else {
				break
			}
		}
		if ei+1 < c.NDeltas {
			ei++ // inclusive of end time
		} else {
			ei = c.NDeltas - 1
		}
		break
	}

	c.NDeltas = ei - si
	for i := range c.Metrics {
		c.Metrics[i].Value += sum(c.Metrics[i].Deltas[:si]...)
		c.Metrics[i].Deltas = c.Metrics[i].Deltas[si : ei+1]
	}
	return true
}

// Sample is one reconstructed row of the chunk: the flattened reference
// paths paired with the restored cumulative value at this sample index.
// Sample shares its path slice with the Chunk it came from rather than
// copying keys per sample.
type Sample struct {
	paths  []string
	values []int64
}

// Len returns the number of fields in the sample.
func (s Sample) Len() int {
	return len(s.paths)
}

// At returns the dotted path and restored value of the i'th field, in
// flattened-reference order.
func (s Sample) At(i int) (path string, value int64) {
	return s.paths[i], s.values[i]
}

// Map converts the sample to an unordered map.
func (s Sample) Map() map[string]int64 {
	m := make(map[string]int64, len(s.paths))
	for i, p := range s.paths {
		m[p] = s.values[i]
	}
	return m
}

// SampleIter lazily reconstructs one Sample per step from a Chunk's base
// values and delta series: each step prefix-sums one more column of the
// delta matrix rather than materializing the whole restored matrix up
// front.
type SampleIter struct {
	paths   []string
	running []int64
	deltas  [][]int64
	idx, n  int
}

// Samples returns a lazy iterator over the chunk's reconstructed samples,
// in order s = 0, 1, ...: one sample per entry of the longest Deltas
// series (NDeltas samples for a chunk that has not been clipped).
func (c *Chunk) Samples() *SampleIter {
	paths := make([]string, len(c.Metrics))
	running := make([]int64, len(c.Metrics))
	deltas := make([][]int64, len(c.Metrics))
	n := 0
	for i, m := range c.Metrics {
		paths[i] = m.Key
		running[i] = m.Value
		deltas[i] = m.Deltas
		if len(m.Deltas) > n {
			n = len(m.Deltas)
		}
	}
	return &SampleIter{paths: paths, running: running, deltas: deltas, n: n}
}

// Next returns the next reconstructed sample, and false once exhausted.
func (it *SampleIter) Next() (Sample, bool) {
	if it.idx >= it.n {
		return Sample{}, false
	}
	values := make([]int64, len(it.running))
	for m := range it.running {
		if it.idx < len(it.deltas[m]) {
			it.running[m] += it.deltas[m][it.idx]
		}
		values[m] = it.running[m]
	}
	it.idx++
	return Sample{paths: it.paths, values: values}, true
}

// Chunks takes an FTDC diagnostic file in the form of an io.Reader, and
// yields chunks on the given channel. The channel is closed when there are
// no more chunks: a reader goroutine feeds a decode goroutine over a raw
// chunk-bytes channel.
func Chunks(r io.Reader, c chan<- Chunk) error {
	errCh := make(chan error, 2)
	ch := make(chan []byte)
	go func() {
		errCh <- readDiagnostic(r, ch)
	}()
	go func() {
		errCh <- readChunks(ch, c)
	}()
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}

func sum(l ...int64) (s int64) {
	for _, v := range l {
		s += v
	}
	return
}

func square(n int64) int64 {
	return n * n
}
