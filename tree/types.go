// Package tree implements TreeClient: a read/write abstraction over the
// persisted metric namespace, backed by Cassandra tables following
// StoreManager.populateSchema's table-per-precision convention.
package tree

import "fmt"

// AggregationMethod is the function used to combine fine datapoints into a
// single coarse datapoint.
type AggregationMethod string

const (
	Avg     AggregationMethod = "avg"
	Sum     AggregationMethod = "sum"
	Min     AggregationMethod = "min"
	Max     AggregationMethod = "max"
	Median  AggregationMethod = "median"
	Unknown AggregationMethod = ""
)

// Retention is one entry in a node's retention policy: samples at Precision
// are kept for RetentionCount * Precision seconds.
type Retention struct {
	Precision      uint32
	RetentionCount uint32
}

// Metadata is the parsed form of a node's untyped key/value metadata map.
type Metadata struct {
	Retentions        []Retention
	AggregationMethod  AggregationMethod
	XFilesFactor       float64
}

// Datapoint is one (timestamp, value) sample. Value is nil to represent a
// null/missing sample within an otherwise present window.
type Datapoint struct {
	Timestamp int64
	Value     *float64
}

// PathEntry is one item yielded by SelfAndChildPaths.
type PathEntry struct {
	Path     string
	IsMetric bool
}

// ErrNoData is returned by Slice.Read when the slice has no samples in the
// requested range. Callers treat it as an empty result, never as fatal.
type ErrNoData struct {
	Path      string
	From, To  int64
}

func (e *ErrNoData) Error() string {
	return fmt.Sprintf("no data for %s in [%d, %d)", e.Path, e.From, e.To)
}
