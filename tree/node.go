package tree

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Node is a point in the metric tree. GetNode returns a fresh *Node on every
// call, so the metadata cache below is naturally scoped to one invocation of
// rollup(node) -- there is no cross-invocation state to evict.
type Node struct {
	Path     string
	IsMetric bool
	tree     *Client

	metadata *Metadata // cached for the lifetime of this *Node only
}

// ReadMetadata returns the node's parsed metadata, caching the result on
// this *Node so repeated reads within one rollup(node) invocation cost one
// query, not one per read. Since every caller gets its own *Node from
// GetNode, this cache is never shared across concurrent workers.
func (n *Node) ReadMetadata(ctx context.Context) (*Metadata, error) {
	if n.metadata != nil {
		return n.metadata, nil
	}

	var retentionsRaw, method string
	var xff float64
	err := n.tree.session.Query(
		`SELECT retentions, aggregation_method, xfiles_factor FROM node_metadata WHERE path = ?`,
		n.Path,
	).WithContext(ctx).Scan(&retentionsRaw, &method, &xff)
	if err != nil {
		return nil, fmt.Errorf("read metadata for %s: %w", n.Path, err)
	}

	retentions, err := parseRetentions(retentionsRaw)
	if err != nil {
		return nil, fmt.Errorf("parse retentions for %s: %w", n.Path, err)
	}

	m := &Metadata{
		Retentions:        retentions,
		AggregationMethod: AggregationMethod(method),
		XFilesFactor:      xff,
	}
	n.metadata = m
	return m, nil
}

// parseRetentions parses the stored "precision:count,precision:count,..."
// representation, sorted ascending by precision invariant.
func parseRetentions(raw string) ([]Retention, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]Retention, 0, len(parts))
	for _, p := range parts {
		fields := strings.SplitN(p, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed retention entry %q", p)
		}
		precision, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed precision in %q: %w", p, err)
		}
		count, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed retention count in %q: %w", p, err)
		}
		out = append(out, Retention{Precision: uint32(precision), RetentionCount: uint32(count)})
	}
	return out, nil
}

// Slices returns every slice registered for this node, across all
// precisions. Branch nodes never have slices.
func (n *Node) Slices(ctx context.Context) ([]SliceHandle, error) {
	var timeStep int
	var start, end int64

	iter := n.tree.session.Query(
		`SELECT time_step, start_time, end_time FROM node_slices WHERE path = ?`,
		n.Path,
	).WithContext(ctx).Iter()

	var out []SliceHandle
	for iter.Scan(&timeStep, &start, &end) {
		out = append(out, &Slice{
			node:      n,
			TimeStep:  uint32(timeStep),
			StartTime: start,
			EndTime:   end,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("read slices for %s: %w", n.Path, err)
	}
	return out, nil
}

// CreateSlice registers a new slice for the node at the given precision,
// starting at startTime. Its EndTime is fixed at creation to
// startTime + step*retention, so it covers one full retention span.
func (n *Node) CreateSlice(ctx context.Context, startTime int64, step uint32, retention uint32) (SliceHandle, error) {
	endTime := startTime + int64(step)*int64(retention)
	err := n.tree.session.Query(
		`INSERT INTO node_slices (path, time_step, start_time, end_time) VALUES (?, ?, ?, ?)`,
		n.Path, int(step), startTime, endTime,
	).WithContext(ctx).Exec()
	if err != nil {
		return nil, fmt.Errorf("create slice for %s: %w", n.Path, err)
	}
	return &Slice{node: n, TimeStep: step, StartTime: startTime, EndTime: endTime}, nil
}
