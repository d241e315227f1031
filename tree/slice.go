package tree

import (
	"context"
	"fmt"
)

// Slice is a contiguous samples container for one precision.
type Slice struct {
	node      *Node
	StartTime int64
	EndTime   int64
	TimeStep  uint32
}

// Read returns the points in [from, to), strictly increasing by timestamp.
// An empty result is reported as ErrNoData, so callers can treat "nothing
// written yet" as a normal, recoverable case.
func (s *Slice) Read(ctx context.Context, from, to int64) ([]Datapoint, error) {
	table := fmt.Sprintf(tableNameFormat, s.TimeStep)
	query := fmt.Sprintf(
		`SELECT ts, value, has_value FROM %s WHERE path = ? AND ts >= ? AND ts < ?`, table)

	iter := s.node.tree.session.Query(query, s.node.Path, from, to).WithContext(ctx).Iter()

	var ts int64
	var value float64
	var hasValue bool
	var out []Datapoint
	for iter.Scan(&ts, &value, &hasValue) {
		dp := Datapoint{Timestamp: ts}
		if hasValue {
			v := value
			dp.Value = &v
		}
		out = append(out, dp)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("read slice %s[%d]: %w", s.node.Path, s.TimeStep, err)
	}

	if len(out) == 0 {
		return nil, &ErrNoData{Path: s.node.Path, From: from, To: to}
	}
	return out, nil
}

// Write is append-preferred: it is safe to call against a slice whose
// [StartTime, EndTime] already covers the written timestamps.
func (s *Slice) Write(ctx context.Context, points []Datapoint) error {
	if len(points) == 0 {
		return nil
	}

	table := fmt.Sprintf(tableNameFormat, s.TimeStep)
	batch := s.node.tree.session.NewBatch(loggedBatch())
	for _, p := range points {
		hasValue := p.Value != nil
		var value float64
		if hasValue {
			value = *p.Value
		}
		batch.Query(
			fmt.Sprintf(`INSERT INTO %s (path, ts, value, has_value) VALUES (?, ?, ?, ?)`, table),
			s.node.Path, p.Timestamp, value, hasValue,
		)
	}
	if err := s.node.tree.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("write slice %s[%d]: %w", s.node.Path, s.TimeStep, err)
	}
	return nil
}

// Covers reports whether the slice's window contains timestamp t, used by
// RollupEngine's write-placement step to pick an
// existing slice before creating a new one.
func (s *Slice) Covers(t int64) bool {
	return s.StartTime <= t && t <= s.EndTime
}
