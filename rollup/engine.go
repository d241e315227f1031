// Package rollup implements RollupEngine: the per-metric aggregation state
// machine that converts overflow fine-archive samples into coarse-archive
// samples under the retention/quorum model, grounded on node_handler.py's
// NodeHandler.
package rollup

import (
	"context"
	"sort"
	"time"

	"github.com/jeffpierce/cassandra-rollup/logging"
	"github.com/jeffpierce/cassandra-rollup/tree"
)

// Engine rolls up a single node at a time. It holds no per-node state
// across calls to Rollup -- metadata caching lives on each *tree.Node
// instead.
type Engine struct {
	log *logging.Logger
	now func() int64
}

// NewEngine builds an Engine. now defaults to the wall clock; tests supply
// a fixed value so archive derivation is deterministic.
func NewEngine(log *logging.Logger) *Engine {
	return &Engine{log: log, now: func() int64 { return time.Now().Unix() }}
}

// Rollup derives this node's archives newest-to-oldest and rolls up every
// adjacent (fine, coarse) pair, matching node_handler.py's node_found. The
// oldest archive has no coarser partner and is therefore never used as
// "fine" -- the loop bound enforces that exactly len(archives)-1 calls to
// doRollup happen, one per adjacent pair.
func (e *Engine) Rollup(ctx context.Context, node tree.NodeHandle) error {
	start := time.Now()
	e.log.LogInfo("rollup: started %s", node.NodePath())

	metadata, err := node.ReadMetadata(ctx)
	if err != nil {
		return err
	}

	slices, err := node.Slices(ctx)
	if err != nil {
		return err
	}

	archives := deriveArchives(metadata.Retentions, slices, e.now())

	for i := 0; i < len(archives)-1; i++ {
		if err := e.doRollup(ctx, node, metadata, archives[i], archives[i+1]); err != nil {
			return err
		}
	}

	e.log.LogInfo("rollup: finished %s, took %s", node.NodePath(), time.Since(start))
	return nil
}

// doRollup converts overflow fine samples into coarse samples, one coarse
// window at a time.
func (e *Engine) doRollup(ctx context.Context, node tree.NodeHandle, metadata *tree.Metadata, fine, coarse *Archive) error {
	if coarse == nil {
		return nil
	}

	overflow, err := e.readOverflow(ctx, fine)
	if err != nil {
		return err
	}
	if len(overflow) == 0 {
		return nil
	}

	xff := metadata.XFilesFactor

	// Each window's aggregate is computed and written before moving to the
	// next, preserving the ordering guarantee that writes for a window
	// complete before its successor begins.
	for i := uint32(0); i < coarse.Retention; i++ {
		windowStart := coarse.StartTime + int64(i)*int64(coarse.Precision)
		windowEnd := windowStart + int64(coarse.Precision)

		var windowPoints []tree.Datapoint
		for _, d := range overflow {
			if d.Timestamp >= windowStart && d.Timestamp < windowEnd {
				windowPoints = append(windowPoints, d)
			}
		}
		if len(windowPoints) == 0 {
			continue
		}

		known := make([]float64, 0, len(windowPoints))
		for _, d := range windowPoints {
			if d.Value != nil {
				known = append(known, *d.Value)
			}
		}
		if len(known) == 0 {
			continue
		}

		knownFraction := float64(len(known)) / float64(len(windowPoints))
		if knownFraction < xff {
			continue
		}

		value, err := aggregate(metadata.AggregationMethod, known)
		if err != nil {
			return err
		}

		if err := e.placeSample(ctx, node, coarse, windowStart, value); err != nil {
			return err
		}
	}

	return nil
}

// readOverflow reads every overflow slice's [slice.Start(), fine.StartTime)
// and returns the concatenation, sorted ascending by timestamp, treating
// ErrNoData as an empty read.
func (e *Engine) readOverflow(ctx context.Context, fine *Archive) ([]tree.Datapoint, error) {
	var overflow []tree.Datapoint

	for _, s := range fine.Slices {
		if !(s.Start() < fine.StartTime) {
			continue
		}
		points, err := s.Read(ctx, s.Start(), fine.StartTime)
		if err != nil {
			if isNoData(err) {
				continue
			}
			return nil, err
		}
		overflow = append(overflow, points...)
	}

	sort.SliceStable(overflow, func(i, j int) bool {
		return overflow[i].Timestamp < overflow[j].Timestamp
	})

	return overflow, nil
}

func isNoData(err error) bool {
	_, ok := err.(*tree.ErrNoData)
	return ok
}

// placeSample writes into an existing coarse slice covering windowStart, or
// creates one.
func (e *Engine) placeSample(ctx context.Context, node tree.NodeHandle, coarse *Archive, windowStart int64, value float64) error {
	for _, s := range coarse.Slices {
		if s.Covers(windowStart) {
			return s.Write(ctx, []tree.Datapoint{{Timestamp: windowStart, Value: &value}})
		}
	}

	newSlice, err := node.CreateSlice(ctx, windowStart, coarse.Precision, coarse.Retention)
	if err != nil {
		return err
	}
	if err := newSlice.Write(ctx, []tree.Datapoint{{Timestamp: windowStart, Value: &value}}); err != nil {
		return err
	}
	coarse.Slices = append(coarse.Slices, newSlice)
	return nil
}
