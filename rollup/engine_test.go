package rollup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffpierce/cassandra-rollup/logging"
	"github.com/jeffpierce/cassandra-rollup/tree"
)

// fakeSlice is an in-memory tree.SliceHandle, letting Engine be exercised
// without a live Cassandra session.
type fakeSlice struct {
	start, end int64
	step       uint32
	points     map[int64]*float64
}

func newFakeSlice(start, end int64, step uint32) *fakeSlice {
	return &fakeSlice{start: start, end: end, step: step, points: make(map[int64]*float64)}
}

func (s *fakeSlice) Start() int64    { return s.start }
func (s *fakeSlice) End() int64      { return s.end }
func (s *fakeSlice) Step() uint32    { return s.step }
func (s *fakeSlice) Covers(t int64) bool {
	return s.start <= t && t <= s.end
}

func (s *fakeSlice) Read(ctx context.Context, from, to int64) ([]tree.Datapoint, error) {
	var out []tree.Datapoint
	for ts, v := range s.points {
		if ts >= from && ts < to {
			out = append(out, tree.Datapoint{Timestamp: ts, Value: v})
		}
	}
	if len(out) == 0 {
		return nil, &tree.ErrNoData{Path: "fake", From: from, To: to}
	}
	return out, nil
}

func (s *fakeSlice) Write(ctx context.Context, points []tree.Datapoint) error {
	for _, p := range points {
		v := p.Value
		s.points[p.Timestamp] = v
	}
	return nil
}

// fakeNode is an in-memory tree.NodeHandle.
type fakeNode struct {
	path     string
	metadata *tree.Metadata
	slices   []tree.SliceHandle
	created  []*fakeSlice
}

func (n *fakeNode) NodePath() string { return n.path }

func (n *fakeNode) ReadMetadata(ctx context.Context) (*tree.Metadata, error) {
	return n.metadata, nil
}

func (n *fakeNode) Slices(ctx context.Context) ([]tree.SliceHandle, error) {
	return n.slices, nil
}

func (n *fakeNode) CreateSlice(ctx context.Context, startTime int64, step, retention uint32) (tree.SliceHandle, error) {
	s := newFakeSlice(startTime, startTime+int64(step)*int64(retention), step)
	n.created = append(n.created, s)
	n.slices = append(n.slices, s)
	return s, nil
}

func floatp(v float64) *float64 { return &v }

func testEngine(now int64) *Engine {
	log := logging.NewLogger("test", "", logging.SevFatal)
	e := NewEngine(log)
	e.now = func() int64 { return now }
	return e
}

// Two retentions (10s x 360 = 3600s, 60s x 1440 = 86400s): every
// fine-precision overflow sample whose window meets xFilesFactor rolls up
// into the coarse archive.
func TestRollup_BasicAggregation(t *testing.T) {
	now := int64(100_000)

	fine := newFakeSlice(now-4000, now, 10)
	// Populate one full 60s window (6 samples at 10s step) entirely known.
	windowStart := fine.start - fine.start%60
	for i := int64(0); i < 6; i++ {
		fine.points[windowStart+i*10] = floatp(float64(i + 1)) // 1..6, avg=3.5
	}

	node := &fakeNode{
		path: "servers.web01.cpu",
		metadata: &tree.Metadata{
			Retentions: []tree.Retention{
				{Precision: 10, RetentionCount: 360},
				{Precision: 60, RetentionCount: 1440},
			},
			AggregationMethod: tree.Avg,
			XFilesFactor:      0.5,
		},
		slices: []tree.SliceHandle{fine},
	}

	e := testEngine(now)
	require.NoError(t, e.Rollup(context.Background(), node))

	require.Len(t, node.created, 1)
	coarse := node.created[0]
	v, ok := coarse.points[windowStart]
	require.True(t, ok, "expected a coarse sample at window start %d", windowStart)
	require.NotNil(t, v)
	assert.InDelta(t, 3.5, *v, 1e-9)
}

// A window whose known fraction falls below xFilesFactor is skipped. The
// denominator is how many fine datapoints are actually present in the
// window -- known plus explicit nulls -- not some fixed precision-ratio
// capacity, so three present-but-null rows alongside one known row gate out
// at xFilesFactor 0.5 (knownFraction = 1/4).
func TestRollup_XFilesFactorGatesWindow(t *testing.T) {
	now := int64(100_000)

	fine := newFakeSlice(now-4000, now, 10)
	windowStart := fine.start - fine.start%60
	fine.points[windowStart] = floatp(42)
	fine.points[windowStart+10] = nil
	fine.points[windowStart+20] = nil
	fine.points[windowStart+30] = nil

	node := &fakeNode{
		path: "servers.web01.cpu",
		metadata: &tree.Metadata{
			Retentions: []tree.Retention{
				{Precision: 10, RetentionCount: 360},
				{Precision: 60, RetentionCount: 1440},
			},
			AggregationMethod: tree.Avg,
			XFilesFactor:      0.5,
		},
		slices: []tree.SliceHandle{fine},
	}

	e := testEngine(now)
	require.NoError(t, e.Rollup(context.Background(), node))
	assert.Empty(t, node.created, "window below xFilesFactor must not produce a coarse sample")
}

// Boundary case: a window with exactly one present sample, non-null, and
// xFilesFactor = 1.0 writes, since knownFraction = 1/1 = 1.0 >= 1.0.
func TestRollup_XFilesFactorOne_SingleKnownSampleWrites(t *testing.T) {
	now := int64(100_000)

	fine := newFakeSlice(now-4000, now, 10)
	windowStart := fine.start - fine.start%60
	fine.points[windowStart] = floatp(7)

	node := &fakeNode{
		path: "servers.web01.cpu",
		metadata: &tree.Metadata{
			Retentions: []tree.Retention{
				{Precision: 10, RetentionCount: 360},
				{Precision: 60, RetentionCount: 1440},
			},
			AggregationMethod: tree.Avg,
			XFilesFactor:      1.0,
		},
		slices: []tree.SliceHandle{fine},
	}

	e := testEngine(now)
	require.NoError(t, e.Rollup(context.Background(), node))
	require.Len(t, node.created, 1)
	v := node.created[0].points[windowStart]
	require.NotNil(t, v)
	assert.Equal(t, 7.0, *v)
}

// Boundary case: the same window with one known and one explicit null
// sample fails xFilesFactor = 1.0 (knownFraction = 1/2), so it is skipped.
func TestRollup_XFilesFactorOne_WithNullSampleSkipsWindow(t *testing.T) {
	now := int64(100_000)

	fine := newFakeSlice(now-4000, now, 10)
	windowStart := fine.start - fine.start%60
	fine.points[windowStart] = floatp(7)
	fine.points[windowStart+10] = nil

	node := &fakeNode{
		path: "servers.web01.cpu",
		metadata: &tree.Metadata{
			Retentions: []tree.Retention{
				{Precision: 10, RetentionCount: 360},
				{Precision: 60, RetentionCount: 1440},
			},
			AggregationMethod: tree.Avg,
			XFilesFactor:      1.0,
		},
		slices: []tree.SliceHandle{fine},
	}

	e := testEngine(now)
	require.NoError(t, e.Rollup(context.Background(), node))
	assert.Empty(t, node.created, "a present null sample must gate out xFilesFactor 1.0")
}

// xFilesFactor of 0 admits a window with at least one known sample.
func TestRollup_XFilesFactorZeroAdmitsAnyKnownSample(t *testing.T) {
	now := int64(100_000)

	fine := newFakeSlice(now-4000, now, 10)
	windowStart := fine.start - fine.start%60
	fine.points[windowStart] = floatp(9)

	node := &fakeNode{
		path: "servers.web01.cpu",
		metadata: &tree.Metadata{
			Retentions: []tree.Retention{
				{Precision: 10, RetentionCount: 360},
				{Precision: 60, RetentionCount: 1440},
			},
			AggregationMethod: tree.Sum,
			XFilesFactor:      0,
		},
		slices: []tree.SliceHandle{fine},
	}

	e := testEngine(now)
	require.NoError(t, e.Rollup(context.Background(), node))
	require.Len(t, node.created, 1)
	v := node.created[0].points[windowStart]
	require.NotNil(t, v)
	assert.Equal(t, 9.0, *v)
}

// A single retention entry has no coarser partner, so Rollup is a no-op.
func TestRollup_SingleRetentionNoOp(t *testing.T) {
	node := &fakeNode{
		path: "servers.web01.cpu",
		metadata: &tree.Metadata{
			Retentions:        []tree.Retention{{Precision: 10, RetentionCount: 360}},
			AggregationMethod: tree.Avg,
			XFilesFactor:      0.5,
		},
	}

	e := testEngine(100_000)
	require.NoError(t, e.Rollup(context.Background(), node))
	assert.Empty(t, node.created)
}

// Empty overflow (no samples at all in the fine archive) is a normal,
// silent no-op, not an error.
func TestRollup_EmptyOverflowIsNotAnError(t *testing.T) {
	node := &fakeNode{
		path: "servers.web01.cpu",
		metadata: &tree.Metadata{
			Retentions: []tree.Retention{
				{Precision: 10, RetentionCount: 360},
				{Precision: 60, RetentionCount: 1440},
			},
			AggregationMethod: tree.Avg,
			XFilesFactor:      0.5,
		},
	}

	e := testEngine(100_000)
	require.NoError(t, e.Rollup(context.Background(), node))
	assert.Empty(t, node.created)
}

// An unknown aggregation method surfaces ErrUnknownAggregate from Rollup
// itself (Visitor is responsible for treating it as non-fatal).
func TestRollup_UnknownAggregateMethod(t *testing.T) {
	now := int64(100_000)
	fine := newFakeSlice(now-4000, now, 10)
	windowStart := fine.start - fine.start%60
	fine.points[windowStart] = floatp(1)

	node := &fakeNode{
		path: "servers.web01.cpu",
		metadata: &tree.Metadata{
			Retentions: []tree.Retention{
				{Precision: 10, RetentionCount: 360},
				{Precision: 60, RetentionCount: 1440},
			},
			AggregationMethod: tree.AggregationMethod("bogus"),
			XFilesFactor:      0,
		},
		slices: []tree.SliceHandle{fine},
	}

	e := testEngine(now)
	err := e.Rollup(context.Background(), node)
	require.Error(t, err)
	var unknown *ErrUnknownAggregate
	assert.ErrorAs(t, err, &unknown)
}

func TestAggregate_Median_EvenCountUsesUpperMiddle(t *testing.T) {
	v, err := aggregate(tree.Median, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestAggregate_Min_Max(t *testing.T) {
	min, err := aggregate(tree.Min, []float64{5, 2, 8, 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, min)

	max, err := aggregate(tree.Max, []float64{5, 2, 8, 1})
	require.NoError(t, err)
	assert.Equal(t, 8.0, max)
}
