package tree

import "context"

// NodeHandle is the subset of *Node that RollupEngine depends on. It exists
// so the engine can be exercised against fakes in tests without a live
// Cassandra session.
type NodeHandle interface {
	NodePath() string
	ReadMetadata(ctx context.Context) (*Metadata, error)
	Slices(ctx context.Context) ([]SliceHandle, error)
	CreateSlice(ctx context.Context, startTime int64, step, retention uint32) (SliceHandle, error)
}

// SliceHandle is the subset of *Slice that RollupEngine depends on.
type SliceHandle interface {
	Start() int64
	End() int64
	Step() uint32
	Covers(t int64) bool
	Read(ctx context.Context, from, to int64) ([]Datapoint, error)
	Write(ctx context.Context, points []Datapoint) error
}

// NodePath implements NodeHandle.
func (n *Node) NodePath() string { return n.Path }

// Start implements SliceHandle.
func (s *Slice) Start() int64 { return s.StartTime }

// End implements SliceHandle.
func (s *Slice) End() int64 { return s.EndTime }

// Step implements SliceHandle.
func (s *Slice) Step() uint32 { return s.TimeStep }
