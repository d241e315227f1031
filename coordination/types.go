// Package coordination wraps the ZooKeeper-like coordination service:
// session management, namespace bootstrap, set partitioning, and per-range
// distributed locking, grounded on zookeeper.py's Zookeeper
// class and backed by github.com/samuel/go-zookeeper/zk.
package coordination

import "fmt"

const (
	basePath        = "/cassandra"
	serversPath     = basePath + "/servers"
	tokenRangesPath = basePath + "/token_ranges"
	membersPath     = serversPath + "/members"
)

// PartitionState mirrors the Kazoo SetPartitioner state machine.
type PartitionState int

const (
	Allocating PartitionState = iota
	Acquired
	Failed
	Releasing
)

func (s PartitionState) String() string {
	switch s {
	case Allocating:
		return "allocating"
	case Acquired:
		return "acquired"
	case Failed:
		return "failed"
	case Releasing:
		return "release"
	default:
		return "unknown"
	}
}

// ErrPartitionFailed is returned when the partitioner could not settle on
// an assignment.
type ErrPartitionFailed struct {
	Reason string
}

func (e *ErrPartitionFailed) Error() string {
	return fmt.Sprintf("partition failed: %s", e.Reason)
}

// ErrPartitionReleasing signals the caller must call ReleaseSet and skip
// the cycle.
type ErrPartitionReleasing struct{}

func (e *ErrPartitionReleasing) Error() string { return "partitioner is releasing" }

// ErrLockContended is returned when a range lock already has a contender.
// Skipping a contended range rather than blocking on it keeps one slow or
// stuck worker from stalling the rest of the cycle.
type ErrLockContended struct {
	Path       string
	Contenders []string
}

func (e *ErrLockContended) Error() string {
	return fmt.Sprintf("lock on %s contended by %v", e.Path, e.Contenders)
}
