package coordination

import (
	"context"

	"github.com/samuel/go-zookeeper/zk"
)

// Partition recomputes this daemon's assignment for set, matching
// zookeeper.py's Zookeeper.partition: unequal input finishes the existing
// partitioner before building a new one; equal input is a no-op.
func (s *Session) Partition(set []string) error {
	s.partitionerMu.Lock()
	defer s.partitionerMu.Unlock()

	if sameSet(s.lastSet, set) && s.partitioner != nil {
		return nil
	}

	if s.partitioner != nil {
		s.partitioner.finish()
	}

	p, err := newPartitioner(s.log, s.rawConn(), set)
	if err != nil {
		return err
	}

	s.partitioner = p
	s.lastSet = append([]string(nil), set...)
	return nil
}

// Partitioner returns the current partitioner, or nil if Partition has
// never been called.
func (s *Session) Partitioner() *Partitioner {
	s.partitionerMu.Lock()
	defer s.partitionerMu.Unlock()
	return s.partitioner
}

// ReleaseSet finishes the current partitioner in response to an external
// "release" signal; the caller must skip the cycle afterward.
func (s *Session) ReleaseSet() {
	s.partitionerMu.Lock()
	defer s.partitionerMu.Unlock()
	if s.partitioner != nil {
		s.partitioner.finish()
		s.partitioner = nil
		s.lastSet = nil
	}
}

// rawConn returns the live *zk.Conn, re-dialed transparently by UpdateHosts.
func (s *Session) rawConn() *zk.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// AcquireRangeLock acquires the distributed lock for the range identified
// by (startToken, endToken]. Contenders are inspected before attempting to
// acquire, and a non-empty contender list causes the caller to skip the
// range rather than queue behind it.
func (s *Session) AcquireRangeLock(ctx context.Context, startToken, endToken string) (*Lock, error) {
	return acquireRangeLock(s.rawConn(), startToken, endToken)
}
