package coordination

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samuel/go-zookeeper/zk"

	"github.com/jeffpierce/cassandra-rollup/logging"
)

// Partitioner deterministically assigns a disjoint subset of a token-range
// set to each live daemon, matching Kazoo's SetPartitioner recipe. Kazoo's
// recipe has no ZK-native Go equivalent, so membership and assignment are
// hand-rolled on ephemeral sequential children.
type Partitioner struct {
	log     *logging.Logger
	conn    *zk.Conn
	set     []string
	myNode  string

	mu         sync.Mutex
	state      PartitionState
	assignment []string
	failReason string

	stop chan struct{}
	done chan struct{}
}

func identity() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// newPartitioner registers this member under /cassandra/servers/members and
// starts watching the membership list to (re)compute its assignment.
func newPartitioner(log *logging.Logger, conn *zk.Conn, set []string) (*Partitioner, error) {
	nodePath, err := conn.CreateProtectedEphemeralSequential(
		membersPath+"/member-", []byte(identity()), zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("register partitioner member: %w", err)
	}

	p := &Partitioner{
		log:    log,
		conn:   conn,
		set:    append([]string(nil), set...),
		myNode: nodePath,
		state:  Allocating,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go p.watch()
	return p, nil
}

func (p *Partitioner) watch() {
	defer close(p.done)

	for {
		children, _, events, err := p.conn.ChildrenW(membersPath)
		if err != nil {
			p.setFailed(fmt.Sprintf("watch members: %v", err))
			return
		}

		p.recompute(children)

		select {
		case <-events:
			// membership changed; loop and recompute
		case <-p.stop:
			return
		}
	}
}

func (p *Partitioner) recompute(children []string) {
	sort.Strings(children)

	myBase := lastPathElement(p.myNode)
	present := false
	for _, c := range children {
		if c == myBase {
			present = true
			break
		}
	}
	if !present {
		p.setFailed("this member's node disappeared from the partition set")
		return
	}

	assignment := assignSet(p.set, children, myBase)

	p.mu.Lock()
	p.assignment = assignment
	p.state = Acquired
	p.mu.Unlock()
}

// assignSet buckets the elements of set across the sorted member list by a
// stable hash, and returns the subset bucketed to self.
func assignSet(set []string, members []string, self string) []string {
	idx := -1
	for i, m := range members {
		if m == self {
			idx = i
			break
		}
	}
	if idx < 0 || len(members) == 0 {
		return nil
	}

	var mine []string
	for _, item := range set {
		h := fnv.New32a()
		h.Write([]byte(item))
		bucket := int(h.Sum32()) % len(members)
		if bucket < 0 {
			bucket += len(members)
		}
		if bucket == idx {
			mine = append(mine, item)
		}
	}
	return mine
}

func lastPathElement(path string) string {
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

func (p *Partitioner) setFailed(reason string) {
	p.mu.Lock()
	p.state = Failed
	p.failReason = reason
	p.mu.Unlock()
	p.log.LogError("coordination: partitioner failed: %s", reason)
}

// State returns the partitioner's current observable state.
func (p *Partitioner) State() PartitionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Assignment returns this member's current subset of the input set.
func (p *Partitioner) Assignment() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.assignment...)
}

// WaitForAcquire blocks until the partitioner reaches Acquired or Failed,
// matching partitioner.wait_for_acquire() in rollup.py.
func (p *Partitioner) WaitForAcquire(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		switch p.State() {
		case Acquired:
			return nil
		case Failed:
			p.mu.Lock()
			reason := p.failReason
			p.mu.Unlock()
			return &ErrPartitionFailed{Reason: reason}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// MarkReleasing flags this partitioner for release, matching the external
// "release" signal handled by ReleaseSet.
func (p *Partitioner) MarkReleasing() {
	p.mu.Lock()
	p.state = Releasing
	p.mu.Unlock()
}

// finish stops watching membership and removes this member's ephemeral
// node, matching Kazoo's SetPartitioner.finish().
func (p *Partitioner) finish() {
	close(p.stop)
	<-p.done
	_ = p.conn.Delete(p.myNode, -1)
}
