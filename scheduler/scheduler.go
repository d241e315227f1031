// Package scheduler drives the daemon's rollup cycle: on a fixed interval
// it refreshes the ring, partitions the current set of token ranges across
// the ZooKeeper-coordinated daemon fleet, and walks this member's assigned
// ranges with a bounded worker pool. The run loop's shape -- a persistent
// goroutine selecting over a timer channel and a quit channel, with
// non-blocking timer rearm -- follows StoreManager.run/timer.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jeffpierce/cassandra-rollup/config"
	"github.com/jeffpierce/cassandra-rollup/coordination"
	"github.com/jeffpierce/cassandra-rollup/logging"
	"github.com/jeffpierce/cassandra-rollup/ring"
	"github.com/jeffpierce/cassandra-rollup/rollup"
)

// Scheduler owns one rollup cycle's worth of collaborators. RootPath scopes
// the tree walk; an empty RootPath walks the entire namespace.
type Scheduler struct {
	log          *logging.Logger
	loadConfig   func() (*config.Config, error)
	ring         *ring.Client
	coordination *coordination.Session
	visitor      *rollup.Visitor
	interval     time.Duration
	rootPath     string

	running sync.Mutex // held for the duration of one cycle; guards cycle overlap
}

// New builds a Scheduler. loadConfig is called at the start of every cycle
// so that config edits (host lists, thread count) take effect without a
// restart.
func New(log *logging.Logger, loadConfig func() (*config.Config, error), r *ring.Client, coord *coordination.Session, visitor *rollup.Visitor, interval time.Duration, rootPath string) *Scheduler {
	return &Scheduler{
		log:          log,
		loadConfig:   loadConfig,
		ring:         r,
		coordination: coord,
		visitor:      visitor,
		interval:     interval,
		rootPath:     rootPath,
	}
}

// Run ticks every interval until ctx is cancelled. A tick that arrives
// while the previous cycle is still running is dropped rather than queued,
// so a slow cycle never causes a pile-up of overlapping ones.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.LogInfo("scheduler: shutting down")
			return
		case <-ticker.C:
			if !s.running.TryLock() {
				s.log.LogWarn("scheduler: previous cycle still running, dropping this tick")
				continue
			}
			s.runCycle(ctx)
			s.running.Unlock()
			// The ticker holds on to one tick that fired mid-cycle; discard
			// it so an overrunning cycle is not followed immediately by another.
			select {
			case <-ticker.C:
				s.log.LogWarn("scheduler: previous cycle overran the interval, dropping a tick")
			default:
			}
		}
	}
}

// runCycle executes exactly one pass: refresh config, refresh the ring,
// partition it, and dispatch workers over this member's assigned ranges.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()
	s.log.LogInfo("scheduler: cycle starting")

	cfg, err := s.loadConfig()
	if err != nil {
		s.log.LogError("scheduler: reload config: %v", err)
		return
	}

	if err := s.coordination.UpdateHosts(cfg.ZKServers); err != nil {
		s.log.LogError("scheduler: update zookeeper hosts: %v", err)
		return
	}

	assignments, err := s.ring.TokenRangesForEndpoints(ctx, cfg.Keyspace, cfg.CassandraServers, nil)
	if err != nil {
		s.log.LogError("scheduler: describe ring: %v", err)
		return
	}

	rangeByKey := make(map[string]ring.TokenRange, len(assignments))
	keys := make([]string, 0, len(assignments))
	for _, a := range assignments {
		key := a.Range.String()
		if _, dup := rangeByKey[key]; dup {
			continue
		}
		rangeByKey[key] = a.Range
		keys = append(keys, key)
	}

	if err := s.coordination.Partition(keys); err != nil {
		s.log.LogError("scheduler: partition token ranges: %v", err)
		return
	}

	p := s.coordination.Partitioner()
	switch p.State() {
	case coordination.Releasing:
		s.log.LogInfo("scheduler: partitioner releasing, skipping cycle")
		s.coordination.ReleaseSet()
		return
	case coordination.Allocating:
		if err := p.WaitForAcquire(ctx); err != nil {
			s.log.LogWarn("scheduler: wait for partition acquire: %v", err)
			return
		}
	case coordination.Failed:
		s.log.LogError("scheduler: partitioner failed, skipping cycle")
		return
	}

	mine := p.Assignment()
	s.log.LogInfo("scheduler: assigned %d of %d token ranges", len(mine), len(keys))

	if err := s.dispatch(ctx, cfg.NumThreads, mine, rangeByKey); err != nil {
		s.log.LogError("scheduler: cycle aborted: %v", err)
		return
	}

	s.log.LogInfo("scheduler: cycle finished, took %s", time.Since(start))
}

// dispatch walks every assigned range with a pool bounded to numThreads
// concurrent workers. A single range's failure never aborts the others --
// only context cancellation stops the whole dispatch early.
func (s *Scheduler) dispatch(ctx context.Context, numThreads int, assigned []string, rangeByKey map[string]ring.TokenRange) error {
	if numThreads <= 0 {
		numThreads = config.DefaultNumThreads
	}

	sem := semaphore.NewWeighted(int64(numThreads))
	group, groupCtx := errgroup.WithContext(ctx)

	for _, key := range assigned {
		r, ok := rangeByKey[key]
		if !ok {
			continue
		}
		r := r
		if err := sem.Acquire(groupCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			return s.walkRange(groupCtx, r)
		})
	}

	return group.Wait()
}

// walkRange acquires the distributed lock for r, walks it, and releases
// the lock on every exit path. A contended lock is a normal, silent skip
// -- some other member is already working this range. Any other per-range
// failure (lock-path error, storage error during the walk) is logged and
// swallowed here rather than returned, so one bad range never aborts the
// others via errgroup's shared context -- only ctx cancellation itself
// propagates, since that is a cycle-wide shutdown, not a range failure.
func (s *Scheduler) walkRange(ctx context.Context, r ring.TokenRange) error {
	lock, err := s.coordination.AcquireRangeLock(ctx, string(r.Start), string(r.End))
	if err != nil {
		if _, contended := err.(*coordination.ErrLockContended); contended {
			s.log.LogWarn("scheduler: range %s contended, skipping", r)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.LogError("scheduler: acquire lock for range %s: %v", r, err)
		return nil
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.log.LogWarn("scheduler: release lock for range %s: %v", r, err)
		}
	}()

	if err := s.visitor.Walk(ctx, s.rootPath, string(r.Start), string(r.End)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.LogError("scheduler: walk range %s: %v", r, err)
		return nil
	}
	return nil
}
