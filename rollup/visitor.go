package rollup

import (
	"context"
	"errors"

	"github.com/jeffpierce/cassandra-rollup/logging"
	"github.com/jeffpierce/cassandra-rollup/tree"
)

// Visitor walks the metric tree below a root path (optionally restricted
// to a token range) and invokes Engine on every metric leaf it finds,
// grounded on node_handler.py's NodePathVisitor/walkTree but converted to
// an explicit work queue so stack depth never scales with namespace depth.
type Visitor struct {
	tree   *tree.Client
	engine *Engine
	log    *logging.Logger
}

// NewVisitor builds a Visitor over the given tree and engine.
func NewVisitor(log *logging.Logger, t *tree.Client, engine *Engine) *Visitor {
	return &Visitor{log: log, tree: t, engine: engine}
}

// Walk visits root and, recursively, its descendants restricted to
// (startToken, endToken] when both are non-empty. It returns as soon as
// ctx is cancelled, checked between metric visits so an in-flight rollup is
// never interrupted mid-metric.
func (v *Visitor) Walk(ctx context.Context, root, startToken, endToken string) error {
	queue := []string{root}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := queue[0]
		queue = queue[1:]

		entries, errc := v.tree.SelfAndChildPaths(ctx, path, startToken, endToken)
		for entry := range entries {
			if err := ctx.Err(); err != nil {
				// Drain the channel so the producer goroutine can exit.
				for range entries {
				}
				return err
			}

			recurse, err := v.visit(ctx, path, entry)
			if err != nil {
				return err
			}
			if recurse {
				queue = append(queue, entry.Path)
			}
		}
		if err := <-errc; err != nil {
			return err
		}
	}

	return nil
}

// visit returns whether the walker should recurse into entry's children.
// Only context cancellation aborts the walk; every other error
// (UnknownAggregate, StorageTransient, ...) is logged and the walk
// continues with the next metric.
func (v *Visitor) visit(ctx context.Context, parentPath string, entry tree.PathEntry) (bool, error) {
	if entry.IsMetric {
		if entry.Path != parentPath {
			node := v.tree.GetNode(entry.Path)
			if err := v.engine.Rollup(ctx, node); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return false, err
				}
				v.log.LogError("rollup: abandoning %s: %v", entry.Path, err)
				return false, nil
			}
			return false, nil
		}
		return true, nil
	}
	return true, nil
}
