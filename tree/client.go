package tree

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/jeffpierce/cassandra-rollup/logging"
)

// tableNameFormat names one table per sample precision, matching
// StoreManager's per-window rollup table convention.
const tableNameFormat = "ts%d"

// Client is TreeClient: a read/write abstraction over the
// persisted metric namespace.
type Client struct {
	log     *logging.Logger
	session *gocql.Session
}

// NewClient wraps an already-open *gocql.Session. Building that session is
// middleware.CassandraSession's job (the driver is an external collaborator); this package only issues queries against it.
func NewClient(log *logging.Logger, session *gocql.Session) *Client {
	return &Client{log: log, session: session}
}

// EnsureSchema creates the namespace tables if they do not already exist,
// grounded directly on StoreManager.populateSchema's idempotent
// CREATE-TABLE-IF-NOT-EXISTS pattern.
func (c *Client) EnsureSchema(ctx context.Context, keyspace string, precisions []uint32) error {
	if err := c.session.Query(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s.node_metadata (
			path text PRIMARY KEY,
			retentions text,
			aggregation_method text,
			xfiles_factor double
		)`, keyspace)).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("ensure node_metadata table: %w", err)
	}

	if err := c.session.Query(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s.node_children (
			parent text,
			child text,
			is_metric boolean,
			token text,
			PRIMARY KEY (parent, child)
		)`, keyspace)).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("ensure node_children table: %w", err)
	}

	if err := c.session.Query(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s.node_slices (
			path text,
			time_step int,
			start_time bigint,
			end_time bigint,
			PRIMARY KEY (path, time_step, start_time)
		)`, keyspace)).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("ensure node_slices table: %w", err)
	}

	for _, precision := range precisions {
		table := fmt.Sprintf(tableNameFormat, precision)
		query := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s.%s (
				path text,
				ts bigint,
				value double,
				has_value boolean,
				PRIMARY KEY (path, ts)
			) WITH CLUSTERING ORDER BY (ts ASC)`, keyspace, table)
		c.log.LogDebug("tree: ensuring table %s", table)
		if err := c.session.Query(query).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("ensure table %s: %w", table, err)
		}
	}

	return nil
}

// GetNode returns a handle on the node at path without querying storage.
// Metadata is read lazily and cached on the returned *Node; slices are
// queried afresh on every call to Slices.
func (c *Client) GetNode(path string) *Node {
	return &Node{Path: path, tree: c}
}

// SelfAndChildPaths yields (path, isMetric) pairs below root, restricted to
// the optional token range, contract: finite and not
// restartable.
func (c *Client) SelfAndChildPaths(ctx context.Context, root string, startToken, endToken string) (<-chan PathEntry, <-chan error) {
	out := make(chan PathEntry)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		query := `SELECT child, is_metric, token FROM node_children WHERE parent = ?`
		iter := c.session.Query(query, root).WithContext(ctx).Iter()

		var child string
		var isMetric bool
		var token string
		for iter.Scan(&child, &isMetric, &token) {
			if startToken != "" && endToken != "" {
				if !tokenInRange(token, startToken, endToken) {
					continue
				}
			}
			select {
			case out <- PathEntry{Path: child, IsMetric: isMetric}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := iter.Close(); err != nil {
			errc <- err
		}
	}()

	return out, errc
}

// tokenInRange applies the ring convention: start exclusive, end inclusive.
func tokenInRange(token, start, end string) bool {
	return token > start && token <= end
}
