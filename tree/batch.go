package tree

import "github.com/gocql/gocql"

// loggedBatch picks the batch type for Slice.Write. A logged batch costs
// more than an unlogged one but guarantees the whole window's worth of
// coarse samples lands atomically, matching the all-or-nothing semantics
// StoreManager.flush relies on via its own batchWriter.
func loggedBatch() gocql.BatchType {
	return gocql.LoggedBatch
}
