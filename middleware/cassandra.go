// Package middleware builds the driver session for the Cassandra storage
// cluster the rollup daemon leverages. The ZooKeeper connection is built by
// the coordination package.
package middleware

import (
	"github.com/gocql/gocql"
)

// CassandraSessionOpts configures CassandraSession. NumConns should equal
// the worker pool width, so the storage driver never becomes the
// bottleneck on a fully loaded pool.
type CassandraSessionOpts struct {
	Hosts       []string
	Port        int
	Keyspace    string
	Username    string
	Password    string
	NumConns    int
	Consistency gocql.Consistency
}

// CassandraSession returns a round-robin connection pool to the Cassandra
// cluster, sized and authenticated per opts.
func CassandraSession(opts CassandraSessionOpts) (*gocql.Session, error) {

	cass := gocql.NewCluster(opts.Hosts...)

	if opts.Port != 0 {
		cass.Port = opts.Port
	}
	cass.DiscoverHosts = true
	cass.Keyspace = opts.Keyspace

	if opts.Username != "" && opts.Password != "" {
		cass.Authenticator = gocql.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		}
	}

	if opts.NumConns > 0 {
		cass.NumConns = opts.NumConns
	}

	if opts.Consistency != 0 {
		cass.Consistency = opts.Consistency
	} else {
		cass.Consistency = gocql.Quorum
	}

	return cass.CreateSession()
}
