package ring

import (
	"context"
	"sort"

	"github.com/gocql/gocql"

	"github.com/jeffpierce/cassandra-rollup/logging"
)

// systemClient is the thin seam over the storage cluster's system
// interface: the wide-column driver is an external collaborator, so this
// interface -- not gocql itself -- is what the rest of the package and its
// tests depend on.
type systemClient interface {
	DescribeClusterName(ctx context.Context) error
	DescribeRing(ctx context.Context, keyspace string) ([]TokenRange, error)
	DescribeTokenMap(ctx context.Context) (map[Token]string, error)
	Close()
}

// Client implements RingClient: given a keyspace and a target
// set of endpoints, it returns the token ranges primarily owned by them.
type Client struct {
	log *logging.Logger
	dial func(endpoint string) (systemClient, error)
}

// NewClient builds a Client that dials candidate endpoints one at a time
// with the given credentials. Unlike middleware.CassandraSession, each probe
// connection talks to its single endpoint only (host discovery is off).
func NewClient(log *logging.Logger, user, pass string) *Client {
	return &Client{
		log: log,
		dial: func(endpoint string) (systemClient, error) {
			return dialSystemClient(endpoint, user, pass)
		},
	}
}

// TokenRangesForEndpoints reduces the ring and token map to the ranges
// primarily owned by targets, given a pool of candidate seed endpoints. A
// nil or empty targets selects every endpoint found in the token map, which
// is how the scheduler gets the full set of ranges to partition across the
// daemon fleet.
func (c *Client) TokenRangesForEndpoints(ctx context.Context, keyspace string, candidates, targets []string) ([]Assignment, error) {
	sys, endpoint, err := c.connectAny(ctx, candidates)
	if err != nil {
		return nil, err
	}
	defer sys.Close()

	c.log.LogDebug("ring: using %s as the session endpoint", endpoint)

	tokenRanges, err := sys.DescribeRing(ctx, keyspace)
	if err != nil {
		return nil, err
	}

	byEndToken := make(map[Token]TokenRange, len(tokenRanges))
	for _, r := range tokenRanges {
		byEndToken[r.End] = r
	}

	tokenMap, err := sys.DescribeTokenMap(ctx)
	if err != nil {
		return nil, err
	}

	all := len(targets) == 0
	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	// describeTokenMap's iteration order is not guaranteed by the driver;
	// sort by end token so that output is deterministic for tests and logs.
	endTokens := make([]Token, 0, len(tokenMap))
	for end, endpoint := range tokenMap {
		if all || targetSet[endpoint] {
			endTokens = append(endTokens, end)
		}
	}
	sort.Slice(endTokens, func(i, j int) bool { return endTokens[i] < endTokens[j] })

	seen := make(map[Token]bool, len(endTokens))
	out := make([]Assignment, 0, len(endTokens))
	for _, end := range endTokens {
		endpoint := tokenMap[end]
		r, ok := byEndToken[end]
		if !ok {
			return nil, &ErrRingInconsistent{EndToken: end, Endpoint: endpoint}
		}

		ownsIt := false
		for _, e := range r.Endpoints {
			if e == endpoint {
				ownsIt = true
				break
			}
		}
		if !ownsIt {
			return nil, &ErrRingInconsistent{EndToken: end, Endpoint: endpoint}
		}
		if seen[end] {
			// Injective end->range mapping; a repeat means the
			// token map and ring described two endpoints for one range.
			return nil, &ErrRingInconsistent{EndToken: end, Endpoint: endpoint}
		}
		seen[end] = true

		out = append(out, Assignment{Range: r, Endpoint: endpoint})
	}

	return out, nil
}

// connectAny tries each candidate in order and returns the first session
// that answers a health probe, matching rollup.py's tokenRangesForNodes
// loop over self.config.cassandra_servers.
func (c *Client) connectAny(ctx context.Context, candidates []string) (systemClient, string, error) {
	for _, endpoint := range candidates {
		sys, err := c.dial(endpoint)
		if err != nil {
			c.log.LogWarn("ring: could not dial %s: %v", endpoint, err)
			continue
		}
		if err := sys.DescribeClusterName(ctx); err != nil {
			c.log.LogWarn("ring: %s did not answer describeClusterName: %v", endpoint, err)
			sys.Close()
			continue
		}
		return sys, endpoint, nil
	}
	return nil, "", &ErrRingUnavailable{Endpoints: candidates}
}

// gocqlSystemClient is the production systemClient, backed by direct CQL
// queries against system.local/system.peers -- the ring picture gocql's
// stable API does not itself expose.
type gocqlSystemClient struct {
	session *gocql.Session
}

func dialSystemClient(endpoint, user, pass string) (systemClient, error) {
	cluster := gocql.NewCluster(endpoint)
	cluster.Consistency = gocql.One
	cluster.DiscoverHosts = false // one probe connection at a time; caller iterates candidates
	if user != "" && pass != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: user, Password: pass}
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	return &gocqlSystemClient{session: session}, nil
}

func (g *gocqlSystemClient) Close() { g.session.Close() }

func (g *gocqlSystemClient) DescribeClusterName(ctx context.Context) error {
	var name string
	return g.session.Query("SELECT cluster_name FROM system.local").WithContext(ctx).Scan(&name)
}

// DescribeRing derives the ring's token ranges from the tokens owned by
// every node in system.local/system.peers. Each node may own more than one
// token (vnodes); consecutive tokens on the sorted ring form the ranges,
// and the ring wraps from the last token back to the first.
func (g *gocqlSystemClient) DescribeRing(ctx context.Context, keyspace string) ([]TokenRange, error) {
	type tokenOwner struct {
		token    Token
		endpoint string
	}
	var owners []tokenOwner

	var localTokens []string
	var localAddr string
	iter := g.session.Query("SELECT broadcast_address, tokens FROM system.local").WithContext(ctx).Iter()
	for iter.Scan(&localAddr, &localTokens) {
		for _, t := range localTokens {
			owners = append(owners, tokenOwner{token: Token(t), endpoint: localAddr})
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	var peerAddr string
	var peerTokens []string
	peerIter := g.session.Query("SELECT peer, tokens FROM system.peers").WithContext(ctx).Iter()
	for peerIter.Scan(&peerAddr, &peerTokens) {
		for _, t := range peerTokens {
			owners = append(owners, tokenOwner{token: Token(t), endpoint: peerAddr})
		}
	}
	if err := peerIter.Close(); err != nil {
		return nil, err
	}

	sort.Slice(owners, func(i, j int) bool { return owners[i].token < owners[j].token })

	ranges := make([]TokenRange, len(owners))
	for i, o := range owners {
		var start Token
		if i == 0 {
			start = owners[len(owners)-1].token
		} else {
			start = owners[i-1].token
		}
		ranges[i] = TokenRange{
			Start:     start,
			End:       o.token,
			Endpoints: []string{o.endpoint},
		}
	}
	return ranges, nil
}

func (g *gocqlSystemClient) DescribeTokenMap(ctx context.Context) (map[Token]string, error) {
	m := make(map[Token]string)

	var localTokens []string
	var localAddr string
	iter := g.session.Query("SELECT broadcast_address, tokens FROM system.local").WithContext(ctx).Iter()
	for iter.Scan(&localAddr, &localTokens) {
		for _, t := range localTokens {
			m[Token(t)] = localAddr
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	var peerAddr string
	var peerTokens []string
	peerIter := g.session.Query("SELECT peer, tokens FROM system.peers").WithContext(ctx).Iter()
	for peerIter.Scan(&peerAddr, &peerTokens) {
		for _, t := range peerTokens {
			m[Token(t)] = peerAddr
		}
	}
	if err := peerIter.Close(); err != nil {
		return nil, err
	}

	return m, nil
}
