package ring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffpierce/cassandra-rollup/logging"
)

// fakeSystemClient replays canned ring/token-map responses, standing in for
// the wide-column driver (interface only).
type fakeSystemClient struct {
	ring      []TokenRange
	tokenMap  map[Token]string
	available bool
}

func (f *fakeSystemClient) Close() {}

func (f *fakeSystemClient) DescribeClusterName(ctx context.Context) error {
	if !f.available {
		return assert.AnError
	}
	return nil
}

func (f *fakeSystemClient) DescribeRing(ctx context.Context, keyspace string) ([]TokenRange, error) {
	return f.ring, nil
}

func (f *fakeSystemClient) DescribeTokenMap(ctx context.Context) (map[Token]string, error) {
	return f.tokenMap, nil
}

func newTestClient(fake *fakeSystemClient) *Client {
	return &Client{
		log: logging.NewLogger("test", "", logging.SevFatal),
		dial: func(endpoint string) (systemClient, error) {
			return fake, nil
		},
	}
}

// TokenRangesForEndpoints(["10.0.0.1"]) against a literal ring/token map
// yields the two ranges owned by 10.0.0.1, in token order.
func TestTokenRangesForEndpoints_ReturnsRangesOwnedByTarget(t *testing.T) {
	r1 := TokenRange{Start: "t0", End: "t1", Endpoints: []string{"10.0.0.1"}}
	r2 := TokenRange{Start: "t1", End: "t2", Endpoints: []string{"10.0.0.2"}}
	r3 := TokenRange{Start: "t2", End: "t3", Endpoints: []string{"10.0.0.1"}}

	fake := &fakeSystemClient{
		available: true,
		ring:      []TokenRange{r1, r2, r3},
		tokenMap: map[Token]string{
			"t1": "10.0.0.1",
			"t2": "10.0.0.2",
			"t3": "10.0.0.1",
		},
	}

	c := newTestClient(fake)
	got, err := c.TokenRangesForEndpoints(context.Background(), "ks", []string{"10.0.0.1"}, []string{"10.0.0.1"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, r1, got[0].Range)
	assert.Equal(t, "10.0.0.1", got[0].Endpoint)
	assert.Equal(t, r3, got[1].Range)
	assert.Equal(t, "10.0.0.1", got[1].Endpoint)
}

func TestTokenRangesForEndpoints_RingUnavailable(t *testing.T) {
	fake := &fakeSystemClient{available: false}
	c := newTestClient(fake)

	_, err := c.TokenRangesForEndpoints(context.Background(), "ks", []string{"10.0.0.1"}, []string{"10.0.0.1"})
	require.Error(t, err)
	var ringErr *ErrRingUnavailable
	assert.ErrorAs(t, err, &ringErr)
}

func TestTokenRangesForEndpoints_RingInconsistent(t *testing.T) {
	fake := &fakeSystemClient{
		available: true,
		ring:      []TokenRange{{Start: "t0", End: "t1", Endpoints: []string{"10.0.0.1"}}},
		tokenMap: map[Token]string{
			"t9": "10.0.0.1", // no matching range
		},
	}

	c := newTestClient(fake)
	_, err := c.TokenRangesForEndpoints(context.Background(), "ks", []string{"10.0.0.1"}, []string{"10.0.0.1"})
	require.Error(t, err)
	var inconsistent *ErrRingInconsistent
	assert.ErrorAs(t, err, &inconsistent)
}

// Each emitted TokenRange must appear at most once, and every yielded
// endpoint must lie in its range's Endpoints set.
func TestTokenRangesForEndpoints_NoDuplicateRangesAndEndpointMatchesRange(t *testing.T) {
	fake := &fakeSystemClient{
		available: true,
		ring: []TokenRange{
			{Start: "a", End: "b", Endpoints: []string{"10.0.0.1", "10.0.0.3"}},
			{Start: "b", End: "c", Endpoints: []string{"10.0.0.2"}},
		},
		tokenMap: map[Token]string{
			"b": "10.0.0.1",
			"c": "10.0.0.2",
		},
	}

	c := newTestClient(fake)
	got, err := c.TokenRangesForEndpoints(context.Background(), "ks", []string{"10.0.0.1", "10.0.0.2"}, []string{"10.0.0.1", "10.0.0.2"})
	require.NoError(t, err)

	seen := map[TokenRange]bool{}
	for _, a := range got {
		assert.False(t, seen[a.Range], "range %v yielded twice", a.Range)
		seen[a.Range] = true

		found := false
		for _, e := range a.Range.Endpoints {
			if e == a.Endpoint {
				found = true
			}
		}
		assert.True(t, found, "endpoint %s not in range %v endpoints", a.Endpoint, a.Range)
	}
}
