package logging

import (
	"github.com/cactus/go-statsd-client/statsd"
)

// S is the global statsd handle. Callers open it once at startup with the
// configured host:port, and close it on shutdown. S.Client is nil until
// Open succeeds.
var S statter

var Statsd = &S

type statter struct {
	Client statsd.Statter
}

// Open connects to the statsd daemon at hostport and tags every metric with
// prefix. Callers should treat a non-nil error as "stats reporting
// disabled" rather than fatal, since statsd is purely observational.
func (s *statter) Open(hostport string, prefix string) error {
	client, err := statsd.NewClient(hostport, prefix)
	if err != nil {
		return err
	}
	s.Client = client
	return nil
}

// Close releases the statsd connection, if one was opened.
func (s *statter) Close() error {
	if s.Client == nil {
		return nil
	}
	return s.Client.Close()
}
