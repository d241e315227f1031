package coordination

import (
	"fmt"
	"sync"
	"time"

	"github.com/samuel/go-zookeeper/zk"

	"github.com/jeffpierce/cassandra-rollup/logging"
)

// Session wraps a *zk.Conn, matching Zookeeper.client's lazy-connect
// property in the Python original: Connect is called once at
// startup, and UpdateHosts reconnects only when the host set actually
// changes.
type Session struct {
	log         *logging.Logger
	aclPassword string

	mu      sync.Mutex
	conn    *zk.Conn
	hosts   []string
	quit    chan struct{}

	partitionerMu sync.Mutex
	partitioner   *Partitioner
	lastSet       []string
}

// Connect starts the ZooKeeper session, authenticates with digest auth
// "client:<acl_password>" (matching Zookeeper.client's auth_data), and
// ensures the persistent base paths exist.
func Connect(log *logging.Logger, hosts []string, aclPassword string) (*Session, error) {
	s := &Session{log: log, aclPassword: aclPassword}
	if err := s.dial(hosts); err != nil {
		return nil, err
	}
	if err := s.ensurePaths(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) dial(hosts []string) error {
	conn, events, err := zk.Connect(hosts, 10*time.Second)
	if err != nil {
		return fmt.Errorf("connect to zookeeper %v: %w", hosts, err)
	}

	if s.aclPassword != "" {
		if err := conn.AddAuth("digest", []byte("client:"+s.aclPassword)); err != nil {
			conn.Close()
			return fmt.Errorf("zookeeper digest auth: %w", err)
		}
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.hosts = append([]string(nil), hosts...)
	quit := make(chan struct{})
	s.quit = quit
	s.mu.Unlock()

	go s.watchState(events, quit)
	return nil
}

// watchState logs on LOST/SUSPENDED, matching Zookeeper._listeners'
// connection_handler.
func (s *Session) watchState(events <-chan zk.Event, quit chan struct{}) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.State {
			case zk.StateExpired:
				s.log.LogWarn("coordination: lost ZK session")
			case zk.StateDisconnected:
				s.log.LogWarn("coordination: disconnected from ZK")
			}
		case <-quit:
			return
		}
	}
}

func (s *Session) ensurePaths() error {
	for _, p := range []string{basePath, serversPath, tokenRangesPath, membersPath} {
		if err := s.ensurePath(p); err != nil {
			return fmt.Errorf("ensure path %s: %w", p, err)
		}
	}
	return nil
}

func (s *Session) ensurePath(path string) error {
	exists, _, err := s.conn.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.conn.Create(path, []byte{}, 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return err
	}
	return nil
}

// UpdateHosts compares newHosts against the currently connected set and
// reconnects only when they differ, matching Zookeeper.update_hosts.
func (s *Session) UpdateHosts(newHosts []string) error {
	s.mu.Lock()
	same := sameSet(s.hosts, newHosts)
	s.mu.Unlock()
	if same {
		return nil
	}
	s.log.LogInfo("coordination: zookeeper host set changed, reconnecting")
	return s.dial(newHosts)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, x := range b {
		if !set[x] {
			return false
		}
	}
	return true
}

// Close tears down the ZooKeeper connection.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit != nil {
		close(s.quit)
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
