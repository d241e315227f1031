package coordination

import (
	"fmt"

	"github.com/samuel/go-zookeeper/zk"
)

// Lock is a scoped handle on the distributed lock path
// /cassandra/token_ranges/<start>:<end>. It guarantees release on every
// exit path, including abort, when the caller defers Release.
type Lock struct {
	conn *zk.Conn
	path string
	node string
}

// acquireRangeLock inspects contenders before acquiring, matching
// rollup.py's walkRange: a non-empty contender list returns
// ErrLockContended immediately, without registering a holder node.
func acquireRangeLock(conn *zk.Conn, startToken, endToken string) (*Lock, error) {
	path := fmt.Sprintf("%s/%s:%s", tokenRangesPath, startToken, endToken)

	if err := ensureLockPath(conn, path); err != nil {
		return nil, fmt.Errorf("ensure lock path %s: %w", path, err)
	}

	contenders, _, err := conn.Children(path)
	if err != nil {
		return nil, fmt.Errorf("list contenders for %s: %w", path, err)
	}
	if len(contenders) > 0 {
		return nil, &ErrLockContended{Path: path, Contenders: contenders}
	}

	node, err := conn.CreateProtectedEphemeralSequential(
		path+"/holder-", []byte(identity()), zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("create lock holder node under %s: %w", path, err)
	}

	return &Lock{conn: conn, path: path, node: node}, nil
}

func ensureLockPath(conn *zk.Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = conn.Create(path, []byte{}, 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return err
	}
	return nil
}

// Contenders lists every holder node currently registered for this range,
// this lock's own holder node included, for diagnostics.
func (l *Lock) Contenders() ([]string, error) {
	children, _, err := l.conn.Children(l.path)
	if err != nil {
		return nil, err
	}
	return children, nil
}

// Release removes this lock's holder node. Safe to call more than once.
func (l *Lock) Release() error {
	err := l.conn.Delete(l.node, -1)
	if err == zk.ErrNoNode {
		return nil
	}
	return err
}
