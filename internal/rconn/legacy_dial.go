package rconn

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/shardkv/client/internal/dispatch"
)

// LegacyDialer issues single-node health probes over gomodule/redigo
// instead of go-redis. Some operators' deployments front Redis with
// proxies that speak strict old-style RESP and choke on go-redis's default
// pipelining/CLIENT SETINFO handshake; LegacyDialer is the escape hatch
// that talks the older, narrower protocol subset redigo targets.
type LegacyDialer struct {
	pool *redis.Pool
}

// NewLegacyDialer builds a redigo connection pool against addr.
func NewLegacyDialer(addr string, dialTimeout time.Duration) *LegacyDialer {
	return &LegacyDialer{
		pool: &redis.Pool{
			MaxIdle:     4,
			IdleTimeout: 60 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.DialTimeout("tcp", addr, dialTimeout, dialTimeout, dialTimeout)
			},
		},
	}
}

// Ping verifies the node is reachable without going through the full
// dispatch stack — used by health checks ahead of adding a node to the
// topology.
func (d *LegacyDialer) Ping(ctx context.Context) error {
	conn, err := d.pool.GetContext(ctx)
	if err != nil {
		return &dispatch.DispatchError{Kind: dispatch.KindConnection, Message: "legacy dial failed", Cause: err}
	}
	defer conn.Close()
	_, err = conn.Do("PING")
	if err != nil {
		return &dispatch.DispatchError{Kind: dispatch.KindConnection, Message: "legacy ping failed", Cause: err}
	}
	return nil
}

// Close releases the underlying pool.
func (d *LegacyDialer) Close() error {
	return d.pool.Close()
}
