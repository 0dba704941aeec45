package rconn

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/shardkv/client/internal/circuitbreaker"
	"github.com/shardkv/client/internal/dispatch"
)

// Client wraps a single go-redis connection and implements
// dispatch.Client, translating a Command+ArgList into a go-redis Cmder and
// the reply/error back into the dispatch classification vocabulary.
type Client struct {
	addr     string
	master   bool
	rdb      *redis.Client
	breakers *circuitbreaker.NodeBreakers

	// resolveAddr looks an address named by a MOVED/ASK reply up against
	// the manager's live client table, so RetryDriver never needs a second
	// topology lookup to follow a redirect.
	resolveAddr func(addr string) dispatch.Client
}

// NewClient wraps an already-dialed go-redis client. resolveAddr may be nil
// during construction and patched in afterwards via SetResolver, since the
// full client table (needed to resolve redirect targets) is only complete
// once every node in the topology has been dialed.
func NewClient(addr string, master bool, rdb *redis.Client, breakers *circuitbreaker.NodeBreakers) *Client {
	return &Client{addr: addr, master: master, rdb: rdb, breakers: breakers}
}

// SetResolver wires the redirect-address-to-client lookup in after every
// node in the topology has been constructed.
func (c *Client) SetResolver(resolveAddr func(addr string) dispatch.Client) {
	c.resolveAddr = resolveAddr
}

func (c *Client) Addr() string  { return c.addr }
func (c *Client) IsMaster() bool { return c.master }

// Execute sends cmd+args as a raw go-redis command, guarded by this node's
// circuit breaker, and classifies the result.
func (c *Client) Execute(ctx context.Context, cmd dispatch.Command, args *dispatch.ArgList) (interface{}, error) {
	argv := make([]interface{}, 0, len(args.Bytes())+1)
	argv = append(argv, cmd.Name)
	for _, b := range args.Bytes() {
		argv = append(argv, b)
	}

	cb := c.breakers.For(c.addr)
	result, err := cb.Execute(func() (interface{}, error) {
		reply := redis.NewCmd(ctx, argv...)
		if procErr := c.rdb.Process(ctx, reply); procErr != nil && !errors.Is(procErr, redis.Nil) {
			return nil, procErr
		}
		value, resErr := reply.Result()
		if resErr != nil {
			if errors.Is(resErr, redis.Nil) {
				// An empty reply is a valid result, not a node failure —
				// feeding it to the breaker would trip NodeBreakers on
				// nothing but cache misses (SPEC_FULL.md §4.9: redis.Nil
				// maps to success(nil), not an error).
				return nil, nil
			}
			return nil, resErr
		}
		return value, nil
	})
	if err != nil {
		return nil, c.classifyError(err)
	}
	return result, nil
}

// classifyError turns a go-redis/network error into the dispatch error
// vocabulary: MOVED/ASK become *dispatch.RedirectError, redis.Nil becomes a
// nil success, connection resets become retriable, everything else is a
// server error.
func (c *Client) classifyError(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "MOVED "):
		addr := redirectAddr(msg)
		return dispatch.NewRedirectError(false, addr, c.resolve(addr))
	case strings.HasPrefix(msg, "ASK "):
		addr := redirectAddr(msg)
		return dispatch.NewRedirectError(true, addr, c.resolve(addr))
	case strings.HasPrefix(strings.ToUpper(msg), "NOSCRIPT"):
		return &dispatch.DispatchError{Kind: dispatch.KindScriptMissing, Message: msg}
	case isNetworkReset(err):
		return &dispatch.DispatchError{Kind: dispatch.KindConnection, Message: "connection reset", Cause: err}
	default:
		return &dispatch.DispatchError{Kind: dispatch.KindServerError, Message: "server error", Cause: err}
	}
}

func (c *Client) resolve(addr string) dispatch.Client {
	if c.resolveAddr == nil {
		return nil
	}
	return c.resolveAddr(addr)
}

func redirectAddr(msg string) string {
	parts := strings.Fields(msg)
	if len(parts) >= 3 {
		return parts[2]
	}
	return ""
}

func isNetworkReset(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "i/o timeout")
}
