package rconn

import "github.com/shardkv/client/internal/dispatch"

// Entry is a master-plus-replicas group owning a contiguous slot range.
type Entry struct {
	addr     string
	master   *Client
	replicas []*Client
}

func (e *Entry) Addr() string { return e.addr }

func (e *Entry) Master() dispatch.Client { return e.master }

func (e *Entry) Replicas() []dispatch.Client {
	out := make([]dispatch.Client, len(e.replicas))
	for i, r := range e.replicas {
		out[i] = r
	}
	return out
}
