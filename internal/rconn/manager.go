package rconn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shardkv/client/internal/circuitbreaker"
	"github.com/shardkv/client/internal/dispatch"
)

// Manager is the concrete dispatch.ConnectionManager: it dials one
// go-redis client per node address, discovers cluster topology via
// CLUSTER SLOTS when cluster mode is enabled, and keeps a slot table for
// O(1) key-to-entry lookups.
type Manager struct {
	clusterMode bool
	codec       dispatch.Codec
	breakers    *circuitbreaker.NodeBreakers

	mu       sync.RWMutex
	byAddr   map[string]*Client
	entries  []*Entry
	slots    [slotCount]*Entry
	defaultE *Entry
}

// Options configures dialing for every node Manager connects to.
type Options struct {
	Seeds       []string
	ClusterMode bool
	Password    string
	DB          int
	DialTimeout time.Duration
}

// NewManager dials every seed (any seed that fails to dial fails the whole
// call), and — in cluster mode — issues CLUSTER SLOTS against the seeds, in
// no fixed order, until one answers, to build the full topology.
// Non-cluster mode treats the first seed as the sole entry and sends every
// slot to it.
func NewManager(ctx context.Context, opts Options, codec dispatch.Codec) (*Manager, error) {
	if len(opts.Seeds) == 0 {
		return nil, fmt.Errorf("rconn: at least one seed address is required")
	}
	m := &Manager{
		clusterMode: opts.ClusterMode,
		codec:       codec,
		breakers:    circuitbreaker.NewNodeBreakers(),
		byAddr:      make(map[string]*Client),
	}

	for _, addr := range opts.Seeds {
		if _, err := m.dial(addr, opts); err != nil {
			return nil, err
		}
	}

	if opts.ClusterMode {
		if err := m.Refresh(ctx, opts); err != nil {
			return nil, err
		}
	} else {
		seed := m.byAddr[opts.Seeds[0]]
		entry := &Entry{addr: seed.Addr(), master: seed}
		m.entries = []*Entry{entry}
		m.defaultE = entry
		for i := range m.slots {
			m.slots[i] = entry
		}
	}

	m.wireResolvers()
	return m, nil
}

func (m *Manager) dial(addr string, opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("rconn: dial %s: %w", addr, err)
	}
	client := NewClient(addr, true, rdb, m.breakers)
	m.byAddr[addr] = client
	slog.Info("rconn node connected", "addr", addr)
	return client, nil
}

// Refresh rebuilds the slot table from CLUSTER SLOTS, dialing any newly
// discovered node address, mirroring the topology-refresh pattern every
// cluster-aware reference client in the pack implements.
func (m *Manager) Refresh(ctx context.Context, opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var raw []redis.ClusterSlot
	var lastErr error
	for _, client := range m.byAddr {
		slots, err := client.rdb.ClusterSlots(ctx).Result()
		if err == nil {
			raw = slots
			break
		}
		lastErr = err
	}
	if raw == nil {
		return fmt.Errorf("rconn: CLUSTER SLOTS failed against every seed: %w", lastErr)
	}

	entries := make([]*Entry, 0, len(raw))
	for _, slot := range raw {
		if len(slot.Nodes) == 0 {
			continue
		}
		masterAddr := slot.Nodes[0].Addr
		master, err := m.getOrDial(masterAddr, opts)
		if err != nil {
			return err
		}

		var replicas []*Client
		for _, node := range slot.Nodes[1:] {
			addr := node.Addr
			replica, err := m.getOrDial(addr, opts)
			if err != nil {
				return err
			}
			replica.master = false
			replicas = append(replicas, replica)
		}

		entry := &Entry{addr: masterAddr, master: master, replicas: replicas}
		entries = append(entries, entry)
		for s := slot.Start; s <= slot.End; s++ {
			m.slots[s] = entry
		}
	}
	m.entries = entries
	if len(entries) > 0 {
		m.defaultE = entries[0]
	}
	return nil
}

func (m *Manager) getOrDial(addr string, opts Options) (*Client, error) {
	if c, ok := m.byAddr[addr]; ok {
		return c, nil
	}
	return m.dial(addr, opts)
}

// wireResolvers patches every client's redirect-address resolver in once
// the full node table is known.
func (m *Manager) wireResolvers() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.byAddr {
		c.SetResolver(m.resolveClient)
	}
}

func (m *Manager) resolveClient(addr string) dispatch.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.byAddr[addr]; ok {
		return c
	}
	return nil
}

func (m *Manager) Codec() dispatch.Codec { return m.codec }
func (m *Manager) ClusterMode() bool     { return m.clusterMode }

func (m *Manager) Entries() []dispatch.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dispatch.Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = e
	}
	return out
}

func (m *Manager) EntryForSlot(slot int) (dispatch.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if slot < 0 || slot >= slotCount || m.slots[slot] == nil {
		return nil, &dispatch.DispatchError{Kind: dispatch.KindConnection, Message: fmt.Sprintf("no entry owns slot %d", slot)}
	}
	return m.slots[slot], nil
}

func (m *Manager) EntryForClient(c dispatch.Client) (dispatch.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.Addr() == c.Addr() {
			return e, nil
		}
		for _, r := range e.replicas {
			if r.Addr() == c.Addr() {
				return e, nil
			}
		}
	}
	return nil, &dispatch.DispatchError{Kind: dispatch.KindConnection, Message: "no entry owns client " + c.Addr()}
}

func (m *Manager) CalcSlotString(key string) int { return CalcSlot([]byte(key)) }
func (m *Manager) CalcSlotBytes(key []byte) int  { return CalcSlot(key) }

func (m *Manager) DefaultEntry() dispatch.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultE
}

// Close tears down every dialed connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, c := range m.byAddr {
		if err := c.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
