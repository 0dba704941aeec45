package dispatch

import (
	"context"
	"sync"
)

// ============================================================================
// FAKES SHARED ACROSS DISPATCH TESTS
// ============================================================================

// fakeClient is an in-memory dispatch.Client: every Execute call records
// the command it saw and returns a scripted outcome. It does not count
// buffer releases; tests that check release read Buffer refcounts directly.
type fakeClient struct {
	addr     string
	master   bool
	mu       sync.Mutex
	calls    []fakeCall
	scripted []func(cmd Command, args *ArgList) (interface{}, error)
}

type fakeCall struct {
	cmd  string
	args [][]byte
}

func newFakeClient(addr string, master bool, scripted ...func(cmd Command, args *ArgList) (interface{}, error)) *fakeClient {
	return &fakeClient{addr: addr, master: master, scripted: scripted}
}

func (c *fakeClient) Addr() string  { return c.addr }
func (c *fakeClient) IsMaster() bool { return c.master }

func (c *fakeClient) Execute(ctx context.Context, cmd Command, args *ArgList) (interface{}, error) {
	c.mu.Lock()
	c.calls = append(c.calls, fakeCall{cmd: cmd.Name, args: args.Bytes()})
	idx := len(c.calls) - 1
	c.mu.Unlock()

	if idx < len(c.scripted) {
		return c.scripted[idx](cmd, args)
	}
	if len(c.scripted) > 0 {
		return c.scripted[len(c.scripted)-1](cmd, args)
	}
	return "OK", nil
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// fakeEntry is an in-memory dispatch.Entry wrapping a single fakeClient as
// both master and sole replica.
type fakeEntry struct {
	addr   string
	master *fakeClient
}

func (e *fakeEntry) Addr() string          { return e.addr }
func (e *fakeEntry) Master() Client        { return e.master }
func (e *fakeEntry) Replicas() []Client    { return []Client{e.master} }

// fakeManager is an in-memory dispatch.ConnectionManager over a fixed set
// of entries keyed by slot range, for exercising NodeSelector/SingleExecutor/
// RetryDriver without any real network connection.
type fakeManager struct {
	cluster  bool
	entries  []*fakeEntry
	byAddr   map[string]*fakeEntry
	defaultE *fakeEntry
}

func newFakeManager(cluster bool, entries ...*fakeEntry) *fakeManager {
	m := &fakeManager{cluster: cluster, entries: entries, byAddr: make(map[string]*fakeEntry)}
	for _, e := range entries {
		m.byAddr[e.addr] = e
	}
	if len(entries) > 0 {
		m.defaultE = entries[0]
	}
	return m
}

func (m *fakeManager) Codec() Codec        { return BytesCodec{} }
func (m *fakeManager) ClusterMode() bool   { return m.cluster }
func (m *fakeManager) DefaultEntry() Entry { return m.defaultE }

func (m *fakeManager) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = e
	}
	return out
}

func (m *fakeManager) EntryForSlot(slot int) (Entry, error) {
	// Single-entry fixtures route every slot to entries[0]; multi-entry
	// fixtures split the space in half for cross-slot tests.
	if len(m.entries) == 1 {
		return m.entries[0], nil
	}
	if slot < 8192 {
		return m.entries[0], nil
	}
	return m.entries[1], nil
}

func (m *fakeManager) EntryForClient(c Client) (Entry, error) {
	fc, ok := c.(*fakeClient)
	if !ok {
		return nil, invalidArgument("fakeManager: not a fakeClient")
	}
	if e, ok := m.byAddr[fc.addr]; ok {
		return e, nil
	}
	return nil, connectionError(nil)
}

func (m *fakeManager) CalcSlotString(key string) int {
	sum := 0
	for _, b := range []byte(key) {
		sum += int(b)
	}
	return sum % 16384
}

func (m *fakeManager) CalcSlotBytes(key []byte) int {
	return m.CalcSlotString(string(key))
}
