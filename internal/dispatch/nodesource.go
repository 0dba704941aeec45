package dispatch

import "math/rand"

// sourceTag enumerates how a NodeSource resolved, or is waiting to resolve,
// to a concrete Entry/Client pair (spec.md §4.1).
type sourceTag int

const (
	tagByEntry sourceTag = iota
	tagBySlot
	tagBySlotAndClient
	tagByClient
	tagRedirected
)

// NodeSource is the tagged union spec.md describes for "how a command's
// target node was decided": a fixed entry, a slot to resolve against
// current topology, a slot with a sticky client (replica pinning), a bare
// client (scatter/gather), or a redirect that carries its own resolved
// client forward so a second resolution pass is never needed.
type NodeSource struct {
	tag    sourceTag
	entry  Entry
	slot   int
	client Client
	ask    bool
	orig   *NodeSource
}

// ByEntry targets a node source directly at an already-resolved entry
// (used for DefaultEntry non-cluster routing and admin commands).
func ByEntry(e Entry) NodeSource {
	return NodeSource{tag: tagByEntry, entry: e}
}

// BySlot defers resolution to the current topology at dispatch time.
func BySlot(slot int) NodeSource {
	return NodeSource{tag: tagBySlot, slot: slot}
}

// BySlotAndClient carries a slot alongside a specific already-chosen client
// (replica reads, or a client pinned across an ASK round-trip). Resolve
// always returns that client; the slot is not looked up in the topology.
func BySlotAndClient(slot int, c Client) NodeSource {
	return NodeSource{tag: tagBySlotAndClient, slot: slot, client: c}
}

// ByClient targets a bare client with no slot context at all (used by
// scatter/gather, where every node in the cluster is addressed directly).
func ByClient(c Client) NodeSource {
	return NodeSource{tag: tagByClient, client: c}
}

// Redirected wraps orig with a new client to send to next, recording
// whether the redirect was ASK (send an ASKING prefix, single-shot, does
// not update topology) or MOVED (permanent, topology should be refreshed).
func Redirected(orig NodeSource, newClient Client, ask bool) NodeSource {
	o := orig
	return NodeSource{tag: tagRedirected, client: newClient, ask: ask, orig: &o}
}

// IsAsk reports whether this source is the product of an ASK redirect.
func (s NodeSource) IsAsk() bool { return s.tag == tagRedirected && s.ask }

// Resolve turns the source into a concrete Client to send the command to,
// using mgr to look up slot-based sources against current topology.
// readOnlyMode honors spec.md §4.3's execute(readOnlyMode, ...) contract:
// a by-entry or by-slot source picks a random replica when one exists and
// readOnlyMode is set, falling back to the master otherwise. Sources that
// already carry a pinned client (replica pinning, scatter/gather, redirects)
// ignore readOnlyMode entirely — the caller already chose the target.
func (s NodeSource) Resolve(mgr ConnectionManager, readOnlyMode bool) (Client, error) {
	switch s.tag {
	case tagByEntry:
		return resolveEntryClient(s.entry, readOnlyMode), nil
	case tagBySlot:
		e, err := mgr.EntryForSlot(s.slot)
		if err != nil {
			return nil, err
		}
		return resolveEntryClient(e, readOnlyMode), nil
	case tagBySlotAndClient, tagByClient, tagRedirected:
		return s.client, nil
	default:
		return nil, invalidArgument("nodesource: unresolvable source")
	}
}

// resolveEntryClient picks a random replica when readOnlyMode is set and e
// has any, falling back to the master otherwise.
func resolveEntryClient(e Entry, readOnlyMode bool) Client {
	if readOnlyMode {
		if replicas := e.Replicas(); len(replicas) > 0 {
			return replicas[rand.Intn(len(replicas))]
		}
	}
	return e.Master()
}

// NodeSelector is the facade-facing router: given a command's keys (or
// lack thereof), it decides which NodeSource the command should dispatch
// against. It wraps a ConnectionManager so slot arithmetic and the
// non-cluster default-master fallback live in one place.
type NodeSelector struct {
	mgr ConnectionManager
}

// NewNodeSelector builds a selector over mgr.
func NewNodeSelector(mgr ConnectionManager) *NodeSelector {
	return &NodeSelector{mgr: mgr}
}

// ForKey resolves a NodeSource for a single string key. An empty key in
// non-cluster mode resolves to the manager's default master, matching
// spec.md §4.1's "a null key in non-cluster mode resolves to the default
// master".
func (s *NodeSelector) ForKey(key string) NodeSource {
	if key == "" {
		return s.nullKeySource()
	}
	if !s.mgr.ClusterMode() {
		return ByEntry(s.mgr.DefaultEntry())
	}
	return BySlot(s.mgr.CalcSlotString(key))
}

// ForBytes is ForKey for an already-encoded key.
func (s *NodeSelector) ForBytes(key []byte) NodeSource {
	if len(key) == 0 {
		return s.nullKeySource()
	}
	if !s.mgr.ClusterMode() {
		return ByEntry(s.mgr.DefaultEntry())
	}
	return BySlot(s.mgr.CalcSlotBytes(key))
}

// ForEntry targets an already-known entry directly (admin/introspection
// commands that are not slot-addressed at all).
func (s *NodeSelector) ForEntry(e Entry) NodeSource {
	return ByEntry(e)
}

// ForClient targets a bare client (scatter/gather fan-out).
func (s *NodeSelector) ForClient(c Client) NodeSource {
	return ByClient(c)
}

func (s *NodeSelector) nullKeySource() NodeSource {
	return ByEntry(s.mgr.DefaultEntry())
}
