package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeSelectorNonClusterNullKeyUsesDefaultMaster(t *testing.T) {
	entry := &fakeEntry{addr: "node-0", master: newFakeClient("node-0", true)}
	mgr := newFakeManager(false, entry)
	selector := NewNodeSelector(mgr)

	source := selector.ForKey("")
	client, err := source.Resolve(mgr, false)
	require.NoError(t, err)
	assert.Equal(t, "node-0", client.Addr())
}

func TestNodeSelectorClusterModeRoutesBySlot(t *testing.T) {
	low := &fakeEntry{addr: "node-lo", master: newFakeClient("node-lo", true)}
	high := &fakeEntry{addr: "node-hi", master: newFakeClient("node-hi", true)}
	mgr := newFakeManager(true, low, high)
	selector := NewNodeSelector(mgr)

	// fakeManager.CalcSlotString sums byte values mod 16384; pick keys that
	// land on each half of the fake two-entry topology (70 'z' bytes sums
	// to 8540, clearing the 8192 split point; a single "a" sums to 97).
	loKey := "a"
	hiKey := ""
	for i := 0; i < 70; i++ {
		hiKey += "z"
	}

	loSource := selector.ForKey(loKey)
	loClient, err := loSource.Resolve(mgr, false)
	require.NoError(t, err)
	assert.Equal(t, "node-lo", loClient.Addr())

	hiSource := selector.ForKey(hiKey)
	hiClient, err := hiSource.Resolve(mgr, false)
	require.NoError(t, err)
	assert.Equal(t, "node-hi", hiClient.Addr())
}

func TestRedirectedSourceResolvesToCarriedClient(t *testing.T) {
	orig := BySlot(5)
	newClient := newFakeClient("node-new", true)
	redirected := Redirected(orig, newClient, true)

	assert.True(t, redirected.IsAsk())

	mgr := newFakeManager(true, &fakeEntry{addr: "node-new", master: newClient})
	resolved, err := redirected.Resolve(mgr, false)
	require.NoError(t, err)
	assert.Equal(t, "node-new", resolved.Addr())
}
