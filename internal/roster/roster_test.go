package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeRoster_SeedAddRemove(t *testing.T) {
	r := NewNodeRoster()
	r.Seed(map[string]string{"n1": "10.0.0.1:9000"})
	assert.True(t, r.Contains("n1"))

	r.Add("n2", "10.0.0.2:9000")
	assert.True(t, r.Contains("n2"))

	assert.True(t, r.Remove("n1"))
	assert.False(t, r.Contains("n1"))
	assert.False(t, r.Remove("n1"))
}

func TestNodeRoster_Snapshot(t *testing.T) {
	r := NewNodeRoster()
	r.Seed(map[string]string{"n1": "addr1", "n2": "addr2"})
	snap := r.Snapshot()
	assert.Equal(t, map[string]string{"n1": "addr1", "n2": "addr2"}, snap)

	snap["n3"] = "addr3"
	assert.False(t, r.Contains("n3"), "Snapshot must not let callers mutate the live roster")
}

func TestAbnormalSet_AddReportsOnlyFirstInsert(t *testing.T) {
	a := NewAbnormalSet()
	assert.True(t, a.Add("n1"))
	assert.False(t, a.Add("n1"))
	assert.True(t, a.Contains("n1"))
}

func TestAbnormalSet_RemoveClearsMembership(t *testing.T) {
	a := NewAbnormalSet()
	a.Add("n1")
	a.Remove("n1")
	assert.False(t, a.Contains("n1"))
}

func TestAbnormalSet_SeedReplacesWholesale(t *testing.T) {
	a := NewAbnormalSet()
	a.Add("stale")
	a.Seed([]string{"n1", "n2"})
	assert.False(t, a.Contains("stale"))
	assert.True(t, a.Contains("n1"))
	assert.ElementsMatch(t, []string{"n1", "n2"}, a.Members())
}
