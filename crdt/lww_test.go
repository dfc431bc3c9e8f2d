package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLWWRegisterLatestWriteWins(t *testing.T) {
	r := NewLWWRegister[string]().
		Set("first", 100, "a").
		Set("second", 200, "b")

	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, "second", v)

	// A stale write loses.
	r = r.Set("stale", 150, "c")
	v, _ = r.Value()
	assert.Equal(t, "second", v)
}

func TestLWWRegisterEmptyValue(t *testing.T) {
	_, ok := NewLWWRegister[int]().Value()
	assert.False(t, ok)
}

func TestLWWRegisterTieBreaksOnNode(t *testing.T) {
	a := NewLWWRegister[string]().Set("from-a", 100, "node-a")
	b := NewLWWRegister[string]().Set("from-b", 100, "node-b")

	// Same timestamp: the greater node ID wins on every instance.
	for _, merged := range []LWWRegister[string]{a.Merge(b), b.Merge(a)} {
		v, ok := merged.Value()
		require.True(t, ok)
		assert.Equal(t, "from-b", v)
	}
}

func TestLWWRegisterMergeLaws(t *testing.T) {
	a := NewLWWRegister[string]().Set("a", 1, "na")
	b := NewLWWRegister[string]().Set("b", 2, "nb")
	c := NewLWWRegister[string]().Set("c", 3, "nc")

	assert.Equal(t, a.Merge(b), b.Merge(a), "commutative")
	assert.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)), "associative")
	assert.Equal(t, a, a.Merge(a), "idempotent")
	assert.Equal(t, a, a.Merge(NewLWWRegister[string]()), "empty register is identity")
}

func TestLWWRegisterJSONRoundTrip(t *testing.T) {
	r := NewLWWRegister[string]().Set("hello", 42, "node-1")

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var restored LWWRegister[string]
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, r, restored)

	// The restored register still loses against a newer write.
	v, _ := restored.Set("newer", 43, "node-0").Value()
	assert.Equal(t, "newer", v)
}

func TestLWWElementSetMembership(t *testing.T) {
	s := NewLWWElementSet[string]().
		Add("a", 100).
		Add("b", 100).
		Remove("a", 200)

	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))

	// Re-add after removal works, unlike a two-phase set.
	s = s.Add("a", 300)
	assert.True(t, s.Contains("a"))
}

func TestLWWElementSetAddAtTimeZeroVisible(t *testing.T) {
	s := NewLWWElementSet[string]().Add("epoch", 0)
	assert.True(t, s.Contains("epoch"), "an add with no removal is visible at any timestamp")
	assert.Equal(t, []string{"epoch"}, s.Elements())

	// The zero-time membership survives the wire.
	data, err := json.Marshal(s)
	require.NoError(t, err)
	var restored LWWElementSet[string]
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.True(t, restored.Contains("epoch"))

	// An equal-time removal still wins, even at zero.
	s = s.Remove("epoch", 0)
	assert.False(t, s.Contains("epoch"))
}

func TestLWWElementSetEqualTimesBiasRemoval(t *testing.T) {
	s := NewLWWElementSet[string]().Add("x", 100).Remove("x", 100)
	assert.False(t, s.Contains("x"))
}

func TestLWWElementSetStaleOpsAbsorbed(t *testing.T) {
	s := NewLWWElementSet[string]().Add("x", 200).Add("x", 100)
	assert.True(t, s.Contains("x"))

	s = s.Remove("x", 150)
	assert.True(t, s.Contains("x"), "removal older than the add must not win")
}

func TestLWWElementSetMergeLaws(t *testing.T) {
	a := NewLWWElementSet[string]().Add("x", 100).Remove("y", 50)
	b := NewLWWElementSet[string]().Add("y", 100).Remove("x", 200)

	assert.Equal(t, a.Merge(b).Elements(), b.Merge(a).Elements(), "commutative")
	assert.Equal(t, a.Merge(a).Elements(), a.Elements(), "idempotent")

	merged := a.Merge(b)
	assert.False(t, merged.Contains("x"))
	assert.True(t, merged.Contains("y"))
}

func TestLWWElementSetJSONStable(t *testing.T) {
	a := NewLWWElementSet[string]().Add("b", 2).Add("a", 1)
	b := NewLWWElementSet[string]().Add("a", 1).Add("b", 2)

	da, err := json.Marshal(a)
	require.NoError(t, err)
	db, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	var restored LWWElementSet[string]
	require.NoError(t, json.Unmarshal(da, &restored))
	assert.Equal(t, a.Elements(), restored.Elements())
}
