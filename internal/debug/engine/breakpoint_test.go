package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakpointRegistry_AddRemove(t *testing.T) {
	r := NewBreakpointRegistry()

	bp, err := r.Add("src/./main.go", 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, bp.ID)
	assert.Equal(t, "src/main.go", bp.File)
	assert.True(t, bp.Enabled)
	assert.False(t, bp.Verified)

	_, err = r.Add("src/main.go", 10, "x > 1")
	assert.ErrorIs(t, err, ErrDuplicateBreakpoint)

	other, err := r.Add("src/main.go", 20, "")
	require.NoError(t, err)
	assert.Equal(t, 2, other.ID)
	assert.Equal(t, 2, r.Len())

	removed, err := r.Remove(bp.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, removed.Line)
	_, err = r.Remove(bp.ID)
	assert.ErrorIs(t, err, ErrUnknownBreakpoint)

	_, ok := r.Get(bp.ID)
	assert.False(t, ok)
	assert.Len(t, r.ForFile("src/main.go"), 1)
}

func TestBreakpointRegistry_ToggleKeepsID(t *testing.T) {
	r := NewBreakpointRegistry()
	bp, _ := r.Add("main.go", 3, "")

	toggled, err := r.ToggleEnabled(bp.ID)
	require.NoError(t, err)
	assert.Equal(t, bp.ID, toggled.ID)
	assert.False(t, toggled.Enabled)

	toggled, _ = r.ToggleEnabled(bp.ID)
	assert.True(t, toggled.Enabled)

	_, err = r.ToggleEnabled(42)
	assert.ErrorIs(t, err, ErrUnknownBreakpoint)
}

func TestBreakpointRegistry_Verification(t *testing.T) {
	r := NewBreakpointRegistry()
	bp, _ := r.Add("main.go", 3, "")

	assert.True(t, r.MarkVerified(bp.ID, BreakpointStatus{AdapterID: 7, Verified: true}))
	got, _ := r.Get(bp.ID)
	assert.True(t, got.Verified)

	byAdapter, ok := r.ByAdapterID(7)
	require.True(t, ok)
	assert.Equal(t, bp.ID, byAdapter.ID)

	r.ResetVerification()
	got, _ = r.Get(bp.ID)
	assert.False(t, got.Verified)
	_, ok = r.ByAdapterID(7)
	assert.False(t, ok)

	assert.False(t, r.MarkVerified(99, BreakpointStatus{Verified: true}))
}

func TestBreakpointRegistry_RequestIsFullSet(t *testing.T) {
	r := NewBreakpointRegistry()
	a, _ := r.Add("main.go", 30, "")
	b, _ := r.Add("main.go", 10, "n == 2")
	_, _ = r.Add("util.go", 1, "")
	_, _ = r.ToggleEnabled(a.ID)

	ids, set := r.request("main.go")
	assert.Equal(t, []int{a.ID, b.ID}, ids)
	assert.Equal(t, []SourceBreakpoint{
		{Line: 30, Enabled: false},
		{Line: 10, Condition: "n == 2", Enabled: true},
	}, set)

	assert.Equal(t, []string{"main.go", "util.go"}, r.Files())
	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].ID)
	assert.Equal(t, 3, all[2].ID)
}
