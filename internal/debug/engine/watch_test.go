package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchEvaluator_Lifecycle(t *testing.T) {
	w := NewWatchEvaluator()
	a := w.Add("x")
	b := w.Add("y.z")
	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)
	assert.False(t, a.Evaluated)

	token, ok := w.Issue(a.ID)
	require.True(t, ok)
	assert.True(t, w.Apply(a.ID, token, "5", nil))

	got, _ := w.Get(a.ID)
	assert.Equal(t, "5", got.Value)
	assert.Empty(t, got.Error)
	assert.True(t, got.Evaluated)

	token, _ = w.Issue(b.ID)
	assert.True(t, w.Apply(b.ID, token, "", &EvaluationError{Expression: "y.z", Message: "undefined: y"}))
	got, _ = w.Get(b.ID)
	assert.Empty(t, got.Value)
	assert.Equal(t, "undefined: y", got.Error)

	w.ClearValues()
	for _, we := range w.All() {
		assert.False(t, we.Evaluated)
		assert.Empty(t, we.Value)
		assert.Empty(t, we.Error)
	}

	require.NoError(t, w.Remove(a.ID))
	assert.ErrorIs(t, w.Remove(a.ID), ErrUnknownWatch)
	assert.Equal(t, 1, w.Len())
	_, ok = w.Issue(a.ID)
	assert.False(t, ok)
}

func TestWatchEvaluator_StaleTokens(t *testing.T) {
	w := NewWatchEvaluator()
	a := w.Add("x")

	old, _ := w.Issue(a.ID)
	current, _ := w.Issue(a.ID)
	assert.False(t, w.Apply(a.ID, old, "1", nil))
	assert.True(t, w.Apply(a.ID, current, "2", nil))
	assert.False(t, w.Apply(a.ID, current, "3", nil), "tokens are single use")

	token, _ := w.Issue(a.ID)
	w.Forget()
	assert.False(t, w.Apply(a.ID, token, "4", nil))

	got, _ := w.Get(a.ID)
	assert.Equal(t, "2", got.Value)
}

func TestWatchEvaluator_EmptyResult(t *testing.T) {
	w := NewWatchEvaluator()
	a := w.Add(`strings.TrimSpace("  ")`)

	got, _ := w.Get(a.ID)
	assert.False(t, got.Evaluated, "no attempt yet")

	token, _ := w.Issue(a.ID)
	require.True(t, w.Apply(a.ID, token, "", nil))
	got, _ = w.Get(a.ID)
	assert.True(t, got.Evaluated)
	assert.Empty(t, got.Error, "an empty value is a success")
	assert.Empty(t, got.Value)

	token, _ = w.Issue(a.ID)
	require.True(t, w.Apply(a.ID, token, "", errors.New("boom")))
	token, _ = w.Issue(a.ID)
	require.True(t, w.Apply(a.ID, token, "", nil))
	got, _ = w.Get(a.ID)
	assert.Empty(t, got.Error, "a later success clears the previous error")
	assert.True(t, got.Evaluated)
}

func TestWatchEvaluator_PlainErrors(t *testing.T) {
	w := NewWatchEvaluator()
	a := w.Add("x")
	token, _ := w.Issue(a.ID)
	w.Apply(a.ID, token, "", errors.New("adapter request timed out"))
	got, _ := w.Get(a.ID)
	assert.Equal(t, "adapter request timed out", got.Error)
}
