// ABOUTME: Tests for MockStore behavior used across package tests
// ABOUTME: Verifies copy semantics, deactivation counting, and error injection

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_ReturnsCopies(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertSession(ctx, &Session{Name: "s1", IsActive: true, Token: "a"}))

	got, err := m.GetActiveSession(ctx, "s1")
	require.NoError(t, err)
	got.Token = "mutated"

	again, err := m.GetActiveSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Token)
}

func TestMockStore_DeactivateCounts(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	require.NoError(t, m.UpsertSession(ctx, &Session{Name: "s1", IsActive: true}))

	changed, err := m.DeactivateSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.DeactivateSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, 1, m.Deactivations)
	_, err = m.GetActiveSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockStore_ErrInjection(t *testing.T) {
	m := NewMockStore()
	boom := errors.New("boom")
	m.Err = boom

	_, err := m.GetActiveSession(context.Background(), "s1")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.Ping(context.Background()), boom)
}
