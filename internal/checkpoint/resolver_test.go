package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFullID(t *testing.T) {
	mono, _, mgr := newTestManager(t)
	require.NoError(t, mono.WriteTask(seedTask("T-01", "one")))

	meta, err := mgr.Create(context.Background(), "")
	require.NoError(t, err)

	id, err := mgr.Resolve(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, id)
}

func TestResolvePrefix(t *testing.T) {
	mono, _, mgr := newTestManager(t)
	require.NoError(t, mono.WriteTask(seedTask("T-01", "one")))

	meta, err := mgr.Create(context.Background(), "")
	require.NoError(t, err)

	id, err := mgr.Resolve(meta.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, meta.ID, id)
}

func TestResolveRejectsShortPrefix(t *testing.T) {
	_, _, mgr := newTestManager(t)
	_, err := mgr.Resolve("6b2a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 6 characters")
}

func TestResolveNoMatch(t *testing.T) {
	mono, _, mgr := newTestManager(t)
	require.NoError(t, mono.WriteTask(seedTask("T-01", "one")))
	_, err := mgr.Create(context.Background(), "")
	require.NoError(t, err)

	_, err = mgr.Resolve("zzzzzz")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}
