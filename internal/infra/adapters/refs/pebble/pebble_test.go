package refspebble

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabien-marty/git-tag/internal/app/tag"
)

const (
	id1 = tag.ObjectID("1111111111111111111111111111111111111111")
	id2 = tag.ObjectID("2222222222222222222222222222222222222222")
)

func newTestAdapter(t *testing.T) *Adapter {
	adapter, err := NewAdapter(AdapterOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = adapter.Close()
	})
	return adapter
}

func TestUpperBound(t *testing.T) {
	assert.Equal(t, []byte("refs/tags0"), upperBound([]byte("refs/tags/")))
	assert.Equal(t, []byte{0x02}, upperBound([]byte{0x01, 0xff}))
	assert.Nil(t, upperBound([]byte{0xff, 0xff}))
}

func TestResolveUpdateDelete(t *testing.T) {
	adapter := newTestAdapter(t)
	_, err := adapter.Resolve("refs/tags/v1")
	assert.ErrorIs(t, err, tag.ErrRefNotFound)

	require.NoError(t, adapter.Update("refs/tags/v1", "", id1))
	id, err := adapter.Resolve("refs/tags/v1")
	require.NoError(t, err)
	assert.Equal(t, id1, id)

	assert.ErrorIs(t, adapter.Update("refs/tags/v1", "", id2), tag.ErrRefConflict)
	assert.ErrorIs(t, adapter.Update("refs/tags/v1", id2, id2), tag.ErrRefConflict)
	require.NoError(t, adapter.Update("refs/tags/v1", id1, id2))
	id, err = adapter.Resolve("refs/tags/v1")
	require.NoError(t, err)
	assert.Equal(t, id2, id)

	require.NoError(t, adapter.Delete("refs/tags/v1"))
	assert.ErrorIs(t, adapter.Delete("refs/tags/v1"), tag.ErrRefNotFound)
	// a deleted reference can't be updated with its old value
	assert.ErrorIs(t, adapter.Update("refs/tags/v1", id2, id1), tag.ErrRefConflict)
}

func TestListRefs(t *testing.T) {
	adapter := newTestAdapter(t)
	require.NoError(t, adapter.Update("refs/heads/main", "", id1))
	require.NoError(t, adapter.Update("refs/tags/b", "", id1))
	require.NoError(t, adapter.Update("refs/tags/a", "", id2))
	require.NoError(t, adapter.Update("refs/tagsx", "", id2))
	refs, err := adapter.ListRefs(tag.Prefix)
	require.NoError(t, err)
	assert.Equal(t, []tag.Ref{{Name: "refs/tags/a", Target: id2}, {Name: "refs/tags/b", Target: id1}}, refs)
}

func TestConcurrentUpdates(t *testing.T) {
	adapter := newTestAdapter(t)
	require.NoError(t, adapter.Update("refs/tags/v1", "", id1))
	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = adapter.Update("refs/tags/v1", id1, tag.ObjectID(fmt.Sprintf("%040d", i+1)))
		}(i)
	}
	wg.Wait()
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, tag.ErrRefConflict))
		}
	}
	assert.Equal(t, 1, succeeded)
}
