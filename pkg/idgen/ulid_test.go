package idgen

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandID_SortsInGenerationOrder(t *testing.T) {
	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = NewCommandID()
	}

	assert.True(t, sort.StringsAreSorted(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		assert.Len(t, id, 26)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, len(ids))
}

func TestNewCommandID_Concurrent(t *testing.T) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := NewCommandID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestTime(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 123_000_000, time.UTC)

	got, err := Time(NewCommandIDAt(at))
	require.NoError(t, err)
	assert.True(t, got.Equal(at), "got %s", got)

	_, err = Time("not-a-ulid")
	assert.Error(t, err)
}
