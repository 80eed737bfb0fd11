package ingestion_engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-datasets/internal/core"
)

func TestDocumentGate_MutationRejectedDuringIngest(t *testing.T) {
	g := NewDocumentGate()
	key := DocumentKey{DatasetID: "d1", UID: "u1"}

	g.EnterIngest(key)
	assert.True(t, g.Busy(key))
	assert.ErrorIs(t, g.EnterMutation(key), core.ErrDocumentBusy)

	other := DocumentKey{DatasetID: "d1", UID: "u2"}
	require.NoError(t, g.EnterMutation(other))
	g.Leave(other)

	g.Leave(key)
	require.NoError(t, g.EnterMutation(key))
	g.Leave(key)
}

func TestDocumentGate_MutationsSerialize(t *testing.T) {
	g := NewDocumentGate()
	key := DocumentKey{DatasetID: "d1", UID: "u1"}

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.EnterMutation(key); err != nil {
				t.Error(err)
				return
			}
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			g.Leave(key)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestDocumentGate_IngestWaitsForMutation(t *testing.T) {
	g := NewDocumentGate()
	key := DocumentKey{DatasetID: "d1", UID: "u1"}
	require.NoError(t, g.EnterMutation(key))

	entered := make(chan struct{})
	go func() {
		g.EnterIngest(key)
		close(entered)
	}()

	select {
	case <-entered:
		t.Fatal("ingest entered while a mutation held the document")
	case <-time.After(20 * time.Millisecond):
	}

	g.Leave(key)
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("ingest never entered")
	}
	g.Leave(key)
}

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()

	unlockA := k.Lock("a")
	unlockB := k.Lock("b") // different keys do not block

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same key acquired early")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired
	unlockB()

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}
