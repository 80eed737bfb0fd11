package ingestion_engine

import (
	"sync"

	"github.com/markdave123-py/contexta-datasets/internal/core"
)

// KeyedMutex hands out one lock per key. Entries are dropped once nobody
// holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

type gateHolder int

const (
	holderIngest gateHolder = iota + 1
	holderMutation
)

// DocumentKey identifies a document across datasets.
type DocumentKey struct {
	DatasetID string
	UID       string
}

// DocumentGate tracks which documents are being re-ingested or mutated.
// Ingestion waits for a running mutation; a mutation fails fast with
// core.ErrDocumentBusy while an ingestion holds the document and waits
// behind another mutation.
type DocumentGate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	holders map[DocumentKey]gateHolder
}

func NewDocumentGate() *DocumentGate {
	g := &DocumentGate{holders: make(map[DocumentKey]gateHolder)}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// EnterIngest blocks until key is free and marks it as re-ingesting.
func (g *DocumentGate) EnterIngest(key DocumentKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.holders[key] != 0 {
		g.cond.Wait()
	}
	g.holders[key] = holderIngest
}

// EnterMutation claims key for a single-segment mutation.
func (g *DocumentGate) EnterMutation(key DocumentKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		switch g.holders[key] {
		case holderIngest:
			return core.ErrDocumentBusy
		case holderMutation:
			g.cond.Wait()
		default:
			g.holders[key] = holderMutation
			return nil
		}
	}
}

// Busy reports whether key is held by an ingestion.
func (g *DocumentGate) Busy(key DocumentKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holders[key] == holderIngest
}

// Leave releases key.
func (g *DocumentGate) Leave(key DocumentKey) {
	g.mu.Lock()
	delete(g.holders, key)
	g.mu.Unlock()
	g.cond.Broadcast()
}
