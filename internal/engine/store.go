package engine

import "sync"

// Store is the combat collection shared with readers outside the pipeline.
// Readers run concurrently; writers exclude everyone. Subscribers are called
// after the write lock is released.
type Store struct {
	mu      sync.RWMutex
	combats []*Combat
	byID    map[string]*Combat
	version uint64

	subMu  sync.Mutex
	subs   map[int]func(StoreUpdate)
	nextID int
}

// StoreUpdate describes one mutation of the store. Combats holds the full
// collection after the change.
type StoreUpdate struct {
	Version uint64
	Kind    UpdateKind
	Combats []*Combat
}

func NewStore() *Store {
	return &Store{
		byID: make(map[string]*Combat),
		subs: make(map[int]func(StoreUpdate)),
	}
}

// Replace swaps the whole collection, as after a full re-parse.
func (s *Store) Replace(combats []*Combat) {
	s.mu.Lock()
	s.combats = append([]*Combat(nil), combats...)
	s.byID = make(map[string]*Combat, len(combats))
	for _, c := range combats {
		s.byID[c.ID] = c
	}
	s.version++
	u := StoreUpdate{Version: s.version, Kind: UpdateCreated, Combats: s.snapshotLocked()}
	s.mu.Unlock()

	s.notify(u)
}

func (s *Store) List() []*Combat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Get(id string) (*Combat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.combats)
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers fn for every later mutation. The returned func removes
// it.
func (s *Store) Subscribe(fn func(StoreUpdate)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) snapshotLocked() []*Combat {
	out := make([]*Combat, len(s.combats))
	copy(out, s.combats)
	return out
}

func (s *Store) notify(u StoreUpdate) {
	s.subMu.Lock()
	fns := make([]func(StoreUpdate), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}
