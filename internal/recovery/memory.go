package recovery

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps encoded state in process. Values are stored as JSON so
// callers never share slices with the store.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string][]byte
	ended  map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[string][]byte{}, ended: map[string]bool{}}
}

func (s *MemoryStore) Save(_ context.Context, device string, st PersistedState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[device] = payload
	return nil
}

func (s *MemoryStore) Load(_ context.Context, device string) (PersistedState, error) {
	s.mu.Lock()
	payload, ok := s.states[device]
	s.mu.Unlock()
	if !ok {
		return PersistedState{}, ErrNoState
	}
	var st PersistedState
	err := json.Unmarshal(payload, &st)
	return st, err
}

func (s *MemoryStore) Delete(_ context.Context, device string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, device)
	return nil
}

func (s *MemoryStore) MarkEnded(_ context.Context, device string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended[device] = true
	return nil
}

func (s *MemoryStore) Ended(_ context.Context, device string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended[device], nil
}

func (s *MemoryStore) Clear(_ context.Context, device string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, device)
	delete(s.ended, device)
	return nil
}
