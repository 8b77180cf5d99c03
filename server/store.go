package server

import (
	"sync"
)

// store keeps the decrypted configuration. At most one payload is accepted.
type store struct {
	mu       sync.Mutex
	unsealed bool
	config   string
	// closed once the config is stored
	done chan struct{}
}

func newStore() *store {
	return &store{done: make(chan struct{})}
}

// unseal runs open under the lock and saves its result on success.
// ok is false if the store was already unsealed, open isn't called then.
func (s *store) unseal(open func() (string, error)) (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsealed {
		return false, nil
	}
	config, err := open()
	if err != nil {
		return true, err
	}
	s.config = config
	s.unsealed = true
	close(s.done)
	return true, nil
}

func (s *store) get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, s.unsealed
}

func (s *store) isSealed() bool {
	_, unsealed := s.get()
	return !unsealed
}
