// Package lease provides non-blocking, keyed, in-process leases.
//
// The report generator holds one lease per incident while a report is being
// produced so that two concurrent requests for the same incident do not both
// call the completion service and write the same PDF path.
package lease

import (
	"errors"
	"sync"
)

// ErrHeld is returned by TryAcquire when the key is already leased.
var ErrHeld = errors.New("lease is already held")

// Manager hands out leases by key. The zero value is ready to use.
type Manager struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{held: make(map[string]struct{})}
}

// TryAcquire takes the lease for key without blocking. The returned release
// function is idempotent.
func (m *Manager) TryAcquire(key string) (release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held == nil {
		m.held = make(map[string]struct{})
	}
	if _, ok := m.held[key]; ok {
		return nil, ErrHeld
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently leased.
func (m *Manager) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}

// Len returns the number of active leases.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}
