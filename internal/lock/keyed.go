package lock

import "sync"

// KeyedMutex is a non-blocking in-process lock per key.
type KeyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{held: map[string]struct{}{}}
}

func (m *KeyedMutex) TryLock(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return false
	}
	m.held[key] = struct{}{}
	return true
}

func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
}

func (m *KeyedMutex) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}
