package utils

import (
	"sync"
)

// OptionalRWMutex is a sync.RWMutex that can be switched off when the owner's caller guarantees
// that calls are never made from more than one goroutine at a time.
type OptionalRWMutex struct {
	Mutex    sync.RWMutex
	UseMutex bool
}

func NewOptionalRWMutex(useMutex bool) OptionalRWMutex {
	return OptionalRWMutex{UseMutex: useMutex}
}

func (m *OptionalRWMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalRWMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

func (m *OptionalRWMutex) RLock() {
	if m.UseMutex {
		m.Mutex.RLock()
	}
}

func (m *OptionalRWMutex) RUnlock() {
	if m.UseMutex {
		m.Mutex.RUnlock()
	}
}
