package keystore

import (
	"sync"

	"github.com/pkg/errors"
)

// manager implements key management with thread-safe access
type manager struct {
	key         []byte
	keyType     KeyType
	mu          sync.RWMutex
	initialized bool
}

// NewManager creates a new key Manager
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewManager() Manager {
	return &manager{
		key:         nil,
		initialized: false,
	}
}

// Initialize stores a private copy of the key, the caller may wipe its own slice afterwards
func (m *manager) Initialize(keyType KeyType, key []byte) error {
	if len(key) == 0 {
		return errors.New("empty key")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	wipe(m.key)

	m.key = make([]byte, len(key))
	copy(m.key, key)
	m.keyType = keyType
	m.initialized = true

	return nil
}

// GetKey gets the key (returns a copy to prevent external modification)
func (m *manager) GetKey() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized || m.key == nil {
		return nil
	}

	keyCopy := make([]byte, len(m.key))
	copy(keyCopy, m.key)
	return keyCopy
}

func (m *manager) KeyType() KeyType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.keyType
}

// IsInitialized checks if a key is loaded
func (m *manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.initialized
}

// Clear clears the key from memory
func (m *manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	wipe(m.key)
	m.key = nil
	m.initialized = false
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
