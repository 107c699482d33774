package state

import (
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"usdacore/storage"
)

// Manager is a write-buffered view over the database. Reads see pending
// writes; nothing reaches the database until Commit, and Discard drops the
// buffer. Every engine call runs against its own Manager, which makes each
// operation all-or-nothing.
type Manager struct {
	db      storage.Database
	pending map[string][]byte
	deleted map[string]struct{}
}

// NewManager creates a state manager on top of db.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	k := string(hashed)
	if v, ok := m.pending[k]; ok {
		return v, nil
	}
	if _, ok := m.deleted[k]; ok {
		return nil, nil
	}
	if m.db == nil {
		return nil, fmt.Errorf("state: database not configured")
	}
	v, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (m *Manager) put(hashed, value []byte) {
	k := string(hashed)
	delete(m.deleted, k)
	m.pending[k] = append([]byte(nil), value...)
}

func (m *Manager) del(hashed []byte) {
	k := string(hashed)
	delete(m.pending, k)
	m.deleted[k] = struct{}{}
}

// KVPut RLP-encodes value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(kvKey(key), encoded)
	return nil
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// KVDelete removes key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.del(kvKey(key))
	return nil
}

// ParamStoreSet stores a raw parameter blob.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	if name == "" {
		return fmt.Errorf("params: name must not be empty")
	}
	m.put(kvKey(paramKey(name)), value)
	return nil
}

func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("params: name must not be empty")
	}
	data, err := m.get(kvKey(paramKey(name)))
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Dirty reports the number of buffered writes and deletes.
func (m *Manager) Dirty() int {
	return len(m.pending) + len(m.deleted)
}

// Commit writes the buffer as a single batch and resets it.
func (m *Manager) Commit() error {
	if m.db == nil {
		return fmt.Errorf("state: database not configured")
	}
	if m.Dirty() == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.pending))
	for k := range m.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, k := range keys {
		batch.Put([]byte(k), m.pending[k])
	}
	removed := make([]string, 0, len(m.deleted))
	for k := range m.deleted {
		removed = append(removed, k)
	}
	sort.Strings(removed)
	for _, k := range removed {
		batch.Delete([]byte(k))
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.Discard()
	return nil
}

// Discard drops every buffered change.
func (m *Manager) Discard() {
	m.pending = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
}
