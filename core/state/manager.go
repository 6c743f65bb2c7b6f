package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"crowdsale/core/events"
	"crowdsale/storage"
)

var errNilManager = errors.New("state manager unavailable")

// Manager serializes every state transition over a key-value database. Each
// Update runs against a private write overlay which is committed as one batch
// only when the callback succeeds; events emitted through the transaction are
// published after the commit.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	emitter events.Emitter
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, emitter: events.NoopEmitter{}}
}

// SetEmitter configures where committed events are published. Passing nil
// resets the emitter to a no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// Update runs fn inside an exclusive transaction. Returning an error discards
// every write and event produced by fn.
func (m *Manager) Update(fn func(tx *Tx) error) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := newTx(m.db)
	if err := fn(tx); err != nil {
		return err
	}
	if batch := tx.batch(); batch.Len() > 0 {
		if err := m.db.Write(batch); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	for _, evt := range tx.events {
		m.emitter.Emit(evt)
	}
	return nil
}

// View runs fn against a transaction whose writes and events are discarded.
func (m *Manager) View(fn func(tx *Tx) error) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(newTx(m.db))
}

// Close releases the underlying database.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Tx is a write overlay over the database. It is not safe for concurrent
// use; the manager hands out one transaction at a time.
type Tx struct {
	db     storage.Database
	writes map[string][]byte
	order  []string
	events []events.Event
}

func newTx(db storage.Database) *Tx {
	return &Tx{db: db, writes: make(map[string][]byte)}
}

// Emit buffers evt until the transaction commits.
func (tx *Tx) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	tx.events = append(tx.events, evt)
}

// Events returns the events buffered so far.
func (tx *Tx) Events() []events.Event {
	return append([]events.Event(nil), tx.events...)
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	if value, ok := tx.writes[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	value, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (tx *Tx) put(key, value []byte) {
	k := string(key)
	if _, ok := tx.writes[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = append([]byte(nil), value...)
}

func (tx *Tx) batch() *storage.Batch {
	batch := new(storage.Batch)
	for _, k := range tx.order {
		batch.Put([]byte(k), tx.writes[k])
	}
	return batch
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.put(kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := tx.get(kvKey(key))
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
		return false, err
	}
	return true, nil
}

func prefixedKey(prefix string, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return buf
}
