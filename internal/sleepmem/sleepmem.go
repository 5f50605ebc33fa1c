// Package sleepmem persists the small integer slots that must survive
// between wake cycles (power-off, process exit, reboot).
package sleepmem

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gcalpaper/internal/config"
)

// Slot indices. Slot 0 is reserved so a zeroed record reads as "no state".
const (
	SlotBackoff      = 1
	SlotBackoffTimes = 2

	numSlots = 3
)

// Slots is the fixed-layout record kept across wakes.
type Slots [numSlots]int32

// Store loads and saves the slot record. Implementations are used from a
// single thread of execution; MemoryStore additionally tolerates the status
// server reading concurrently.
type Store interface {
	Load(ctx context.Context) (Slots, error)
	Save(ctx context.Context, s Slots) error
}

// MemoryStore keeps slots in process memory. Useful for tests and for
// daemon mode on hardware without writable storage.
type MemoryStore struct {
	mu    sync.Mutex
	slots Slots

	// LoadErr / SaveErr inject failures.
	LoadErr error
	SaveErr error
}

func (m *MemoryStore) Load(_ context.Context) (Slots, error) {
	if m.LoadErr != nil {
		return Slots{}, m.LoadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots, nil
}

func (m *MemoryStore) Save(_ context.Context, s Slots) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = s
	return nil
}

// FileStore keeps slots in a small binary file: a 4-byte magic followed by
// numSlots big-endian int32 values. Writes go through a temp file + rename
// so a power cut never leaves a torn record.
type FileStore struct {
	Path string
}

var fileMagic = [4]byte{'G', 'C', 'S', 'M'}

const fileSize = len(fileMagic) + numSlots*4

// ErrCorrupt is returned when the state file does not have the expected
// layout.
var ErrCorrupt = errors.New("sleepmem: corrupt state file")

func (f *FileStore) Load(_ context.Context) (Slots, error) {
	var s Slots
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First boot: behave like freshly powered sleep memory.
			return s, nil
		}
		return s, err
	}
	if len(data) != fileSize || [4]byte(data[:4]) != fileMagic {
		return s, fmt.Errorf("%w: %s", ErrCorrupt, f.Path)
	}
	for i := range s {
		off := len(fileMagic) + i*4
		s[i] = int32(binary.BigEndian.Uint32(data[off : off+4]))
	}
	return s, nil
}

func (f *FileStore) Save(_ context.Context, s Slots) error {
	buf := make([]byte, fileSize)
	copy(buf, fileMagic[:])
	for i, v := range s {
		off := len(fileMagic) + i*4
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(v))
	}
	return config.WriteFileAtomic(f.Path, buf, 0o600)
}

// Open returns the Store selected by cfg.
func Open(cfg config.StateConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return &MemoryStore{}, nil
	case config.StoreFile:
		return &FileStore{Path: cfg.Path}, nil
	case config.StoreSQLite:
		db, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(db), nil
	default:
		return nil, fmt.Errorf("sleepmem: unknown driver %q", cfg.Driver)
	}
}
