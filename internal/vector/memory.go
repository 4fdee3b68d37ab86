package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/ruiji/internal/storage"
)

// MaxIDLength bounds embedding ids. Snapshot records with longer ids are rejected as corrupt.
const MaxIDLength = 1024

// MemoryStore is an in-memory embedding store. It is used in tests, for single-process
// deployments, and as the "memory" store type with an optional on-disk snapshot.
type MemoryStore struct {
	dimensions int
	ids        []string
	vectors    map[string][]float32
	mu         sync.RWMutex
}

// NewMemoryStore creates an empty store that only accepts vectors of the given dimension.
func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStore{
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make(map[string][]float32),
	}, nil
}

// Dimensions returns the vector dimension the store accepts.
func (m *MemoryStore) Dimensions() int {
	return m.dimensions
}

// PutEmbedding inserts a copy of vec under id. An existing id is left untouched.
func (m *MemoryStore) PutEmbedding(ctx context.Context, id string, vec []float32) error {
	if len(vec) != m.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), m.dimensions)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("embedding id longer than %d bytes", MaxIDLength)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vectors[id]; ok {
		return nil
	}
	m.ids = append(m.ids, id)
	m.vectors[id] = clone(vec)
	return nil
}

// GetEmbedding returns a copy of the embedding stored under id.
func (m *MemoryStore) GetEmbedding(ctx context.Context, id string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.vectors[id]
	if !ok {
		return nil, fmt.Errorf("embedding %s: %w", id, storage.ErrNotFound)
	}
	return clone(vec), nil
}

// BatchGetEmbeddings returns copies of the embeddings found among ids.
func (m *MemoryStore) BatchGetEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	if err := storage.CheckBatch(ids); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]float32, len(ids))
	for _, id := range ids {
		if vec, ok := m.vectors[id]; ok {
			out[id] = clone(vec)
		}
	}
	return out, nil
}

// CountEmbeddings returns the number of stored embeddings.
func (m *MemoryStore) CountEmbeddings(ctx context.Context) (int64, error) {
	return int64(m.Size()), nil
}

// Size returns the number of stored embeddings.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Save writes a snapshot to path, creating the directory if needed. Format: dimension (4),
// n (4), then per vector in insertion order: idLen (4), id bytes, vector (dimension*4 bytes).
func (m *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, id := range m.ids {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := w.WriteString(id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(storage.EncodeVector(m.vectors[id])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// Load replaces the store contents with the snapshot at path. Dimensions must match.
// If the file does not exist, no error is returned and the store is unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, store expects %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	// n comes from the file; let the slices grow instead of trusting it for capacity.
	ids := make([]string, 0, min(n, 4096))
	vectors := make(map[string][]float32, min(n, 4096))
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		if idLen > MaxIDLength {
			return fmt.Errorf("corrupt snapshot: record %d has id length %d (max %d)", i, idLen, MaxIDLength)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		vec, err := storage.DecodeVector(buf)
		if err != nil {
			return err
		}
		id := string(idBytes)
		if _, dup := vectors[id]; !dup {
			ids = append(ids, id)
		}
		vectors[id] = vec
	}
	m.mu.Lock()
	m.ids = ids
	m.vectors = vectors
	m.mu.Unlock()
	return nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
