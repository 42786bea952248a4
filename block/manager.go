package block

import "fmt"

// Manager allocates and frees block identifiers. It is an out-of-scope
// collaborator per the specification (section 6): the queue borrows a
// Manager reference whose lifetime strictly encloses the queue's, and must
// not assume it is the manager's only client.
type Manager interface {
	// NewBlocks populates a freshly allocated slice of n identifiers under
	// strategy.
	NewBlocks(strategy AllocStrategy, n int) ([]ID, error)
	// DeleteBlock returns a single identifier for reuse.
	DeleteBlock(id ID)
	// DeleteBlocks returns a batch of identifiers for reuse.
	DeleteBlocks(ids []ID)
	// Live reports the number of currently outstanding (allocated, not
	// deleted) identifiers -- used by tests to assert no leaked blocks.
	Live() int
}

// memManager is an in-memory reference Manager: identifiers are never
// reused (freeing just decrements the live count), and the backing bytes
// for a block.Block live on the Go heap rather than a real disk. It exists
// so the queue is constructible and testable without a real storage
// backend; production use is expected to supply a disk-backed Manager.
type memManager struct {
	counter uint64
	live    map[ID]struct{}
}

// NewMemManager returns an in-memory Manager.
func NewMemManager() Manager {
	return &memManager{live: make(map[ID]struct{})}
}

func (m *memManager) NewBlocks(strategy AllocStrategy, n int) ([]ID, error) {
	if strategy == nil {
		strategy = Monotonic{}
	}
	ids := make([]ID, n)
	for i := 0; i < n; i++ {
		id := strategy.Next(m.counter)
		m.counter++
		if _, dup := m.live[id]; dup {
			return nil, fmt.Errorf("block: allocation strategy produced a duplicate id %d", id)
		}
		m.live[id] = struct{}{}
		ids[i] = id
	}
	return ids, nil
}

func (m *memManager) DeleteBlock(id ID) {
	delete(m.live, id)
}

func (m *memManager) DeleteBlocks(ids []ID) {
	for _, id := range ids {
		delete(m.live, id)
	}
}

func (m *memManager) Live() int {
	return len(m.live)
}
