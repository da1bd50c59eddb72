package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/elys-network/candyshop/internal/types"
)

// Backend is the persistence surface used by the shop, the keeper and the web API.
type Backend interface {
	SaveCan(ctx context.Context, snap types.CanSnapshot) error
	SaveOperation(ctx context.Context, snap types.CanSnapshot, r types.Receipt) error
	LoadCans(ctx context.Context) ([]types.CanSnapshot, error)
	RecentReceipts(ctx context.Context, limit int) ([]types.Receipt, error)
	CurrentCycleNumber(ctx context.Context) (int, error)
	IncrementCycleNumber(ctx context.Context) (int, error)
	SaveKeeperCycle(ctx context.Context, cycle types.KeeperCycle) error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*MemoryStore)(nil)
)

type memoryCan struct {
	snap  types.CanSnapshot
	users map[common.Address]types.UserInfo
}

// MemoryStore keeps everything in process memory. It is used when no database
// is configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	order    []common.Address
	cans     map[common.Address]*memoryCan
	receipts []types.Receipt
	seen     map[uuid.UUID]bool
	cycle    int
	cycles   []types.KeeperCycle
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cans: make(map[common.Address]*memoryCan),
		seen: make(map[uuid.UUID]bool),
	}
}

func (m *MemoryStore) SaveCan(ctx context.Context, snap types.CanSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCanLocked(snap)
	return nil
}

func (m *MemoryStore) saveCanLocked(snap types.CanSnapshot) {
	entry, ok := m.cans[snap.Address]
	if !ok {
		entry = &memoryCan{users: make(map[common.Address]types.UserInfo)}
		m.cans[snap.Address] = entry
		m.order = append(m.order, snap.Address)
	}
	entry.snap = snap
	entry.snap.Users = nil
	for _, rec := range snap.Users {
		entry.users[rec.User] = rec.Info
	}
}

func (m *MemoryStore) LoadCans(ctx context.Context) ([]types.CanSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]types.CanSnapshot, 0, len(m.order))
	for _, addr := range m.order {
		entry := m.cans[addr]
		snap := entry.snap
		snap.Users = make([]types.UserRecord, 0, len(entry.users))
		for user, info := range entry.users {
			snap.Users = append(snap.Users, types.UserRecord{User: user, Info: info})
		}
		sort.Slice(snap.Users, func(i, j int) bool {
			return snap.Users[i].User.Hex() < snap.Users[j].User.Hex()
		})
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// SaveOperation stores snap and r together; when r is rejected the can is
// left as it was.
func (m *MemoryStore) SaveOperation(ctx context.Context, snap types.CanSnapshot, r types.Receipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == uuid.Nil {
		return fmt.Errorf("%w: receipt has no id", ErrInvalidReceipt)
	}
	if m.seen[r.ID] {
		return fmt.Errorf("%w: receipt %s already stored", ErrInvalidReceipt, r.ID)
	}
	m.saveCanLocked(snap)
	m.seen[r.ID] = true
	m.receipts = append(m.receipts, r)
	return nil
}

func (m *MemoryStore) RecentReceipts(ctx context.Context, limit int) ([]types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Receipt, 0, limit)
	for i := len(m.receipts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.receipts[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStore) CurrentCycleNumber(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cycle, nil
}

func (m *MemoryStore) IncrementCycleNumber(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycle++
	return m.cycle, nil
}

func (m *MemoryStore) ResetCycleNumber(_ context.Context, cycleNumber int) error {
	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycle = cycleNumber
	return nil
}

func (m *MemoryStore) SaveKeeperCycle(ctx context.Context, cycle types.KeeperCycle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, cycle)
	return nil
}

// KeeperCycles returns every recorded heartbeat pass in order.
func (m *MemoryStore) KeeperCycles() []types.KeeperCycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.KeeperCycle, len(m.cycles))
	copy(out, m.cycles)
	return out
}
