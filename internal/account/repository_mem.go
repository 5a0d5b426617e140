package account

import (
	"context"
	"sort"
	"sync"
)

type memRepo struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func NewMemoryRepo() Repo {
	return &memRepo{accounts: make(map[string]Account)}
}

func (m *memRepo) Create(ctx context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.Username]; ok {
		return ErrExists
	}
	m.accounts[a.Username] = a
	return nil
}

func (m *memRepo) Get(ctx context.Context, username string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (m *memRepo) RecordResult(ctx context.Context, username string, won bool) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	if !ok {
		return Stats{}, ErrNotFound
	}
	a.Stats.GamesPlayed++
	if won {
		a.Stats.Wins++
	}
	m.accounts[username] = a
	return a.Stats, nil
}

func (m *memRepo) All(ctx context.Context) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	// 稳定输出顺序，方便测试断言
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
