package subscriber

import (
	"fmt"
	"sort"
	"sync"

	"SwingSentinel/internal/model"
)

// Manager tracks which users receive alerts for each timeframe.
// An empty filePath keeps subscriptions in memory only.
type Manager struct {
	mu       sync.Mutex
	state    *State
	filePath string
}

// NewManager creates a Manager, loading existing subscriptions from disk.
func NewManager(filePath string) (*Manager, error) {
	state := &State{Subscribers: map[string][]string{}}
	if filePath != "" {
		loaded, err := LoadState(filePath)
		if err != nil {
			return nil, fmt.Errorf("load subscribers: %w", err)
		}
		state = loaded
	}
	return &Manager{state: state, filePath: filePath}, nil
}

// Subscribe adds userID to tf's list. Returns false if already subscribed.
func (m *Manager) Subscribe(tf model.Timeframe, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.state.Subscribers[tf.String()]
	for _, id := range list {
		if id == userID {
			return false, nil
		}
	}
	m.state.Subscribers[tf.String()] = append(list, userID)
	return true, m.save()
}

// Unsubscribe removes userID from tf's list. Returns false if not subscribed.
func (m *Manager) Unsubscribe(tf model.Timeframe, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.state.Subscribers[tf.String()]
	for i, id := range list {
		if id != userID {
			continue
		}
		m.state.Subscribers[tf.String()] = append(list[:i:i], list[i+1:]...)
		return true, m.save()
	}
	return false, nil
}

// Recipients returns a sorted copy of tf's subscribers.
func (m *Manager) Recipients(tf model.Timeframe) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append([]string(nil), m.state.Subscribers[tf.String()]...)
	sort.Strings(list)
	return list
}

// Count returns the number of subscribers per timeframe label.
func (m *Manager) Count() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int, len(m.state.Subscribers))
	for tf, list := range m.state.Subscribers {
		out[tf] = len(list)
	}
	return out
}

func (m *Manager) save() error {
	if m.filePath == "" {
		return nil
	}
	return SaveState(m.filePath, m.state)
}
