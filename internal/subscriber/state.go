package subscriber

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// State is the persisted subscription list, keyed by timeframe label.
type State struct {
	Subscribers map[string][]string `json:"subscribers"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// LoadState reads subscriptions from a JSON file. Returns an empty state if the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Subscribers: map[string][]string{}}, nil
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Subscribers == nil {
		state.Subscribers = map[string][]string{}
	}
	return &state, nil
}

// SaveState writes subscriptions to a JSON file, creating its directory if needed.
func SaveState(filePath string, state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0644)
}
