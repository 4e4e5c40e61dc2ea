package tui

import (
	"encoding/json"
	"fmt"
	"time"

	"credvault/internal/fsutil"
	"credvault/internal/logging"
)

const (
	// UIStateFileName is the name of the UI state file
	UIStateFileName = "ui_state.json"
)

// UIStateManager persists the menu selection and last error between sessions
type UIStateManager struct {
	path   string
	logger *logging.Logger
}

// NewUIStateManager creates a state manager writing to path
func NewUIStateManager(path string, logger *logging.Logger) *UIStateManager {
	return &UIStateManager{
		path:   path,
		logger: logger,
	}
}

// Load loads the UI state from disk, returning a default state if none was saved
func (m *UIStateManager) Load() (*UIState, error) {
	data, found, err := fsutil.ReadFileIfExists(m.path)
	if err != nil {
		return nil, err
	}
	if !found {
		return &UIState{Updated: time.Now().UTC()}, nil
	}

	var state UIState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

// Save saves the UI state to disk
func (m *UIStateManager) Save(state *UIState) error {
	state.Updated = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := fsutil.AtomicWriteFile(m.path, data, fsutil.DefaultFilePermissions, m.logger); err != nil {
		return err
	}

	m.logger.Debug("tui.state.saved", "UI state saved", map[string]interface{}{
		"selection": state.Selection,
	})

	return nil
}
