package tui

import (
	"os"
	"path/filepath"
	"testing"

	"credvault/internal/logging"
)

func TestUIStateManager_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), UIStateFileName)
	manager := NewUIStateManager(path, logging.NewLogger(logging.LevelError))

	if err := manager.Save(&UIState{Selection: 2, LastError: "test error"}); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}

	loaded, err := manager.Load()
	if err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}
	if loaded.Selection != 2 {
		t.Errorf("Expected selection 2, got %d", loaded.Selection)
	}
	if loaded.LastError != "test error" {
		t.Errorf("Expected error 'test error', got %s", loaded.LastError)
	}
	if loaded.Updated.IsZero() {
		t.Error("Expected Updated to be set")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("permissions = %o, want 600", info.Mode().Perm())
	}
}

func TestUIStateManager_LoadNonExistent(t *testing.T) {
	manager := NewUIStateManager(filepath.Join(t.TempDir(), UIStateFileName), logging.NewLogger(logging.LevelError))

	state, err := manager.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.Selection != 0 || state.LastError != "" {
		t.Errorf("Load() = %+v, want default state", state)
	}
}

func TestUIStateManager_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), UIStateFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	manager := NewUIStateManager(path, logging.NewLogger(logging.LevelError))
	if _, err := manager.Load(); err == nil {
		t.Error("Load() should fail on malformed state")
	}

	// A model over unreadable state still starts on the first item
	m := NewModel(&fakeService{}, logging.NewLogger(logging.LevelError), manager)
	if m.selection != 0 || m.currentScreen != ScreenMenu {
		t.Errorf("model = screen %s selection %d", m.currentScreen, m.selection)
	}
}

func TestUIStateManager_OutOfRangeSelectionIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), UIStateFileName)
	logger := logging.NewLogger(logging.LevelError)
	manager := NewUIStateManager(path, logger)
	if err := manager.Save(&UIState{Selection: 42}); err != nil {
		t.Fatal(err)
	}

	m := NewModel(&fakeService{}, logger, manager)
	if m.selection != 0 {
		t.Errorf("selection = %d, want 0", m.selection)
	}
}
