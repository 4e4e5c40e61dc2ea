package tui

import (
	"time"

	"credvault/internal/vault"
)

// Screen represents different TUI screens
type Screen string

const (
	// ScreenMenu is the main menu screen
	ScreenMenu Screen = "menu"
	// ScreenForm collects input for a credential operation
	ScreenForm Screen = "form"
	// ScreenStatus shows key and rotation status
	ScreenStatus Screen = "status"
	// ScreenHelp shows help overlay
	ScreenHelp Screen = "help"
)

// Action identifies what a menu item does
type Action string

const (
	ActionAdd          Action = "add"
	ActionAuthenticate Action = "authenticate"
	ActionUpdate       Action = "update"
	ActionRename       Action = "rename"
	ActionDelete       Action = "delete"
	ActionRotate       Action = "rotate"
	ActionStatus       Action = "status"
	ActionHelp         Action = "help"
	ActionQuit         Action = "quit"
)

// MenuItem represents a menu item
type MenuItem struct {
	Key         string // Number key (1-8) or letter
	Label       string // Display label
	Description string // Short description
	Action      Action // What selecting the item does
}

// UIState is the persisted part of the UI, stored as ui_state.json
type UIState struct {
	Selection int       `json:"selection"`
	LastError string    `json:"last_error"`
	Updated   time.Time `json:"updated"`
}

// Service is the vault surface the TUI drives
type Service interface {
	AddUser(username, password string) (vault.Result, error)
	Authenticate(username, password string) (vault.Result, error)
	UpdatePassword(username, newPassword string) (vault.Result, error)
	RenameUser(oldUsername, newUsername string) (vault.Result, error)
	DeleteUser(username string) (vault.Result, error)
	RotateKey() (vault.Result, error)
	Status() (vault.StatusReport, error)
	Users() []string
}

// DefaultMenuItems returns the default main menu items
func DefaultMenuItems() []MenuItem {
	return []MenuItem{
		{Key: "1", Label: "Add User", Description: "Register a username and password", Action: ActionAdd},
		{Key: "2", Label: "Authenticate", Description: "Check a username and password", Action: ActionAuthenticate},
		{Key: "3", Label: "Update Password", Description: "Set a new password for a user", Action: ActionUpdate},
		{Key: "4", Label: "Rename User", Description: "Change a username", Action: ActionRename},
		{Key: "5", Label: "Delete User", Description: "Remove a user", Action: ActionDelete},
		{Key: "6", Label: "Rotate Key", Description: "Re-encrypt the store under a new key", Action: ActionRotate},
		{Key: "7", Label: "Status", Description: "Key age, rotation schedule and users", Action: ActionStatus},
		{Key: "8", Label: "Quit", Description: "Exit credvault", Action: ActionQuit},
		{Key: "?", Label: "Help", Description: "Show help", Action: ActionHelp},
	}
}
