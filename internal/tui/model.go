package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"credvault/internal/logging"
	"credvault/internal/vault"
)

const down = "down"

// Model represents the TUI application state
type Model struct {
	quitting bool

	service      Service
	logger       *logging.Logger
	stateManager *UIStateManager
	now          func() time.Time

	// UI State
	currentScreen Screen
	selection     int
	lastError     string
	form          form

	// Outcome of the last operation, shown under the menu
	message   string
	messageOK bool

	status      vault.StatusReport
	statusError string
}

// NewModel creates a TUI model over an open vault. stateManager may be nil.
func NewModel(service Service, logger *logging.Logger, stateManager *UIStateManager) Model {
	m := Model{
		service:       service,
		logger:        logger,
		stateManager:  stateManager,
		now:           time.Now,
		currentScreen: ScreenMenu,
	}

	if stateManager != nil {
		if state, err := stateManager.Load(); err == nil {
			if state.Selection >= 0 && state.Selection < len(DefaultMenuItems()) {
				m.selection = state.Selection
			}
			m.lastError = state.LastError
		} else {
			logger.Warn("tui.state.load_failed", "Ignoring unreadable UI state", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.currentScreen == ScreenForm {
			var cmd tea.Cmd
			m.form, _, cmd = m.form.update(msg)
			return m, cmd
		}
		return m, nil
	}

	if next, handled, cmd := m.handleQuitKeys(keyMsg.String()); handled {
		return next, cmd
	}

	if next, handled := m.handleEscapeKey(keyMsg.String()); handled {
		return next, nil
	}

	if m.currentScreen == ScreenForm {
		return m.handleFormKeys(keyMsg)
	}

	if next, handled := m.handleMenuNavigationKeys(keyMsg.String()); handled {
		return next, nil
	}

	if next, handled, cmd := m.handleMenuSelectionKey(keyMsg.String()); handled {
		return next, cmd
	}

	if next, handled, cmd := m.handleShortcutKeys(keyMsg.String()); handled {
		return next, cmd
	}

	if next, handled := m.handleStatusScreenKeys(keyMsg.String()); handled {
		return next, nil
	}

	return m, nil
}

func (m Model) handleQuitKeys(key string) (tea.Model, bool, tea.Cmd) {
	// q is ordinary input while a form is open
	if key == "ctrl+c" || (key == "q" && m.currentScreen != ScreenForm) {
		return m.quit()
	}
	return m, false, nil
}

func (m Model) quit() (tea.Model, bool, tea.Cmd) {
	m.quitting = true
	m.saveState()
	return m, true, tea.Quit
}

func (m Model) handleEscapeKey(key string) (tea.Model, bool) {
	if key == "esc" && m.currentScreen != ScreenMenu {
		m = m.returnToMenu()
		m.saveState()
		return m, true
	}
	return m, false
}

func (m Model) handleMenuNavigationKeys(key string) (tea.Model, bool) {
	if m.currentScreen != ScreenMenu {
		return m, false
	}

	switch key {
	case "up", "k":
		return m.navigateUp(), true
	case down, "j":
		return m.navigateDown(), true
	}
	return m, false
}

func (m Model) handleMenuSelectionKey(key string) (tea.Model, bool, tea.Cmd) {
	if m.currentScreen != ScreenMenu {
		return m, false, nil
	}

	if key == "enter" || key == " " {
		items := DefaultMenuItems()
		if m.selection < 0 || m.selection >= len(items) {
			return m, true, nil
		}
		return m.activate(items[m.selection])
	}
	return m, false, nil
}

func (m Model) handleShortcutKeys(key string) (tea.Model, bool, tea.Cmd) {
	if m.currentScreen != ScreenMenu && m.currentScreen != ScreenStatus && m.currentScreen != ScreenHelp {
		return m, false, nil
	}

	for i, item := range DefaultMenuItems() {
		if item.Key == key {
			m.selection = i
			return m.activate(item)
		}
	}
	return m, false, nil
}

func (m Model) handleStatusScreenKeys(key string) (tea.Model, bool) {
	if m.currentScreen != ScreenStatus {
		return m, false
	}

	if key == "r" {
		return m.refreshStatus(), true
	}
	return m, false
}

func (m Model) handleFormKeys(keyMsg tea.KeyMsg) (tea.Model, tea.Cmd) {
	next, submitted, cmd := m.form.update(keyMsg)
	m.form = next
	if !submitted {
		return m, cmd
	}

	if label := m.form.missing(); label != "" {
		m.form.err = label + " must not be empty."
		return m, nil
	}
	return m.submitForm(), nil
}

// activate runs the action behind a menu item
func (m Model) activate(item MenuItem) (tea.Model, bool, tea.Cmd) {
	m.lastError = ""

	switch item.Action {
	case ActionQuit:
		return m.quit()
	case ActionRotate:
		result, err := m.service.RotateKey()
		m = m.applyResult(result, err)
		m.currentScreen = ScreenMenu
	case ActionStatus:
		m = m.refreshStatus()
		m.currentScreen = ScreenStatus
	case ActionHelp:
		m.currentScreen = ScreenHelp
	default:
		m.form = newForm(item.Action)
		m.currentScreen = ScreenForm
		m.message = ""
		m.saveState()
		return m, true, textinput.Blink
	}

	m.saveState()
	return m, true, nil
}

func (m Model) submitForm() Model {
	v := m.form.values()

	var (
		result vault.Result
		err    error
	)
	switch m.form.action {
	case ActionAdd:
		result, err = m.service.AddUser(v[0], v[1])
	case ActionAuthenticate:
		result, err = m.service.Authenticate(v[0], v[1])
	case ActionUpdate:
		result, err = m.service.UpdatePassword(v[0], v[1])
	case ActionRename:
		result, err = m.service.RenameUser(v[0], v[1])
	case ActionDelete:
		result, err = m.service.DeleteUser(v[0])
	default:
		err = fmt.Errorf("unknown form action %q", m.form.action)
	}

	m = m.applyResult(result, err)
	m.form = form{}
	m.currentScreen = ScreenMenu
	m.saveState()
	return m
}

func (m Model) applyResult(result vault.Result, err error) Model {
	m.message = result.Message
	m.messageOK = result.OK
	if err != nil {
		m.lastError = err.Error()
		m.logger.Error("tui.operation.failed", "Vault operation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return m
}

func (m Model) refreshStatus() Model {
	status, err := m.service.Status()
	if err != nil {
		m.statusError = err.Error()
		return m
	}
	m.status = status
	m.statusError = ""
	return m
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.currentScreen {
	case ScreenMenu:
		return m.renderMenu()
	case ScreenForm:
		return m.renderFormScreen()
	case ScreenStatus:
		return m.renderStatusScreen()
	case ScreenHelp:
		return m.renderHelpScreen()
	default:
		return m.renderMenu()
	}
}

// saveState persists the current UI state
func (m *Model) saveState() {
	if m.stateManager == nil {
		return
	}

	state := &UIState{
		Selection: m.selection,
		LastError: m.lastError,
	}

	if err := m.stateManager.Save(state); err != nil {
		m.logger.Warn("tui.state.save_failed", "Failed to save UI state", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
