package tui

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"credvault/internal/logging"
	"credvault/internal/rotation"
	"credvault/internal/vault"
)

type call struct {
	op   string
	args []string
}

type fakeService struct {
	calls     []call
	result    vault.Result
	err       error
	status    vault.StatusReport
	statusErr error
	users     []string
}

func (f *fakeService) record(op string, args ...string) (vault.Result, error) {
	f.calls = append(f.calls, call{op: op, args: args})
	return f.result, f.err
}

func (f *fakeService) AddUser(u, p string) (vault.Result, error) { return f.record("add", u, p) }
func (f *fakeService) Authenticate(u, p string) (vault.Result, error) {
	return f.record("auth", u, p)
}
func (f *fakeService) UpdatePassword(u, p string) (vault.Result, error) {
	return f.record("update", u, p)
}
func (f *fakeService) RenameUser(o, n string) (vault.Result, error) { return f.record("rename", o, n) }
func (f *fakeService) DeleteUser(u string) (vault.Result, error)    { return f.record("delete", u) }
func (f *fakeService) RotateKey() (vault.Result, error)             { return f.record("rotate") }
func (f *fakeService) Status() (vault.StatusReport, error)          { return f.status, f.statusErr }
func (f *fakeService) Users() []string                              { return f.users }

func newTestModel(t *testing.T) (Model, *fakeService) {
	t.Helper()
	svc := &fakeService{result: vault.Result{OK: true, Message: "done"}}
	logger := logging.NewLogger(logging.LevelError)
	state := NewUIStateManager(filepath.Join(t.TempDir(), UIStateFileName), logger)
	return NewModel(svc, logger, state), svc
}

func press(t *testing.T, m Model, msgs ...tea.KeyMsg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		if !ok {
			t.Fatal("Expected Model type from Update")
		}
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyTab   = tea.KeyMsg{Type: tea.KeyTab}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyUp    = tea.KeyMsg{Type: tea.KeyUp}
)

func TestModelInit(t *testing.T) {
	m, _ := newTestModel(t)
	if cmd := m.Init(); cmd != nil {
		t.Error("Expected Init to return nil command")
	}
}

func TestModelUpdate_QuitOnQ(t *testing.T) {
	m, _ := newTestModel(t)

	updatedModel, cmd := m.Update(runes("q"))
	updatedM := updatedModel.(Model)

	if !updatedM.quitting {
		t.Error("Expected quitting to be true after 'q' key")
	}
	if cmd == nil {
		t.Error("Expected quit command to be returned")
	}
	if updatedM.View() != "" {
		t.Error("Expected empty view when quitting")
	}
}

func TestModelUpdate_QuitOnCtrlC(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, runes("1"))

	updatedModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !updatedModel.(Model).quitting || cmd == nil {
		t.Error("Expected Ctrl+C to quit from a form")
	}
}

func TestModelUpdate_QuitMenuItem(t *testing.T) {
	m, _ := newTestModel(t)
	updatedModel, cmd := m.Update(runes("8"))
	if !updatedModel.(Model).quitting || cmd == nil {
		t.Error("Expected menu item 8 to quit")
	}
}

func TestModelUpdate_QTypesIntoForm(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, runes("1"), runes("q"))

	if m.quitting {
		t.Fatal("'q' in a form must not quit")
	}
	if got := m.form.values()[0]; got != "q" {
		t.Errorf("username field = %q, want q", got)
	}
}

func TestModelUpdate_AddUserFlow(t *testing.T) {
	m, svc := newTestModel(t)
	svc.result = vault.Result{OK: true, Message: "User alice added successfully."}

	m = press(t, m, runes("1"))
	if m.currentScreen != ScreenForm || m.form.action != ActionAdd {
		t.Fatalf("screen = %s action = %s, want add form", m.currentScreen, m.form.action)
	}

	m = press(t, m, runes("alice"), keyTab, runes("s3cret"))
	if strings.Contains(m.View(), "s3cret") {
		t.Error("password echoed in form view")
	}
	m = press(t, m, keyEnter)

	if m.currentScreen != ScreenMenu {
		t.Errorf("screen after submit = %s, want menu", m.currentScreen)
	}
	if len(svc.calls) != 1 || svc.calls[0].op != "add" || svc.calls[0].args[0] != "alice" || svc.calls[0].args[1] != "s3cret" {
		t.Fatalf("calls = %+v", svc.calls)
	}
	if !strings.Contains(m.View(), "User alice added successfully.") {
		t.Errorf("menu does not show result:\n%s", m.View())
	}
}

func TestModelUpdate_FormActions(t *testing.T) {
	tests := []struct {
		key    string
		fields []string
		wantOp string
	}{
		{"2", []string{"alice", "pw"}, "auth"},
		{"3", []string{"alice", "new"}, "update"},
		{"4", []string{"alice", "bob"}, "rename"},
		{"5", []string{"alice"}, "delete"},
	}

	for _, tt := range tests {
		t.Run(tt.wantOp, func(t *testing.T) {
			m, svc := newTestModel(t)
			m = press(t, m, runes(tt.key))
			for i, value := range tt.fields {
				m = press(t, m, runes(value))
				if i < len(tt.fields)-1 {
					m = press(t, m, keyEnter)
				}
			}
			m = press(t, m, keyEnter)

			if len(svc.calls) != 1 || svc.calls[0].op != tt.wantOp {
				t.Fatalf("calls = %+v, want one %s", svc.calls, tt.wantOp)
			}
			if strings.Join(svc.calls[0].args, ",") != strings.Join(tt.fields, ",") {
				t.Errorf("args = %v, want %v", svc.calls[0].args, tt.fields)
			}
		})
	}
}

func TestModelUpdate_EmptyFieldBlocksSubmit(t *testing.T) {
	m, svc := newTestModel(t)
	m = press(t, m, runes("5"), keyEnter)

	if len(svc.calls) != 0 {
		t.Fatalf("service called with empty field: %+v", svc.calls)
	}
	if m.currentScreen != ScreenForm {
		t.Errorf("screen = %s, want form", m.currentScreen)
	}
	if !strings.Contains(m.View(), "Username must not be empty.") {
		t.Errorf("form view missing validation message:\n%s", m.View())
	}
}

func TestModelUpdate_EscCancelsForm(t *testing.T) {
	m, svc := newTestModel(t)
	m = press(t, m, runes("1"), runes("alice"), keyEsc)

	if m.currentScreen != ScreenMenu {
		t.Errorf("screen = %s, want menu", m.currentScreen)
	}
	if len(svc.calls) != 0 {
		t.Errorf("service called after cancel: %+v", svc.calls)
	}
}

func TestModelUpdate_RotateKey(t *testing.T) {
	m, svc := newTestModel(t)
	svc.result = vault.Result{Message: "Key rotation failed; the previous key remains active."}
	svc.err = errors.New("disk full")

	m = press(t, m, runes("6"))

	if len(svc.calls) != 1 || svc.calls[0].op != "rotate" {
		t.Fatalf("calls = %+v", svc.calls)
	}
	view := m.View()
	if !strings.Contains(view, "previous key remains active") || !strings.Contains(view, "disk full") {
		t.Errorf("menu does not show failure:\n%s", view)
	}
}

func TestModelUpdate_StatusScreen(t *testing.T) {
	m, svc := newTestModel(t)
	svc.status = vault.StatusReport{
		DataDir: "/srv/vault",
		Users:   2,
		Rotation: rotation.Status{
			KeyID:    "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
			Due:      true,
			Interval: rotation.DefaultInterval,
		},
	}
	svc.users = []string{"alice", "bob"}

	m = press(t, m, runes("7"))
	if m.currentScreen != ScreenStatus {
		t.Fatalf("screen = %s, want status", m.currentScreen)
	}

	view := m.View()
	for _, want := range []string{"Vault Status", "/srv/vault", "1b4e28ba", "never", "30 days", "due now", "alice", "bob"} {
		if !strings.Contains(view, want) {
			t.Errorf("status view missing %q:\n%s", want, view)
		}
	}

	svc.statusErr = errors.New("metadata unreadable")
	m = press(t, m, runes("r"))
	if !strings.Contains(m.View(), "metadata unreadable") {
		t.Error("status refresh error not shown")
	}
}

func TestModelUpdate_HelpScreen(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, runes("?"))
	if m.currentScreen != ScreenHelp {
		t.Fatalf("screen = %s, want help", m.currentScreen)
	}
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Error("help view missing title")
	}
	m = press(t, m, keyEsc)
	if m.currentScreen != ScreenMenu {
		t.Errorf("screen after esc = %s, want menu", m.currentScreen)
	}
}

func TestModelUpdate_Navigation(t *testing.T) {
	m, _ := newTestModel(t)

	m = press(t, m, keyDown, keyDown)
	if m.selection != 2 {
		t.Errorf("selection = %d, want 2", m.selection)
	}

	m = press(t, m, keyUp, keyUp, keyUp)
	if m.selection != len(DefaultMenuItems())-1 {
		t.Errorf("selection = %d, want wrap to last", m.selection)
	}

	m = press(t, m, runes("j"))
	if m.selection != 0 {
		t.Errorf("selection = %d, want wrap to first", m.selection)
	}

	// Enter on the first item opens the add form
	m = press(t, m, keyEnter)
	if m.currentScreen != ScreenForm || m.form.action != ActionAdd {
		t.Errorf("enter on first item: screen %s action %s", m.currentScreen, m.form.action)
	}
}

func TestModel_RestoresSelection(t *testing.T) {
	logger := logging.NewLogger(logging.LevelError)
	path := filepath.Join(t.TempDir(), UIStateFileName)
	svc := &fakeService{}

	m := NewModel(svc, logger, NewUIStateManager(path, logger))
	m = press(t, m, keyDown, keyDown, keyDown, runes("q"))

	restored := NewModel(svc, logger, NewUIStateManager(path, logger))
	if restored.selection != 3 {
		t.Errorf("restored selection = %d, want 3", restored.selection)
	}
}

func TestModel_NilStateManager(t *testing.T) {
	m := NewModel(&fakeService{}, logging.NewLogger(logging.LevelError), nil)
	m = press(t, m, keyDown, runes("q"))
	if !m.quitting {
		t.Error("Expected quit without a state manager")
	}
}
