package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"credvault/internal/password"
)

var (
	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00d7ff"))
	blurredStyle = lipgloss.NewStyle()
)

type formField struct {
	label       string
	placeholder string
	secret      bool
}

// form collects the inputs of one credential operation
type form struct {
	action     Action
	title      string
	inputs     []textinput.Model
	secret     []bool
	focusIndex int
	err        string
}

func formSpec(action Action) (string, []formField) {
	switch action {
	case ActionAdd:
		return "Add User", []formField{{"Username", "alice", false}, {"Password", "", true}}
	case ActionAuthenticate:
		return "Authenticate", []formField{{"Username", "alice", false}, {"Password", "", true}}
	case ActionUpdate:
		return "Update Password", []formField{{"Username", "alice", false}, {"New password", "", true}}
	case ActionRename:
		return "Rename User", []formField{{"Current name", "alice", false}, {"New name", "alice2", false}}
	case ActionDelete:
		return "Delete User", []formField{{"Username", "alice", false}}
	}
	return "", nil
}

func newForm(action Action) form {
	title, fields := formSpec(action)
	f := form{
		action: action,
		title:  title,
		inputs: make([]textinput.Model, len(fields)),
		secret: make([]bool, len(fields)),
	}

	for i, field := range fields {
		t := textinput.New()
		t.Cursor.Style = focusedStyle
		t.Prompt = fmt.Sprintf("%-14s", field.label+":")
		t.Placeholder = field.placeholder
		t.CharLimit = 64
		t.Width = 40
		if field.secret {
			t.EchoMode = textinput.EchoPassword
			t.EchoCharacter = '•'
			t.CharLimit = password.MaxLength
		}
		f.inputs[i] = t
		f.secret[i] = field.secret
	}

	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
		f.inputs[0].TextStyle = focusedStyle
	}
	return f
}

// update handles one message. The boolean is true when the user submitted the form.
func (f form) update(msg tea.Msg) (form, bool, tea.Cmd) {
	if len(f.inputs) == 0 {
		return f, false, nil
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			if f.focusIndex == len(f.inputs)-1 {
				return f, true, nil
			}
			return f.focus(f.focusIndex + 1)
		case "tab", down:
			return f.focus((f.focusIndex + 1) % len(f.inputs))
		case "shift+tab", "up":
			return f.focus((f.focusIndex - 1 + len(f.inputs)) % len(f.inputs))
		}
	}

	var cmd tea.Cmd
	f.inputs[f.focusIndex], cmd = f.inputs[f.focusIndex].Update(msg)
	return f, false, cmd
}

func (f form) focus(index int) (form, bool, tea.Cmd) {
	f.focusIndex = index
	var cmd tea.Cmd
	for i := range f.inputs {
		if i == index {
			cmd = f.inputs[i].Focus()
			f.inputs[i].TextStyle = focusedStyle
			continue
		}
		f.inputs[i].Blur()
		f.inputs[i].TextStyle = blurredStyle
	}
	return f, false, cmd
}

// values returns the field contents; non-secret fields are trimmed
func (f form) values() []string {
	out := make([]string, len(f.inputs))
	for i, in := range f.inputs {
		if f.secret[i] {
			out[i] = in.Value()
		} else {
			out[i] = strings.TrimSpace(in.Value())
		}
	}
	return out
}

// missing returns the label of the first empty field, or ""
func (f form) missing() string {
	for i, v := range f.values() {
		if v == "" {
			return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(f.inputs[i].Prompt), ":"))
		}
	}
	return ""
}

func (f form) view() string {
	var b strings.Builder
	for _, in := range f.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	return b.String()
}
