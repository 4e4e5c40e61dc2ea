package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"credvault/internal/vault"
)

// renderMenu renders the main menu screen
func (m Model) renderMenu() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	menuItemStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	menuItemSelectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#00d7ff")).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).PaddingLeft(2)
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)

	b.WriteString(titleStyle.Render("credvault: User Credentials Manager"))
	b.WriteString("\n\n")

	for i, item := range DefaultMenuItems() {
		prefix := fmt.Sprintf("[%s] ", item.Key)

		var itemText string
		if i == m.selection {
			itemText = menuItemSelectedStyle.Render(prefix + item.Label)
		} else {
			itemText = menuItemStyle.Render(prefix + item.Label)
		}

		b.WriteString(itemText)
		b.WriteString("\n")
		b.WriteString(descStyle.Render(item.Description))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Navigate: ↑/↓ or numbers | Select: Enter/Space | Back: Esc | Quit: q"))
	b.WriteString("\n")
	b.WriteString(m.renderOutcome())

	return b.String()
}

// renderOutcome shows the last operation result and error, if any
func (m Model) renderOutcome() string {
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d787")).Bold(true).MarginTop(1)
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaf5f")).Bold(true).MarginTop(1)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true).MarginTop(1)

	var b strings.Builder
	if m.message != "" {
		b.WriteString("\n")
		if m.messageOK {
			b.WriteString(okStyle.Render("✓ " + m.message))
		} else {
			b.WriteString(failStyle.Render("✗ " + m.message))
		}
		b.WriteString("\n")
	}
	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("⚠ " + m.lastError))
		b.WriteString("\n")
	}
	return b.String()
}

// renderFormScreen renders the input form of the active operation
func (m Model) renderFormScreen() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true).MarginTop(1)

	b.WriteString(titleStyle.Render(m.form.title))
	b.WriteString("\n\n")
	b.WriteString(m.form.view())
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Next field: Tab/Enter | Previous: Shift+Tab | Submit: Enter on last field | Cancel: Esc"))
	b.WriteString("\n")

	if m.form.err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("⚠ " + m.form.err))
		b.WriteString("\n")
	}

	return b.String()
}

// renderStatusScreen renders key and rotation status
func (m Model) renderStatusScreen() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd700")).MarginTop(1)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  %-16s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render("Vault Status"))
	b.WriteString("\n\n")

	if m.statusError != "" {
		b.WriteString(errorStyle.Render("  Error: " + m.statusError))
		b.WriteString("\n")
	} else {
		st := m.status
		now := m.now()

		b.WriteString(sectionStyle.Render("Storage"))
		b.WriteString("\n")
		row("Data directory", st.DataDir)
		row("Credentials", st.CredentialsPath)
		row("Users", fmt.Sprintf("%d", st.Users))

		b.WriteString(sectionStyle.Render("Encryption Key"))
		b.WriteString("\n")
		row("Key ID", st.Rotation.KeyID)
		row("Created", formatTime(st.Rotation.KeyCreatedAt))

		b.WriteString(sectionStyle.Render("Rotation"))
		b.WriteString("\n")
		if st.Rotation.LastRotation != nil {
			row("Last rotation", formatTime(*st.Rotation.LastRotation))
		} else {
			row("Last rotation", "never")
		}
		row("Interval", fmt.Sprintf("%d days", int(st.Rotation.Interval/(24*time.Hour))))
		row("Next rotation", vault.FormatDue(st.Rotation, now))

		if users := m.service.Users(); len(users) > 0 {
			b.WriteString(sectionStyle.Render("Usernames"))
			b.WriteString("\n")
			for _, u := range users {
				b.WriteString(valueStyle.Render("  " + u))
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Press 'r' to refresh, Esc to return to menu, 'q' to quit"))
	b.WriteString("\n")

	return b.String()
}

// renderHelpScreen renders the help screen
func (m Model) renderHelpScreen() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd700")).MarginTop(1)
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af")).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(2)

	line := func(key, desc string) {
		b.WriteString(keyStyle.Render(fmt.Sprintf("%-12s", key)))
		b.WriteString(descStyle.Render(desc))
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render("Help: Keyboard Shortcuts"))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("Navigation"))
	b.WriteString("\n")
	line("1-8, ?", "Quick menu selection by number/key")
	line("↑ / ↓", "Navigate menu items")
	line("Enter/Space", "Select highlighted item")
	line("Esc", "Return to main menu")
	line("q / Ctrl+C", "Quit credvault")

	b.WriteString(sectionStyle.Render("Forms"))
	b.WriteString("\n")
	line("Tab / Enter", "Next field")
	line("Shift+Tab", "Previous field")
	line("Enter", "Submit on the last field")
	line("Esc", "Cancel")

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Press Esc to return to menu"))
	b.WriteString("\n")

	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// navigateUp moves selection up in the menu
func (m Model) navigateUp() Model {
	if m.selection > 0 {
		m.selection--
	} else {
		// Wrap to bottom
		m.selection = len(DefaultMenuItems()) - 1
	}
	return m
}

// navigateDown moves selection down in the menu
func (m Model) navigateDown() Model {
	maxIndex := len(DefaultMenuItems()) - 1
	if m.selection < maxIndex {
		m.selection++
	} else {
		// Wrap to top
		m.selection = 0
	}
	return m
}

// returnToMenu returns to the main menu, discarding any open form
func (m Model) returnToMenu() Model {
	m.currentScreen = ScreenMenu
	m.form = form{}
	m.lastError = ""
	return m
}
