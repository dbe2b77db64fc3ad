package mail

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

var bodies = template.Must(template.ParseFS(templateFS, "templates/*.txt"))

// Render executes a plain text email body template by file name.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return buf.String(), nil
}

// InvitationData feeds invitation.txt.
type InvitationData struct {
	SenderName string
	RoleTitle  string
	Link       string
}

// PasswordResetData feeds password_reset.txt.
type PasswordResetData struct {
	Name  string
	Link  string
	Valid string
}

// ReminderData feeds return_reminder.txt.
type ReminderData struct {
	Name   string
	Assets []ReminderAsset
	Link   string
}

// ReminderAsset is one line of a reminder.
type ReminderAsset struct {
	Code       string
	Name       string
	ReturnDate string
	Overdue    bool
}
