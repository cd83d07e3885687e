package notify

import (
	"context"
	"fmt"
	"strings"

	"attendguard/internal/session"
)

// Attachment is a file sent with an email.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one notification. Summary is the short form used for chat.
type Message struct {
	Subject     string
	Body        string
	Summary     string
	Attachments []Attachment
}

// Notifier delivers a message over one channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// ForRecord renders the notification for an attendance record.
func ForRecord(rec session.Record) Message {
	status := "Failed"
	if rec.Success {
		status = "Success"
	}
	action := string(rec.Action)
	return Message{
		Subject: fmt.Sprintf("Attendance: %s - %s", rec.Name, capitalize(action)),
		Body: fmt.Sprintf("Time: %s\nEmployee ID: %s\nName: %s\nHours: %.2f\nStatus: %s",
			rec.Timestamp.Format("2006-01-02 15:04:05"), rec.IdentityID, rec.Name, rec.HoursWorked, status),
		Summary: fmt.Sprintf("%s marked %s (%.2f hrs)", rec.Name, action, rec.HoursWorked),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
