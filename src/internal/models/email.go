package models

import "time"

// EmailMessage is the payload published to the email queue. Rendering and
// delivery belong to the email worker consuming the queue.
type EmailMessage struct {
	To        string            `json:"to"`
	Template  string            `json:"template"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Email template constants
const (
	EmailTemplateWelcome         = "welcome"
	EmailTemplatePasswordChanged = "password_changed"
)
