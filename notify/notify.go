// Package notify delivers user-facing toast notifications. The daemon's
// default dispatcher logs them; an embedding UI can substitute its own.
package notify

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "notify").Logger()
}

// Type is the notification severity.
type Type string

const (
	TypePending Type = "pending"
	TypeSuccess Type = "success"
	TypeError   Type = "error"
)

// Notification is one toast. Dispatching a second notification with the
// same ID replaces the first, so a pending toast upgrades in place.
type Notification struct {
	ID          string `json:"id"`
	Type        Type   `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Details     string `json:"details,omitempty"`
}

// ID derives a stable notification identifier from the transaction hashes
// of one attempt, so all toasts for that attempt coalesce.
func ID(hashes ...string) string {
	return strings.Join(hashes, "-")
}

// Dispatcher receives notifications.
type Dispatcher interface {
	Dispatch(n Notification)
}

// LogDispatcher writes notifications to the log.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(n Notification) {
	ev := log.Info()
	if n.Type == TypeError {
		ev = log.Error()
	}
	ev.Str("id", n.ID).
		Str("type", string(n.Type)).
		Str("title", n.Title).
		Str("description", n.Description).
		Msg("Notification")
}
