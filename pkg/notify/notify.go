// Package notify is the client for the chat backend: token validation,
// channel resolution and message delivery over its REST API.
package notify

import (
	"time"
)

// Message is an already formatted embed body.
type Message struct {
	Title       string
	URL         string
	Description string
	Timestamp   *time.Time
	ImageURL    string
	Footer      string
}

// Sender is the capability a resolved channel must support before the app
// delivers to it.
type Sender interface {
	Send(message Message) error
	SendText(text string) error
}
