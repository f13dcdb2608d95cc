// Package mail is the outbound email boundary of the engine. Delivery
// failures are returned to the caller, which logs and moves on; nothing in
// this package retries.
package mail

import "context"

// Message is one fully rendered outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
