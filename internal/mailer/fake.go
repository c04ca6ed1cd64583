package mailer

import (
	"context"
	"errors"
	"sync"
)

// Sent records one call to Fake.Send.
type Sent struct {
	Subject    string
	Recipients []string
	Body       string
}

// Fake is an in-memory Mailer used by tests.
type Fake struct {
	mu   sync.Mutex
	sent []Sent
	// FailNext, if >0, causes the next N Send calls to return ErrFakeSendFailed.
	FailNext int
}

// ErrFakeSendFailed is returned by Fake.Send when FailNext > 0.
var ErrFakeSendFailed = errors.New("fake mailer: simulated send failure")

func (f *Fake) Send(_ context.Context, subject string, recipients []string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailNext > 0 {
		f.FailNext--
		return ErrFakeSendFailed
	}

	recips := make([]string, len(recipients))
	copy(recips, recipients)
	f.sent = append(f.sent, Sent{Subject: subject, Recipients: recips, Body: body})
	return nil
}

// All returns every message sent so far, in order.
func (f *Fake) All() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sent, len(f.sent))
	copy(out, f.sent)
	return out
}
