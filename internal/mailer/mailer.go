// Package mailer is the Mail Sender collaborator (spec.md §4.6, §1): send a
// subject/recipients/body message. The SMTP transport itself is an
// external collaborator per spec.md's non-goals; this package specifies
// the boundary and provides one concrete stdlib implementation.
//
// No complete repo in the retrieval pack imports a third-party SMTP
// client (see DESIGN.md) — net/smtp is the documented exception to the
// "never fall back to stdlib" rule for that one concern.
package mailer

import "context"

// Mailer sends a single composed message to a set of recipients.
type Mailer interface {
	Send(ctx context.Context, subject string, recipients []string, body string) error
}
