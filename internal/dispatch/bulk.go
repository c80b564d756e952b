package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/shineum/artmarket-mailer/internal/email"
)

// sendBatch sends recipients[start:end] concurrently, one message each, and
// stores every result at its recipient's index.
func (d *Dispatcher) sendBatch(ctx context.Context, recipients []email.Recipient, results []email.Result, start, end int, subject, html, text string) {
	var g errgroup.Group
	for i := start; i < end; i++ {
		g.Go(func() error {
			r := d.Send(ctx, &email.Message{
				To:       []email.Recipient{recipients[i]},
				Subject:  subject,
				HTMLBody: html,
				TextBody: text,
			})
			r.Recipient = recipients[i].Address
			results[i] = r
			return nil
		})
	}
	// Send reports failures in its Result, so Wait never returns an error.
	_ = g.Wait()
}
