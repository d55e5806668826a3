package jobs

import (
	"context"
	"fmt"

	"github.com/aquaflow/portal/internal/procurement"
)

// PurchaseOrderMailer notifies the stock controller when an LPO has been received.
type PurchaseOrderMailer struct {
	Emails EmailEnqueuer
	To     string
}

// PurchaseOrderReceived implements procurement.Notifier.
func (n PurchaseOrderMailer) PurchaseOrderReceived(ctx context.Context, evt procurement.ReceivedEvent) error {
	if n.To == "" || n.Emails == nil {
		return nil
	}
	_, err := n.Emails.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      n.To,
		Subject: fmt.Sprintf("LPO %s received at %s", evt.Number, evt.Location),
		Body: fmt.Sprintf("Purchase order %s from %s was approved at %s.\n%d lines, total %s, received into %s.\n",
			evt.Number, evt.Supplier, evt.ApprovedAt.Format("02 Jan 2006 15:04"), evt.Lines, evt.Total.StringFixed(2), evt.Location),
	})
	return err
}

var _ procurement.Notifier = PurchaseOrderMailer{}
