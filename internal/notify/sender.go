// Package notify delivers booking events to the channels configured for the
// deployment. Delivery is best effort: the reservation path never waits on it.
package notify

import (
	"context"
	"log"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
)

// Sender delivers one booking event.
type Sender interface {
	Send(ctx context.Context, event models.BookingEvent) error
}

// LoggingSender just logs events. Useful for development and as the fallback
// when nothing else is configured.
type LoggingSender struct{}

func (LoggingSender) Send(ctx context.Context, e models.BookingEvent) error {
	log.Printf("[Notify] %s booking=%s listing=%s to=%v qty=%d reason=%q",
		e.Type, e.BookingID, e.ListingID, e.Audience(), e.Quantity, e.Reason)
	return nil
}
