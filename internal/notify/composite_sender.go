package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
)

// CompositeSender delegates each event to every registered Sender.
type CompositeSender struct {
	senders []Sender
}

// NewCompositeSender returns the concrete type so AddSender can be called directly.
func NewCompositeSender(senders ...Sender) *CompositeSender {
	return &CompositeSender{senders: senders}
}

// AddSender adds a sender; nil is ignored.
func (cs *CompositeSender) AddSender(sender Sender) {
	if sender != nil {
		cs.senders = append(cs.senders, sender)
	}
}

// Send tries every sender, even after a failure, and returns all errors as one.
func (cs *CompositeSender) Send(ctx context.Context, event models.BookingEvent) error {
	if len(cs.senders) == 0 {
		return fmt.Errorf("no senders configured in CompositeSender")
	}

	var allErrors []string
	for _, sender := range cs.senders {
		if err := sender.Send(ctx, event); err != nil {
			allErrors = append(allErrors, err.Error())
		}
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("composite notify failed: [ %s ]", strings.Join(allErrors, "; "))
	}
	return nil
}
