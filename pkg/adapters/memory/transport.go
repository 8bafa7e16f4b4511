package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/convoflow/pkg/domain"
)

// Delivery is a message handed to the Outbox.
type Delivery struct {
	To     string
	Text   string
	Choice *domain.ChoiceMessage
}

// Outbox implements ports.Transport by recording deliveries.
// Err, when set, is returned from every send.
type Outbox struct {
	mu         sync.Mutex
	deliveries []Delivery
	Err        error
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) SendText(ctx context.Context, to, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deliveries = append(o.deliveries, Delivery{To: to, Text: text})
	return o.Err
}

func (o *Outbox) SendChoiceMessage(ctx context.Context, to string, msg domain.ChoiceMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deliveries = append(o.deliveries, Delivery{To: to, Text: msg.Body, Choice: &msg})
	return o.Err
}

// Deliveries returns a copy of everything sent so far.
func (o *Outbox) Deliveries() []Delivery {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.deliveries)
}
