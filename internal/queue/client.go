package queue

import "context"

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Delivery is one received message awaiting acknowledgement.
type Delivery struct {
	ID            string
	Body          string
	ReceiptHandle string
	ReceiveCount  int
}

// Consumer receives and acknowledges messages.
type Consumer interface {
	Receive(ctx context.Context) ([]Delivery, error)
	Delete(ctx context.Context, d Delivery) error
}
