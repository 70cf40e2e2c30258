// Package queue_publisher publishes domain events to RabbitMQ.  Errors
// are logged and returned so callers can ignore failures without
// interrupting the request flow; event delivery is best effort.
package queue_publisher

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/courtbook/court-booking/internal/model"
	q "github.com/courtbook/court-booking/internal/queue"
)

// PublishBookingConfirmed publishes a BookingConfirmedEvent to the
// booking.confirmed queue.  Messages are marked persistent.
func PublishBookingConfirmed(ctx context.Context, event q.BookingConfirmedEvent) error {
	return publish(ctx, q.BookingConfirmedQueue, event)
}

// PublishWaitlistPromoted publishes a WaitlistPromotedEvent to the
// waitlist.promoted queue.
func PublishWaitlistPromoted(ctx context.Context, event q.WaitlistPromotedEvent) error {
	return publish(ctx, q.WaitlistPromotedQueue, event)
}

func publish(ctx context.Context, queueName string, event any) error {
	conn, err := amqp.Dial(q.BrokerURL())
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}

// Notifier adapts the publisher to the booking engine's notifier
// contract.  Publishing happens on the caller's goroutine; the engine
// already invokes notifications asynchronously.
type Notifier struct {
	Timeout time.Duration
}

// NewNotifier returns a Notifier with a 5 second publish timeout.
func NewNotifier() *Notifier { return &Notifier{Timeout: 5 * time.Second} }

// BookingConfirmed implements booking.Notifier.
func (n *Notifier) BookingConfirmed(b *model.Booking) {
	ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
	defer cancel()

	resources := make([]string, 0, len(b.Allocations))
	for _, a := range b.Allocations {
		label := a.ResourceType + ":" + a.ResourceID
		if a.Quantity > 1 {
			label += "x" + strconv.Itoa(a.Quantity)
		}
		resources = append(resources, label)
	}
	_ = PublishBookingConfirmed(ctx, q.BookingConfirmedEvent{
		EventID:     uuid.NewString(),
		BookingID:   b.ID,
		Requester:   b.Requester,
		Start:       b.Window.Start.UTC().Format(time.RFC3339),
		End:         b.Window.End.UTC().Format(time.RFC3339),
		Resources:   resources,
		TotalCents:  b.TotalCents,
		ConfirmedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// WaitlistPromoted implements booking.Notifier.
func (n *Notifier) WaitlistPromoted(e *model.WaitlistEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
	defer cancel()

	holdUntil := ""
	if e.NotifiedUntil != nil {
		holdUntil = e.NotifiedUntil.UTC().Format(time.RFC3339)
	}
	_ = PublishWaitlistPromoted(ctx, q.WaitlistPromotedEvent{
		EventID:    uuid.NewString(),
		EntryID:    e.ID,
		SlotKey:    e.SlotKey,
		Requester:  e.Requester,
		Seq:        e.Seq,
		HoldUntil:  holdUntil,
		PromotedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

