package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"virtuallibrary/internal/ingest"
)

const (
	// InvoiceQueue carries invoice events from the payment flow to the
	// mail worker.
	InvoiceQueue = "invoice.requested"
	// IngestQueue carries book-file metadata extraction requests.
	IngestQueue = "book.ingest"
)

// Publisher publishes domain events to RabbitMQ. Messages are persistent
// and queues durable, so events survive broker restarts.
type Publisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher prepares a lazily connecting publisher for the broker URL.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// PublishInvoice enqueues an invoice event.
func (p *Publisher) PublishInvoice(ctx context.Context, ev InvoiceEvent) error {
	return p.publish(ctx, InvoiceQueue, ev)
}

// PublishIngest enqueues a book-file ingest request.
func (p *Publisher) PublishIngest(ctx context.Context, ev ingest.Event) error {
	return p.publish(ctx, IngestQueue, ev)
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		p.resetLocked()
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

func (p *Publisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// resetLocked drops the cached connection so the next publish redials.
func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
