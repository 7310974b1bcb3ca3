package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RenderInvoice formats an invoice event as a plain-text email.
func RenderInvoice(ev InvoiceEvent) (subject, body string) {
	subject = "Your invoice for order " + ev.OrderID
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", ev.UserName)
	fmt.Fprintf(&b, "Thank you for your purchase. Order %s was paid on %s.\n\n", ev.OrderID, ev.PaidAt.Format("2006-01-02 15:04 MST"))
	for _, item := range ev.Items {
		fmt.Fprintf(&b, "  %dx %s by %s  $%s\n", item.Quantity, item.Title, item.Author, item.Price)
	}
	fmt.Fprintf(&b, "\nTotal: $%s\n", ev.Total)
	if ev.Reference != "" {
		fmt.Fprintf(&b, "Transaction reference: %s\n", ev.Reference)
	}
	if ev.Receipt != "" {
		fmt.Fprintf(&b, "Receipt: %s\n", ev.Receipt)
	}
	b.WriteString("\nHappy reading!\n")
	return subject, b.String()
}

// Consumer reads invoice events from the broker and emails invoices.
// Delivery is best-effort; a send failure is logged and the message
// dropped, never retried into a tight loop.
type Consumer struct {
	url    string
	sender Sender
}

// NewConsumer wires a consumer to the broker URL and mail sender.
func NewConsumer(url string, sender Sender) *Consumer {
	return &Consumer{url: url, sender: sender}
}

// Run consumes until ctx is done, redialing the broker with backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			slog.Warn("notify.consumer", "error", err, "retryIn", backoff.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		if err := c.consumeLoop(ctx, conn); err != nil && ctx.Err() == nil {
			slog.Warn("notify.consumer", "error", err)
		}
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(InvoiceQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	msgs, err := ch.Consume(InvoiceQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(d.Body); err != nil {
				slog.Error("notify.invoice", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(body []byte) error {
	var ev InvoiceEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal invoice event: %w", err)
	}
	subject, text := RenderInvoice(ev)
	if err := c.sender.Send(ev.UserEmail, subject, text); err != nil {
		return fmt.Errorf("send invoice for order %s: %w", ev.OrderID, err)
	}
	slog.Info("notify.invoice", "order", ev.OrderID, "to", ev.UserEmail)
	return nil
}
