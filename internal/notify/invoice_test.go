package notify

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type captureSender struct {
	to, subject, body string
	err               error
}

func (c *captureSender) Send(to, subject, body string) error {
	c.to, c.subject, c.body = to, subject, body
	return c.err
}

func sampleEvent() InvoiceEvent {
	return InvoiceEvent{
		OrderID:   "order-1",
		PaymentID: "pay-1",
		UserName:  "Test Reader",
		UserEmail: "reader@example.com",
		Total:     "25.00",
		Reference: "ref-77",
		Receipt:   "rcpt-1",
		PaidAt:    time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Items: []InvoiceLine{
			{Title: "Book A", Author: "Author", Quantity: 2, Price: "10.00"},
			{Title: "Book B", Author: "Author", Quantity: 1, Price: "5.00"},
		},
	}
}

func TestRenderInvoice(t *testing.T) {
	subject, body := RenderInvoice(sampleEvent())
	if !strings.Contains(subject, "order-1") {
		t.Fatalf("subject = %q", subject)
	}
	for _, want := range []string{"Test Reader", "2x Book A", "1x Book B", "Total: $25.00", "ref-77"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestConsumerHandleSendsMail(t *testing.T) {
	sender := &captureSender{}
	c := NewConsumer("amqp://unused", sender)

	raw, err := json.Marshal(sampleEvent())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.handle(raw); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sender.to != "reader@example.com" {
		t.Fatalf("to = %q", sender.to)
	}
	if !strings.Contains(sender.body, "Total: $25.00") {
		t.Fatalf("body = %q", sender.body)
	}
}

func TestConsumerHandleBadPayload(t *testing.T) {
	c := NewConsumer("amqp://unused", &captureSender{})
	if err := c.handle([]byte("{not json")); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestConsumerHandleSenderFailure(t *testing.T) {
	c := NewConsumer("amqp://unused", &captureSender{err: errors.New("smtp down")})
	raw, _ := json.Marshal(sampleEvent())
	if err := c.handle(raw); err == nil {
		t.Fatal("expected sender error to propagate for nack")
	}
}
