package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"virtuallibrary/internal/store"
	"virtuallibrary/pkg/storage"
)

// queueName matches notify.IngestQueue; the constant is duplicated here so
// the packages stay independent.
const queueName = "book.ingest"

// Worker consumes ingest events, pulls the uploaded file from object
// storage, and writes extracted metadata back onto the book.
type Worker struct {
	url     string
	store   store.Store
	objects storage.ObjectStore
}

// NewWorker wires a worker to the broker, the data store, and the object
// store.
func NewWorker(url string, st store.Store, objects storage.ObjectStore) *Worker {
	return &Worker{url: url, store: st, objects: objects}
}

// Run consumes until ctx is done, redialing the broker with backoff.
func (w *Worker) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(w.url)
		if err != nil {
			slog.Warn("ingest.worker", "error", err, "retryIn", backoff.String())
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
		if err := w.consumeLoop(ctx, conn); err != nil && ctx.Err() == nil {
			slog.Warn("ingest.worker", "error", err)
		}
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
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
			if err := w.handle(ctx, d.Body); err != nil {
				slog.Error("ingest.handle", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (w *Worker) handle(ctx context.Context, body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal ingest event: %w", err)
	}
	book, ok, err := w.store.GetBook(ev.BookID)
	if err != nil {
		return fmt.Errorf("lookup book %s: %w", ev.BookID, err)
	}
	if !ok {
		// Book deleted between publish and consume; nothing to do.
		slog.Info("ingest.skip", "book", ev.BookID)
		return nil
	}

	path, err := w.download(ctx, ev.FileKey)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	meta, err := ParsePDF(path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", ev.FileKey, err)
	}
	book.Pages = meta.Pages
	if book.Description == "" && meta.Preview != "" {
		book.Description = meta.Preview
	}
	if err := w.store.SaveBook(book); err != nil {
		return fmt.Errorf("save book %s: %w", ev.BookID, err)
	}
	slog.Info("ingest.done", "book", ev.BookID, "pages", meta.Pages)
	return nil
}

// download copies the object to a temp file; the PDF reader needs random
// access.
func (w *Worker) download(ctx context.Context, key string) (string, error) {
	obj, err := w.objects.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", key, err)
	}
	defer obj.Close()

	tmp, err := os.CreateTemp("", "ingest-*.pdf")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	if _, err := io.Copy(tmp, obj); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("flush temp file: %w", err)
	}
	return tmp.Name(), nil
}
