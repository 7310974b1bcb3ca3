package app

import (
	"context"
	"fmt"
	"time"

	"virtuallibrary/internal/gateway"
	"virtuallibrary/internal/ingest"
	"virtuallibrary/internal/keys"
	"virtuallibrary/internal/notify"
	"virtuallibrary/internal/store"
	"virtuallibrary/pkg/storage"
)

// InvoicePublisher delivers invoice events to the mail worker.
type InvoicePublisher interface {
	PublishInvoice(ctx context.Context, ev notify.InvoiceEvent) error
}

// IngestPublisher delivers book-file ingest requests to the ingest worker.
type IngestPublisher interface {
	PublishIngest(ctx context.Context, ev ingest.Event) error
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	JWTSecret   string
	SessionTTL  time.Duration

	Store    store.Store
	Gateway  gateway.Client
	Objects  storage.ObjectStore
	Keys     keys.Decryptor
	Invoices InvoicePublisher
	Ingest   IngestPublisher
}

// App is the core application service wiring together storage, the payment
// processor, and domain logic.
type App struct {
	store      store.Store
	gateway    gateway.Client
	objects    storage.ObjectStore
	keys       keys.Decryptor
	invoices   InvoicePublisher
	ingest     IngestPublisher
	jwtSecret  []byte
	sessionTTL time.Duration
	now        func() time.Time
}

// New constructs the application. Store and Gateway are required; the
// publishers and object store are optional and degrade to no-ops.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("payment gateway client required")
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required (no in-memory store allowed)")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	return &App{
		store:      dataStore,
		gateway:    cfg.Gateway,
		objects:    cfg.Objects,
		keys:       cfg.Keys,
		invoices:   cfg.Invoices,
		ingest:     cfg.Ingest,
		jwtSecret:  []byte(cfg.JWTSecret),
		sessionTTL: cfg.SessionTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Store exposes the underlying store to the ingest worker wiring in main.
func (a *App) Store() store.Store { return a.store }
