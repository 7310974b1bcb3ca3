package app

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"virtuallibrary/internal/gateway"
	"virtuallibrary/internal/ingest"
	"virtuallibrary/internal/notify"
	"virtuallibrary/internal/store"
	"virtuallibrary/internal/util"
	"virtuallibrary/pkg/domain"
)

// fakeGateway scripts processor responses per call.
type fakeGateway struct {
	mu            sync.Mutex
	tokenStatus   bool
	custStatus    bool
	chargeResults []gateway.ChargeResult
	chargeErr     error
	tokenizeCalls int
	chargeCalls   int
	lastCharge    gateway.ChargeInput
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{tokenStatus: true, custStatus: true}
}

func (f *fakeGateway) queueCharge(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeResults = append(f.chargeResults, gateway.ChargeResult{
		Status:  true,
		Success: code == 1,
		Data: gateway.ChargeData{
			ResponseCode: code,
			Reference:    "ref-1",
			ApprovalCode: "appr-1",
			Receipt:      "rcpt-1",
			Message:      "scripted",
		},
	})
}

func (f *fakeGateway) Tokenize(ctx context.Context, card gateway.Card) (gateway.TokenResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenizeCalls++
	return gateway.TokenResult{Status: f.tokenStatus, ID: "tok_1"}, nil
}

func (f *fakeGateway) CreateCustomer(ctx context.Context, in gateway.CustomerInput) (gateway.CustomerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := gateway.CustomerResult{Status: f.custStatus}
	res.Data.CustomerID = "cus_1"
	return res, nil
}

func (f *fakeGateway) Charge(ctx context.Context, in gateway.ChargeInput) (gateway.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeCalls++
	f.lastCharge = in
	if f.chargeErr != nil {
		return gateway.ChargeResult{}, f.chargeErr
	}
	if len(f.chargeResults) == 0 {
		return gateway.ChargeResult{Status: true, Success: true, Data: gateway.ChargeData{ResponseCode: 1}}, nil
	}
	res := f.chargeResults[0]
	f.chargeResults = f.chargeResults[1:]
	return res, nil
}

// fakePublisher captures invoice events on a channel so tests can wait for
// the fire-and-forget goroutine.
type fakePublisher struct {
	invoices chan notify.InvoiceEvent
	ingests  chan ingest.Event
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		invoices: make(chan notify.InvoiceEvent, 8),
		ingests:  make(chan ingest.Event, 8),
	}
}

func (f *fakePublisher) PublishInvoice(ctx context.Context, ev notify.InvoiceEvent) error {
	f.invoices <- ev
	return nil
}

func (f *fakePublisher) PublishIngest(ctx context.Context, ev ingest.Event) error {
	f.ingests <- ev
	return nil
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *fakeGateway, *fakePublisher) {
	t.Helper()
	mem := store.NewMemoryStore()
	gw := newFakeGateway()
	pub := newFakePublisher()
	a, err := New(Config{
		JWTSecret: "test-secret",
		Store:     mem,
		Gateway:   gw,
		Invoices:  pub,
		Ingest:    pub,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem, gw, pub
}

func seedUser(t *testing.T, a *App, email string) domain.User {
	t.Helper()
	user, err := a.SignUp("Test Reader", email, "password-123")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return user
}

func seedCatalogBook(t *testing.T, mem *store.MemoryStore, id, price string) domain.Book {
	t.Helper()
	p, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatalf("parse price: %v", err)
	}
	b := domain.Book{ID: id, Title: "Book " + id, Author: "Author", Price: p, Stock: 5}
	if err := mem.SaveBook(b); err != nil {
		t.Fatalf("save book: %v", err)
	}
	return b
}

func testClient() util.ClientInfo {
	return util.ClientInfo{DeviceType: "desktop", Browser: "Chrome", OS: "Linux", IPAddress: "203.0.113.9"}
}
