package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"virtuallibrary/pkg/domain"
)

func cartWith(t *testing.T, a *App, userID string, books map[string]int) {
	t.Helper()
	for bookID, qty := range books {
		if _, err := a.AddToCart(userID, bookID, qty); err != nil {
			t.Fatalf("add %s: %v", bookID, err)
		}
	}
}

func TestCreateOrderScenario(t *testing.T) {
	a, mem, _, _ := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	seedCatalogBook(t, mem, "bookB", "5.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 2, "bookB": 1})

	order, err := a.CreateOrder(user.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if got := order.TotalAmount.StringFixed(2); got != "25.00" {
		t.Fatalf("total = %s, want 25.00", got)
	}
	if order.Status != domain.OrderCreated {
		t.Fatalf("status = %s, want created", order.Status)
	}
	cart, _ := a.ListCart(user.ID)
	if len(cart) != 0 {
		t.Fatalf("cart rows after order = %d, want 0", len(cart))
	}
	details, err := a.GetOrderDetails(user, order.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if len(details.Items) != 2 {
		t.Fatalf("order items = %d, want 2", len(details.Items))
	}
}

func TestCreateOrderEmptyCart(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	if _, err := a.CreateOrder(user.ID); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("err = %v, want ErrEmptyCart", err)
	}
}

func TestOrderTotalSurvivesPriceChange(t *testing.T) {
	a, mem, _, _ := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	book := seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 2})

	order, err := a.CreateOrder(user.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	book.Price = decimal.RequireFromString("99.99")
	if err := mem.SaveBook(book); err != nil {
		t.Fatalf("reprice: %v", err)
	}

	got, _, _ := mem.GetOrder(order.ID)
	if got.TotalAmount.StringFixed(2) != "20.00" {
		t.Fatalf("total after reprice = %s, want 20.00", got.TotalAmount.StringFixed(2))
	}
	details, err := a.GetOrderDetails(user, order.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	sum := decimal.Zero
	for _, item := range details.Items {
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if !sum.Equal(got.TotalAmount) {
		t.Fatalf("item sum %s != order total %s", sum, got.TotalAmount)
	}
}

func payInput() PaymentInput {
	return PaymentInput{
		CardNumber: "4111111111111111",
		ExpYear:    "2030",
		ExpMonth:   "12",
		CVC:        "123",
		Name:       "Test",
		LastName:   "Reader",
		Phone:      "555-0100",
		ClientIP:   "203.0.113.9",
	}
}

func createTestOrder(t *testing.T, a *App, user domain.User) domain.Order {
	t.Helper()
	order, err := a.CreateOrder(user.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestPayOrderCompletedOnCode1(t *testing.T) {
	a, mem, gw, pub := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 2})
	order := createTestOrder(t, a, user)
	gw.queueCharge(1)

	payment, err := a.PayOrder(context.Background(), user, order.ID, payInput())
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if payment.Status != domain.OrderCompleted {
		t.Fatalf("payment status = %s, want completed", payment.Status)
	}
	got, _, _ := mem.GetOrder(order.ID)
	if got.Status != domain.OrderCompleted {
		t.Fatalf("order status = %s, want completed", got.Status)
	}
	rows, total, err := a.ListPayments(user, 0, 0)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("payment rows = %d (total %d), want 1", len(rows), total)
	}

	select {
	case ev := <-pub.invoices:
		if ev.OrderID != order.ID || ev.Total != "20.00" {
			t.Fatalf("invoice event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("invoice event not published after completed charge")
	}
}

func TestPayOrderFailedOnCode4(t *testing.T) {
	a, mem, gw, pub := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, user)
	gw.queueCharge(4)

	payment, err := a.PayOrder(context.Background(), user, order.ID, payInput())
	if err != nil {
		t.Fatalf("pay with business code 4 must not error, got %v", err)
	}
	if payment.Status != domain.OrderFailed {
		t.Fatalf("payment status = %s, want failed", payment.Status)
	}
	got, _, _ := mem.GetOrder(order.ID)
	if got.Status != domain.OrderFailed {
		t.Fatalf("order status = %s, want failed", got.Status)
	}
	select {
	case ev := <-pub.invoices:
		t.Fatalf("no invoice expected for failed charge, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPayOrderUnknownCode(t *testing.T) {
	a, mem, gw, _ := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, user)
	gw.queueCharge(42)

	payment, err := a.PayOrder(context.Background(), user, order.ID, payInput())
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if payment.Status != domain.OrderUnknown {
		t.Fatalf("status for unmapped code = %s, want unknown", payment.Status)
	}
	if payment.ResponseCode != 42 {
		t.Fatalf("raw code = %d, want 42 preserved for reconciliation", payment.ResponseCode)
	}
}

func TestPayOrderTokenizeDeclined(t *testing.T) {
	a, mem, gw, _ := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, user)
	gw.tokenStatus = false

	_, err := a.PayOrder(context.Background(), user, order.ID, payInput())
	if !errors.Is(err, ErrInvalidCardInfo) {
		t.Fatalf("err = %v, want ErrInvalidCardInfo", err)
	}
	if gw.chargeCalls != 0 {
		t.Fatalf("charge calls = %d, want 0 after tokenize decline", gw.chargeCalls)
	}
	_, total, _ := a.ListPayments(user, 0, 0)
	if total != 0 {
		t.Fatalf("payment rows = %d, want 0 before any charge", total)
	}
}

func TestPayOrderCustomerDeclined(t *testing.T) {
	a, mem, gw, _ := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, user)
	gw.custStatus = false

	if _, err := a.PayOrder(context.Background(), user, order.ID, payInput()); !errors.Is(err, ErrGatewayCustomer) {
		t.Fatalf("err = %v, want ErrGatewayCustomer", err)
	}
}

func TestPayOrderChargeTransportFailureIsRecorded(t *testing.T) {
	a, mem, gw, _ := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, user)
	gw.chargeErr = errors.New("connection reset")

	payment, err := a.PayOrder(context.Background(), user, order.ID, payInput())
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrPaymentFailed", err)
	}
	if payment.Status != domain.OrderFailed {
		t.Fatalf("payment status = %s, want failed", payment.Status)
	}
	_, total, _ := a.ListPayments(user, 0, 0)
	if total != 1 {
		t.Fatalf("payment rows = %d, want the failed attempt recorded", total)
	}
}

func TestPayOrderRetryLatestAttemptWins(t *testing.T) {
	a, mem, gw, _ := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, user)

	gw.queueCharge(4)
	if _, err := a.PayOrder(context.Background(), user, order.ID, payInput()); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	gw.queueCharge(1)
	if _, err := a.PayOrder(context.Background(), user, order.ID, payInput()); err != nil {
		t.Fatalf("second attempt: %v", err)
	}

	got, _, _ := mem.GetOrder(order.ID)
	if got.Status != domain.OrderCompleted {
		t.Fatalf("order status = %s, want latest attempt's completed", got.Status)
	}
	_, total, _ := a.ListPayments(user, 0, 0)
	if total != 2 {
		t.Fatalf("payment rows = %d, want one per attempt", total)
	}
}

func TestPayOrderRejectsSecondChargeOnCompletedOrder(t *testing.T) {
	a, mem, gw, _ := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, user)

	gw.queueCharge(1)
	if _, err := a.PayOrder(context.Background(), user, order.ID, payInput()); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if _, err := a.PayOrder(context.Background(), user, order.ID, payInput()); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("err = %v, want ErrAlreadyPaid", err)
	}
	if gw.chargeCalls != 1 {
		t.Fatalf("charge calls = %d, want the guard to fire before the processor", gw.chargeCalls)
	}
}

func TestPayOrderNotOwned(t *testing.T) {
	a, mem, _, _ := newTestApp(t)
	owner := seedUser(t, a, "owner@example.com")
	other := seedUser(t, a, "other@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, owner.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, owner)

	if _, err := a.PayOrder(context.Background(), other, order.ID, payInput()); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestGetOrderDetailsOwnerOnly(t *testing.T) {
	a, mem, _, _ := newTestApp(t)
	owner := seedUser(t, a, "owner@example.com")
	other := seedUser(t, a, "other@example.com")
	admin := seedUser(t, a, "admin@example.com")
	admin.Role = domain.RoleAdmin
	if err := mem.SaveUser(admin); err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, owner.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, owner)

	details, err := a.GetOrderDetails(owner, order.ID)
	if err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if len(details.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(details.Items))
	}
	if _, err := a.GetOrderDetails(other, order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("other user err = %v, want ErrOrderNotFound", err)
	}
	// Admin role grants no exemption here; only ListPayments is role-scoped.
	if _, err := a.GetOrderDetails(admin, order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("admin err = %v, want ErrOrderNotFound", err)
	}
}

func TestPayOrderMasksCardData(t *testing.T) {
	a, mem, gw, _ := newTestApp(t)
	user := seedUser(t, a, "reader@example.com")
	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, user.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, user)
	gw.queueCharge(1)

	payment, err := a.PayOrder(context.Background(), user, order.ID, payInput())
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if payment.CardLastFour != "1111" || payment.CardBrand != "Visa" {
		t.Fatalf("card mask = %s/%s, want 1111/Visa", payment.CardLastFour, payment.CardBrand)
	}
	for field, v := range map[string]string{
		"transactionId": payment.TransactionID,
		"message":       payment.ResponseMessage,
		"clientName":    payment.ClientName,
	} {
		if strings.Contains(v, "4111111111111111") {
			t.Fatalf("full PAN leaked into %s", field)
		}
	}
}

func TestListPaymentsRoleScoping(t *testing.T) {
	a, mem, gw, _ := newTestApp(t)
	customer := seedUser(t, a, "reader@example.com")
	admin := seedUser(t, a, "admin@example.com")
	admin.Role = domain.RoleAdmin
	if err := mem.SaveUser(admin); err != nil {
		t.Fatalf("promote admin: %v", err)
	}

	seedCatalogBook(t, mem, "bookA", "10.00")
	cartWith(t, a, customer.ID, map[string]int{"bookA": 1})
	order := createTestOrder(t, a, customer)
	gw.queueCharge(4)
	if _, err := a.PayOrder(context.Background(), customer, order.ID, payInput()); err != nil {
		t.Fatalf("failed attempt: %v", err)
	}
	gw.queueCharge(1)
	if _, err := a.PayOrder(context.Background(), customer, order.ID, payInput()); err != nil {
		t.Fatalf("completed attempt: %v", err)
	}

	_, customerTotal, err := a.ListPayments(customer, 0, 0)
	if err != nil {
		t.Fatalf("customer list: %v", err)
	}
	if customerTotal != 2 {
		t.Fatalf("customer sees %d rows, want both attempts", customerTotal)
	}
	adminRows, adminTotal, err := a.ListPayments(admin, 0, 0)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if adminTotal != 1 {
		t.Fatalf("admin sees %d rows, want completed only", adminTotal)
	}
	if len(adminRows) == 1 && adminRows[0].Status != domain.OrderCompleted {
		t.Fatalf("admin row status = %s", adminRows[0].Status)
	}
}
