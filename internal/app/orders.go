package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"virtuallibrary/internal/gateway"
	"virtuallibrary/internal/notify"
	"virtuallibrary/internal/store"
	"virtuallibrary/internal/util"
	"virtuallibrary/pkg/domain"
)

// statusByCode maps the processor's numeric response codes to order states.
// Code 5 is absent from the processor's own table.
var statusByCode = map[int]domain.OrderStatus{
	1:  domain.OrderCompleted,
	2:  domain.OrderRejected,
	3:  domain.OrderPending,
	4:  domain.OrderFailed,
	6:  domain.OrderReversed,
	7:  domain.OrderRetained,
	8:  domain.OrderStarted,
	9:  domain.OrderExpired,
	10: domain.OrderAbandoned,
	11: domain.OrderCanceled,
}

func statusFromCode(code int) domain.OrderStatus {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return domain.OrderUnknown
}

// PaymentInput is the raw card and contact data for one charge attempt.
// Only the last four digits and the derived brand are ever persisted.
type PaymentInput struct {
	CardNumber string
	ExpYear    string
	ExpMonth   string
	CVC        string
	DocType    string
	DocNumber  string
	Name       string
	LastName   string
	Phone      string
	ClientIP   string
}

// CreateOrder converts the user's cart into an order with snapshotted item
// prices, clearing the cart in the same transaction.
func (a *App) CreateOrder(userID string) (domain.Order, error) {
	order, err := a.store.CreateOrderFromCart(userID, func(lines []domain.CartLine) (domain.Order, []domain.OrderItem, error) {
		if len(lines) == 0 {
			return domain.Order{}, nil, ErrEmptyCart
		}
		orderID := util.NewID()
		total := decimal.Zero
		items := make([]domain.OrderItem, 0, len(lines))
		for _, line := range lines {
			total = total.Add(line.Book.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
			items = append(items, domain.OrderItem{
				ID:       util.NewID(),
				OrderID:  orderID,
				BookID:   line.BookID,
				Quantity: line.Quantity,
				Price:    line.Book.Price,
			})
		}
		o := domain.Order{
			ID:          orderID,
			UserID:      userID,
			TotalAmount: total,
			Status:      domain.OrderCreated,
			CreatedAt:   a.now(),
		}
		return o, items, nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	slog.Info("orders.create", "order", order.ID, "user", userID, "total", order.TotalAmount.StringFixed(2))
	return order, nil
}

// PayOrder drives one charge attempt: tokenize, register customer, then
// charge under a row lock on the order. Every completed or failed charge
// call leaves exactly one payment row; a tokenize or customer failure
// leaves none.
func (a *App) PayOrder(ctx context.Context, user domain.User, orderID string, input PaymentInput) (domain.Payment, error) {
	order, ok, err := a.store.GetOrder(orderID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("lookup order: %w", err)
	}
	if !ok || order.UserID != user.ID {
		return domain.Payment{}, ErrOrderNotFound
	}
	if order.Status == domain.OrderCompleted {
		return domain.Payment{}, ErrAlreadyPaid
	}
	if input.CardNumber == "" || input.ExpYear == "" || input.ExpMonth == "" || input.CVC == "" {
		return domain.Payment{}, validationf("card number, expiry, and cvc are required")
	}

	tok, err := a.gateway.Tokenize(ctx, gateway.Card{
		Number:   input.CardNumber,
		ExpYear:  input.ExpYear,
		ExpMonth: input.ExpMonth,
		CVC:      input.CVC,
	})
	if err != nil {
		return domain.Payment{}, fmt.Errorf("%w: tokenize: %v", ErrGatewayUnreachable, err)
	}
	if !tok.Status {
		return domain.Payment{}, ErrInvalidCardInfo
	}

	customer, err := a.gateway.CreateCustomer(ctx, gateway.CustomerInput{
		TokenCard: tok.ID,
		Name:      input.Name,
		LastName:  input.LastName,
		Email:     user.Email,
		Phone:     input.Phone,
		Default:   true,
	})
	if err != nil {
		return domain.Payment{}, fmt.Errorf("%w: create customer: %v", ErrGatewayUnreachable, err)
	}
	if !customer.Status {
		return domain.Payment{}, ErrGatewayCustomer
	}

	var payment domain.Payment
	var payErr error
	err = a.store.WithOrderForUpdate(orderID, func(tx store.OrderTx, locked domain.Order) error {
		// Re-check under the lock; a racing attempt may have completed
		// the order after the pre-check above.
		if locked.Status == domain.OrderCompleted {
			return ErrAlreadyPaid
		}
		now := a.now()
		payment = domain.Payment{
			ID:            util.NewID(),
			OrderID:       orderID,
			Amount:        locked.TotalAmount,
			PaymentMethod: "card",
			CardLastFour:  domain.LastFour(input.CardNumber),
			CardBrand:     domain.CardBrand(input.CardNumber),
			ClientName:    strings.TrimSpace(input.Name + " " + input.LastName),
			ClientEmail:   user.Email,
			ClientPhone:   input.Phone,
			ClientIP:      input.ClientIP,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		res, chargeErr := a.gateway.Charge(ctx, gateway.ChargeInput{
			TokenCard:   tok.ID,
			CustomerID:  customer.Data.CustomerID,
			DocType:     input.DocType,
			DocNumber:   input.DocNumber,
			Name:        input.Name,
			LastName:    input.LastName,
			Email:       user.Email,
			Bill:        orderID,
			Description: "Book order " + orderID,
			Value:       locked.TotalAmount.StringFixed(2),
			Currency:    "usd",
			DuesNumber:  1,
			IP:          input.ClientIP,
		})
		switch {
		case chargeErr != nil:
			payment.Status = domain.OrderFailed
			payment.ResponseMessage = "charge did not complete"
			payErr = fmt.Errorf("%w: %v", ErrPaymentFailed, chargeErr)
		case !res.Status:
			payment.Status = domain.OrderFailed
			payment.ResponseCode = res.Data.ResponseCode
			payment.ResponseMessage = res.Data.Message
			if payment.ResponseMessage == "" {
				payment.ResponseMessage = "charge rejected by processor"
			}
			payErr = ErrPaymentFailed
		default:
			processedAt := a.now()
			payment.Status = statusFromCode(res.Data.ResponseCode)
			payment.ResponseCode = res.Data.ResponseCode
			payment.ResponseMessage = res.Data.Message
			payment.TransactionID = res.Data.Reference
			payment.ApprovalCode = res.Data.ApprovalCode
			payment.Receipt = res.Data.Receipt
			payment.ProcessedAt = &processedAt
		}

		// The attempt is recorded even when the charge failed; a failed
		// row is audit data, not an error to swallow.
		if err := tx.CreatePayment(payment); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		if err := tx.UpdateOrderStatus(orderID, payment.Status); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if payErr != nil {
		slog.Warn("orders.pay", "order", orderID, "outcome", payment.Status, "error", payErr)
		return payment, payErr
	}
	slog.Info("orders.pay", "order", orderID, "outcome", payment.Status, "code", payment.ResponseCode)
	if payment.Status == domain.OrderCompleted {
		a.publishInvoice(user, orderID, payment)
	}
	return payment, nil
}

// publishInvoice hands the invoice event to the mail worker without
// blocking or affecting the already-committed payment outcome.
func (a *App) publishInvoice(user domain.User, orderID string, payment domain.Payment) {
	if a.invoices == nil {
		return
	}
	details, ok, err := a.store.GetOrderDetails(orderID)
	if err != nil || !ok {
		slog.Error("orders.invoice", "order", orderID, "error", err)
		return
	}
	ev := notify.InvoiceEvent{
		OrderID:   orderID,
		PaymentID: payment.ID,
		UserName:  user.Name,
		UserEmail: user.Email,
		Total:     details.TotalAmount.StringFixed(2),
		Reference: payment.TransactionID,
		Receipt:   payment.Receipt,
		PaidAt:    payment.UpdatedAt,
	}
	for _, item := range details.Items {
		ev.Items = append(ev.Items, notify.InvoiceLine{
			Title:    item.BookTitle,
			Author:   item.BookAuthor,
			Quantity: item.Quantity,
			Price:    item.Price.StringFixed(2),
		})
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.invoices.PublishInvoice(ctx, ev); err != nil {
			slog.Error("orders.invoice", "order", orderID, "error", err)
		}
	}()
}

// GetOrderDetails returns an order with denormalized line items. Only the
// order's owner may read it; absent and not-owned are indistinguishable.
func (a *App) GetOrderDetails(user domain.User, orderID string) (domain.OrderDetails, error) {
	details, ok, err := a.store.GetOrderDetails(orderID)
	if err != nil {
		return domain.OrderDetails{}, fmt.Errorf("lookup order: %w", err)
	}
	if !ok || details.UserID != user.ID {
		return domain.OrderDetails{}, ErrOrderNotFound
	}
	return details, nil
}

// ListOrders returns the user's orders, newest first.
func (a *App) ListOrders(userID string) ([]domain.Order, error) {
	return a.store.ListOrdersByUser(userID)
}

// ListPayments pages payment history. Admins see all completed payments
// system-wide; customers see their own attempts in every state. The total
// count is independent of the page window.
func (a *App) ListPayments(user domain.User, skip, limit int) ([]domain.PaymentWithOrder, int, error) {
	if skip < 0 || limit < 0 {
		return nil, 0, validationf("skip and limit must not be negative")
	}
	if user.Role == domain.RoleAdmin {
		return a.store.ListCompletedPayments(skip, limit)
	}
	return a.store.ListPaymentsByUser(user.ID, skip, limit)
}
