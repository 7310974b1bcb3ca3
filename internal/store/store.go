package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"virtuallibrary/pkg/domain"
)

// ErrDuplicate reports a uniqueness violation, e.g. adding a (user, book)
// cart row that already exists.
var ErrDuplicate = errors.New("store: duplicate entry")

// ErrNotFound reports a row that the operation requires but could not find.
var ErrNotFound = errors.New("store: not found")

// SessionPolicy decides which of a user's existing sessions must be revoked
// when a new session is inserted. It runs inside the same transaction as the
// insert so a racing second login can never leave two valid sessions.
type SessionPolicy func(existing []domain.Session) (revokeIDs []string)

// OrderTx is the write surface available while an order row is held under a
// row-level lock. Both writes commit or roll back together with the lock.
type OrderTx interface {
	CreatePayment(domain.Payment) error
	UpdateOrderStatus(orderID string, status domain.OrderStatus) error
}

// Store defines persistence for users, catalog, cart, orders, payments,
// sessions, and the per-user visibility overlay.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	UserCount() (int, error)

	// categories
	SaveCategory(domain.Category) error
	GetCategory(id string) (domain.Category, bool, error)
	ListCategories() ([]domain.Category, error)

	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	DeleteBook(id string) error
	BookCount() (int, error)

	// cart
	AddCartItem(domain.CartItem) error
	ListCart(userID string) ([]domain.CartLine, error)
	RemoveCartItem(userID, itemID string) (bool, error)

	// orders
	//
	// CreateOrderFromCart reads the user's cart, calls build to turn the
	// lines into an order plus item snapshots, inserts both, and clears the
	// cart, all in one transaction. A build error aborts everything.
	CreateOrderFromCart(userID string, build func(lines []domain.CartLine) (domain.Order, []domain.OrderItem, error)) (domain.Order, error)
	GetOrder(id string) (domain.Order, bool, error)
	GetOrderDetails(id string) (domain.OrderDetails, bool, error)
	ListOrdersByUser(userID string) ([]domain.Order, error)
	RecentOrders(limit int) ([]domain.Order, error)
	OrderCount() (int, error)
	CompletedOrderStats() (count int, revenue decimal.Decimal, err error)

	// WithOrderForUpdate locks the order row, passes its current state to
	// fn, and commits fn's writes atomically. Returns ErrNotFound when the
	// order does not exist. Two concurrent calls for the same order
	// serialize on the lock.
	WithOrderForUpdate(orderID string, fn func(tx OrderTx, order domain.Order) error) error

	// payments
	ListPaymentsByUser(userID string, skip, limit int) ([]domain.PaymentWithOrder, int, error)
	ListCompletedPayments(skip, limit int) ([]domain.PaymentWithOrder, int, error)

	// sessions
	CreateSession(s domain.Session, policy SessionPolicy) error
	GetSessionByToken(token string) (domain.Session, bool, error)
	ListSessionsByUser(userID string) ([]domain.Session, error)
	TouchSession(id string, at time.Time) error
	RevokeSession(id string, at time.Time) error
	RevokeUserSessions(userID, exceptID string, at time.Time) (int, error)
	SweepExpiredSessions(now time.Time) (int, error)

	// visibility overlay
	HideBook(userID, bookID string, at time.Time) error
	UnhideBook(userID, bookID string) error
	ListHiddenBookIDs(userID string) ([]string, error)
	ListPurchasedBooks(userID string) ([]domain.PurchasedBook, error)
}
