package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleAdmin    UserRole = "admin"
)

// OrderStatus is the state of an order. "created" is the only initial
// state; every other value is the terminal outcome of one payment attempt.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderCompleted OrderStatus = "completed"
	OrderRejected  OrderStatus = "rejected"
	OrderPending   OrderStatus = "pending"
	OrderFailed    OrderStatus = "failed"
	OrderReversed  OrderStatus = "reversed"
	OrderRetained  OrderStatus = "retained"
	OrderStarted   OrderStatus = "started"
	OrderExpired   OrderStatus = "expired"
	OrderAbandoned OrderStatus = "abandoned"
	OrderCanceled  OrderStatus = "canceled"
	OrderUnknown   OrderStatus = "unknown"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Book struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CategoryID  string          `json:"categoryId"`
	CoverKey    string          `json:"coverKey"`
	FileKey     string          `json:"fileKey"`
	Pages       int             `json:"pages,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type CartItem struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
}

// CartLine is a cart row joined with live book data. Prices here are the
// current catalog prices, not snapshots.
type CartLine struct {
	CartItem
	Book Book `json:"book"`
}

type Order struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// OrderItem snapshots one cart row at order-creation time. Price is copied
// from the book, never referenced, so later catalog changes do not touch
// historical orders.
type OrderItem struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"orderId"`
	BookID   string          `json:"bookId"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderLine is an order item denormalized with book display data.
type OrderLine struct {
	BookID          string          `json:"bookId"`
	BookTitle       string          `json:"bookTitle"`
	BookAuthor      string          `json:"bookAuthor"`
	BookDescription string          `json:"bookDescription"`
	BookCover       string          `json:"bookCover"`
	BookFile        string          `json:"bookFile"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
}

type OrderDetails struct {
	Order
	Items []OrderLine `json:"items"`
}

// Payment records exactly one charge attempt against an order, success or
// failure. The full card number is never stored; only the last four digits
// and the derived brand survive.
type Payment struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"orderId"`
	Amount          decimal.Decimal `json:"amount"`
	Status          OrderStatus     `json:"status"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	TransactionID   string          `json:"transactionId,omitempty"`
	ResponseCode    int             `json:"responseCode,omitempty"`
	ResponseMessage string          `json:"responseMessage,omitempty"`
	ApprovalCode    string          `json:"approvalCode,omitempty"`
	Receipt         string          `json:"receipt,omitempty"`
	CardLastFour    string          `json:"cardLastFour,omitempty"`
	CardBrand       string          `json:"cardBrand,omitempty"`
	ClientName      string          `json:"clientName,omitempty"`
	ClientEmail     string          `json:"clientEmail,omitempty"`
	ClientPhone     string          `json:"clientPhone,omitempty"`
	ClientIP        string          `json:"clientIp,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	ProcessedAt     *time.Time      `json:"processedAt,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// PaymentWithOrder joins a payment with summary fields of its order for
// listing views.
type PaymentWithOrder struct {
	Payment
	OrderTotal     decimal.Decimal `json:"orderTotal"`
	OrderStatus    OrderStatus     `json:"orderStatus"`
	OrderCreatedAt time.Time       `json:"orderCreatedAt"`
}

// Session is one authenticated device/browser session. IsValid is the
// single source of truth for whether the bearer token is usable.
type Session struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	Token        string            `json:"-"`
	DeviceType   string            `json:"deviceType,omitempty"`
	Browser      string            `json:"browser,omitempty"`
	OS           string            `json:"os,omitempty"`
	UserAgent    string            `json:"-"`
	IPAddress    string            `json:"ipAddress,omitempty"`
	LoginMethod  string            `json:"loginMethod,omitempty"`
	IsActive     bool              `json:"isActive"`
	LastActivity time.Time         `json:"lastActivity"`
	CreatedAt    time.Time         `json:"createdAt"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	RevokedAt    *time.Time        `json:"revokedAt,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// IsValid reports whether the session can authenticate requests at now.
func (s Session) IsValid(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt) && s.RevokedAt == nil
}

type HiddenBook struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	BookID    string    `json:"bookId"`
	CreatedAt time.Time `json:"createdAt"`
}

// PurchasedBook is a completed-order book joined with the order that
// bought it, used by the hidden-books restore view.
type PurchasedBook struct {
	Book
	OrderID     string    `json:"orderId"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

// CardBrand derives the brand from the leading digit of a PAN.
func CardBrand(number string) string {
	if number == "" {
		return "unknown"
	}
	switch number[0] {
	case '4':
		return "Visa"
	case '5':
		return "Mastercard"
	case '3':
		return "American Express"
	default:
		return "unknown"
	}
}

// LastFour returns the trailing four digits of a PAN, or the whole input
// when shorter.
func LastFour(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
