package app

import "errors"

var (
	// ErrEmptyCart indicates a checkout attempt with no cart rows.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrDuplicateCartEntry indicates the (user, book) pair is already in
	// the cart.
	ErrDuplicateCartEntry = errors.New("book already in cart")
	// ErrBookNotFound indicates an unresolvable book id.
	ErrBookNotFound = errors.New("book not found")
	// ErrCategoryNotFound indicates an unresolvable category id.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrCartItemNotFound indicates a cart row that is absent or owned by
	// someone else.
	ErrCartItemNotFound = errors.New("cart item not found")
	// ErrOrderNotFound indicates an order that is absent or owned by
	// someone else.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUserNotFound indicates an unresolvable user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken indicates a signup with an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials indicates a failed email/password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionInvalid indicates a missing, inactive, expired, or revoked
	// session.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionNotFound indicates a session id that is absent or owned by
	// someone else.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidCardInfo indicates the processor declined tokenization.
	ErrInvalidCardInfo = errors.New("invalid card information")
	// ErrGatewayCustomer indicates the processor declined customer
	// registration.
	ErrGatewayCustomer = errors.New("payment customer registration failed")
	// ErrGatewayUnreachable indicates the processor could not be reached
	// before any charge was attempted.
	ErrGatewayUnreachable = errors.New("payment processor unreachable")
	// ErrPaymentFailed indicates the charge call itself failed. The
	// attempt is still recorded as a failed payment row.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrAlreadyPaid guards against a second charge on a completed order.
	ErrAlreadyPaid = errors.New("order already paid")
)

// ValidationError reports malformed input with a caller-safe message.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationf(msg string) error { return ValidationError{Msg: msg} }
