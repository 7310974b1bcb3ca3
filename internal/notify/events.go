package notify

import "time"

// InvoiceLine is one purchased item on an invoice.
type InvoiceLine struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// InvoiceEvent is published after a completed charge and consumed by the
// mail worker. Amounts travel as fixed-point strings.
type InvoiceEvent struct {
	OrderID   string        `json:"orderId"`
	PaymentID string        `json:"paymentId"`
	UserName  string        `json:"userName"`
	UserEmail string        `json:"userEmail"`
	Total     string        `json:"total"`
	Reference string        `json:"reference"`
	Receipt   string        `json:"receipt"`
	PaidAt    time.Time     `json:"paidAt"`
	Items     []InvoiceLine `json:"items"`
}
