package store

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"virtuallibrary/pkg/domain"
)

// MemoryStore is an in-process Store used by tests. Semantics mirror the
// GORM implementation, including the transactional callbacks.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[string]domain.User
	email      map[string]string // email -> user ID
	categories map[string]domain.Category
	books      map[string]domain.Book
	bookOrder  []string
	cart       map[string]domain.CartItem // cart item ID -> row
	orders     map[string]domain.Order
	orderItems map[string][]domain.OrderItem // order ID -> items
	payments   []domain.Payment
	sessions   map[string]domain.Session // session ID -> row
	hidden     map[string]map[string]domain.HiddenBook
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		email:      make(map[string]string),
		categories: make(map[string]domain.Category),
		books:      make(map[string]domain.Book),
		cart:       make(map[string]domain.CartItem),
		orders:     make(map[string]domain.Order),
		orderItems: make(map[string][]domain.OrderItem),
		sessions:   make(map[string]domain.Session),
		hidden:     make(map[string]map[string]domain.HiddenBook),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.email[u.Email]; ok && existingID != u.ID {
		return ErrDuplicate
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) UserCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *MemoryStore) SaveCategory(c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.categories {
		if existing.Name == c.Name && existing.ID != c.ID {
			return ErrDuplicate
		}
	}
	m.categories[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCategory(id string) (domain.Category, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	return c, ok, nil
}

func (m *MemoryStore) ListCategories() ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; !exists {
		m.bookOrder = append(m.bookOrder, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	return b, ok, nil
}

func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Book, 0, len(m.bookOrder))
	for _, id := range m.bookOrder {
		if b, ok := m.books[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	return nil
}

func (m *MemoryStore) BookCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.books), nil
}

func (m *MemoryStore) AddCartItem(item domain.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.cart {
		if row.UserID == item.UserID && row.BookID == item.BookID {
			return ErrDuplicate
		}
	}
	m.cart[item.ID] = item
	return nil
}

func (m *MemoryStore) ListCart(userID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCartLocked(userID), nil
}

func (m *MemoryStore) listCartLocked(userID string) []domain.CartLine {
	var lines []domain.CartLine
	for _, row := range m.cart {
		if row.UserID != userID {
			continue
		}
		book, ok := m.books[row.BookID]
		if !ok {
			continue
		}
		lines = append(lines, domain.CartLine{CartItem: row, Book: book})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines
}

func (m *MemoryStore) RemoveCartItem(userID, itemID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.cart[itemID]
	if !ok || row.UserID != userID {
		return false, nil
	}
	delete(m.cart, itemID)
	return true, nil
}

func (m *MemoryStore) CreateOrderFromCart(userID string, build func(lines []domain.CartLine) (domain.Order, []domain.OrderItem, error)) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.listCartLocked(userID)
	order, items, err := build(lines)
	if err != nil {
		return domain.Order{}, err
	}
	m.orders[order.ID] = order
	m.orderItems[order.ID] = items
	for id, row := range m.cart {
		if row.UserID == userID {
			delete(m.cart, id)
		}
	}
	return order, nil
}

func (m *MemoryStore) GetOrder(id string) (domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok, nil
}

func (m *MemoryStore) GetOrderDetails(id string) (domain.OrderDetails, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.OrderDetails{}, false, nil
	}
	details := domain.OrderDetails{Order: o}
	for _, item := range m.orderItems[id] {
		line := domain.OrderLine{BookID: item.BookID, Quantity: item.Quantity, Price: item.Price}
		if b, ok := m.books[item.BookID]; ok {
			line.BookTitle = b.Title
			line.BookAuthor = b.Author
			line.BookDescription = b.Description
			line.BookCover = b.CoverKey
			line.BookFile = b.FileKey
		}
		details.Items = append(details.Items, line)
	}
	return details, true, nil
}

func (m *MemoryStore) ListOrdersByUser(userID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) RecentOrders(limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) OrderCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders), nil
}

func (m *MemoryStore) CompletedOrderStats() (int, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	revenue := decimal.Zero
	for _, o := range m.orders {
		if o.Status == domain.OrderCompleted {
			count++
			revenue = revenue.Add(o.TotalAmount)
		}
	}
	return count, revenue, nil
}

type memOrderTx struct {
	store *MemoryStore // mutex already held by WithOrderForUpdate
}

func (t *memOrderTx) CreatePayment(p domain.Payment) error {
	t.store.payments = append(t.store.payments, p)
	return nil
}

func (t *memOrderTx) UpdateOrderStatus(orderID string, status domain.OrderStatus) error {
	o, ok := t.store.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	t.store.orders[orderID] = o
	return nil
}

func (m *MemoryStore) WithOrderForUpdate(orderID string, fn func(tx OrderTx, order domain.Order) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	return fn(&memOrderTx{store: m}, o)
}

func (m *MemoryStore) ListPaymentsByUser(userID string, skip, limit int) ([]domain.PaymentWithOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pagePaymentsLocked(skip, limit, func(p domain.Payment, o domain.Order) bool {
		return o.UserID == userID
	})
}

func (m *MemoryStore) ListCompletedPayments(skip, limit int) ([]domain.PaymentWithOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pagePaymentsLocked(skip, limit, func(p domain.Payment, o domain.Order) bool {
		return p.Status == domain.OrderCompleted
	})
}

func (m *MemoryStore) pagePaymentsLocked(skip, limit int, keep func(domain.Payment, domain.Order) bool) ([]domain.PaymentWithOrder, int, error) {
	var all []domain.PaymentWithOrder
	for _, p := range m.payments {
		o, ok := m.orders[p.OrderID]
		if !ok || !keep(p, o) {
			continue
		}
		all = append(all, domain.PaymentWithOrder{
			Payment:        p,
			OrderTotal:     o.TotalAmount,
			OrderStatus:    o.Status,
			OrderCreatedAt: o.CreatedAt,
		})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if skip >= len(all) {
		return nil, total, nil
	}
	all = all[skip:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *MemoryStore) CreateSession(s domain.Session, policy SessionPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.Token == s.Token {
			return ErrDuplicate
		}
	}
	if policy != nil {
		var active []domain.Session
		for _, existing := range m.sessions {
			if existing.UserID == s.UserID && existing.IsActive {
				active = append(active, existing)
			}
		}
		for _, id := range policy(active) {
			m.revokeLocked(id, s.CreatedAt)
		}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSessionByToken(token string) (domain.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Token == token {
			return s, true, nil
		}
	}
	return domain.Session{}, false, nil
}

func (m *MemoryStore) ListSessionsByUser(userID string) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) TouchSession(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.LastActivity = at
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) RevokeSession(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeLocked(id, at)
	return nil
}

func (m *MemoryStore) revokeLocked(id string, at time.Time) {
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return
	}
	s.IsActive = false
	revokedAt := at
	s.RevokedAt = &revokedAt
	m.sessions[id] = s
}

func (m *MemoryStore) RevokeUserSessions(userID, exceptID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.UserID != userID || !s.IsActive || s.RevokedAt != nil || id == exceptID {
			continue
		}
		m.revokeLocked(id, at)
		n++
	}
	return n, nil
}

func (m *MemoryStore) SweepExpiredSessions(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.IsActive && !now.Before(s.ExpiresAt) {
			s.IsActive = false
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) HideBook(userID, bookID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.hidden[userID]
	if !ok {
		rows = make(map[string]domain.HiddenBook)
		m.hidden[userID] = rows
	}
	if _, exists := rows[bookID]; exists {
		return nil
	}
	rows[bookID] = domain.HiddenBook{
		ID:        userID + ":" + bookID,
		UserID:    userID,
		BookID:    bookID,
		CreatedAt: at,
	}
	return nil
}

func (m *MemoryStore) UnhideBook(userID, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hidden[userID], bookID)
	return nil
}

func (m *MemoryStore) ListHiddenBookIDs(userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.hidden[userID]
	out := make([]string, 0, len(rows))
	for bookID := range rows {
		out = append(out, bookID)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) ListPurchasedBooks(userID string) ([]domain.PurchasedBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PurchasedBook
	for _, o := range m.orders {
		if o.UserID != userID || o.Status != domain.OrderCompleted {
			continue
		}
		for _, item := range m.orderItems[o.ID] {
			b, ok := m.books[item.BookID]
			if !ok {
				continue
			}
			out = append(out, domain.PurchasedBook{Book: b, OrderID: o.ID, PurchasedAt: o.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return out, nil
}
