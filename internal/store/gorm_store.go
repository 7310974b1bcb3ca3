package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"virtuallibrary/internal/util"
	"virtuallibrary/pkg/domain"
)

const migrateLockID int64 = 48120481

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent replicas do not race the schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", migrateLockID).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if err := tx.AutoMigrate(
			&UserModel{}, &CategoryModel{}, &BookModel{}, &CartItemModel{},
			&OrderModel{}, &OrderItemModel{}, &PaymentModel{},
			&SessionModel{}, &HiddenBookModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// SaveUser stores or replaces a user record. A different user holding the
// same email reports ErrDuplicate via the unique index.
func (g *GormStore) SaveUser(u domain.User) error {
	m := userToModel(u)
	err := g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (g *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var m UserModel
	err := g.db.First(&m, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(m), true, nil
}

func (g *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var m UserModel
	err := g.db.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(m), true, nil
}

func (g *GormStore) UserCount() (int, error) {
	var n int64
	if err := g.db.Model(&UserModel{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (g *GormStore) SaveCategory(c domain.Category) error {
	m := CategoryModel{ID: c.ID, Name: c.Name}
	err := g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (g *GormStore) GetCategory(id string) (domain.Category, bool, error) {
	var m CategoryModel
	err := g.db.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Category{}, false, nil
	}
	if err != nil {
		return domain.Category{}, false, err
	}
	return domain.Category{ID: m.ID, Name: m.Name}, true, nil
}

func (g *GormStore) ListCategories() ([]domain.Category, error) {
	var ms []CategoryModel
	if err := g.db.Order("name asc").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(ms))
	for _, m := range ms {
		out = append(out, domain.Category{ID: m.ID, Name: m.Name})
	}
	return out, nil
}

// SaveBook stores or replaces a book record.
func (g *GormStore) SaveBook(b domain.Book) error {
	m := bookToModel(b)
	return g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (g *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var m BookModel
	err := g.db.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Book{}, false, nil
	}
	if err != nil {
		return domain.Book{}, false, err
	}
	return bookFromModel(m), true, nil
}

func (g *GormStore) ListBooks() ([]domain.Book, error) {
	var ms []BookModel
	if err := g.db.Order("created_at asc").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Book, 0, len(ms))
	for _, m := range ms {
		out = append(out, bookFromModel(m))
	}
	return out, nil
}

func (g *GormStore) DeleteBook(id string) error {
	return g.db.Delete(&BookModel{}, "id = ?", id).Error
}

func (g *GormStore) BookCount() (int, error) {
	var n int64
	if err := g.db.Model(&BookModel{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// AddCartItem inserts a cart row; a second row for the same (user, book)
// pair reports ErrDuplicate via the unique index.
func (g *GormStore) AddCartItem(item domain.CartItem) error {
	m := CartItemModel{ID: item.ID, UserID: item.UserID, BookID: item.BookID, Quantity: item.Quantity}
	res := g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoNothing: true,
	}).Create(&m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (g *GormStore) ListCart(userID string) ([]domain.CartLine, error) {
	return listCartTx(g.db, userID)
}

func listCartTx(tx *gorm.DB, userID string) ([]domain.CartLine, error) {
	var items []CartItemModel
	if err := tx.Order("id asc").Find(&items, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	lines := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		var b BookModel
		if err := tx.First(&b, "id = ?", item.BookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Catalog row deleted under the cart; skip the orphan.
				continue
			}
			return nil, err
		}
		lines = append(lines, domain.CartLine{
			CartItem: domain.CartItem{ID: item.ID, UserID: item.UserID, BookID: item.BookID, Quantity: item.Quantity},
			Book:     bookFromModel(b),
		})
	}
	return lines, nil
}

func (g *GormStore) RemoveCartItem(userID, itemID string) (bool, error) {
	res := g.db.Delete(&CartItemModel{}, "id = ? AND user_id = ?", itemID, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateOrderFromCart runs the read-cart, build, insert, clear-cart sequence
// in one transaction so a concurrent cart mutation cannot be lost or
// double-counted.
func (g *GormStore) CreateOrderFromCart(userID string, build func(lines []domain.CartLine) (domain.Order, []domain.OrderItem, error)) (domain.Order, error) {
	var created domain.Order
	err := g.db.Transaction(func(tx *gorm.DB) error {
		lines, err := listCartTx(tx, userID)
		if err != nil {
			return err
		}
		order, items, err := build(lines)
		if err != nil {
			return err
		}
		om := OrderModel{
			ID:          order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
			Status:      string(order.Status),
			CreatedAt:   order.CreatedAt,
		}
		if err := tx.Create(&om).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, item := range items {
			im := OrderItemModel{
				ID:       item.ID,
				OrderID:  item.OrderID,
				BookID:   item.BookID,
				Quantity: item.Quantity,
				Price:    item.Price,
			}
			if err := tx.Create(&im).Error; err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}
		if err := tx.Delete(&CartItemModel{}, "user_id = ?", userID).Error; err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		created = order
		return nil
	})
	return created, err
}

func (g *GormStore) GetOrder(id string) (domain.Order, bool, error) {
	var m OrderModel
	err := g.db.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	return orderFromModel(m), true, nil
}

func (g *GormStore) GetOrderDetails(id string) (domain.OrderDetails, bool, error) {
	var om OrderModel
	err := g.db.First(&om, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.OrderDetails{}, false, nil
	}
	if err != nil {
		return domain.OrderDetails{}, false, err
	}
	var items []OrderItemModel
	if err := g.db.Order("id asc").Find(&items, "order_id = ?", id).Error; err != nil {
		return domain.OrderDetails{}, false, err
	}
	details := domain.OrderDetails{Order: orderFromModel(om), Items: make([]domain.OrderLine, 0, len(items))}
	for _, item := range items {
		line := domain.OrderLine{
			BookID:   item.BookID,
			Quantity: item.Quantity,
			Price:    item.Price,
		}
		var b BookModel
		if err := g.db.First(&b, "id = ?", item.BookID).Error; err == nil {
			line.BookTitle = b.Title
			line.BookAuthor = b.Author
			line.BookDescription = b.Description
			line.BookCover = b.CoverKey
			line.BookFile = b.FileKey
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.OrderDetails{}, false, err
		}
		details.Items = append(details.Items, line)
	}
	return details, true, nil
}

func (g *GormStore) ListOrdersByUser(userID string) ([]domain.Order, error) {
	var ms []OrderModel
	if err := g.db.Order("created_at desc").Find(&ms, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(ms))
	for _, m := range ms {
		out = append(out, orderFromModel(m))
	}
	return out, nil
}

func (g *GormStore) RecentOrders(limit int) ([]domain.Order, error) {
	var ms []OrderModel
	if err := g.db.Order("created_at desc").Limit(limit).Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(ms))
	for _, m := range ms {
		out = append(out, orderFromModel(m))
	}
	return out, nil
}

func (g *GormStore) OrderCount() (int, error) {
	var n int64
	if err := g.db.Model(&OrderModel{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (g *GormStore) CompletedOrderStats() (int, decimal.Decimal, error) {
	var n int64
	if err := g.db.Model(&OrderModel{}).Where("status = ?", string(domain.OrderCompleted)).Count(&n).Error; err != nil {
		return 0, decimal.Zero, err
	}
	var revenue decimal.NullDecimal
	err := g.db.Model(&OrderModel{}).
		Where("status = ?", string(domain.OrderCompleted)).
		Select("SUM(total_amount)").Scan(&revenue).Error
	if err != nil {
		return 0, decimal.Zero, err
	}
	if !revenue.Valid {
		return int(n), decimal.Zero, nil
	}
	return int(n), revenue.Decimal, nil
}

type gormOrderTx struct {
	tx *gorm.DB
}

func (t *gormOrderTx) CreatePayment(p domain.Payment) error {
	m := paymentToModel(p)
	return t.tx.Create(&m).Error
}

func (t *gormOrderTx) UpdateOrderStatus(orderID string, status domain.OrderStatus) error {
	return t.tx.Model(&OrderModel{}).Where("id = ?", orderID).
		Update("status", string(status)).Error
}

// WithOrderForUpdate takes a FOR UPDATE lock on the order row for the
// duration of fn, serializing concurrent payment attempts on one order.
func (g *GormStore) WithOrderForUpdate(orderID string, fn func(tx OrderTx, order domain.Order) error) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		var m OrderModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", orderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return fn(&gormOrderTx{tx: tx}, orderFromModel(m))
	})
}

func (g *GormStore) ListPaymentsByUser(userID string, skip, limit int) ([]domain.PaymentWithOrder, int, error) {
	base := g.db.Model(&PaymentModel{}).
		Joins("JOIN order_models ON order_models.id = payment_models.order_id").
		Where("order_models.user_id = ?", userID)
	return listPayments(base, skip, limit)
}

func (g *GormStore) ListCompletedPayments(skip, limit int) ([]domain.PaymentWithOrder, int, error) {
	base := g.db.Model(&PaymentModel{}).
		Joins("JOIN order_models ON order_models.id = payment_models.order_id").
		Where("payment_models.status = ?", string(domain.OrderCompleted))
	return listPayments(base, skip, limit)
}

type paymentWithOrderRow struct {
	PaymentModel
	OrderTotal     decimal.Decimal
	OrderStatus    string
	OrderCreatedAt time.Time
}

func listPayments(base *gorm.DB, skip, limit int) ([]domain.PaymentWithOrder, int, error) {
	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q := base.Session(&gorm.Session{}).
		Select("payment_models.*, order_models.total_amount AS order_total, order_models.status AS order_status, order_models.created_at AS order_created_at").
		Order("payment_models.created_at desc").
		Offset(skip)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []paymentWithOrderRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.PaymentWithOrder, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.PaymentWithOrder{
			Payment:        paymentFromModel(row.PaymentModel),
			OrderTotal:     row.OrderTotal,
			OrderStatus:    domain.OrderStatus(row.OrderStatus),
			OrderCreatedAt: row.OrderCreatedAt,
		})
	}
	return out, int(total), nil
}

// CreateSession applies the revocation policy and inserts the new row in
// one transaction; a racing second login serializes on the user's rows.
func (g *GormStore) CreateSession(s domain.Session, policy SessionPolicy) error {
	m, err := sessionToModel(s)
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}
	return g.db.Transaction(func(tx *gorm.DB) error {
		if policy != nil {
			var existing []SessionModel
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Find(&existing, "user_id = ? AND is_active = ?", s.UserID, true).Error; err != nil {
				return err
			}
			sessions := make([]domain.Session, 0, len(existing))
			for _, em := range existing {
				sessions = append(sessions, sessionFromModel(em))
			}
			if ids := policy(sessions); len(ids) > 0 {
				now := s.CreatedAt
				if err := tx.Model(&SessionModel{}).
					Where("id IN ? AND revoked_at IS NULL", ids).
					Updates(map[string]any{"is_active": false, "revoked_at": now}).Error; err != nil {
					return err
				}
			}
		}
		if err := tx.Create(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}

func (g *GormStore) GetSessionByToken(token string) (domain.Session, bool, error) {
	var m SessionModel
	err := g.db.First(&m, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	return sessionFromModel(m), true, nil
}

func (g *GormStore) ListSessionsByUser(userID string) ([]domain.Session, error) {
	var ms []SessionModel
	if err := g.db.Order("created_at desc").Find(&ms, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(ms))
	for _, m := range ms {
		out = append(out, sessionFromModel(m))
	}
	return out, nil
}

func (g *GormStore) TouchSession(id string, at time.Time) error {
	return g.db.Model(&SessionModel{}).Where("id = ?", id).
		Update("last_activity", at).Error
}

// RevokeSession is idempotent; revoking an already-revoked session changes
// nothing.
func (g *GormStore) RevokeSession(id string, at time.Time) error {
	return g.db.Model(&SessionModel{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{"is_active": false, "revoked_at": at}).Error
}

func (g *GormStore) RevokeUserSessions(userID, exceptID string, at time.Time) (int, error) {
	q := g.db.Model(&SessionModel{}).
		Where("user_id = ? AND is_active = ? AND revoked_at IS NULL", userID, true)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	res := q.Updates(map[string]any{"is_active": false, "revoked_at": at})
	return int(res.RowsAffected), res.Error
}

// SweepExpiredSessions marks expired rows inactive without deleting them,
// keeping the audit trail.
func (g *GormStore) SweepExpiredSessions(now time.Time) (int, error) {
	res := g.db.Model(&SessionModel{}).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Update("is_active", false)
	return int(res.RowsAffected), res.Error
}

// HideBook inserts the overlay row if absent; hiding twice is a no-op and
// keeps the first row's timestamp.
func (g *GormStore) HideBook(userID, bookID string, at time.Time) error {
	m := HiddenBookModel{
		ID:        util.NewID(),
		UserID:    userID,
		BookID:    bookID,
		CreatedAt: at,
	}
	return g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoNothing: true,
	}).Create(&m).Error
}

// UnhideBook deletes the overlay row if present; unhiding a never-hidden
// book is a no-op.
func (g *GormStore) UnhideBook(userID, bookID string) error {
	return g.db.Delete(&HiddenBookModel{}, "user_id = ? AND book_id = ?", userID, bookID).Error
}

func (g *GormStore) ListHiddenBookIDs(userID string) ([]string, error) {
	var ids []string
	err := g.db.Model(&HiddenBookModel{}).Where("user_id = ?", userID).
		Order("created_at asc").Pluck("book_id", &ids).Error
	return ids, err
}

// ListPurchasedBooks returns one row per completed-order line for the user,
// newest purchase first. Callers dedupe by book when needed.
func (g *GormStore) ListPurchasedBooks(userID string) ([]domain.PurchasedBook, error) {
	type row struct {
		BookModel
		OrderID     string
		PurchasedAt time.Time
	}
	var rows []row
	err := g.db.Model(&OrderItemModel{}).
		Joins("JOIN order_models ON order_models.id = order_item_models.order_id").
		Joins("JOIN book_models ON book_models.id = order_item_models.book_id").
		Where("order_models.user_id = ? AND order_models.status = ?", userID, string(domain.OrderCompleted)).
		Select("book_models.*, order_models.id AS order_id, order_models.created_at AS purchased_at").
		Order("order_models.created_at desc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.PurchasedBook, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.PurchasedBook{
			Book:        bookFromModel(r.BookModel),
			OrderID:     r.OrderID,
			PurchasedAt: r.PurchasedAt,
		})
	}
	return out, nil
}
