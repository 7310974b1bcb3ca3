package store

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"virtuallibrary/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type CategoryModel struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

type BookModel struct {
	ID          string          `gorm:"primaryKey"`
	Title       string          `gorm:"not null"`
	Author      string          `gorm:"not null"`
	Description string          `gorm:"type:text"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Stock       int             `gorm:"not null"`
	CategoryID  string          `gorm:"index"`
	CoverKey    string
	FileKey     string
	Pages       int
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type CartItemModel struct {
	ID       string `gorm:"primaryKey"`
	UserID   string `gorm:"not null;uniqueIndex:idx_cart_user_book"`
	BookID   string `gorm:"not null;uniqueIndex:idx_cart_user_book"`
	Quantity int    `gorm:"not null"`
}

type OrderModel struct {
	ID          string          `gorm:"primaryKey"`
	UserID      string          `gorm:"not null;index"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Status      string          `gorm:"not null;index"`
	CreatedAt   time.Time       `gorm:"not null;index"`
}

type OrderItemModel struct {
	ID       string          `gorm:"primaryKey"`
	OrderID  string          `gorm:"not null;index"`
	BookID   string          `gorm:"not null;index"`
	Quantity int             `gorm:"not null"`
	Price    decimal.Decimal `gorm:"type:numeric(10,2);not null"`
}

type PaymentModel struct {
	ID              string          `gorm:"primaryKey"`
	OrderID         string          `gorm:"not null;index"`
	Amount          decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Status          string          `gorm:"not null;index"`
	PaymentMethod   string
	TransactionID   string
	ResponseCode    int
	ResponseMessage string
	ApprovalCode    string
	Receipt         string
	CardLastFour    string
	CardBrand       string
	ClientName      string
	ClientEmail     string
	ClientPhone     string
	ClientIP        string
	CreatedAt       time.Time `gorm:"not null;index"`
	ProcessedAt     *time.Time
	UpdatedAt       time.Time `gorm:"not null"`
}

type SessionModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	Token        string `gorm:"uniqueIndex;not null"`
	DeviceType   string
	Browser      string
	OS           string
	UserAgent    string
	IPAddress    string
	LoginMethod  string
	IsActive     bool      `gorm:"not null;index"`
	LastActivity time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	ExpiresAt    time.Time `gorm:"not null;index"`
	RevokedAt    *time.Time
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
}

type HiddenBookModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_hidden_user_book"`
	BookID    string    `gorm:"not null;uniqueIndex:idx_hidden_user_book"`
	CreatedAt time.Time `gorm:"not null"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Price:       b.Price,
		Stock:       b.Stock,
		CategoryID:  b.CategoryID,
		CoverKey:    b.CoverKey,
		FileKey:     b.FileKey,
		Pages:       b.Pages,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:          m.ID,
		Title:       m.Title,
		Author:      m.Author,
		Description: m.Description,
		Price:       m.Price,
		Stock:       m.Stock,
		CategoryID:  m.CategoryID,
		CoverKey:    m.CoverKey,
		FileKey:     m.FileKey,
		Pages:       m.Pages,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func orderFromModel(m OrderModel) domain.Order {
	return domain.Order{
		ID:          m.ID,
		UserID:      m.UserID,
		TotalAmount: m.TotalAmount,
		Status:      domain.OrderStatus(m.Status),
		CreatedAt:   m.CreatedAt,
	}
}

func paymentToModel(p domain.Payment) PaymentModel {
	return PaymentModel{
		ID:              p.ID,
		OrderID:         p.OrderID,
		Amount:          p.Amount,
		Status:          string(p.Status),
		PaymentMethod:   p.PaymentMethod,
		TransactionID:   p.TransactionID,
		ResponseCode:    p.ResponseCode,
		ResponseMessage: p.ResponseMessage,
		ApprovalCode:    p.ApprovalCode,
		Receipt:         p.Receipt,
		CardLastFour:    p.CardLastFour,
		CardBrand:       p.CardBrand,
		ClientName:      p.ClientName,
		ClientEmail:     p.ClientEmail,
		ClientPhone:     p.ClientPhone,
		ClientIP:        p.ClientIP,
		CreatedAt:       p.CreatedAt,
		ProcessedAt:     p.ProcessedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func paymentFromModel(m PaymentModel) domain.Payment {
	return domain.Payment{
		ID:              m.ID,
		OrderID:         m.OrderID,
		Amount:          m.Amount,
		Status:          domain.OrderStatus(m.Status),
		PaymentMethod:   m.PaymentMethod,
		TransactionID:   m.TransactionID,
		ResponseCode:    m.ResponseCode,
		ResponseMessage: m.ResponseMessage,
		ApprovalCode:    m.ApprovalCode,
		Receipt:         m.Receipt,
		CardLastFour:    m.CardLastFour,
		CardBrand:       m.CardBrand,
		ClientName:      m.ClientName,
		ClientEmail:     m.ClientEmail,
		ClientPhone:     m.ClientPhone,
		ClientIP:        m.ClientIP,
		CreatedAt:       m.CreatedAt,
		ProcessedAt:     m.ProcessedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func sessionToModel(s domain.Session) (SessionModel, error) {
	var meta datatypes.JSON
	if len(s.Metadata) > 0 {
		raw, err := json.Marshal(s.Metadata)
		if err != nil {
			return SessionModel{}, err
		}
		meta = datatypes.JSON(raw)
	}
	return SessionModel{
		ID:           s.ID,
		UserID:       s.UserID,
		Token:        s.Token,
		DeviceType:   s.DeviceType,
		Browser:      s.Browser,
		OS:           s.OS,
		UserAgent:    s.UserAgent,
		IPAddress:    s.IPAddress,
		LoginMethod:  s.LoginMethod,
		IsActive:     s.IsActive,
		LastActivity: s.LastActivity,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
		RevokedAt:    s.RevokedAt,
		Metadata:     meta,
	}, nil
}

func sessionFromModel(m SessionModel) domain.Session {
	var meta map[string]string
	if len(m.Metadata) > 0 {
		// Metadata is written by sessionToModel; a decode failure here
		// means a hand-edited row, so the field is simply dropped.
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.Session{
		ID:           m.ID,
		UserID:       m.UserID,
		Token:        m.Token,
		DeviceType:   m.DeviceType,
		Browser:      m.Browser,
		OS:           m.OS,
		UserAgent:    m.UserAgent,
		IPAddress:    m.IPAddress,
		LoginMethod:  m.LoginMethod,
		IsActive:     m.IsActive,
		LastActivity: m.LastActivity,
		CreatedAt:    m.CreatedAt,
		ExpiresAt:    m.ExpiresAt,
		RevokedAt:    m.RevokedAt,
		Metadata:     meta,
	}
}
