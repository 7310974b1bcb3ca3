package app

import (
	"fmt"

	"virtuallibrary/pkg/domain"
)

// AdminStats is the dashboard summary.
type AdminStats struct {
	TotalBooks     int    `json:"totalBooks"`
	TotalUsers     int    `json:"totalUsers"`
	TotalOrders    int    `json:"totalOrders"`
	CompletedSales int    `json:"completedSales"`
	Revenue        string `json:"revenue"`
}

// Stats aggregates catalog, user, and sales totals.
func (a *App) Stats() (AdminStats, error) {
	books, err := a.store.BookCount()
	if err != nil {
		return AdminStats{}, fmt.Errorf("count books: %w", err)
	}
	users, err := a.store.UserCount()
	if err != nil {
		return AdminStats{}, fmt.Errorf("count users: %w", err)
	}
	orders, err := a.store.OrderCount()
	if err != nil {
		return AdminStats{}, fmt.Errorf("count orders: %w", err)
	}
	sales, revenue, err := a.store.CompletedOrderStats()
	if err != nil {
		return AdminStats{}, fmt.Errorf("sales stats: %w", err)
	}
	return AdminStats{
		TotalBooks:     books,
		TotalUsers:     users,
		TotalOrders:    orders,
		CompletedSales: sales,
		Revenue:        revenue.StringFixed(2),
	}, nil
}

// RecentOrders returns the newest orders for the admin dashboard.
func (a *App) RecentOrders(limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return a.store.RecentOrders(limit)
}
