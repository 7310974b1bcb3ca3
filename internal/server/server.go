package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"virtuallibrary/internal/app"
	"virtuallibrary/internal/ratelimit"
	"virtuallibrary/internal/util"
	"virtuallibrary/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	RedisAddr     string
	RedisPassword string

	LoginRateLimitPerMinute  int
	SignupRateLimitPerMinute int
	TrustedProxyCIDRs        []string
}

// Server exposes the HTTP API for the bookstore.
type Server struct {
	app           *app.App
	mux           *http.ServeMux
	trusted       *util.TrustedProxies
	loginLimiter  *ratelimit.FixedWindowLimiter
	signupLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "library:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	signupLimiter, err := newLimiter("signup", signupLimit)
	if err != nil {
		return nil, err
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:           cfg.App,
		mux:           http.NewServeMux(),
		trusted:       trusted,
		loginLimiter:  loginLimiter,
		signupLimiter: signupLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth & sessions
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/login/encrypted", s.handleLoginEncrypted)
	s.mux.HandleFunc("/api/auth/public-key", s.handlePublicKey)
	s.mux.Handle("/api/auth/logout", s.authenticated(s.handleLogout))
	s.mux.Handle("/api/auth/me", s.authenticated(s.handleMe))
	s.mux.Handle("/api/auth/sessions", s.authenticated(s.handleSessions))
	s.mux.Handle("/api/auth/sessions/", s.authenticated(s.handleSessionByID))

	// catalog
	s.mux.Handle("/api/books", s.authenticated(s.handleBooks))
	s.mux.Handle("/api/books/", s.authenticated(s.handleBookByID))
	s.mux.Handle("/api/categories", s.authenticated(s.handleCategories))

	// cart & orders
	s.mux.Handle("/api/cart", s.authenticated(s.handleCart))
	s.mux.Handle("/api/cart/", s.authenticated(s.handleCartItem))
	s.mux.Handle("/api/orders", s.authenticated(s.handleOrders))
	s.mux.Handle("/api/orders/", s.authenticated(s.handleOrderByID))
	s.mux.Handle("/api/payments", s.authenticated(s.handlePayments))

	// admin
	s.mux.Handle("/api/admin/books", s.adminOnly(s.handleAdminBooks))
	s.mux.Handle("/api/admin/books/", s.adminOnly(s.handleAdminBookByID))
	s.mux.Handle("/api/admin/categories", s.adminOnly(s.handleAdminCategories))
	s.mux.Handle("/api/admin/uploads", s.adminOnly(s.handleAdminUploads))
	s.mux.Handle("/api/admin/stats", s.adminOnly(s.handleAdminStats))
	s.mux.Handle("/api/admin/orders", s.adminOnly(s.handleAdminOrders))
	s.mux.Handle("/api/admin/users/", s.adminOnly(s.handleAdminUserByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User, domain.Session)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, session, err := s.app.ValidateToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user, session)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User, session domain.Session) {
		if user.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user, session)
	})
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		return
	}
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.SignUp(req.Name, req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password, s.clientInfo(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLoginEncrypted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req encryptedLoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.LoginEncrypted(req.Data, req.Key, req.IV, s.clientInfo(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	pem, err := s.app.PublicKeyPEM()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": pem})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User, session domain.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RevokeSession(user.ID, session.ID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User, _ domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request, user domain.User, session domain.Session) {
	switch r.Method {
	case http.MethodGet:
		sessions, err := s.app.ListSessions(user.ID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":            sessions,
			"count":            len(sessions),
			"currentSessionId": session.ID,
		})
	case http.MethodDelete:
		// Revoke everything except the session making the call.
		revoked, err := s.app.RevokeAllSessions(user.ID, session.ID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request, user domain.User, _ domain.Session) {
	id := strings.TrimPrefix(r.URL.Path, "/api/auth/sessions/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RevokeSession(user.ID, id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// catalog handlers
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.User, _ domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListVisibleBooks(user.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, user domain.User, _ domain.Session) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/books/")
	if rest == "hidden" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		books, err := s.app.ListHiddenPurchased(user.ID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": books,
			"count": len(books),
		})
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		book, err := s.app.GetBook(id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case "visibility":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req visibilityRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.ToggleBookVisibility(user.ID, id, req.Hidden); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "cover":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		url, err := s.app.CoverDownloadURL(r.Context(), id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	case "file":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		url, err := s.app.BookFileURL(r.Context(), user, id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request, _ domain.User, _ domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	categories, err := s.app.ListCategories()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": categories,
		"count": len(categories),
	})
}

// cart handlers
func (s *Server) handleCart(w http.ResponseWriter, r *http.Request, user domain.User, _ domain.Session) {
	switch r.Method {
	case http.MethodGet:
		lines, err := s.app.ListCart(user.ID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": lines,
			"count": len(lines),
		})
	case http.MethodPost:
		var req addCartRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		item, err := s.app.AddToCart(user.ID, req.BookID, req.Quantity)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCartItem(w http.ResponseWriter, r *http.Request, user domain.User, _ domain.Session) {
	id := strings.TrimPrefix(r.URL.Path, "/api/cart/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RemoveFromCart(user.ID, id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// order handlers
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request, user domain.User, _ domain.Session) {
	switch r.Method {
	case http.MethodGet:
		orders, err := s.app.ListOrders(user.ID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": orders,
			"count": len(orders),
		})
	case http.MethodPost:
		order, err := s.app.CreateOrder(user.ID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleOrderByID(w http.ResponseWriter, r *http.Request, user domain.User, _ domain.Session) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		details, err := s.app.GetOrderDetails(user, id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
	case "pay":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req payRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		payment, err := s.app.PayOrder(r.Context(), user, id, app.PaymentInput{
			CardNumber: req.CardNumber,
			ExpYear:    req.ExpYear,
			ExpMonth:   req.ExpMonth,
			CVC:        req.CVC,
			DocType:    req.DocType,
			DocNumber:  req.DocNumber,
			Name:       req.Name,
			LastName:   req.LastName,
			Phone:      req.Phone,
			ClientIP:   util.ClientIP(r, s.trusted),
		})
		if errors.Is(err, app.ErrPaymentFailed) {
			// The failed attempt is recorded; return it with the error.
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":   err.Error(),
				"payment": payment,
			})
			return
		}
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payment)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request, user domain.User, _ domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	payments, total, err := s.app.ListPayments(user, skip, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": payments,
		"count": len(payments),
		"total": total,
	})
}

// admin handlers
func (s *Server) handleAdminBooks(w http.ResponseWriter, r *http.Request, _ domain.User, _ domain.Session) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.ListBooks()
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": books,
			"count": len(books),
		})
	case http.MethodPost:
		var req bookRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		book, err := s.app.CreateBook(req.toInput())
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, book)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminBookByID(w http.ResponseWriter, r *http.Request, _ domain.User, _ domain.Session) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/books/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req bookRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		book, err := s.app.UpdateBook(id, req.toInput())
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if err := s.app.DeleteBook(id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminCategories(w http.ResponseWriter, r *http.Request, _ domain.User, _ domain.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req categoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	category, err := s.app.CreateCategory(req.Name)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleAdminUploads(w http.ResponseWriter, r *http.Request, _ domain.User, _ domain.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req uploadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	key, url, err := s.app.PresignUpload(r.Context(), req.Kind, req.Filename)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"key": key,
		"url": url,
	})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request, _ domain.User, _ domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request, _ domain.User, _ domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	orders, err := s.app.RecentOrders(queryInt(r, "limit", 10))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": orders,
		"count": len(orders),
	})
}

func (s *Server) handleAdminUserByID(w http.ResponseWriter, r *http.Request, _ domain.User, _ domain.Session) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, err := s.app.GetUser(id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type encryptedLoginRequest struct {
	Data string `json:"data"`
	Key  string `json:"key"`
	IV   string `json:"iv"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type visibilityRequest struct {
	Hidden bool `json:"hidden"`
}

type addCartRequest struct {
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
}

type payRequest struct {
	CardNumber string `json:"cardNumber"`
	ExpYear    string `json:"expYear"`
	ExpMonth   string `json:"expMonth"`
	CVC        string `json:"cvc"`
	DocType    string `json:"docType"`
	DocNumber  string `json:"docNumber"`
	Name       string `json:"name"`
	LastName   string `json:"lastName"`
	Phone      string `json:"phone"`
}

type bookRequest struct {
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CategoryID  string          `json:"categoryId"`
	CoverKey    string          `json:"coverKey"`
	FileKey     string          `json:"fileKey"`
}

func (b bookRequest) toInput() app.BookInput {
	return app.BookInput{
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Price:       b.Price,
		Stock:       b.Stock,
		CategoryID:  b.CategoryID,
		CoverKey:    b.CoverKey,
		FileKey:     b.FileKey,
	}
}

type categoryRequest struct {
	Name string `json:"name"`
}

type uploadRequest struct {
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) clientInfo(r *http.Request) util.ClientInfo {
	info := util.ParseUserAgent(r.UserAgent())
	info.IPAddress = util.ClientIP(r, s.trusted)
	meta := make(map[string]string)
	if lang := strings.TrimSpace(r.Header.Get("Accept-Language")); lang != "" {
		meta["acceptLanguage"] = lang
	}
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" {
		meta["origin"] = origin
	}
	if len(meta) > 0 {
		info.Metadata = meta
	}
	return info
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps application errors onto HTTP statuses. Unmapped
// errors are logged and returned as opaque 500s.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr app.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Msg)
		return
	}
	switch {
	case errors.Is(err, app.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrSessionInvalid):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrBookNotFound),
		errors.Is(err, app.ErrCategoryNotFound),
		errors.Is(err, app.ErrCartItemNotFound),
		errors.Is(err, app.ErrOrderNotFound),
		errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrEmailTaken),
		errors.Is(err, app.ErrDuplicateCartEntry),
		errors.Is(err, app.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidCardInfo),
		errors.Is(err, app.ErrGatewayCustomer),
		errors.Is(err, app.ErrPaymentFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, app.ErrGatewayUnreachable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("http_error", "path", r.URL.Path, "method", r.Method, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
