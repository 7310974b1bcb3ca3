package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"virtuallibrary/internal/app"
	"virtuallibrary/internal/gateway"
	"virtuallibrary/internal/store"
	"virtuallibrary/pkg/domain"
)

// stubGateway approves everything and reports chargeCode as the
// processor's business outcome.
type stubGateway struct {
	chargeCode  int
	chargeOK    bool
	chargeCalls int
	tokenizeOK  bool
	customerOK  bool
}

func newStubGateway() *stubGateway {
	return &stubGateway{chargeCode: 1, chargeOK: true, tokenizeOK: true, customerOK: true}
}

func (g *stubGateway) Tokenize(context.Context, gateway.Card) (gateway.TokenResult, error) {
	return gateway.TokenResult{Status: g.tokenizeOK, ID: "tok-1"}, nil
}

func (g *stubGateway) CreateCustomer(context.Context, gateway.CustomerInput) (gateway.CustomerResult, error) {
	res := gateway.CustomerResult{Status: g.customerOK}
	res.Data.CustomerID = "cus-1"
	return res, nil
}

func (g *stubGateway) Charge(context.Context, gateway.ChargeInput) (gateway.ChargeResult, error) {
	g.chargeCalls++
	return gateway.ChargeResult{
		Status:  g.chargeOK,
		Success: g.chargeOK,
		Data:    gateway.ChargeData{ResponseCode: g.chargeCode, Message: "ok"},
	}, nil
}

type testEnv struct {
	srv     *httptest.Server
	mem     *store.MemoryStore
	gateway *stubGateway
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	gw := newStubGateway()
	a, err := app.New(app.Config{
		Store:     mem,
		Gateway:   gw,
		JWTSecret: "test-secret",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	redis := miniredis.RunT(t)
	cfg.App = a
	cfg.RedisAddr = redis.Addr()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, mem: mem, gateway: gw}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *testEnv) signupAndLogin(t *testing.T, email string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Test Reader", "email": email, "password": "password-123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d: %v", resp.StatusCode, body)
	}
	resp, body = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "password-123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	return token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	token := e.signupAndLogin(t, "admin@example.com")
	user, ok, err := e.mem.GetUserByEmail("admin@example.com")
	if err != nil || !ok {
		t.Fatalf("lookup admin: %v", err)
	}
	user.Role = domain.RoleAdmin
	if err := e.mem.SaveUser(user); err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	return token
}

func (e *testEnv) createBook(t *testing.T, adminToken, title string, price float64) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/admin/books", adminToken, map[string]any{
		"title": title, "author": "Author", "price": price, "stock": 5,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create book status %d: %v", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("create book returned no id")
	}
	return id
}

func TestAuthenticatedRoutesRejectMissingAndStaleTokens(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, _ := env.do(t, http.MethodGet, "/api/books", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token expected 401, got %d", resp.StatusCode)
	}

	token := env.signupAndLogin(t, "reader@example.com")
	resp, _ = env.do(t, http.MethodGet, "/api/books", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token expected 200, got %d", resp.StatusCode)
	}

	// A second login revokes the first session.
	env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "reader@example.com", "password": "password-123",
	})
	resp, _ = env.do(t, http.MethodGet, "/api/books", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token expected 401, got %d", resp.StatusCode)
	}
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{LoginRateLimitPerMinute: 1})
	env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Test Reader", "email": "reader@example.com", "password": "password-123",
	})

	creds := map[string]string{"email": "reader@example.com", "password": "password-123"}
	resp, _ := env.do(t, http.MethodPost, "/api/auth/login", "", creds)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first login expected 200, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/auth/login", "", creds)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second login expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("429 response missing Retry-After")
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t, Config{})
	customer := env.signupAndLogin(t, "reader@example.com")

	resp, _ := env.do(t, http.MethodGet, "/api/admin/stats", customer, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("customer on admin route expected 403, got %d", resp.StatusCode)
	}

	admin := env.adminToken(t)
	resp, body := env.do(t, http.MethodGet, "/api/admin/stats", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin stats expected 200, got %d", resp.StatusCode)
	}
	if _, ok := body["revenue"]; !ok {
		t.Fatalf("stats body missing revenue: %v", body)
	}
}

func TestCartOrderPayFlow(t *testing.T) {
	env := newTestEnv(t, Config{})
	admin := env.adminToken(t)
	bookID := env.createBook(t, admin, "Go in Practice", 12.50)
	customer := env.signupAndLogin(t, "reader@example.com")

	resp, body := env.do(t, http.MethodPost, "/api/cart", customer, map[string]any{
		"bookId": bookID, "quantity": 2,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add to cart status %d: %v", resp.StatusCode, body)
	}

	// Same pair again conflicts.
	resp, _ = env.do(t, http.MethodPost, "/api/cart", customer, map[string]any{
		"bookId": bookID, "quantity": 1,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate cart entry expected 409, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/api/orders", customer, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order status %d: %v", resp.StatusCode, body)
	}
	orderID, _ := body["id"].(string)
	if got := fmt.Sprintf("%v", body["totalAmount"]); got != "25" {
		t.Fatalf("order total = %v", body["totalAmount"])
	}

	payBody := map[string]string{
		"cardNumber": "4111111111111111", "expYear": "2030", "expMonth": "12", "cvc": "123",
		"name": "Test", "lastName": "Reader",
	}
	resp, body = env.do(t, http.MethodPost, "/api/orders/"+orderID+"/pay", customer, payBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pay status %d: %v", resp.StatusCode, body)
	}
	if body["status"] != string(domain.OrderCompleted) {
		t.Fatalf("payment status = %v", body["status"])
	}
	if body["cardLastFour"] != "1111" {
		t.Fatalf("cardLastFour = %v", body["cardLastFour"])
	}

	resp, _ = env.do(t, http.MethodPost, "/api/orders/"+orderID+"/pay", customer, payBody)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second pay expected 409, got %d", resp.StatusCode)
	}
	if env.gateway.chargeCalls != 1 {
		t.Fatalf("charge calls = %d, want 1", env.gateway.chargeCalls)
	}
}

func TestPayFailureReturnsRecordedAttempt(t *testing.T) {
	env := newTestEnv(t, Config{})
	admin := env.adminToken(t)
	bookID := env.createBook(t, admin, "Go in Practice", 10)
	customer := env.signupAndLogin(t, "reader@example.com")

	env.do(t, http.MethodPost, "/api/cart", customer, map[string]any{"bookId": bookID, "quantity": 1})
	_, order := env.do(t, http.MethodPost, "/api/orders", customer, nil)
	orderID, _ := order["id"].(string)

	env.gateway.chargeOK = false
	resp, body := env.do(t, http.MethodPost, "/api/orders/"+orderID+"/pay", customer, map[string]string{
		"cardNumber": "4111111111111111", "expYear": "2030", "expMonth": "12", "cvc": "123",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("failed pay expected 422, got %d: %v", resp.StatusCode, body)
	}
	payment, _ := body["payment"].(map[string]any)
	if payment == nil || payment["status"] != string(domain.OrderFailed) {
		t.Fatalf("422 body should carry the failed payment row: %v", body)
	}
}

func TestVisibilityOverlay(t *testing.T) {
	env := newTestEnv(t, Config{})
	admin := env.adminToken(t)
	bookID := env.createBook(t, admin, "Go in Practice", 10)
	customer := env.signupAndLogin(t, "reader@example.com")

	resp, _ := env.do(t, http.MethodPost, "/api/books/"+bookID+"/visibility", customer, map[string]bool{"hidden": true})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("hide status %d", resp.StatusCode)
	}
	_, body := env.do(t, http.MethodGet, "/api/books", customer, nil)
	if count := body["count"].(float64); count != 0 {
		t.Fatalf("hidden book still listed: %v", body)
	}

	// Only the hiding user's view changes.
	other := env.signupAndLogin(t, "other@example.com")
	_, body = env.do(t, http.MethodGet, "/api/books", other, nil)
	if count := body["count"].(float64); count != 1 {
		t.Fatalf("other user's catalog = %v", body)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/books/"+bookID+"/visibility", customer, map[string]bool{"hidden": false})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unhide status %d", resp.StatusCode)
	}
	_, body = env.do(t, http.MethodGet, "/api/books", customer, nil)
	if count := body["count"].(float64); count != 1 {
		t.Fatalf("unhidden book missing: %v", body)
	}
}

func TestSessionEndpoints(t *testing.T) {
	env := newTestEnv(t, Config{})
	token := env.signupAndLogin(t, "reader@example.com")

	resp, body := env.do(t, http.MethodGet, "/api/auth/sessions", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list sessions status %d", resp.StatusCode)
	}
	if body["currentSessionId"] == nil {
		t.Fatalf("sessions body missing currentSessionId: %v", body)
	}
	if count := body["count"].(float64); count != 1 {
		t.Fatalf("session count = %v", count)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("token after logout expected 401, got %d", resp.StatusCode)
	}
}

func TestValidationAndNotFoundMapping(t *testing.T) {
	env := newTestEnv(t, Config{})
	customer := env.signupAndLogin(t, "reader@example.com")

	// Empty cart checkout.
	resp, _ := env.do(t, http.MethodPost, "/api/orders", customer, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty cart expected 400, got %d", resp.StatusCode)
	}

	// Unknown book in cart add.
	resp, _ = env.do(t, http.MethodPost, "/api/cart", customer, map[string]any{"bookId": "missing", "quantity": 1})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown book expected 404, got %d", resp.StatusCode)
	}

	// Duplicate signup email.
	resp, _ = env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Test Reader", "email": "reader@example.com", "password": "password-123",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate email expected 409, got %d", resp.StatusCode)
	}

	// Bad credentials.
	resp, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "reader@example.com", "password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad credentials expected 401, got %d", resp.StatusCode)
	}
}
