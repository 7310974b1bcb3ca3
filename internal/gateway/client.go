// Package gateway wraps the external card processor's tokenize, customer,
// and charge calls. Every result carries an explicit Status flag; callers
// must check it before trusting the payload. The adapter never retries.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Card is the raw card input for tokenization. It is never persisted.
type Card struct {
	Number   string `json:"card[number]"`
	ExpYear  string `json:"card[exp_year]"`
	ExpMonth string `json:"card[exp_month]"`
	CVC      string `json:"card[cvc]"`
}

// TokenResult is the tokenize response.
type TokenResult struct {
	Status bool   `json:"status"`
	ID     string `json:"id"`
}

// CustomerInput registers a cardholder with the processor.
type CustomerInput struct {
	TokenCard string `json:"token_card"`
	Name      string `json:"name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Default   bool   `json:"default"`
}

// CustomerResult is the customer-registration response.
type CustomerResult struct {
	Status bool `json:"status"`
	Data   struct {
		CustomerID string `json:"customerId"`
	} `json:"data"`
}

// ChargeInput drives one charge attempt. Bill carries the order ID as the
// processor-side reference.
type ChargeInput struct {
	TokenCard       string `json:"token_card"`
	CustomerID      string `json:"customer_id"`
	DocType         string `json:"doc_type"`
	DocNumber       string `json:"doc_number"`
	Name            string `json:"name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Bill            string `json:"bill"`
	Description     string `json:"description"`
	Value           string `json:"value"`
	Currency        string `json:"currency"`
	DuesNumber      int    `json:"dues"`
	IP              string `json:"ip"`
	TestMode        bool   `json:"test"`
	URLResponse     string `json:"url_response,omitempty"`
	URLConfirmation string `json:"url_confirmation,omitempty"`
}

// ChargeData is the processor's business outcome for one charge.
type ChargeData struct {
	ResponseCode int    `json:"cod_respuesta"`
	Reference    string `json:"ref_payco"`
	ApprovalCode string `json:"cod_autorizacion"`
	Receipt      string `json:"recibo"`
	Message      string `json:"respuesta"`
}

// ChargeResult is the charge response. Status reports whether the call
// itself completed; ResponseCode inside Data carries the business outcome.
type ChargeResult struct {
	Status  bool       `json:"status"`
	Success bool       `json:"success"`
	Data    ChargeData `json:"data"`
}

// Client is the processor boundary as used by the payment flow.
type Client interface {
	Tokenize(ctx context.Context, card Card) (TokenResult, error)
	CreateCustomer(ctx context.Context, input CustomerInput) (CustomerResult, error)
	Charge(ctx context.Context, input ChargeInput) (ChargeResult, error)
}

// HTTPClient talks JSON to the processor's REST API with basic auth.
type HTTPClient struct {
	baseURL    string
	publicKey  string
	privateKey string
	testMode   bool
	httpClient *http.Client
}

// NewHTTPClient builds a processor client for the given credentials.
func NewHTTPClient(baseURL, publicKey, privateKey string, testMode bool) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		publicKey:  publicKey,
		privateKey: privateKey,
		testMode:   testMode,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Tokenize exchanges raw card data for a one-use token.
func (c *HTTPClient) Tokenize(ctx context.Context, card Card) (TokenResult, error) {
	var out TokenResult
	if err := c.post(ctx, "/v1/tokens", card, &out); err != nil {
		return TokenResult{}, err
	}
	return out, nil
}

// CreateCustomer registers the tokenized card against a customer record.
func (c *HTTPClient) CreateCustomer(ctx context.Context, input CustomerInput) (CustomerResult, error) {
	var out CustomerResult
	if err := c.post(ctx, "/v1/customers", input, &out); err != nil {
		return CustomerResult{}, err
	}
	return out, nil
}

// Charge submits the payment. A transport or decode failure is returned as
// an error; a completed call with a declined business code is not.
func (c *HTTPClient) Charge(ctx context.Context, input ChargeInput) (ChargeResult, error) {
	input.TestMode = c.testMode
	var out ChargeResult
	if err := c.post(ctx, "/v1/charges", input, &out); err != nil {
		return ChargeResult{}, err
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.publicKey, c.privateKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("processor unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("processor error: %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
