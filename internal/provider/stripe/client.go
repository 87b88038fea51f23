package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// API is the slice of the card processor's REST surface the gateway needs.
// Tests substitute a fake; production uses Client.
type API interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)
	ConfirmIntent(ctx context.Context, intentID string, params ConfirmParams) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
	CreateRefund(ctx context.Context, params RefundParams) (*Refund, error)
	AttachMethod(ctx context.Context, methodID, customerID string) error
	GetMethod(ctx context.Context, methodID string) (*Method, error)
	DetachMethod(ctx context.Context, methodID string) error
}

type CustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

type IntentParams struct {
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
	CustomerID  string
	MethodID    string
	Confirm     bool
}

type ConfirmParams struct {
	PaymentMethod string
	ReturnURL     string
}

type RefundParams struct {
	IntentID    string
	AmountCents *int64
}

type Customer struct {
	ID  string          `json:"id"`
	Raw json.RawMessage `json:"-"`
}

type Intent struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	Customer         string          `json:"customer"`
	ClientSecret     string          `json:"client_secret"`
	LastPaymentError *IntentError    `json:"last_payment_error"`
	Raw              json.RawMessage `json:"-"`
}

type IntentError struct {
	Message string `json:"message"`
}

type Refund struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"-"`
}

type Method struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Card *CardDetail     `json:"card"`
	Raw  json.RawMessage `json:"-"`
}

type CardDetail struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	Country  string `json:"country"`
}

// Client is a thin form-encoded REST client for the card processor.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	form := url.Values{}
	form.Set("email", params.Email)
	form.Set("name", params.Name)
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	body, err := c.post(ctx, "/v1/customers", form)
	if err != nil {
		return nil, fmt.Errorf("CreateCustomer: %w", err)
	}

	var customer Customer
	if err := json.Unmarshal(body, &customer); err != nil {
		return nil, fmt.Errorf("CreateCustomer: decode: %w", err)
	}
	customer.Raw = body
	return &customer, nil
}

func (c *Client) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountCents, 10))
	form.Set("currency", strings.ToLower(params.Currency))
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}
	if params.CustomerID != "" {
		form.Set("customer", params.CustomerID)
	}
	if params.MethodID != "" {
		form.Set("payment_method", params.MethodID)
	}
	if params.Confirm {
		form.Set("confirmation_method", "manual")
		form.Set("confirm", "true")
	}

	body, err := c.post(ctx, "/v1/payment_intents", form)
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}
	return decodeIntent(body, "CreateIntent")
}

func (c *Client) ConfirmIntent(ctx context.Context, intentID string, params ConfirmParams) (*Intent, error) {
	form := url.Values{}
	if params.PaymentMethod != "" {
		form.Set("payment_method", params.PaymentMethod)
	}
	if params.ReturnURL != "" {
		form.Set("return_url", params.ReturnURL)
	}

	body, err := c.post(ctx, "/v1/payment_intents/"+intentID+"/confirm", form)
	if err != nil {
		return nil, fmt.Errorf("ConfirmIntent: %w", err)
	}
	return decodeIntent(body, "ConfirmIntent")
}

func (c *Client) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	body, err := c.get(ctx, "/v1/payment_intents/"+intentID)
	if err != nil {
		return nil, fmt.Errorf("GetIntent: %w", err)
	}
	return decodeIntent(body, "GetIntent")
}

func (c *Client) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	form := url.Values{}
	form.Set("payment_intent", params.IntentID)
	if params.AmountCents != nil {
		form.Set("amount", strconv.FormatInt(*params.AmountCents, 10))
	}

	body, err := c.post(ctx, "/v1/refunds", form)
	if err != nil {
		return nil, fmt.Errorf("CreateRefund: %w", err)
	}

	var refund Refund
	if err := json.Unmarshal(body, &refund); err != nil {
		return nil, fmt.Errorf("CreateRefund: decode: %w", err)
	}
	refund.Raw = body
	return &refund, nil
}

func (c *Client) AttachMethod(ctx context.Context, methodID, customerID string) error {
	form := url.Values{}
	form.Set("customer", customerID)

	if _, err := c.post(ctx, "/v1/payment_methods/"+methodID+"/attach", form); err != nil {
		return fmt.Errorf("AttachMethod: %w", err)
	}
	return nil
}

func (c *Client) GetMethod(ctx context.Context, methodID string) (*Method, error) {
	body, err := c.get(ctx, "/v1/payment_methods/"+methodID)
	if err != nil {
		return nil, fmt.Errorf("GetMethod: %w", err)
	}

	var method Method
	if err := json.Unmarshal(body, &method); err != nil {
		return nil, fmt.Errorf("GetMethod: decode: %w", err)
	}
	method.Raw = body
	return &method, nil
}

func (c *Client) DetachMethod(ctx context.Context, methodID string) error {
	if _, err := c.post(ctx, "/v1/payment_methods/"+methodID+"/detach", url.Values{}); err != nil {
		return fmt.Errorf("DetachMethod: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(req)
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.send(req)
}

func (c *Client) send(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, apiErrorMessage(body))
	}
	return body, nil
}

func decodeIntent(body json.RawMessage, op string) (*Intent, error) {
	var intent Intent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	intent.Raw = body
	return &intent, nil
}

func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(body)
}
