package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// API is the slice of the wallet processor's REST surface the gateway needs.
type API interface {
	CreateOrder(ctx context.Context, params OrderParams) (*Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	RefundCapture(ctx context.Context, captureID string, params RefundParams) (*Refund, error)
}

type OrderParams struct {
	ReferenceID string
	Value       string
	Currency    string
	Description string
}

type RefundParams struct {
	Value    string
	Currency string
	Note     string
}

type Order struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Links         []Link          `json:"links"`
	PurchaseUnits []PurchaseUnit  `json:"purchase_units"`
	Raw           json.RawMessage `json:"-"`
}

type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type PurchaseUnit struct {
	ReferenceID string        `json:"reference_id"`
	Payments    *UnitPayments `json:"payments"`
}

type UnitPayments struct {
	Captures []Capture `json:"captures"`
}

type Capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Refund struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"-"`
}

// ApprovalLink returns the payer-approval URL, empty when absent.
func (o *Order) ApprovalLink() string {
	for _, link := range o.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

// CaptureID returns the first capture recorded on the order, empty when the
// order has not been captured yet.
func (o *Order) CaptureID() string {
	for _, unit := range o.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, capture := range unit.Payments.Captures {
			return capture.ID
		}
	}
	return ""
}

// Client is a JSON REST client for the wallet processor. Access tokens come
// from the client-credentials grant and are cached until shortly before
// expiry.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) CreateOrder(ctx context.Context, params OrderParams) (*Order, error) {
	request := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": params.ReferenceID,
			"description":  params.Description,
			"amount": map[string]string{
				"currency_code": params.Currency,
				"value":         params.Value,
			},
		}},
	}

	body, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", request)
	if err != nil {
		return nil, fmt.Errorf("CreateOrder: %w", err)
	}
	return decodeOrder(body, "CreateOrder")
}

func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Order, error) {
	body, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", struct{}{})
	if err != nil {
		return nil, fmt.Errorf("CaptureOrder: %w", err)
	}
	return decodeOrder(body, "CaptureOrder")
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	body, err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil)
	if err != nil {
		return nil, fmt.Errorf("GetOrder: %w", err)
	}
	return decodeOrder(body, "GetOrder")
}

func (c *Client) RefundCapture(ctx context.Context, captureID string, params RefundParams) (*Refund, error) {
	request := map[string]any{
		"note_to_payer": params.Note,
	}
	if params.Value != "" {
		request["amount"] = map[string]string{
			"currency_code": params.Currency,
			"value":         params.Value,
		}
	}

	body, err := c.do(ctx, http.MethodPost, "/v2/payments/captures/"+captureID+"/refund", request)
	if err != nil {
		return nil, fmt.Errorf("RefundCapture: %w", err)
	}

	var refund Refund
	if err := json.Unmarshal(body, &refund); err != nil {
		return nil, fmt.Errorf("RefundCapture: decode: %w", err)
	}
	refund.Raw = body
	return &refund, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, apiErrorMessage(respBody))
	}
	return respBody, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("token: build request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token: send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("token: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token: status %d: %s", resp.StatusCode, apiErrorMessage(body))
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &grant); err != nil {
		return "", fmt.Errorf("token: decode: %w", err)
	}
	if grant.AccessToken == "" {
		return "", fmt.Errorf("token: empty access token")
	}

	c.accessToken = grant.AccessToken
	// Refresh a minute early so in-flight requests never carry a stale token.
	c.tokenExpiry = time.Now().Add(time.Duration(grant.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

func decodeOrder(body json.RawMessage, op string) (*Order, error) {
	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	order.Raw = body
	return &order, nil
}

func apiErrorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	return string(body)
}
