// README: PayHere-style gateway client; one signed JSON charge request per call, no retries.
package payment

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrGateway = errors.New("payment gateway error")

const (
	chargePath = "/merchant/v1/payment/charge"
	// statusCodeSuccess is the gateway's status_code for a captured payment.
	statusCodeSuccess = 2
)

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type ChargeRequest struct {
	OrderID  string
	Amount   int64
	Currency string
	Customer Customer
	Items    string
}

type ChargeResult struct {
	Success       bool
	TransactionID string
	Message       string
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

type PayHereClient struct {
	baseURL     string
	merchantID  string
	merchantKey string
	httpClient  *http.Client
}

func NewPayHereClient(baseURL, merchantID, merchantKey string, timeout time.Duration) *PayHereClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PayHereClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		merchantID:  merchantID,
		merchantKey: merchantKey,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type chargeBody struct {
	MerchantID string `json:"merchant_id"`
	OrderID    string `json:"order_id"`
	Items      string `json:"items"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	FirstName  string `json:"first_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Hash       string `json:"hash"`
}

type chargeResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Data   *struct {
		PaymentID  string `json:"payment_id"`
		StatusCode int    `json:"status_code"`
	} `json:"data"`
}

// Charge returns a declined result, not an error, when the gateway answers but refuses the payment.
func (c *PayHereClient) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	amount := FormatAmount(req.Amount)
	body := chargeBody{
		MerchantID: c.merchantID,
		OrderID:    req.OrderID,
		Items:      req.Items,
		Amount:     amount,
		Currency:   req.Currency,
		FirstName:  req.Customer.Name,
		Email:      req.Customer.Email,
		Phone:      req.Customer.Phone,
		Hash:       Signature(c.merchantID, req.OrderID, amount, req.Currency, c.merchantKey),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("encode charge: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chargePath, bytes.NewReader(raw))
	if err != nil {
		return ChargeResult{}, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ChargeResult{}, fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}
	if resp.StatusCode >= 500 {
		return ChargeResult{}, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}
	var out chargeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return ChargeResult{}, fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	res := ChargeResult{Message: out.Msg}
	if out.Data != nil {
		res.TransactionID = out.Data.PaymentID
		res.Success = out.Status == 1 && out.Data.StatusCode == statusCodeSuccess
	}
	return res, nil
}

// FormatAmount renders whole currency units with two decimals.
func FormatAmount(amount int64) string {
	return fmt.Sprintf("%d.00", amount)
}

// Signature is UPPER(MD5(merchant_id + order_id + amount + currency + UPPER(MD5(secret)))).
func Signature(merchantID, orderID, amount, currency, secret string) string {
	inner := strings.ToUpper(md5hex(secret))
	return strings.ToUpper(md5hex(merchantID + orderID + amount + currency + inner))
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
