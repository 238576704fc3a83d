package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
)

type Config struct {
	BaseURL     string
	APIKey      string
	CallTimeout time.Duration
}

// Client talks to the external payment gateway REST API. Every call is
// bounded by CallTimeout so a stalled gateway cannot hang the caller.
type Client struct {
	baseURL     string
	apiKey      string
	callTimeout time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:     config.BaseURL,
		apiKey:      config.APIKey,
		callTimeout: timeout,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

func (c *Client) CreateIntent(ctx context.Context, req *gatewaytypes.CreateIntentRequest) (*gatewaytypes.Intent, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	var intent gatewaytypes.Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", req, &intent); err != nil {
		return nil, err
	}

	c.logger.Info("payment intent created",
		"intent_id", intent.ID,
		"amount", intent.Amount,
		"capture_method", intent.CaptureMethod)

	return &intent, nil
}

func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*gatewaytypes.Intent, error) {
	var intent gatewaytypes.Intent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) UpdateIntent(ctx context.Context, intentID string, metadata map[string]string) (*gatewaytypes.Intent, error) {
	body := map[string]interface{}{"metadata": metadata}

	var intent gatewaytypes.Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents/"+intentID, body, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) CaptureIntent(ctx context.Context, intentID string, amountToCapture int64) (*gatewaytypes.Intent, error) {
	body := map[string]interface{}{"amount_to_capture": amountToCapture}

	var intent gatewaytypes.Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents/"+intentID+"/capture", body, &intent); err != nil {
		return nil, err
	}

	c.logger.Info("payment intent captured",
		"intent_id", intentID,
		"amount_to_capture", amountToCapture)

	return &intent, nil
}

func (c *Client) CreateRefund(ctx context.Context, req *gatewaytypes.RefundRequest) (*gatewaytypes.Refund, error) {
	var refund gatewaytypes.Refund
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", req, &refund); err != nil {
		return nil, err
	}

	c.logger.Info("refund created",
		"refund_id", refund.ID,
		"intent_id", req.IntentID,
		"amount", refund.Amount)

	return &refund, nil
}

func (c *Client) CreateConnectedAccount(ctx context.Context, req *gatewaytypes.AccountRequest) (*gatewaytypes.Account, error) {
	var account gatewaytypes.Account
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", req, &account); err != nil {
		return nil, err
	}

	c.logger.Info("connected account created",
		"account_id", account.ID,
		"country", account.Country)

	return &account, nil
}

func (c *Client) CreateAccountLink(ctx context.Context, req *gatewaytypes.AccountLinkRequest) (*gatewaytypes.AccountLink, error) {
	var link gatewaytypes.AccountLink
	if err := c.do(ctx, http.MethodPost, "/v1/account_links", req, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *Client) CreateTransfer(ctx context.Context, req *gatewaytypes.TransferRequest) (*gatewaytypes.Transfer, error) {
	var transfer gatewaytypes.Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", req, &transfer); err != nil {
		return nil, err
	}

	c.logger.Info("transfer created",
		"transfer_id", transfer.ID,
		"destination", transfer.Destination,
		"amount", transfer.Amount)

	return &transfer, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway request failed",
			"method", method,
			"path", path,
			"error", err)
		return &gatewaytypes.Error{
			Code:      "network_error",
			Message:   err.Error(),
			Transient: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	c.logger.Debug("gateway response",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= 400 {
		return c.decodeError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}

	return nil
}

func (c *Client) decodeError(statusCode int, body []byte) error {
	var apiErr struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)

	code := apiErr.Error.Code
	if code == "" {
		code = "api_error"
	}
	message := apiErr.Error.Message
	if message == "" {
		message = string(body)
	}

	return &gatewaytypes.Error{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Transient:  statusCode >= 500,
	}
}
