package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/infrastructure/resilience"
)

const DefaultBaseURL = "https://api.paystack.co"

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

// Client verifies transactions against the Paystack API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, secretKey string, options Options) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

// Verify succeeds only for a transaction the provider reports as "success".
func (c *Client) Verify(ctx context.Context, reference string) (domain.PaymentVerification, error) {
	var out verifyResponse
	call := func(ctx context.Context) error {
		out = verifyResponse{}
		return c.get(ctx, "/transaction/verify/"+url.PathEscape(reference), &out)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "paystack.verify", call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		var se *resilience.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusBadRequest) {
			return domain.PaymentVerification{}, domain.WrapError(domain.ErrPaymentNotVerified, "paystack verify", err)
		}
		return domain.PaymentVerification{}, resilience.TemporaryIfRetryable("paystack verify", err, resilience.ClassifyHTTPError)
	}

	if !out.Status || out.Data == nil || out.Data.Status != "success" {
		status := ""
		if out.Data != nil {
			status = out.Data.Status
		}
		return domain.PaymentVerification{}, domain.WrapError(domain.ErrPaymentNotVerified, "paystack verify",
			fmt.Errorf("reference=%s status=%q message=%q", reference, status, out.Message))
	}
	return domain.PaymentVerification{
		Reference:   out.Data.Reference,
		AmountMinor: out.Data.Amount,
		Currency:    out.Data.Currency,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create paystack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.ReadStatusError("paystack", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode paystack response: %w", err)
	}
	return nil
}
