package t212

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/pkg/config"
	"github.com/wonny/autoinvest/pkg/httputil"
	"github.com/wonny/autoinvest/pkg/logger"
)

// EquityClient talks to the web trading API using session headers
// maintained by the out-of-process login helper. When the session dies
// it surfaces contracts.ErrSessionExpired; re-authentication is not its
// job.
type EquityClient struct {
	http    *httputil.Client
	baseURL string
	headers map[string]string
	log     *logger.Logger
	now     func() time.Time
}

// NewEquityClient loads the session headers from the cookie file and
// returns a client for the configured mode.
func NewEquityClient(cfg config.T212Config, client *httputil.Client, log *logger.Logger) (*EquityClient, error) {
	data, err := os.ReadFile(cfg.CookieFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read session headers from %s: %w", cfg.CookieFile, err)
	}

	var headers map[string]string
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, fmt.Errorf("failed to parse session headers: %w", err)
	}

	return &EquityClient{
		http:    client,
		baseURL: cfg.BaseURL(),
		headers: headers,
		log:     log,
		now:     time.Now,
	}, nil
}

// Convert converts an amount between currencies using the broker's fx
// endpoint. Same-currency conversions short-circuit locally.
func (c *EquityClient) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	body := map[string]interface{}{
		"fromCurrency": from,
		"toCurrency":   to,
		"amount":       amount.InexactFloat64(),
	}

	var result conversionResponse
	if err := c.call(ctx, http.MethodPost, "/rest/trading/v1/fx-rates/conversion", body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to convert %s %s to %s: %w", amount, from, to, err)
	}

	return result.Value, nil
}

// PendingOrders returns the orders still outstanding on the broker
// side.
func (c *EquityClient) PendingOrders(ctx context.Context) ([]contracts.PendingOrder, error) {
	var summary summaryResponse
	if err := c.call(ctx, http.MethodPost, "/rest/trading/v1/accounts/summary", []interface{}{}, &summary); err != nil {
		return nil, fmt.Errorf("failed to fetch account summary: %w", err)
	}
	if summary.Code != "" {
		return nil, fmt.Errorf("account summary returned error code %s", summary.Code)
	}

	orders := make([]contracts.PendingOrder, 0, len(summary.ValueOrders.Items))
	for _, item := range summary.ValueOrders.Items {
		orders = append(orders, contracts.PendingOrder{
			Ticker:    item.Code,
			CreatedAt: item.Created,
		})
	}
	return orders, nil
}

// PlaceOrder submits a market value order for one (ticker, currency,
// amount) attempt and maps the broker's response onto the tagged
// placement outcome. Unrecognized response codes come back as plain
// errors so new broker-side failure shapes are never silently absorbed.
func (c *EquityClient) PlaceOrder(ctx context.Context, ticker, currency string, amount decimal.Decimal) (contracts.PlaceResult, error) {
	body := map[string]interface{}{
		"instrumentCode": ticker,
		"orderType":      "MARKET",
		"currencyCode":   currency,
		"value":          amount.InexactFloat64(),
	}

	var result apiError
	if err := c.call(ctx, http.MethodPost, "/rest/public/v2/equity/order", body, &result); err != nil {
		return contracts.PlaceResult{}, err
	}

	switch {
	case result.Code == "":
		return contracts.PlaceResult{
			Status: contracts.PlaceOK,
			Order: contracts.ExecutedOrder{
				Ticker:    ticker,
				Amount:    amount,
				Currency:  currency,
				CreatedAt: c.now(),
			},
		}, nil

	case result.Code == "BusinessException" &&
		(result.Context.Type == "AccountWalletNotFound" || result.Context.Type == "InsufficientFreeForStocksBuyValue"):
		c.log.WithFields(map[string]interface{}{
			"ticker":   ticker,
			"currency": currency,
		}).Info("Insufficient funds for placement attempt")
		return contracts.PlaceResult{Status: contracts.PlaceInsufficientFunds}, nil

	case result.Code == "BusinessException" && result.Context.Type == "MinValueExceeded":
		return contracts.PlaceResult{Status: contracts.PlaceBelowMinimum}, nil

	case result.Code == "AuthenticationFailed":
		return contracts.PlaceResult{}, contracts.ErrSessionExpired

	default:
		return contracts.PlaceResult{}, fmt.Errorf("unknown broker response placing %s: code=%s type=%s message=%q",
			ticker, result.Code, result.Context.Type, result.Message)
	}
}

// call performs one session-authenticated request. A 401 means the
// session cookie died.
func (c *EquityClient) call(ctx context.Context, method, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return contracts.ErrSessionExpired
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response for %s: %w", path, err)
	}

	return nil
}
