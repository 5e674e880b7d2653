// Package pricing is the HTTP adapter for a metalpriceapi-style price source.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/metalsync/internal/core/domain"
)

const (
	DefaultBaseURL      = "https://api.metalpriceapi.com/v1"
	DefaultTimeout      = 10 * time.Second
	DefaultBaseCurrency = "USD"
)

// ErrUnsuccessful is returned when the API answers with success=false and
// no error details.
var ErrUnsuccessful = errors.New("api returned unsuccessful response")

// HTTPError is a non-2xx answer from the price API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return fmt.Sprintf("api error: %d - %s", e.StatusCode, msg)
}

// HTTPStatus exposes the status code to the error classifier.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// Config holds price API configuration.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	BaseCurrency string
	// WithChange enables the previous-day lookup used for PriceChange.
	WithChange bool
}

// Client fetches quotes over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	base       string
	withChange bool
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock sets the clock used to pick the previous day.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new price API client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BaseCurrency == "" {
		cfg.BaseCurrency = DefaultBaseCurrency
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		base:       cfg.BaseCurrency,
		withChange: cfg.WithChange,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the status part shared by every API response.
type envelope struct {
	Success bool      `json:"success"`
	Error   *apiError `json:"error,omitempty"`
}

func (e *envelope) status() *envelope { return e }

type response interface {
	status() *envelope
}

type ratesResponse struct {
	envelope
	Timestamp int64              `json:"timestamp"`
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
}

type timeframeResponse struct {
	envelope
	Base      string                        `json:"base"`
	StartDate string                        `json:"start_date"`
	EndDate   string                        `json:"end_date"`
	Rates     map[string]map[string]float64 `json:"rates"`
}

type apiError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Fetch returns the latest quote for symbol. When change tracking is
// enabled, a failed previous-day lookup leaves Change nil.
func (c *Client) Fetch(ctx context.Context, symbol domain.Symbol) (domain.Quote, error) {
	var resp ratesResponse
	if err := c.get(ctx, "/latest", c.params(string(symbol)), &resp); err != nil {
		return domain.Quote{}, err
	}

	rate, err := c.rate(resp.Rates, string(symbol))
	if err != nil {
		return domain.Quote{}, err
	}

	q := domain.Quote{
		Symbol:    symbol,
		Name:      symbol.Name(),
		Base:      resp.Base,
		Rate:      rate,
		Timestamp: time.Unix(resp.Timestamp, 0).UTC(),
	}
	if q.Base == "" {
		q.Base = c.base
	}

	if c.withChange {
		yesterday := c.clock.Now().UTC().AddDate(0, 0, -1)
		previous, err := c.Historical(ctx, symbol, yesterday)
		if err != nil {
			c.logger.Debug("Previous-day price unavailable", "symbol", symbol, "error", err)
		} else {
			q.Change = domain.NewPriceChange(rate, previous)
		}
	}
	return q, nil
}

// Historical returns the rate for symbol on the given day.
func (c *Client) Historical(ctx context.Context, symbol domain.Symbol, day time.Time) (float64, error) {
	var resp ratesResponse
	if err := c.get(ctx, "/"+day.Format(time.DateOnly), c.params(string(symbol)), &resp); err != nil {
		return 0, err
	}
	return c.rate(resp.Rates, string(symbol))
}

// Timeframe returns the daily rates of symbol between start and end
// (inclusive), oldest first. Days the API has no rate for are skipped.
func (c *Client) Timeframe(ctx context.Context, symbol domain.Symbol, start, end time.Time) (domain.History, error) {
	if end.Before(start) {
		return domain.History{}, fmt.Errorf("invalid timeframe: end %s before start %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	params := c.params(string(symbol))
	params.Set("start_date", start.Format(time.DateOnly))
	params.Set("end_date", end.Format(time.DateOnly))

	var resp timeframeResponse
	if err := c.get(ctx, "/timeframe", params, &resp); err != nil {
		return domain.History{}, err
	}

	key := c.base + string(symbol)
	points := make([]domain.PricePoint, 0, len(resp.Rates))
	for day, rates := range resp.Rates {
		rate, ok := rates[key]
		if !ok {
			continue
		}
		date, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return domain.History{}, fmt.Errorf("parse response: bad date %q: %w", day, err)
		}
		points = append(points, domain.PricePoint{Date: date, Rate: rate})
	}
	if len(points) == 0 {
		return domain.History{}, fmt.Errorf("parse response: missing rate %s", key)
	}
	slices.SortFunc(points, func(a, b domain.PricePoint) int { return a.Date.Compare(b.Date) })

	h := domain.History{
		Symbol: symbol,
		Name:   symbol.Name(),
		Base:   resp.Base,
		Start:  start.UTC().Truncate(24 * time.Hour),
		End:    end.UTC().Truncate(24 * time.Hour),
		Points: points,
	}
	if h.Base == "" {
		h.Base = c.base
	}
	return h, nil
}

// Convert prices symbol in currency using the latest symbol and currency
// rates against the base currency.
func (c *Client) Convert(ctx context.Context, symbol domain.Symbol, currency string) (domain.Conversion, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return domain.Conversion{}, errors.New("convert: empty target currency")
	}

	var resp ratesResponse
	if err := c.get(ctx, "/latest", c.params(string(symbol)+","+currency), &resp); err != nil {
		return domain.Conversion{}, err
	}

	rate, err := c.rate(resp.Rates, string(symbol))
	if err != nil {
		return domain.Conversion{}, err
	}
	currencyRate := 1.0
	if currency != c.base {
		if currencyRate, err = c.rate(resp.Rates, currency); err != nil {
			return domain.Conversion{}, err
		}
	}

	conv := domain.Conversion{
		Symbol:    symbol,
		Name:      symbol.Name(),
		Base:      resp.Base,
		Currency:  currency,
		Rate:      rate,
		Converted: rate * currencyRate,
		Timestamp: time.Unix(resp.Timestamp, 0).UTC(),
	}
	if conv.Base == "" {
		conv.Base = c.base
	}
	return conv, nil
}

func (c *Client) rate(rates map[string]float64, code string) (float64, error) {
	key := c.base + code
	rate, ok := rates[key]
	if !ok {
		return 0, fmt.Errorf("parse response: missing rate %s", key)
	}
	return rate, nil
}

func (c *Client) params(currencies string) url.Values {
	params := url.Values{}
	params.Set("base", c.base)
	params.Set("currencies", currencies)
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	return params
}

// get performs one API call and decodes the body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out response) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	decodeErr := json.Unmarshal(body, out)
	status := out.status()

	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{StatusCode: resp.StatusCode}
		if decodeErr == nil && status.Error != nil {
			httpErr.Message = status.Error.Message
		}
		return httpErr
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}
	if !status.Success {
		// The API also reports failures in a 200 body.
		if status.Error != nil && status.Error.StatusCode != 0 {
			return &HTTPError{StatusCode: status.Error.StatusCode, Message: status.Error.Message}
		}
		return ErrUnsuccessful
	}
	return nil
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("request timeout: %w", err)
	}
	return fmt.Errorf("network error: %w", err)
}
