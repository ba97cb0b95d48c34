// Package oanda adapts the OANDA v3 REST and streaming API to the
// broker.Broker contract.
package oanda

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/goldpair/market"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// PracticeURL is the URL for OANDA's practice/demo environment
	PracticeURL = "https://api-fxpractice.oanda.com"
	// LiveURL is the URL for OANDA's live trading environment
	LiveURL = "https://api-fxtrade.oanda.com"

	PracticeStreamURL = "https://stream-fxpractice.oanda.com"
	LiveStreamURL     = "https://stream-fxtrade.oanda.com"

	// DefaultUnitsPerLot converts lots to OANDA units (ounces for metals).
	DefaultUnitsPerLot = 100
	// PriceMaxAge bounds how old a streamed quote may be and still be served.
	PriceMaxAge = 10 * time.Second
)

// BaseURLs maps an environment name to its REST and stream hosts.
func BaseURLs(env string) (rest, stream string, err error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "practice", "demo":
		return PracticeURL, PracticeStreamURL, nil
	case "live":
		return LiveURL, LiveStreamURL, nil
	default:
		return "", "", fmt.Errorf("unknown OANDA env %q (want practice|live)", env)
	}
}

type Config struct {
	Token       string
	AccountID   string
	Env         string
	BaseURL     string // overrides Env when set
	StreamURL   string // overrides Env when set
	UnitsPerLot float64
	// RequestsPerSecond caps outgoing REST calls. Zero means 20.
	RequestsPerSecond float64
	// MaxRetries bounds retries of idempotent GETs.
	MaxRetries uint64
	HTTPClient *http.Client
	Logger     *zerolog.Logger
	Now        func() time.Time
}

// Client represents an OANDA API client
type Client struct {
	baseURL     string
	streamURL   string
	token       string
	accountID   string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  uint64
	unitsPerLot float64
	prices      *market.TickStore
	now         func() time.Time
	log         zerolog.Logger
}

// NewClient creates a new OANDA API client
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("oanda: missing token")
	}
	if cfg.AccountID == "" {
		return nil, errors.New("oanda: missing account id")
	}
	rest, stream, err := BaseURLs(cfg.Env)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL != "" {
		rest = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.StreamURL != "" {
		stream = strings.TrimRight(cfg.StreamURL, "/")
	} else if cfg.BaseURL != "" {
		stream = rest
	}

	c := &Client{
		baseURL:     rest,
		streamURL:   stream,
		token:       cfg.Token,
		accountID:   cfg.AccountID,
		httpClient:  cfg.HTTPClient,
		maxRetries:  cfg.MaxRetries,
		unitsPerLot: cfg.UnitsPerLot,
		prices:      market.NewTickStore(),
		now:         cfg.Now,
		log:         zerolog.Nop(),
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.unitsPerLot <= 0 {
		c.unitsPerLot = DefaultUnitsPerLot
	}
	if c.now == nil {
		c.now = time.Now
	}
	if cfg.Logger != nil {
		c.log = cfg.Logger.With().Str("component", "oanda").Logger()
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	return c, nil
}

func (c *Client) Name() string { return "oanda" }

// Prices exposes the streamed quote cache.
func (c *Client) Prices() *market.TickStore { return c.prices }

// APIError is a non-2xx reply from OANDA.
type APIError struct {
	Status  int
	Code    string `json:"errorCode"`
	Message string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("oanda http %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("oanda http %d: %s", e.Status, e.Message)
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func (c *Client) accountPath(format string, args ...any) string {
	return "/v3/accounts/" + url.PathEscape(c.accountID) + fmt.Sprintf(format, args...)
}

// do sends one request and decodes a JSON reply into out. GETs are retried
// with exponential backoff on transport errors, 429 and 5xx.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := c.once(ctx, method, path, query, payload, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	if method != http.MethodGet || c.maxRetries == 0 {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx),
		func(err error, d time.Duration) {
			c.log.Warn().Err(err).Str("path", path).Dur("retry_in", d).Msg("request failed")
		})
}

func (c *Client) once(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept-Datetime-Format", "RFC3339")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(b, apiErr) != nil || (apiErr.Code == "" && apiErr.Message == "") {
			apiErr.Message = strings.TrimSpace(string(b))
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
