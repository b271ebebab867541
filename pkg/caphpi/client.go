// Package caphpi wraps the CAP HPI valuation API, returning the three
// price points (private sale, dealer retail, trade-in) for a VRM and
// mileage pair.
package caphpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.cap-hpi.co.uk"

// Client fetches vehicle valuations.
type Client interface {
	// Valuation returns price points for the given VRM at the given
	// mileage. Mileage must be positive; the caller supplies a derived
	// estimate when the true figure is unknown.
	Valuation(ctx context.Context, vrm string, mileage int) (*Valuation, error)
}

// Valuation is the provider's valuation payload.
type Valuation struct {
	VRM           string
	Mileage       int
	ValuationDate time.Time
	PrivateGBP    float64
	RetailGBP     float64
	TradeGBP      float64
	// Confidence is the provider's indicator of valuation certainty
	// ("high", "medium", "low").
	Confidence string

	// Echo of the vehicle the provider matched the VRM to.
	Make    string
	Model   string
	Variant string
}

// ErrorCode is a machine-readable classification of a provider failure.
type ErrorCode string

const (
	CodeBadRequest  ErrorCode = "bad_request"
	CodeAuth        ErrorCode = "auth"
	CodeNotFound    ErrorCode = "not_found"
	CodeRateLimited ErrorCode = "rate_limited"
	CodeUpstream    ErrorCode = "upstream"
)

// APIError is a classified failure from the provider.
type APIError struct {
	StatusCode int
	Code       ErrorCode
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("caphpi: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Transient reports whether the failure is safe to retry.
func (e *APIError) Transient() bool {
	return e.Code == CodeRateLimited || e.Code == CodeUpstream
}

// ErrCode extracts the machine-readable code from an error chain, or ""
// if the chain contains no APIError.
func ErrCode(err error) ErrorCode {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a CAP HPI valuation client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// valuationResponse is the wire shape of GET /v1/valuations.
type valuationResponse struct {
	VRM            string    `json:"vrm"`
	Mileage        int       `json:"mileage"`
	ValuationDate  time.Time `json:"valuationDate"`
	EstimatedValue struct {
		Private float64 `json:"private"`
		Retail  float64 `json:"retail"`
		Trade   float64 `json:"trade"`
	} `json:"estimatedValue"`
	Confidence string `json:"confidence"`
	Vehicle    struct {
		Make    string `json:"make"`
		Model   string `json:"model"`
		Variant string `json:"variant"`
	} `json:"vehicle"`
}

func (c *httpClient) Valuation(ctx context.Context, vrm string, mileage int) (*Valuation, error) {
	if vrm == "" {
		return nil, &APIError{Code: CodeBadRequest, Message: "vrm is required"}
	}
	if mileage <= 0 {
		return nil, &APIError{Code: CodeBadRequest, Message: "mileage must be positive"}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "caphpi: rate limiter")
	}

	q := url.Values{}
	q.Set("vrm", vrm)
	q.Set("mileage", strconv.Itoa(mileage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/valuations?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "caphpi: create request")
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "caphpi: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "caphpi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       codeForStatus(resp.StatusCode),
			Message:    string(body),
		}
	}

	var wire valuationResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, eris.Wrap(err, "caphpi: unmarshal response")
	}

	v := &Valuation{
		VRM:           wire.VRM,
		Mileage:       wire.Mileage,
		ValuationDate: wire.ValuationDate,
		PrivateGBP:    wire.EstimatedValue.Private,
		RetailGBP:     wire.EstimatedValue.Retail,
		TradeGBP:      wire.EstimatedValue.Trade,
		Confidence:    wire.Confidence,
		Make:          wire.Vehicle.Make,
		Model:         wire.Vehicle.Model,
		Variant:       wire.Vehicle.Variant,
	}
	if v.VRM == "" {
		v.VRM = vrm
	}
	return v, nil
}

func codeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeAuth
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeUpstream
	default:
		return CodeBadRequest
	}
}
