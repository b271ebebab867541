// Package ukvd wraps the UK Vehicle Data datapackage API: vehicle
// specification, MOT test history, and the ownership/condition
// provenance check, each a separate per-VRM resource.
package ukvd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://uk1.ukvehicledata.co.uk"

// Client fetches vehicle specification and history data by registration.
type Client interface {
	// VehicleData returns the core specification payload.
	VehicleData(ctx context.Context, vrm string) (*VehicleData, error)

	// MOTHistory returns all recorded MOT tests, oldest first. An empty
	// slice means the provider holds no tests for the vehicle.
	MOTHistory(ctx context.Context, vrm string) ([]MOTTest, error)

	// ProvenanceCheck returns ownership, write-off and finance markers.
	ProvenanceCheck(ctx context.Context, vrm string) (*ProvenanceCheck, error)

	// Snapshot fetches all three resources concurrently, tolerating
	// individual sub-resource failures. It fails only when the core
	// VehicleData call fails.
	Snapshot(ctx context.Context, vrm string) (*Snapshot, error)
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

// WithSandbox switches requests to the provider's test mode, which
// returns canned data and does not bill lookups.
func WithSandbox(sandbox bool) Option {
	return func(c *httpClient) {
		c.sandbox = sandbox
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	sandbox bool
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a UK Vehicle Data API client.
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

// envelope is the provider's response wrapper. DataItems holds the
// datapackage-specific payload.
type envelope struct {
	Response struct {
		StatusCode    string          `json:"StatusCode"`
		StatusMessage string          `json:"StatusMessage"`
		DataItems     json.RawMessage `json:"DataItems"`
	} `json:"Response"`
}

func (c *httpClient) VehicleData(ctx context.Context, vrm string) (*VehicleData, error) {
	var out VehicleData
	if err := c.get(ctx, "VehicleData", vrm, &out); err != nil {
		return nil, err
	}
	if out.VRM == "" {
		out.VRM = vrm
	}
	return &out, nil
}

func (c *httpClient) MOTHistory(ctx context.Context, vrm string) ([]MOTTest, error) {
	var out struct {
		RecordList []MOTTest `json:"RecordList"`
	}
	if err := c.get(ctx, "MotHistoryData", vrm, &out); err != nil {
		return nil, err
	}
	return out.RecordList, nil
}

func (c *httpClient) ProvenanceCheck(ctx context.Context, vrm string) (*ProvenanceCheck, error) {
	var out ProvenanceCheck
	if err := c.get(ctx, "VdiCheckFull", vrm, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Snapshot(ctx context.Context, vrm string) (*Snapshot, error) {
	var (
		vehicle *VehicleData
		prov    *ProvenanceCheck
		mot     []MOTTest

		vehErr, provErr, motErr error
	)

	// Join all three, inspect each result individually; a failed
	// sub-resource must not sink the others.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		vehicle, vehErr = c.VehicleData(ctx, vrm)
	}()
	go func() {
		defer wg.Done()
		prov, provErr = c.ProvenanceCheck(ctx, vrm)
	}()
	go func() {
		defer wg.Done()
		mot, motErr = c.MOTHistory(ctx, vrm)
	}()
	wg.Wait()

	if vehErr != nil {
		return nil, vehErr
	}

	s := &Snapshot{VRM: vehicle.VRM, Vehicle: vehicle}
	if provErr != nil {
		s.Warnings = append(s.Warnings, "ownership and condition history unavailable")
	} else {
		s.Provenance = prov
	}
	if motErr != nil {
		s.Warnings = append(s.Warnings, "MOT history unavailable")
	} else {
		s.MOTTests = mot
	}
	return s, nil
}

func (c *httpClient) get(ctx context.Context, datapackage, vrm string, out any) error {
	if vrm == "" {
		return &APIError{StatusCode: 0, Code: CodeBadRequest, Message: "vrm is required"}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "ukvd: rate limiter")
	}

	q := url.Values{}
	q.Set("v", "2")
	q.Set("auth_apikey", c.apiKey)
	q.Set("key_VRM", vrm)
	if c.sandbox {
		q.Set("api_testmode", "true")
	}
	reqURL := fmt.Sprintf("%s/api/datapackage/%s?%s", c.baseURL, datapackage, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrapf(err, "ukvd: create %s request", datapackage)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "ukvd: %s request", datapackage)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "ukvd: read %s response", datapackage)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       codeForStatus(resp.StatusCode),
			Message:    string(body),
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return eris.Wrapf(err, "ukvd: unmarshal %s envelope", datapackage)
	}

	switch env.Response.StatusCode {
	case "Success":
	case "ItemNotFound", "KeyInvalid":
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       CodeNotFound,
			Message:    env.Response.StatusMessage,
		}
	default:
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       CodeUpstream,
			Message:    env.Response.StatusMessage,
		}
	}

	if err := json.Unmarshal(env.Response.DataItems, out); err != nil {
		return eris.Wrapf(err, "ukvd: unmarshal %s data items", datapackage)
	}
	return nil
}
