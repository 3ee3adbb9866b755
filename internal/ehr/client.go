package ehr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ehr/ehrsync/internal/domain/ehrconfig"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

// Operation labels passed to a RequestObserver.
const (
	OperationRead   = "read"
	OperationSearch = "search"
)

// RequestObserver is told about every vendor call. status is 0 when no
// response arrived.
type RequestObserver interface {
	ObserveVendorRequest(system, operation string, status int, d time.Duration)
}

// RESTClient performs the vendor FHIR reads. It holds no per-tenant state:
// every call receives the configuration it acts for.
type RESTClient struct {
	http     *resty.Client
	observer RequestObserver
}

type ClientOption func(*RESTClient)

// WithRateLimit makes every vendor call wait for a token from limiter. The
// wait honours the call's context.
func WithRateLimit(limiter *rate.Limiter) ClientOption {
	return func(c *RESTClient) {
		c.http.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			if err := limiter.Wait(req.Context()); err != nil {
				return fmt.Errorf("vendor rate limit: %w", err)
			}
			return nil
		})
	}
}

func WithObserver(o RequestObserver) ClientOption {
	return func(c *RESTClient) {
		c.observer = o
	}
}

// NewRESTClient builds a client that never retries. A zero timeout leaves
// the transport default in place.
func NewRESTClient(timeout time.Duration, logger zerolog.Logger, opts ...ClientOption) *RESTClient {
	h := resty.New().
		SetRetryCount(0).
		SetHeader("Accept", fhirmodels.MIMETypeFHIRJSON).
		SetLogger(restyLogger{logger: logger.With().Str("component", "ehr_client").Logger()})
	if timeout > 0 {
		h.SetTimeout(timeout)
	}
	c := &RESTClient{http: h}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RESTClient) observe(system fhirmodels.EHRSystem, operation string, start time.Time, resp *resty.Response, err error) {
	if c.observer == nil {
		return
	}
	status := 0
	if err == nil && resp != nil {
		status = resp.StatusCode()
	}
	c.observer.ObserveVendorRequest(system.String(), operation, status, time.Since(start))
}

// RequestOption adjusts a single vendor request.
type RequestOption func(*resty.Request)

func WithHeader(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetHeader(key, value)
	}
}

func (c *RESTClient) request(ctx context.Context, cfg *ehrconfig.Configuration, opts []RequestOption) *resty.Request {
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(cfg.ClientSecret)
	for k, v := range cfg.Headers() {
		req.SetHeader(k, v)
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

func patientURL(cfg *ehrconfig.Configuration) string {
	return strings.TrimRight(cfg.APIEndpoint, "/") + "/" + fhirmodels.ResourceTypePatient
}

// FetchByID reads {endpoint}/Patient/{id}.
func (c *RESTClient) FetchByID(ctx context.Context, cfg *ehrconfig.Configuration, id string, opts ...RequestOption) (Resource, error) {
	start := time.Now()
	resp, err := c.request(ctx, cfg, opts).Get(patientURL(cfg) + "/" + url.PathEscape(id))
	c.observe(cfg.EHRSystem, OperationRead, start, resp, err)
	if err := checkResponse(cfg.EHRSystem, resp, err); err != nil {
		return nil, err
	}

	var res Resource
	if err := decodeJSON(resp.Body(), &res); err != nil {
		return nil, &RequestError{System: cfg.EHRSystem, Body: excerpt(resp.Body()),
			Err: fmt.Errorf("decode patient: %w", err)}
	}
	return res, nil
}

// decodeJSON keeps numbers as json.Number so raw payloads round-trip
// without float64 rounding.
func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

type bundle struct {
	ResourceType string `json:"resourceType"`
	Entry        []struct {
		Resource Resource `json:"resource"`
	} `json:"entry"`
}

// Search reads {endpoint}/Patient?{params} and returns the resources of the
// result bundle's entries in order. A bundle without entries yields an
// empty slice.
func (c *RESTClient) Search(ctx context.Context, cfg *ehrconfig.Configuration, params url.Values, opts ...RequestOption) ([]Resource, error) {
	start := time.Now()
	resp, err := c.request(ctx, cfg, opts).
		SetQueryParamsFromValues(params).
		Get(patientURL(cfg))
	c.observe(cfg.EHRSystem, OperationSearch, start, resp, err)
	if err := checkResponse(cfg.EHRSystem, resp, err); err != nil {
		return nil, err
	}

	var b bundle
	if err := decodeJSON(resp.Body(), &b); err != nil {
		return nil, &RequestError{System: cfg.EHRSystem, Body: excerpt(resp.Body()),
			Err: fmt.Errorf("decode bundle: %w", err)}
	}
	out := make([]Resource, 0, len(b.Entry))
	for _, e := range b.Entry {
		out = append(out, e.Resource)
	}
	return out, nil
}

func checkResponse(system fhirmodels.EHRSystem, resp *resty.Response, err error) error {
	if err != nil {
		return &RequestError{System: system, Err: err}
	}
	if !resp.IsSuccess() {
		return &RequestError{
			System:     system,
			StatusCode: resp.StatusCode(),
			Body:       excerpt(resp.Body()),
			Err:        fmt.Errorf("unexpected status %s", resp.Status()),
		}
	}
	return nil
}

// restyLogger routes resty's internal messages through zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(strings.TrimSpace(format), v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), v...)
}
