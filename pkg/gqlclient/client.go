// Package gqlclient executes GraphQL documents against the remote API over
// HTTP and graphql-transport-ws.
package gqlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/breaker"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
)

const maxResponseBytes = 32 << 20

// Request is the JSON body of a GraphQL POST.
type Request struct {
	Query         string      `json:"query"`
	OperationName string      `json:"operationName,omitempty"`
	Variables     interface{} `json:"variables,omitempty"`
}

// Response is the JSON envelope returned by the server.
type Response struct {
	Data       json.RawMessage        `json:"data"`
	Errors     GraphQLErrors          `json:"errors,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

type Options struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
	// Timeout bounds each attempt, not the whole retry sequence.
	Timeout          time.Duration
	MaxRetries       int
	BreakerThreshold int64
	BreakerCooldown  time.Duration
	UserAgent        string
}

type Client struct {
	opts    Options
	http    *http.Client
	breaker *breaker.Breaker
	tracer  trace.Tracer
	log     *zap.Logger
	backoff func() backoff.BackOff
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "marketgql/1"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		opts:    opts,
		http:    hc,
		breaker: breaker.New("graphql", opts.BreakerThreshold, opts.BreakerCooldown),
		tracer:  otel.Tracer("github.com/alim08/marketgql/pkg/gqlclient"),
		log:     logger.Named("gqlclient"),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

// Endpoint returns the HTTP endpoint the client posts to.
func (c *Client) Endpoint() string {
	return c.opts.Endpoint
}

// Execute runs req and decodes response data into out (which may be nil).
//
// When the server answers with errors[] the data it returned, if any, is still
// decoded into out and the errors are returned as GraphQLErrors. Transport
// failures, 429 and 5xx answers are retried with exponential backoff; other
// HTTP failures are returned as *HTTPError without retrying.
func (c *Client) Execute(ctx context.Context, req Request, out interface{}) (err error) {
	op := req.OperationName
	if op == "" {
		op = "anonymous"
	}
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "graphql."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("graphql.operation.name", op),
		attribute.String("http.url", c.opts.Endpoint),
	)
	defer func() {
		status := "success"
		var gqlErrs GraphQLErrors
		switch {
		case errors.As(err, &gqlErrs):
			status = "graphql_error"
			metrics.GraphQLErrors.WithLabelValues(op).Add(float64(len(gqlErrs)))
			span.SetAttributes(attribute.Int("graphql.error_count", len(gqlErrs)))
		case err != nil:
			status = "error"
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.GraphQLRequestDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
		metrics.GraphQLRequestTotal.WithLabelValues(op, status).Inc()
	}()

	if !c.breaker.Allow() {
		return ErrCircuitBreakerOpen
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	notify := func(err error, wait time.Duration) {
		metrics.GraphQLRetries.WithLabelValues(op).Inc()
		c.log.Warn("graphql request failed, retrying",
			zap.String("operation", op), zap.Duration("wait", wait), zap.Error(err))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), uint64(c.opts.MaxRetries)), ctx)
	resp, err := backoff.RetryNotifyWithData(func() (Response, error) { return c.post(ctx, body) }, b, notify)
	if err != nil {
		c.recordTransport(err)
		return err
	}
	c.breaker.Record(nil)

	if out != nil && len(resp.Data) > 0 && !bytes.Equal(resp.Data, []byte("null")) {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			if len(resp.Errors) > 0 {
				return fmt.Errorf("decode data: %v: %w", err, resp.Errors)
			}
			return fmt.Errorf("decode data: %w", err)
		}
	}
	if len(resp.Errors) > 0 {
		c.log.Debug("graphql errors", zap.String("operation", op), zap.Int("count", len(resp.Errors)),
			zap.String("first", resp.Errors[0].Message))
		return resp.Errors
	}
	if out != nil && (len(resp.Data) == 0 || bytes.Equal(resp.Data, []byte("null"))) {
		return ErrNoData
	}
	c.log.Debug("graphql request done", zap.String("operation", op), zap.Duration("took", time.Since(start)))
	return nil
}

// recordTransport counts failures that say the endpoint is unhealthy.
// Client errors and cancellations do not trip the breaker.
func (c *Client) recordTransport(err error) {
	var httpErr *HTTPError
	switch {
	case errors.Is(err, context.Canceled):
	case errors.As(err, &httpErr) && !httpErr.Temporary():
	default:
		c.breaker.Record(err)
	}
}

func (c *Client) post(ctx context.Context, body []byte) (Response, error) {
	var resp Response
	if err := ctx.Err(); err != nil {
		return resp, backoff.Permanent(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return resp, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/graphql-response+json, application/json")
	httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	if c.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", c.opts.APIKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return resp, backoff.Permanent(err)
		}
		return resp, fmt.Errorf("post: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return resp, fmt.Errorf("read body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: httpResp.StatusCode, Body: string(raw)}
		// Servers following graphql-over-http send 4xx with a GraphQL body
		// for invalid documents; surface those errors directly.
		if !httpErr.Temporary() {
			if json.Unmarshal(raw, &resp) == nil && len(resp.Errors) > 0 {
				return resp, nil
			}
			return resp, backoff.Permanent(httpErr)
		}
		return resp, httpErr
	}

	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return resp, nil
}
