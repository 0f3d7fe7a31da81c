package gqlclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alim08/marketgql/pkg/breaker"
)

var (
	ErrCircuitBreakerOpen = breaker.ErrOpen
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrNoData             = errors.New("response has no data")
)

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError is one entry of a response's errors[] array.
type GraphQLError struct {
	Message    string                 `json:"message"`
	Path       []interface{}          `json:"path,omitempty"`
	Locations  []Location             `json:"locations,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Path))
	for i, p := range e.Path {
		parts[i] = fmt.Sprint(p)
	}
	return fmt.Sprintf("%s (path: %s)", e.Message, strings.Join(parts, "."))
}

// Code returns extensions.code, e.g. "UNAUTHENTICATED", or "".
func (e GraphQLError) Code() string {
	if c, ok := e.Extensions["code"].(string); ok {
		return c
	}
	return ""
}

// GraphQLErrors is returned when the server answered with errors[]. Any data
// that came back with them has already been decoded into the result.
type GraphQLErrors []GraphQLError

func (es GraphQLErrors) Error() string {
	switch len(es) {
	case 0:
		return "graphql: no errors"
	case 1:
		return "graphql: " + es[0].Error()
	}
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("graphql: %d errors: %s", len(es), strings.Join(msgs, "; "))
}

// HasCode reports whether any error carries the given extensions.code.
func (es GraphQLErrors) HasCode(code string) bool {
	for _, e := range es {
		if e.Code() == code {
			return true
		}
	}
	return false
}

// HTTPError is a non-2xx answer from the endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("graphql: http %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), body)
}

// Temporary reports whether retrying may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// AsGraphQLErrors extracts server errors from err.
func AsGraphQLErrors(err error) (GraphQLErrors, bool) {
	var gqlErrs GraphQLErrors
	ok := errors.As(err, &gqlErrs)
	return gqlErrs, ok
}
