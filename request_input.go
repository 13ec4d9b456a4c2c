package cfrealip

import (
	"context"
	"net/http"
	"strings"
)

// Header names consulted by the resolver, in canonical MIME form.
const (
	HeaderCFConnectingIP = "Cf-Connecting-Ip"
	HeaderTrueClientIP   = "True-Client-Ip"
	HeaderXForwardedFor  = "X-Forwarded-For"
)

// HeaderValues provides access to request header values by name.
//
// Lookups must be case-insensitive. Names are requested in canonical MIME
// format (for example "Cf-Connecting-Ip"); net/http's http.Header satisfies
// this interface directly.
type HeaderValues interface {
	Values(name string) []string
}

// HeaderValuesFunc adapts a function to the HeaderValues interface.
type HeaderValuesFunc func(name string) []string

// Values implements HeaderValues.
func (f HeaderValuesFunc) Values(name string) []string {
	if f == nil {
		return nil
	}

	return f(name)
}

// RequestInput provides framework-agnostic request data for resolution.
//
// Context defaults to context.Background() when nil. It is only used to carry
// tracing metadata to the Logger.
type RequestInput struct {
	Context    context.Context
	RemoteAddr string
	Path       string
	Headers    HeaderValues
}

// InputFromRequest builds a RequestInput from a net/http request.
func InputFromRequest(r *http.Request) RequestInput {
	if r == nil {
		return RequestInput{Context: context.Background()}
	}

	input := RequestInput{
		Context:    r.Context(),
		RemoteAddr: r.RemoteAddr,
		Headers:    r.Header,
	}
	if r.URL != nil {
		input.Path = r.URL.Path
	}

	return input
}

func requestInputContext(input RequestInput) context.Context {
	if input.Context == nil {
		return context.Background()
	}

	return input.Context
}

// headerValue returns the first non-blank value received for name, trimmed.
// Empty values are treated as absent.
func headerValue(headers HeaderValues, name string) string {
	if headers == nil || isNilInterface(headers) {
		return ""
	}

	for _, value := range headers.Values(name) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}

	return ""
}

// firstForwardedFor returns the leftmost X-Forwarded-For entry, trimmed.
func firstForwardedFor(headers HeaderValues) string {
	value := headerValue(headers, HeaderXForwardedFor)
	if value == "" {
		return ""
	}

	first, _, _ := strings.Cut(value, ",")
	return strings.TrimSpace(first)
}
