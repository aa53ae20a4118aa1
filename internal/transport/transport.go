// Package transport performs built requests over the network.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.followtheprocess.codes/apidoc/internal/request"
)

// DefaultTimeout is the request timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a response body is read.
const maxBody = 10 << 20

// Response is the result of performing a request.
type Response struct {
	Body   any         `json:"body"`   // The decoded JSON body, or the raw text if it was not JSON
	Header http.Header `json:"header"` // Response headers
	Status int         `json:"status"` // HTTP status code
}

// OK reports whether the response has a 2xx status.
func (r Response) OK() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// Transport performs a request and returns the response. An error means the
// request could not be performed at all, a response with a failure status is
// not an error.
type Transport interface {
	Do(ctx context.Context, req request.Request) (Response, error)
}

// HTTP is a [Transport] over net/http.
type HTTP struct {
	client *http.Client
}

// NewHTTP returns an [HTTP] transport with the given timeout, a zero timeout
// uses [DefaultTimeout].
func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTP{client: &http.Client{Timeout: timeout}}
}

// Do implements [Transport] for [HTTP].
func (h *HTTP) Do(ctx context.Context, req request.Request) (Response, error) {
	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, fmt.Errorf("could not encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("could not build request: %w", err)
	}

	for _, header := range req.Headers {
		httpRequest.Header.Add(header.Key, header.Value)
	}

	response, err := h.client.Do(httpRequest)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxBody))
	if err != nil {
		return Response{}, fmt.Errorf("could not read response body: %w", err)
	}

	return Response{
		Status: response.StatusCode,
		Header: response.Header,
		Body:   Decode(raw),
	}, nil
}

// Decode decodes a response body as JSON, falling back to the raw text if it
// isn't valid JSON. An empty body decodes to nil.
func Decode(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}

	return decoded
}
