package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Request is a fluent builder for a client request.
// The first error encountered while building is kept and returned from [Request.Send].
type Request struct {
	err     error
	method  string
	u       *url.URL
	body    []byte
	headers http.Header
	client  *http.Client
}

func requestInit(method, u string) *Request {
	parsed, err := url.Parse(u)
	if err != nil {
		return &Request{err: err}
	}
	return &Request{
		method:  method,
		u:       parsed,
		headers: http.Header{},
		client:  http.DefaultClient,
	}
}

func GetRequest(u string) *Request {
	return requestInit(http.MethodGet, u)
}

func PostRequest(u string) *Request {
	return requestInit(http.MethodPost, u)
}

// Client overrides the [http.DefaultClient] used to send the request.
func (r *Request) Client(client *http.Client) *Request {
	if client == nil {
		r.err = errors.Join(r.err, errors.New("nil client"))
		return r
	}
	r.client = client
	return r
}

func (r *Request) SetHeader(header, value string) *Request {
	if r.err == nil {
		r.headers.Set(header, value)
	}
	return r
}

// JSONBody serializes body as the request payload.
func (r *Request) JSONBody(body any) *Request {
	if r.err != nil {
		return r
	}
	data, err := json.Marshal(body)
	if err != nil {
		r.err = err
		return r
	}
	r.body = data
	return r.SetHeader(HeaderContentType, ContentTypeJSON)
}

// Send performs the request, propagating the trace context in ctx to the server.
// The caller must close the returned [Response].
func (r *Request) Send(ctx context.Context) (*Response, error) {
	if r.err != nil {
		return nil, r.err
	}
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = r.headers.Clone()
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, resp: resp}, nil
}

type Response struct {
	StatusCode int
	resp       *http.Response
}

func (r *Response) Close() error {
	return r.resp.Body.Close()
}

// Success reports whether the status code is 2xx.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ReadJSON reads and closes the response body, decoding it as a T.
func ReadJSON[T any](r *Response) (T, error) {
	var val T
	defer func() {
		_ = r.Close()
	}()
	if err := json.NewDecoder(r.resp.Body).Decode(&val); err != nil {
		return val, fmt.Errorf("failed to read response body: %w", err)
	}
	return val, nil
}
