package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// DefaultBaseURL is the Graph endpoint used when config does not override it.
// The beta version is required to read profile photos of personal accounts.
const DefaultBaseURL = "https://graph.microsoft.com/beta"

// DefaultClientSKU identifies this client to Graph in the SdkVersion and
// x-client-SKU headers.
const DefaultClientSKU = "graph-mailer"

const userAgent = "graph-mailer/0.1"

// Default header names sent with every Graph request.
const (
	headerSDKVersion        = "SdkVersion"
	headerClientSKU         = "x-client-SKU"
	headerClientRequestID   = "client-request-id"
	headerReturnClientReqID = "return-client-request-id"
	headerContentType       = "Content-Type"
	contentTypeJSON         = "application/json"
	contentTypeOctetStream  = "application/octet-stream"
	responseRequestIDHeader = "request-id"
)

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer
// (graph package) per Go convention "accept interfaces, return structs".
// session.Session is the production implementation.
type TokenSource interface {
	Token() (string, error)
}

// Client is an HTTP client for the Microsoft Graph API. It injects the
// bearer token and the default correlation headers; it never retries.
// A Client carries no per-call mutable state and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	clientSKU  string

	// newRequestID generates the client-request-id header value.
	// Tests override it for deterministic assertions.
	newRequestID func() string
}

// NewClient creates a Graph API client.
// baseURL is typically DefaultBaseURL. An empty clientSKU uses DefaultClientSKU.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, clientSKU string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if clientSKU == "" {
		clientSKU = DefaultClientSKU
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		token:        token,
		logger:       logger,
		clientSKU:    clientSKU,
		newRequestID: uuid.NewString,
	}
}

// Response is the fully-read result of one Graph call. Non-2xx responses are
// returned as a Response, not an error; callers decide how to react.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is in the 2xx class.
func (r *Response) OK() bool {
	return isSuccess(r.StatusCode)
}

// RequestID returns the server-assigned request-id, if any.
func (r *Response) RequestID() string {
	return r.Header.Get(responseRequestIDHeader)
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("graph: decoding response: %w", err)
	}

	return nil
}

// Err classifies a non-2xx response as a *GraphError. Returns nil for 2xx.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}

	return &GraphError{
		StatusCode: r.StatusCode,
		RequestID:  r.RequestID(),
		Message:    string(r.Body),
		Err:        classifyStatus(r.StatusCode),
	}
}

// defaultHeaders builds the per-request default header set, then applies
// extra on top so caller values win on conflict.
func (c *Client) defaultHeaders(extra http.Header) http.Header {
	h := make(http.Header)
	h.Set(headerSDKVersion, c.clientSKU)
	h.Set(headerClientSKU, c.clientSKU)
	h.Set(headerClientRequestID, c.newRequestID())
	h.Set(headerReturnClientReqID, "true")

	for k, vs := range extra {
		h.Del(k)

		for _, v := range vs {
			h.Add(k, v)
		}
	}

	return h
}

// Do executes a single authenticated request against the Graph API.
// The path is appended to the client's base URL. For non-nil bodies without
// a caller-supplied Content-Type, application/json is used.
// Returns ErrUnauthenticated before any network I/O if no token is available.
func (c *Client) Do(ctx context.Context, method, path string, header http.Header, body io.Reader) (*Response, error) {
	tok, err := c.bearerToken()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("graph: creating request: %w", err)
	}

	req.Header = c.defaultHeaders(header)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if body != nil && req.Header.Get(headerContentType) == "" {
		req.Header.Set(headerContentType, contentTypeJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("graph: request canceled: %w", ctx.Err())
		}

		c.logger.Warn("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("graph: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("graph: reading %s %s response: %w", method, path, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}

	c.logger.Debug("request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("client_request_id", req.Header.Get(headerClientRequestID)),
		slog.String("request_id", out.RequestID()),
	)

	return out, nil
}

// doJSON marshals payload as the request body and calls Do.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) (*Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("graph: encoding %s %s request: %w", method, path, err)
	}

	return c.Do(ctx, method, path, nil, bytes.NewReader(data))
}

// bearerToken reads the current token, mapping "none" to ErrUnauthenticated.
func (c *Client) bearerToken() (string, error) {
	if c.token == nil {
		return "", ErrUnauthenticated
	}

	tok, err := c.token.Token()
	if err != nil {
		return "", fmt.Errorf("graph: obtaining token: %w", err)
	}

	if tok == "" {
		return "", ErrUnauthenticated
	}

	return tok, nil
}
