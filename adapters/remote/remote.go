// Package remote provides a JSON-RPC 2.0 client for resources served over
// HTTP. It implements the connector the resource engine uses for imports
// of "http://" and "https://" references.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artpar/resrun/adapters/idgen"
	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/resource"
	"github.com/artpar/resrun/core/value"
	"github.com/artpar/resrun/ports"
	"github.com/rs/zerolog"
)

// Version is the JSON-RPC protocol version spoken by the client.
const Version = "2.0"

// MethodsMethod is the introspection method listing forwardable methods.
const MethodsMethod = "__getMethods__"

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      any             `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response envelope. ErrorMessage carries the
// alternate error shape of function platforms.
type Response struct {
	JSONRPC      string          `json:"jsonrpc"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        *RPCError       `json:"error,omitempty"`
	ID           any             `json:"id"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
}

// Params is the parameter object of a forwarded invocation.
type Params struct {
	Arguments []any          `json:"arguments"`
	Options   map[string]any `json:"options"`
}

// Client provides JSON-RPC communication with one remote resource.
type Client struct {
	httpClient *http.Client
	url        string
	headers    map[string]string
	ids        ports.IDGenerator
	logger     zerolog.Logger
}

// ClientConfig configures the remote client.
type ClientConfig struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string

	// IDs generates request IDs. Defaults to UUIDs.
	IDs ports.IDGenerator

	Logger zerolog.Logger
}

// NewClient creates a new JSON-RPC client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ids := cfg.IDs
	if ids == nil {
		ids = idgen.UUID{}
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		headers:    cfg.Headers,
		ids:        ids,
		logger:     cfg.Logger,
	}
}

// Methods implements resource.RemoteClient.
func (c *Client) Methods(ctx context.Context) ([]string, error) {
	var methods []string
	if err := c.Request(ctx, MethodsMethod, nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// Call implements resource.RemoteClient.
func (c *Client) Call(ctx context.Context, method string, in resource.Input) (any, error) {
	params := Params{Arguments: in.Arguments, Options: map[string]any{}}
	if params.Arguments == nil {
		params.Arguments = []any{}
	}
	if opts, ok := value.Plain(in.Options).(map[string]any); ok {
		params.Options = opts
	}

	var result any
	if err := c.Request(ctx, method, params, &result); err != nil {
		return nil, err
	}
	return value.Plain(result), nil
}

// Request sends a JSON-RPC request and decodes its result into result.
func (c *Client) Request(ctx context.Context, method string, params, result any) error {
	id := c.ids.New()
	env := Request{JSONRPC: Version, Method: method, ID: id}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		env.Params = data
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("url", c.url).
		Str("method", method).
		Str("id", id).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("remote call issued")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		if resp.StatusCode >= 400 {
			return &HTTPError{StatusCode: resp.StatusCode, Message: string(data)}
		}
		return errs.Wrap(errs.CodeProtocol, err, "malformed response to %s", method)
	}
	return decode(out, id, method, result)
}

// decode validates a response envelope against the request it answers.
func decode(resp Response, id, method string, result any) error {
	if resp.ErrorMessage != nil {
		return fmt.Errorf("remote %s failed: %s", method, *resp.ErrorMessage)
	}
	if resp.JSONRPC != Version {
		return errs.New(errs.CodeProtocol, "unsupported JSON-RPC version %q", resp.JSONRPC)
	}
	if fmt.Sprint(resp.ID) != id {
		return errs.New(errs.CodeProtocol, "response id %v does not match request id %s", resp.ID, id)
	}
	if resp.Error != nil {
		if resp.Error.Code == CodeMethodNotFound {
			return errs.Wrap(errs.CodeNotFound, resp.Error, "remote method %q", method)
		}
		return resp.Error
	}
	if len(resp.Result) == 0 {
		return errs.New(errs.CodeProtocol, "response to %s has neither result nor error", method)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return errs.Wrap(errs.CodeProtocol, err, "decode result of %s", method)
	}
	return nil
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPError is a transport failure without a JSON-RPC body.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
}

// Connector opens JSON-RPC clients for remote imports.
type Connector struct {
	Timeout time.Duration
	Headers map[string]string
	IDs     ports.IDGenerator
	Logger  zerolog.Logger
}

// Connect implements resource.RemoteConnector.
func (c *Connector) Connect(ctx context.Context, url string) (resource.RemoteClient, error) {
	return NewClient(ClientConfig{
		URL:     url,
		Timeout: c.Timeout,
		Headers: c.Headers,
		IDs:     c.IDs,
		Logger:  c.Logger,
	}), nil
}

// Ensure interface compliance.
var (
	_ resource.RemoteConnector = (*Connector)(nil)
	_ resource.RemoteClient    = (*Client)(nil)
)
