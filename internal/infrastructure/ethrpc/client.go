package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InfuraMainnetURL is the provider URL template; the API key is appended.
const InfuraMainnetURL = "https://mainnet.infura.io/v3/"

// EmptyCode is the eth_getCode result for an account without bytecode.
const EmptyCode = "0x"

const defaultTimeout = 30 * time.Second

type Client struct {
	url        string
	httpClient *http.Client
	idCounter  uint64
}

type Config struct {
	URL     string
	Timeout time.Duration
}

// InfuraURL builds the mainnet endpoint for apiKey.
func InfuraURL(apiKey string) string {
	return InfuraMainnetURL + apiKey
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// FetchLatestBlock returns the latest block with full transaction objects.
func (c *Client) FetchLatestBlock(ctx context.Context) (*Block, error) {
	raw, err := c.Call(ctx, "eth_getBlockByNumber", []any{"latest", true})
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, &ProtocolError{Method: "eth_getBlockByNumber", Err: errors.New("block result is null")}
	}
	var block Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, &ProtocolError{Method: "eth_getBlockByNumber", Err: err}
	}
	return &block, nil
}

// GetCode returns the bytecode at address in the latest state. EmptyCode
// means the account is externally owned.
func (c *Client) GetCode(ctx context.Context, address string) (string, error) {
	raw, err := c.Call(ctx, "eth_getCode", []any{address, "latest"})
	if err != nil {
		return "", err
	}
	var code string
	if err := json.Unmarshal(raw, &code); err != nil {
		return "", &ProtocolError{Method: "eth_getCode", Err: err}
	}
	return code, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Call posts a single JSON-RPC request and returns the raw result member of
// the response document. It never retries.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	ctx, span := otel.Tracer("transferindex/ethrpc").Start(ctx, "rpc."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.system", "jsonrpc"), attribute.String("rpc.method", method)),
	)
	defer span.End()

	result, err := c.call(ctx, method, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	id := atomic.AddUint64(&c.idCounter, 1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc %s: encode request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Err: redactURL(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{Method: method, StatusCode: resp.StatusCode}
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &ProtocolError{Method: method, Err: err}
	}
	if decoded.Error != nil {
		decoded.Error.Method = method
		return nil, decoded.Error
	}
	if len(decoded.Result) == 0 {
		return nil, &ProtocolError{Method: method, Err: errors.New("rpc result is missing")}
	}
	return decoded.Result, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// redactURL drops the request URL from transport errors so the API key
// embedded in the path never reaches the logs.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
