package ethrpc

import "fmt"

// TransportError is a network or HTTP-level failure. StatusCode is zero when
// no response was received.
type TransportError struct {
	Method     string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("rpc %s: http status %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("rpc %s: transport: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError means the endpoint answered with a body that is not a usable
// JSON-RPC response.
type ProtocolError struct {
	Method string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("rpc %s: protocol: %v", e.Method, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// RPCError is the error object returned by the node.
type RPCError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: error %d: %s", e.Method, e.Code, e.Message)
}
